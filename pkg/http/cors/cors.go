/*
Copyright 2025 Jordi Gil.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cors wires github.com/go-chi/cors into the decision core's HTTP
// surface, configured entirely from environment variables so a deployment
// never needs a code change to change its allowed origins.
package cors

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/cors"
)

// Options mirrors the subset of cors.Options the decision core exposes
// through environment variables.
type Options struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowCredentials bool
}

var defaultMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}

// FromEnvironment builds Options from CORS_ALLOWED_ORIGINS (comma-separated,
// "*" for any), CORS_ALLOWED_METHODS (comma-separated, defaults to
// GET/POST/PUT/DELETE/OPTIONS), and CORS_ALLOW_CREDENTIALS ("true"/"false").
func FromEnvironment() Options {
	opts := Options{
		AllowedOrigins: splitEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AllowedMethods: splitEnv("CORS_ALLOWED_METHODS", defaultMethods),
	}
	if v := os.Getenv("CORS_ALLOW_CREDENTIALS"); v != "" {
		opts.AllowCredentials = v == "true"
	}
	return opts
}

func splitEnv(key string, fallback []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// Handler returns chi-compatible middleware applying opts. Wildcard
// credentialed origins are rejected by the underlying library, which the
// production-mode whitelist (CORS_ALLOWED_ORIGINS set to a specific host)
// is expected to satisfy.
func Handler(opts Options) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   opts.AllowedMethods,
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Tenant-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: opts.AllowCredentials,
		MaxAge:           300,
	})
}
