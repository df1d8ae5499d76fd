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

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
)

// errorEnvelope is the uniform error shape every handler in this package
// returns on failure (spec §6 "Errors use a uniform envelope").
type errorEnvelope struct {
	OK         bool     `json:"ok"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
	TraceID    string   `json:"trace_id"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err as the uniform error envelope, deriving the
// wire code from appErrors.ErrorCode and the trace_id from chi's
// request-ID middleware (set by middleware.RequestID upstream).
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	t := appErrors.GetType(err)
	status := appErrors.GetStatusCode(err)

	var violations []string
	if details := detailsOf(err); details != "" {
		violations = strings.Split(details, "; ")
	}

	writeJSON(w, status, errorEnvelope{
		OK:         false,
		Code:       appErrors.ErrorCode(t),
		Message:    appErrors.SafeErrorMessage(err),
		Violations: violations,
		TraceID:    middleware.GetReqID(r.Context()),
	})
}

func detailsOf(err error) string {
	var ae *appErrors.AppError
	if !errors.As(err, &ae) {
		return ""
	}
	return ae.Details
}
