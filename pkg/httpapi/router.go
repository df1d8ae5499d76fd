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

// Package httpapi is the caller-facing HTTP surface of the decision core
// (spec §6): POST /tools/{tool_name} for scored decisions, and the
// /feedback endpoints for the feedback loop. Authentication and ingress
// routing are external collaborators (spec §1 "Out of scope"); this
// package trusts the caller identity it is handed.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/executor"
	"github.com/salesintel/decisionengine/pkg/http/cors"
	"github.com/salesintel/decisionengine/pkg/ledger"
)

// Server holds the dependencies every handler in this package closes
// over. The zero value is not usable; construct with NewServer.
type Server struct {
	executor       *executor.Executor
	repo           *ledger.Repository
	log            logging.Fields
	feedbackWindow time.Duration
}

// NewServer constructs a Server. feedbackWindow is the trailing window
// POST /feedback blends into its current_performance figure; callers
// typically pass the same duration as internal/config.FeedbackConfig.Window.
func NewServer(exec *executor.Executor, repo *ledger.Repository, log logging.Fields, feedbackWindow time.Duration) *Server {
	return &Server{
		executor:       exec,
		repo:           repo,
		log:            log.Component("httpapi"),
		feedbackWindow: feedbackWindow,
	}
}

// NewRouter builds the chi.Mux serving every endpoint spec §6 declares,
// with request-ID propagation, panic recovery, and CORS wired the way
// the gateway package's own middleware stack does (recovered from the
// retrieved corpus's gateway CORS/metrics tests; no gateway router source
// itself was retrieved to adapt directly — see DESIGN.md).
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.FromEnvironment()))

	r.Get("/health", handleHealth)
	r.Get("/ready", handleHealth)

	r.Route("/tools", func(r chi.Router) {
		r.Post("/{tool_name}", s.handleInvokeTool)
	})

	r.Route("/feedback", func(r chi.Router) {
		r.Post("/", s.handleSubmitFeedback)
		r.Get("/summary", s.handleFeedbackSummary)
		r.Get("/decisions/{decision_id}", s.handleGetDecision)
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
