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
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/pkg/executor"
	"github.com/salesintel/decisionengine/pkg/tools"
)

// toolRequest is the caller-facing body of POST /tools/{tool_name}
// (spec §6 "HTTP tool endpoints").
type toolRequest struct {
	Params   map[string]any `json:"params"`
	Context  map[string]any `json:"context"`
	TenantID string         `json:"tenant_id"`
}

// toolResponse is the success body of POST /tools/{tool_name}.
type toolResponse struct {
	Result      any          `json:"result"`
	Confidence  float64      `json:"confidence"`
	Breakdown   []tools.Step `json:"breakdown"`
	RuleVersion string       `json:"rule_version"`
	DecisionID  string       `json:"decision_id"`
}

// handleInvokeTool dispatches a scored-decision request to the executor
// for the {tool_name} path segment.
func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	toolName := tools.Name(chi.URLParam(r, "tool_name"))

	var body toolRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, appErrors.NewValidationError("request body is not valid JSON").WithDetails(err.Error()))
		return
	}

	caller := callerFrom(r)
	reqCtx := executor.RequestContext{
		Caller:     caller,
		TenantID:   body.TenantID,
		SubjectKey: subjectKeyFrom(body, caller),
	}

	result, err := s.executor.Execute(r.Context(), toolName, body.Params, reqCtx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toolResponse{
		Result:      result.Result,
		Confidence:  result.Confidence,
		Breakdown:   result.Breakdown,
		RuleVersion: result.RuleVersion,
		DecisionID:  result.DecisionID,
	})
}

// subjectKeyFrom picks the stable key the shadow/A-B router buckets on
// (spec §4.5): the caller-supplied context value if present, otherwise
// the caller identity itself, so an unauthenticated or context-less
// request still deterministically buckets rather than erroring.
func subjectKeyFrom(body toolRequest, caller string) string {
	if v, ok := body.Context["subject_key"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return caller
}

// callerFrom reads the caller identity off a header set by whatever
// authentication layer fronts this service (spec §1 "Out of scope: HTTP
// routing and authentication" — this core trusts the header, it does not
// verify it).
func callerFrom(r *http.Request) string {
	if c := r.Header.Get("X-Caller"); c != "" {
		return c
	}
	return "anonymous"
}
