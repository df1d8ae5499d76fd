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

// Package shadow decides which secondary rule version, if any, a
// decision request sees alongside production (spec §4.5). A/B routing is
// deterministic hash-bucketing on a stable key; shadow mode is a
// distinct, unconditional secondary run that never replaces the
// production response.
package shadow

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/salesintel/decisionengine/pkg/ruledoc"
	"github.com/salesintel/decisionengine/pkg/rulestore"
)

// Variant is the bucket an A/B-routed request falls into.
type Variant string

const (
	VariantControl   Variant = "control"
	VariantTreatment Variant = "treatment"
)

// Experiment is the operator-declared configuration of an A/B test for
// one tool (spec §3 "ABAssignment").
type Experiment struct {
	ExperimentID     string
	ToolName         string
	ControlVersion   string
	TreatmentVersion string
	Split            float64 // fraction of traffic routed to treatment, in [0,1]
}

// Assignment is the deterministic outcome of routing one subject into an
// experiment.
type Assignment struct {
	ExperimentID string
	SubjectKey   string
	Variant      Variant
	ToolName     string
	Version      string
}

// Bucket reduces sha256(subjectKey|experimentID) to a float in [0,1).
// The same (subjectKey, experimentID) pair always yields the same bucket
// (spec §4.5, §8 "A/B determinism"); sha256 over a short composite string
// is the stable-hash idiom the corpus otherwise uses for webhook
// signatures, not a purpose-built consistent-hash library (see
// DESIGN.md).
func Bucket(subjectKey, experimentID string) float64 {
	sum := sha256.Sum256([]byte(subjectKey + "|" + experimentID))
	n := binary.BigEndian.Uint64(sum[:8])
	return float64(n) / float64(^uint64(0))
}

// Assign deterministically routes subjectKey into exp's control or
// treatment arm. Calling Assign twice with the same arguments always
// returns the same Assignment for the life of the experiment (spec §8).
func Assign(exp Experiment, subjectKey string) Assignment {
	variant := VariantControl
	version := exp.ControlVersion
	if Bucket(subjectKey, exp.ExperimentID) < exp.Split {
		variant = VariantTreatment
		version = exp.TreatmentVersion
	}
	return Assignment{
		ExperimentID: exp.ExperimentID,
		SubjectKey:   subjectKey,
		Variant:      variant,
		ToolName:     exp.ToolName,
		Version:      version,
	}
}

// Router resolves, for a single decision request, which secondary rule
// document (if any) the executor should additionally evaluate: an active
// A/B treatment takes priority over a plain shadow version, since an
// experiment is an explicit operator decision about that subject,
// whereas shadow mode is an always-on background comparison (spec §4.4
// step 2 "If the caller's subject_key is assigned to an A/B treatment
// for this tool, the treatment version is also loaded; otherwise, shadow
// version (if any) is loaded").
type Router struct {
	store       *rulestore.Store
	experiments map[string]Experiment // keyed by tool name
}

// NewRouter constructs a Router. experiments maps tool name to its
// currently active experiment; a tool with no active experiment falls
// through to shadow mode.
func NewRouter(store *rulestore.Store, experiments map[string]Experiment) *Router {
	return &Router{store: store, experiments: experiments}
}

// SecondaryKind distinguishes why a secondary document was selected, so
// the executor's comparison block and ledger entry can record which path
// produced it (spec §4.4 step 6).
type SecondaryKind string

const (
	SecondaryNone      SecondaryKind = "none"
	SecondaryShadow    SecondaryKind = "shadow"
	SecondaryTreatment SecondaryKind = "treatment"
)

// Resolve returns the secondary rule document (if any) a request for
// tool and subjectKey should additionally evaluate.
func (r *Router) Resolve(tool, subjectKey string) (*ruledoc.RuleDocument, SecondaryKind, *Assignment, error) {
	if exp, ok := r.experiments[tool]; ok {
		assignment := Assign(exp, subjectKey)
		if assignment.Variant == VariantTreatment {
			doc, err := r.store.GetRule(tool, exp.TreatmentVersion)
			if err != nil {
				return nil, SecondaryNone, nil, err
			}
			return doc, SecondaryTreatment, &assignment, nil
		}
	}

	doc, ok := r.store.GetShadowRule(tool)
	if !ok {
		return nil, SecondaryNone, nil, nil
	}
	return doc, SecondaryShadow, nil, nil
}

// ExperimentFor returns the active experiment configured for tool, if any.
// The executor uses this to recover the control version when persisting an
// ABAssignment, since Assignment itself only carries the version the
// subject was actually routed to.
func (r *Router) ExperimentFor(tool string) (Experiment, bool) {
	exp, ok := r.experiments[tool]
	return exp, ok
}

// String renders an Assignment for log fields.
func (a Assignment) String() string {
	return fmt.Sprintf("%s:%s->%s@%s", a.ExperimentID, a.SubjectKey, a.Variant, a.Version)
}
