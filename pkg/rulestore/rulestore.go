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

// Package rulestore pins the rule documents the core evaluates against and
// swaps between versions without ever serving a torn read (spec §3 "Rule
// Store", §4.1). A Store holds, per tool, the production version plus any
// single shadow version; callers never see a document on a version lookup
// failure path.
package rulestore

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
	"github.com/salesintel/decisionengine/internal/logging"
	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

// Source loads the full set of rule documents for every tool known to the
// backing system. A Source implementation owns I/O (filesystem, Postgres);
// Store owns snapshot lifecycle and lookup.
type Source interface {
	Load(ctx context.Context) (map[string][]*ruledoc.RuleDocument, error)
}

// snapshot is the immutable, atomically-swapped view a Store serves reads
// from. Every field is read-only once published.
type snapshot struct {
	// byTool maps tool name to all known versions, newest first.
	byTool map[string][]*ruledoc.RuleDocument
}

func (s *snapshot) production(tool string) (*ruledoc.RuleDocument, error) {
	docs, ok := s.byTool[tool]
	if !ok {
		return nil, appErrors.NewRuleNotFoundError(tool, "production")
	}
	for _, d := range docs {
		if d.Metadata.Status == ruledoc.StatusProduction {
			return d, nil
		}
	}
	return nil, appErrors.New(appErrors.ErrorTypeConfiguration, fmt.Sprintf("tool %q has no production rule version", tool)).WithLocus("rulestore")
}

func (s *snapshot) shadow(tool string) (*ruledoc.RuleDocument, bool) {
	docs, ok := s.byTool[tool]
	if !ok {
		return nil, false
	}
	for _, d := range docs {
		if d.Metadata.Status == ruledoc.StatusShadow {
			return d, true
		}
	}
	return nil, false
}

func (s *snapshot) version(tool, version string) (*ruledoc.RuleDocument, error) {
	docs, ok := s.byTool[tool]
	if !ok {
		return nil, appErrors.NewRuleNotFoundError(tool, version)
	}
	for _, d := range docs {
		if d.Metadata.Version == version {
			return d, nil
		}
	}
	return nil, appErrors.NewRuleNotFoundError(tool, version)
}

// Store is the read path for rule documents. The zero value is not usable;
// construct with New. A Store is safe for concurrent use: Refresh publishes
// a new snapshot atomically, so a lookup either sees the whole old set or
// the whole new one, never a mix (spec §4.1 "atomic version swap").
type Store struct {
	source Source
	log    logging.Fields
	cur    atomic.Pointer[snapshot]
}

// New constructs a Store against the given Source. Callers must call
// Refresh at least once before the store serves any lookups.
func New(source Source, log logging.Fields) *Store {
	return &Store{source: source, log: log.Component("rulestore")}
}

// Refresh reloads every tool's rule documents from the Source, validates
// each one structurally (spec §4.1), and publishes the result as the new
// snapshot. A validation failure aborts the refresh entirely: the store
// keeps serving the previous snapshot rather than a partially-loaded one.
func (s *Store) Refresh(ctx context.Context) error {
	raw, err := s.source.Load(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrorTypeConfiguration, "loading rule documents")
	}

	next := &snapshot{byTool: make(map[string][]*ruledoc.RuleDocument, len(raw))}
	for tool, docs := range raw {
		for _, doc := range docs {
			if err := ruledoc.Validate(doc, nil); err != nil {
				return appErrors.Wrap(err, appErrors.ErrorTypeConfiguration,
					fmt.Sprintf("rule document %s@%s failed validation", tool, doc.Version())).WithLocus("rulestore")
			}
		}
		sorted := append([]*ruledoc.RuleDocument(nil), docs...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version() > sorted[j].Version() })
		next.byTool[tool] = sorted
	}

	s.cur.Store(next)
	return nil
}

func (s *Store) snap() (*snapshot, error) {
	cur := s.cur.Load()
	if cur == nil {
		return nil, appErrors.New(appErrors.ErrorTypeConfiguration, "rule store has not been refreshed yet").WithLocus("rulestore")
	}
	return cur, nil
}

// GetProductionRule returns the single document currently marked production
// for tool. It is a Configuration error, not a silent fallback, for a tool
// to have no production version (a resolved Open Question: see DESIGN.md).
func (s *Store) GetProductionRule(tool string) (*ruledoc.RuleDocument, error) {
	cur, err := s.snap()
	if err != nil {
		return nil, err
	}
	return cur.production(tool)
}

// GetShadowRule returns the single document currently marked shadow for
// tool, if any. The boolean is false when the tool has no shadow version
// (that is not itself an error: shadow evaluation is optional per call).
func (s *Store) GetShadowRule(tool string) (*ruledoc.RuleDocument, bool) {
	cur, err := s.snap()
	if err != nil {
		return nil, false
	}
	return cur.shadow(tool)
}

// GetRule returns the exact version of tool named by version, regardless of
// its lifecycle status. Used by the ledger's decision-replay path and by
// A/B routing, which pins a specific challenger version.
func (s *Store) GetRule(tool, version string) (*ruledoc.RuleDocument, error) {
	cur, err := s.snap()
	if err != nil {
		return nil, err
	}
	return cur.version(tool, version)
}

// ListVersions returns every known version string for tool, newest first.
func (s *Store) ListVersions(tool string) ([]string, error) {
	cur, err := s.snap()
	if err != nil {
		return nil, err
	}
	docs, ok := cur.byTool[tool]
	if !ok {
		return nil, appErrors.NewRuleNotFoundError(tool, "any")
	}
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.Version()
	}
	return out, nil
}
