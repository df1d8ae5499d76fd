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

package rulestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

// PostgresSource loads rule documents from the rule_documents table
// maintained by the ledger's migrations (pkg/ledger/migrations). Every row
// holds one version of one tool's document as a JSON blob; the content
// column round-trips through ruledoc.RuleDocument exactly as FileSource's
// on-disk JSON does, so the two Source implementations are interchangeable.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource constructs a PostgresSource against an already-open
// pool. The rulestore package does not own pool lifecycle.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

const selectRuleDocumentsSQL = `
SELECT tool_name, content
FROM rule_documents
ORDER BY tool_name, version DESC
`

func (s *PostgresSource) Load(ctx context.Context) (map[string][]*ruledoc.RuleDocument, error) {
	rows, err := s.pool.Query(ctx, selectRuleDocumentsSQL)
	if err != nil {
		return nil, fmt.Errorf("querying rule_documents: %w", err)
	}
	defer rows.Close()

	out := map[string][]*ruledoc.RuleDocument{}
	for rows.Next() {
		var tool string
		var content []byte
		if err := rows.Scan(&tool, &content); err != nil {
			return nil, fmt.Errorf("scanning rule_documents row: %w", err)
		}

		var doc ruledoc.RuleDocument
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("parsing rule document for tool %q: %w", tool, err)
		}
		doc.ToolName = tool
		out[tool] = append(out[tool], &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule_documents: %w", err)
	}
	return out, nil
}
