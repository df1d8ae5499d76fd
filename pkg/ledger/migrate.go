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

package ledger

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	appErrors "github.com/salesintel/decisionengine/internal/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings db up to the latest schema version using the embedded
// goose migrations. Called once at startup before the rule store's first
// Refresh, since pkg/rulestore.PostgresSource depends on rule_documents
// existing.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrorTypeConfiguration, "setting goose dialect")
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return appErrors.Wrap(err, appErrors.ErrorTypeConfiguration, "running ledger migrations")
	}
	return nil
}
