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
	"os"
	"path/filepath"

	"github.com/salesintel/decisionengine/pkg/ruledoc"
)

// FileSource loads rule documents from a directory tree shaped
// Root/<tool_name>/<version>.json, one JSON-encoded ruledoc.RuleDocument
// per file. It is the default backend for local development and tests;
// production deployments typically prefer PostgresSource.
type FileSource struct {
	Root string
}

// NewFileSource constructs a FileSource rooted at root.
func NewFileSource(root string) *FileSource {
	return &FileSource{Root: root}
}

func (s *FileSource) Load(ctx context.Context) (map[string][]*ruledoc.RuleDocument, error) {
	toolDirs, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("reading rule store root %q: %w", s.Root, err)
	}

	out := make(map[string][]*ruledoc.RuleDocument, len(toolDirs))
	for _, toolDir := range toolDirs {
		if !toolDir.IsDir() {
			continue
		}
		tool := toolDir.Name()
		toolPath := filepath.Join(s.Root, tool)

		entries, err := os.ReadDir(toolPath)
		if err != nil {
			return nil, fmt.Errorf("reading tool directory %q: %w", toolPath, err)
		}

		var docs []*ruledoc.RuleDocument
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}

			path := filepath.Join(toolPath, entry.Name())
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("reading rule document %q: %w", path, err)
			}

			var doc ruledoc.RuleDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, fmt.Errorf("parsing rule document %q: %w", path, err)
			}
			doc.ToolName = tool
			docs = append(docs, &doc)
		}

		if len(docs) > 0 {
			out[tool] = docs
		}
	}
	return out, nil
}
