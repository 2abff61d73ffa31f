// Copyright 2025 Neogenesis Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package form

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadToolCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tool_catalog.md")
	content := `# 工具目录

## Tavily MCP
- search: online search with fact checking
- search: online search with fact checking

## Code Interpreter MCP
- python: run code in a sandbox
- raw_entry
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	entries := LoadToolCatalog(path)
	assert.Equal(t, []string{
		"Tavily MCP · search: online search with fact checking",
		"Code Interpreter MCP · python: run code in a sandbox",
		"Code Interpreter MCP · raw_entry",
	}, entries)
}

func TestLoadToolCatalog_MissingFile(t *testing.T) {
	assert.Nil(t, LoadToolCatalog(filepath.Join(t.TempDir(), "nope.md")))
}

func TestMergeToolCatalogs(t *testing.T) {
	merged := MergeToolCatalogs(
		[]string{"a: one", "b: two"},
		nil,
		[]string{"b: two", "c: three", "  "},
	)
	assert.Equal(t, []string{"a: one", "b: two", "c: three"}, merged)
}

func TestMergeToolCatalogs_AllEmpty(t *testing.T) {
	assert.Nil(t, MergeToolCatalogs(nil, []string{}))
}
