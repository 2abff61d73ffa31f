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
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "form.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRead_ReturnsTrimmedContent(t *testing.T) {
	doc := writeDoc(t, "# Form\n\n<!-- STAGE1_ANALYSIS_START -->\n  hello world  \n<!-- STAGE1_ANALYSIS_END -->\n")

	content, ok := Read(doc, "STAGE1_ANALYSIS")
	require.True(t, ok)
	assert.Equal(t, "hello world", content)
}

func TestRead_MissingMarker(t *testing.T) {
	doc := writeDoc(t, "# Form\n")

	_, ok := Read(doc, "STAGE1_ANALYSIS")
	assert.False(t, ok)
}

func TestRead_MissingFile(t *testing.T) {
	_, ok := Read(filepath.Join(t.TempDir(), "nope.md"), "STAGE1_ANALYSIS")
	assert.False(t, ok)
}

func TestRead_NormalizesCRLF(t *testing.T) {
	doc := writeDoc(t, "<!-- STAGE1_ANALYSIS_START -->\r\ncontent\r\n<!-- STAGE1_ANALYSIS_END -->\r\n")

	content, ok := Read(doc, "STAGE1_ANALYSIS")
	require.True(t, ok)
	assert.Equal(t, "content", content)
}

func TestUpdate_ReplacesExistingBlock(t *testing.T) {
	doc := writeDoc(t, "<!-- STAGE1_ANALYSIS_START -->\nold\n<!-- STAGE1_ANALYSIS_END -->\n")

	require.NoError(t, Update(doc, "STAGE1_ANALYSIS", "first", ""))
	require.NoError(t, Update(doc, "STAGE1_ANALYSIS", "second", ""))

	content, ok := Read(doc, "STAGE1_ANALYSIS")
	require.True(t, ok)
	assert.Equal(t, "second", content)
}

func TestUpdate_EmptyContentBecomesPlaceholder(t *testing.T) {
	doc := writeDoc(t, "<!-- STAGE1_ANALYSIS_START -->\nold\n<!-- STAGE1_ANALYSIS_END -->\n")

	require.NoError(t, Update(doc, "STAGE1_ANALYSIS", "", ""))

	content, ok := Read(doc, "STAGE1_ANALYSIS")
	require.True(t, ok)
	assert.Equal(t, Placeholder, content)
}

func TestUpdate_InsertsAfterHeader(t *testing.T) {
	doc := writeDoc(t, "# Form\n\n## Live Execution Plan\n\nsome prose\n")

	require.NoError(t, Update(doc, LivePlanMarker, "step one", LivePlanHeader))

	content, ok := Read(doc, LivePlanMarker)
	require.True(t, ok)
	assert.Equal(t, "step one", content)

	data, err := os.ReadFile(doc)
	require.NoError(t, err)
	headerIdx := strings.Index(string(data), LivePlanHeader)
	blockIdx := strings.Index(string(data), "<!-- LIVE_EXECUTION_PLAN_START -->")
	assert.Less(t, headerIdx, blockIdx, "block must be inserted after its header")
}

func TestUpdate_AppendsWhenHeaderMissing(t *testing.T) {
	doc := writeDoc(t, "# Form\n")

	require.NoError(t, Update(doc, "STAGE4_FINAL_ANSWER", "done", "## Nonexistent"))

	content, ok := Read(doc, "STAGE4_FINAL_ANSWER")
	require.True(t, ok)
	assert.Equal(t, "done", content)
}

func TestUpdate_MissingDocument(t *testing.T) {
	err := Update(filepath.Join(t.TempDir(), "nope.md"), "STAGE1_ANALYSIS", "x", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDocument))
}

func TestEnsure_AppendsMissingPairsIdempotently(t *testing.T) {
	doc := writeDoc(t, "# Form\n")

	pairs := []MarkerPair{
		{Name: "STAGE1_ANALYSIS"},
		{Name: "STAGE3_PLAN", Placeholder: "pending"},
	}
	require.NoError(t, Ensure(doc, pairs))
	require.NoError(t, Ensure(doc, pairs))

	data, err := os.ReadFile(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "<!-- STAGE1_ANALYSIS_START -->"))

	content, ok := Read(doc, "STAGE1_ANALYSIS")
	require.True(t, ok)
	assert.Equal(t, Placeholder, content)

	content, ok = Read(doc, "STAGE3_PLAN")
	require.True(t, ok)
	assert.Equal(t, "pending", content)
}

func TestEnsureUpdateRead_PlaceholderRoundTrip(t *testing.T) {
	doc := writeDoc(t, "# Form\n")

	require.NoError(t, Ensure(doc, []MarkerPair{{Name: "STAGE2A_ANALYSIS"}}))
	require.NoError(t, Update(doc, "STAGE2A_ANALYSIS", "", ""))

	content, ok := Read(doc, "STAGE2A_ANALYSIS")
	require.True(t, ok)
	assert.Equal(t, Placeholder, content)
}

func TestUpdateLivePlan_RoundTrip(t *testing.T) {
	doc := writeDoc(t, "# Form\n")

	require.NoError(t, UpdateLivePlan(doc, "Objective: test\n\n## Steps\n\n1. go"))

	content, ok := ReadLivePlan(doc)
	require.True(t, ok)
	assert.Contains(t, content, "## Steps")
}

func TestAppendSection_ReplacesPlaceholderThenAccumulates(t *testing.T) {
	doc := writeDoc(t, "<!-- STAGE4_TOOL_CALLS_START -->\n" + Placeholder + "\n<!-- STAGE4_TOOL_CALLS_END -->\n")

	require.NoError(t, AppendSection(doc, "STAGE4_TOOL_CALLS", "entry one", ""))
	require.NoError(t, AppendSection(doc, "STAGE4_TOOL_CALLS", "entry two", ""))

	content, ok := Read(doc, "STAGE4_TOOL_CALLS")
	require.True(t, ok)
	assert.NotContains(t, content, Placeholder)
	assert.Contains(t, content, "entry one")
	assert.Contains(t, content, "entry two")
	assert.Less(t, strings.Index(content, "entry one"), strings.Index(content, "entry two"))
}

func TestLoadAnchorSections(t *testing.T) {
	doc := writeDoc(t, `# Form

<!-- STAGE1_ANALYSIS_START -->
analysis text
<!-- STAGE1_ANALYSIS_END -->

<!-- STAGE3_PLAN_START -->
plan text
<!-- STAGE3_PLAN_END -->

<!-- STAGE2A_ANALYSIS_START -->
dangling without end
`)

	sections := LoadAnchorSections(doc)
	assert.Equal(t, "analysis text", sections["STAGE1_ANALYSIS"])
	assert.Equal(t, "plan text", sections["STAGE3_PLAN"])
	_, present := sections["STAGE2A_ANALYSIS"]
	assert.False(t, present, "unterminated anchors are skipped")
}
