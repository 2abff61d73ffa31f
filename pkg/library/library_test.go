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

package library

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedLibrary = `## Strategy Library

### I. Information Management

#### contextual_snapshot (I1)
- Keep a one-page summary of task state.

#### evidence_triangulation (I2)
- Cross-check facts against two independent sources.
`

func writeLibrary(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strategy.md")
	require.NoError(t, os.WriteFile(path, []byte(seedLibrary), 0o644))
	return path
}

func upgradeOutput(headers, body string) string {
	return headers + "\nREASON: session review\n\n" + body
}

const applyHeaders = `DECISION: APPLY
ACTION: create_new
CATEGORY: I
REFERENCE_IDS: I1, I2
coverage_gap: no strategy covers snapshot verification
reuse_failure: I1 and I2 each miss half the need
new_value: fuses retrieval with snapshot alignment`

const newStrategyBody = `### I. Information Management
#### evidence_snapshot_verification (I3)
- Retrieve authoritative sources first.
- Reconcile against the live snapshot.`

func TestProcess_AppliesNewStrategy(t *testing.T) {
	path := writeLibrary(t)
	e := NewEngine(path, DefaultPolicy())

	out := e.Process(upgradeOutput(applyHeaders, newStrategyBody))

	assert.Contains(t, out, "AUTO_APPLY_STATUS: applied")
	assert.Equal(t, path, e.LastAppliedPath())
	assert.Equal(t, newStrategyBody, e.LastPatchMarkdown())

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "evidence_snapshot_verification (I3)")
	assert.True(t, strings.HasPrefix(string(updated), "## Strategy Library"))
}

func TestProcess_RejectsExistingID(t *testing.T) {
	path := writeLibrary(t)
	e := NewEngine(path, DefaultPolicy())

	body := `### I. Information Management
#### duplicate_entry (I2)
- Would collide with an existing strategy.`
	out := e.Process(upgradeOutput(applyHeaders, body))

	assert.Contains(t, out, "AUTO_APPLY_STATUS: skipped (strategy id I2 already exists)")
	assert.Empty(t, e.LastAppliedPath())
	assert.Empty(t, e.LastPatchMarkdown())

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, seedLibrary, string(updated))
}

func TestProcess_RejectsInsufficientReferences(t *testing.T) {
	path := writeLibrary(t)
	e := NewEngine(path, DefaultPolicy())

	headers := strings.Replace(applyHeaders, "REFERENCE_IDS: I1, I2", "REFERENCE_IDS: I1", 1)
	out := e.Process(upgradeOutput(headers, newStrategyBody))

	assert.Contains(t, out, "skipped (insufficient reference_ids to prove novelty)")
}

func TestProcess_EnforcesCategoryQuota(t *testing.T) {
	path := writeLibrary(t)
	e := NewEngine(path, DefaultPolicy())

	first := e.Process(upgradeOutput(applyHeaders, newStrategyBody))
	require.Contains(t, first, "AUTO_APPLY_STATUS: applied")

	body := `### I. Information Management
#### second_in_session (I4)
- A second new entry for the same category.`
	second := e.Process(upgradeOutput(applyHeaders, body))

	assert.Contains(t, second, "skipped (category I reached new strategy quota)")
	assert.Empty(t, e.LastAppliedPath())
}

func TestProcess_EnhanceExisting(t *testing.T) {
	path := writeLibrary(t)
	e := NewEngine(path, DefaultPolicy())

	headers := strings.Replace(applyHeaders, "ACTION: create_new", "ACTION: enhance_existing", 1) +
		"\nTARGET_ID: I2"
	body := `### I. Information Management
- Addendum for I2: record source confidence levels.`
	out := e.Process(upgradeOutput(headers, body))

	assert.Contains(t, out, "AUTO_APPLY_STATUS: applied")
	assert.Equal(t, path, e.LastAppliedPath())
}

func TestProcess_EnhanceMissingTarget(t *testing.T) {
	path := writeLibrary(t)
	e := NewEngine(path, DefaultPolicy())

	headers := strings.Replace(applyHeaders, "ACTION: create_new", "ACTION: enhance_existing", 1) +
		"\nTARGET_ID: Z9"
	out := e.Process(upgradeOutput(headers, newStrategyBody))

	assert.Contains(t, out, "skipped (target strategy Z9 not found)")
}

func TestProcess_RejectDecision(t *testing.T) {
	e := NewEngine(writeLibrary(t), DefaultPolicy())

	headers := strings.Replace(applyHeaders, "DECISION: APPLY", "DECISION: REJECT", 1)
	out := e.Process(upgradeOutput(headers, newStrategyBody))

	assert.Contains(t, out, "skipped (decision=REJECT)")
}

func TestProcess_MissingDecisionHeader(t *testing.T) {
	e := NewEngine(writeLibrary(t), DefaultPolicy())

	out := e.Process("Just prose, no headers at all.")

	assert.Contains(t, out, "skipped (missing decision header)")
}

func TestProcess_MissingJustification(t *testing.T) {
	e := NewEngine(writeLibrary(t), DefaultPolicy())

	headers := strings.Replace(applyHeaders, "reuse_failure: I1 and I2 each miss half the need\n", "", 1)
	out := e.Process(upgradeOutput(headers, newStrategyBody))

	assert.Contains(t, out, "skipped (missing justification for reuse_failure)")
}

func TestProcess_NoPatchBody(t *testing.T) {
	e := NewEngine(writeLibrary(t), DefaultPolicy())

	out := e.Process(applyHeaders + "\nREASON: nothing to add")

	assert.Contains(t, out, "skipped (no patch content detected)")
}

func TestProcess_CapabilityVariantSkipsActionCheck(t *testing.T) {
	path := writeLibrary(t)
	e := NewEngine(path, Policy{RequireAction: false})

	headers := strings.Replace(applyHeaders, "ACTION: create_new\n", "", 1)
	out := e.Process(upgradeOutput(headers, newStrategyBody))

	assert.Contains(t, out, "AUTO_APPLY_STATUS: applied")
}

func TestProcess_StatusNotDuplicated(t *testing.T) {
	e := NewEngine(writeLibrary(t), DefaultPolicy())

	out := e.Process("DECISION: REJECT\n\nAUTO_APPLY_STATUS: skipped (model declined)")

	assert.Equal(t, 1, strings.Count(out, "AUTO_APPLY_STATUS:"))
}

func TestProcess_BackupBeforeWrite(t *testing.T) {
	path := writeLibrary(t)
	policy := DefaultPolicy()
	policy.BackupBeforeWrite = true
	e := NewEngine(path, policy)

	out := e.Process(upgradeOutput(applyHeaders, newStrategyBody))
	require.Contains(t, out, "AUTO_APPLY_STATUS: applied")

	backups, err := filepath.Glob(path + ".*.bak")
	require.NoError(t, err)
	require.Len(t, backups, 1)

	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, seedLibrary, string(data))
}

func TestParseDecision_Headers(t *testing.T) {
	d := ParseDecision(upgradeOutput(applyHeaders, newStrategyBody))

	assert.Equal(t, "APPLY", d.Decision)
	assert.Equal(t, "create_new", d.Action)
	assert.Equal(t, "I", d.Category)
	assert.Equal(t, []string{"I1", "I2"}, d.ReferenceIDs)
	assert.Equal(t, "no strategy covers snapshot verification", d.Justification["coverage_gap"])
	assert.Equal(t, "session review", d.Reason)
}

func TestParseDecision_CaseInsensitive(t *testing.T) {
	d := ParseDecision("decision: apply\naction: CREATE_NEW\ntarget_id: i2")

	assert.Equal(t, "APPLY", d.Decision)
	assert.Equal(t, "create_new", d.Action)
	assert.Equal(t, "I2", d.TargetID)
}

func TestExtractPatch(t *testing.T) {
	text := "[Reasoning]\nsome analysis here\n\n" + newStrategyBody
	assert.Equal(t, newStrategyBody, ExtractPatch(text))
	assert.Empty(t, ExtractPatch("no headings here"))
}

func TestPrimaryIDAndCategory(t *testing.T) {
	assert.Equal(t, "I3", PrimaryID(newStrategyBody))
	assert.Equal(t, "I", CategoryLetter(newStrategyBody))
	assert.Empty(t, PrimaryID("### I. heading only"))
}
