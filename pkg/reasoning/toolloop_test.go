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

package reasoning

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neogenesis/neoflow/pkg/form"
	"github.com/neogenesis/neoflow/pkg/llms"
	"github.com/neogenesis/neoflow/pkg/tools"
)

type scriptedModel struct {
	responses []string
	index     int
	history   [][]llms.Message
}

func (m *scriptedModel) Invoke(_ context.Context, messages []llms.Message) (*llms.Response, error) {
	snapshot := make([]llms.Message, len(messages))
	copy(snapshot, messages)
	m.history = append(m.history, snapshot)

	if m.index >= len(m.responses) {
		return llms.TextResponse("Final Answer: exhausted"), nil
	}
	text := m.responses[m.index]
	m.index++
	return llms.TextResponse(text), nil
}

func (m *scriptedModel) InvokeStream(ctx context.Context, messages []llms.Message) (<-chan llms.StreamChunk, error) {
	resp, err := m.Invoke(ctx, messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan llms.StreamChunk, 1)
	ch <- llms.StreamChunk{Type: "text", Text: resp.Text()}
	close(ch)
	return ch, nil
}

func (m *scriptedModel) ModelName() string { return "scripted" }

func (m *scriptedModel) lastUserContent() string {
	last := m.history[len(m.history)-1]
	for i := len(last) - 1; i >= 0; i-- {
		if last[i].Role == "user" {
			return last[i].Content
		}
	}
	return ""
}

type recordingReviser struct {
	events []ToolEvent
}

func (r *recordingReviser) RevisePlan(_ context.Context, event ToolEvent) (bool, error) {
	r.events = append(r.events, event)
	return false, nil
}

func newTestDocument(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "finish_form.md")
	content := `# Collaboration Form

## Live Execution Plan

<!-- LIVE_EXECUTION_PLAN_START -->
` + "`待填写`" + `
<!-- LIVE_EXECUTION_PLAN_END -->

### 1. Execution Log

<!-- STAGE4_TOOL_CALLS_START -->
` + "`待填写`" + `
<!-- STAGE4_TOOL_CALLS_END -->
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newLoop(doc string, model llms.Model, maxIterations int) *Loop {
	return &Loop{
		Model:         model,
		Bridge:        tools.NewBridge(),
		DocumentPath:  doc,
		Objective:     "answer the question",
		MaxIterations: maxIterations,
	}
}

func TestLoop_SeedLivePlan(t *testing.T) {
	doc := newTestDocument(t)
	l := newLoop(doc, &scriptedModel{}, 1)

	require.NoError(t, l.SeedLivePlan("1. Search\n2. Answer"))

	plan, ok := form.ReadLivePlan(doc)
	require.True(t, ok)
	assert.Equal(t, "Objective: answer the question\n\n## Steps\n\n1. Search\n2. Answer", plan)
}

func TestLoop_EndsWithoutToolCalls(t *testing.T) {
	doc := newTestDocument(t)
	model := &scriptedModel{responses: []string{"Final Answer: 42"}}
	l := newLoop(doc, model, 5)
	require.NoError(t, l.SeedLivePlan("1. Answer directly"))

	result, err := l.Run(context.Background(), "system prompt")
	require.NoError(t, err)
	assert.Equal(t, "Final Answer: 42", result)
	assert.Len(t, model.history, 1)
}

func TestLoop_DispatchesToolCallAndLogsIt(t *testing.T) {
	doc := newTestDocument(t)
	model := &scriptedModel{responses: []string{
		"[TOOL_CALL]\ntool: calculate\nexpression: 2+2\n[/TOOL_CALL]",
		"Final Answer: 4",
	}}
	l := newLoop(doc, model, 5)
	require.NoError(t, l.SeedLivePlan("1. Compute"))

	result, err := l.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Final Answer: 4", result)

	// The second invocation must have seen the tool result feedback.
	require.Len(t, model.history, 2)
	joined := ""
	for _, msg := range model.history[1] {
		joined += msg.Content + "\n"
	}
	assert.Contains(t, joined, "[TOOL_RESULT]")
	assert.Contains(t, joined, "tool: calculate")
	assert.Contains(t, joined, "4")

	log, ok := form.Read(doc, "STAGE4_TOOL_CALLS")
	require.True(t, ok)
	assert.Contains(t, log, "### Iteration 1 | Tool: calculate")
	assert.Contains(t, log, `"expression": "2+2"`)
}

func TestLoop_ToolResultsInDocumentOrder(t *testing.T) {
	doc := newTestDocument(t)
	model := &scriptedModel{responses: []string{
		"[TOOL_CALL]\ntool: calculate\nexpression: 1+1\n[/TOOL_CALL]\n" +
			"[TOOL_CALL]\ntool: calculate\nexpression: 3+3\n[/TOOL_CALL]",
		"Final Answer: done",
	}}
	l := newLoop(doc, model, 5)
	require.NoError(t, l.SeedLivePlan("1. Compute twice"))

	_, err := l.Run(context.Background(), "")
	require.NoError(t, err)

	log, _ := form.Read(doc, "STAGE4_TOOL_CALLS")
	idxA := strings.Index(log, `"expression": "1+1"`)
	idxB := strings.Index(log, `"expression": "3+3"`)
	require.GreaterOrEqual(t, idxA, 0)
	require.GreaterOrEqual(t, idxB, 0)
	assert.Less(t, idxA, idxB)
}

func TestLoop_ForcedFinalizationAfterCeiling(t *testing.T) {
	doc := newTestDocument(t)
	call := "[TOOL_CALL]\ntool: calculate\nexpression: 1+1\n[/TOOL_CALL]"
	model := &scriptedModel{responses: []string{call, call, "Final Answer: forced"}}
	l := newLoop(doc, model, 2)
	require.NoError(t, l.SeedLivePlan("1. Keep computing"))

	result, err := l.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Final Answer: forced", result)
	require.Len(t, model.history, 3)
	assert.Contains(t, model.lastUserContent(), "[FINAL_ANSWER_REQUIRED]")
}

func TestLoop_ZeroIterationsStillFinalizes(t *testing.T) {
	doc := newTestDocument(t)
	model := &scriptedModel{responses: []string{"Final Answer: immediate"}}
	l := newLoop(doc, model, 0)
	require.NoError(t, l.SeedLivePlan("1. Nothing"))

	result, err := l.Run(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "Final Answer: immediate", result)
	require.Len(t, model.history, 1)
	assert.Contains(t, model.lastUserContent(), "[FINAL_ANSWER_REQUIRED]")
}

func TestLoop_ReviserSeesEachCall(t *testing.T) {
	doc := newTestDocument(t)
	model := &scriptedModel{responses: []string{
		"[TOOL_CALL]\ntool: calculate\nexpression: 5*5\n[/TOOL_CALL]",
		"Final Answer: 25",
	}}
	reviser := &recordingReviser{}
	l := newLoop(doc, model, 5)
	l.Reviser = reviser
	require.NoError(t, l.SeedLivePlan("1. Compute"))

	_, err := l.Run(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, reviser.events, 1)
	event := reviser.events[0]
	assert.Equal(t, "calculate", event.Tool)
	assert.Equal(t, doc, event.DocumentPath)
	assert.Equal(t, "answer the question", event.Objective)
	assert.Contains(t, event.Output, "25")
}

func TestLoop_IterationPromptCarriesLivePlan(t *testing.T) {
	doc := newTestDocument(t)
	model := &scriptedModel{responses: []string{"Final Answer: ok"}}
	l := newLoop(doc, model, 3)
	require.NoError(t, l.SeedLivePlan("1. The only step"))

	_, err := l.Run(context.Background(), "")
	require.NoError(t, err)

	prompt := model.lastUserContent()
	assert.Contains(t, prompt, "# Current Live Plan (Iteration 1)")
	assert.Contains(t, prompt, "1. The only step")
}
