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

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neogenesis/neoflow/pkg/llms"
	"github.com/neogenesis/neoflow/pkg/tools"
)

const evidenceLimit = 900

// Stage1Agent performs the metacognitive analysis. When a tool bridge is
// installed it first researches common failure modes for the task class
// and appends the findings to the analysis context.
type Stage1Agent struct {
	*BaseAgent
	bridge *tools.Bridge
}

// NewStage1Agent builds the metacognitive analysis agent. Pass the
// ability library via WithLibraryDir.
func NewStage1Agent(model llms.Model, opts ...Option) *Stage1Agent {
	return &Stage1Agent{
		BaseAgent: newBaseAgent("stage1_agent", "stage1_reasoner.md", model, opts...),
	}
}

// EnablePreSearch turns on the failure-mode pre-search through the given
// bridge.
func (a *Stage1Agent) EnablePreSearch(bridge *tools.Bridge) {
	a.bridge = bridge
}

// Analyze runs the metacognitive analysis, optionally prefixed by the
// external failure-mode research.
func (a *Stage1Agent) Analyze(ctx context.Context, contextBlock string) (string, error) {
	userContent := strings.TrimSpace(contextBlock)

	objective := extractSection(contextBlock, "Objective")
	snapshot := extractSection(contextBlock, "Context Snapshot")

	if a.bridge != nil && objective != "" {
		if research := a.failureModeResearch(ctx, objective, snapshot); research != "" {
			userContent += "\n\n## External Failure Mode Research\n\n" + research
		}
	}

	return a.complete(ctx, a.messages(userContent))
}

// AnalyzeToForm runs Analyze and writes the result into the document.
func (a *Stage1Agent) AnalyzeToForm(ctx context.Context, contextBlock, documentPath, marker, header string) (string, error) {
	text, err := a.Analyze(ctx, contextBlock)
	if err != nil {
		return "", err
	}
	if documentPath != "" && marker != "" {
		if err := writeForm(a.name, documentPath, marker, text, header); err != nil {
			return "", err
		}
	}
	return text, nil
}

type taskAbstraction struct {
	Category  string
	Mechanism string
}

// failureModeResearch abstracts the task, derives three failure-mode
// queries and runs them through web_search. Research failures degrade to
// a note instead of blocking the stage.
func (a *Stage1Agent) failureModeResearch(ctx context.Context, objective, snapshot string) string {
	abstraction := a.deriveTaskAbstraction(ctx, objective, snapshot)
	queries := buildFailureModeQueries(abstraction, objective)
	if len(queries) == 0 {
		return ""
	}

	lines := []string{
		"- Status: completed",
		"- Task Category: " + abstraction.Category,
		"- Core Mechanism: " + abstraction.Mechanism,
	}

	for idx, query := range queries {
		result := a.bridge.CallTool(ctx, "web_search", map[string]any{
			"query":       query,
			"max_results": 3,
		})
		heading := fmt.Sprintf("%d. Query: %s", idx+1, query)
		if result.Success {
			lines = append(lines, heading+"\n    Evidence: "+summarizeEvidence(result.Output))
		} else {
			lines = append(lines, heading+"\n    Error: "+result.Error)
		}
	}

	return strings.Join(lines, "\n")
}

// deriveTaskAbstraction asks the model for a compact category/mechanism
// pair and falls back to keyword heuristics when the reply is unusable.
func (a *Stage1Agent) deriveTaskAbstraction(ctx context.Context, objective, snapshot string) taskAbstraction {
	systemPrompt := `You extract concise task abstractions. Respond with compact JSON containing keys "task_category" and "core_mechanism" (both short phrases). Avoid explanations.`
	userPrompt := fmt.Sprintf("Objective:\n%s\n\nContext:\n%s", objective, orNone(snapshot))

	abstraction := taskAbstraction{}
	resp, err := a.model.Invoke(ctx, []llms.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userPrompt},
	})
	if err != nil {
		slog.Warn("task abstraction call failed", "error", err)
	} else {
		var parsed struct {
			TaskCategory  string `json:"task_category"`
			CoreMechanism string `json:"core_mechanism"`
		}
		raw := stripCodeFence(strings.TrimSpace(resp.Text()))
		if jsonErr := json.Unmarshal([]byte(raw), &parsed); jsonErr == nil {
			abstraction.Category = strings.TrimSpace(parsed.TaskCategory)
			abstraction.Mechanism = strings.TrimSpace(parsed.CoreMechanism)
		}
	}

	if abstraction.Category == "" {
		abstraction.Category = fallbackTaskCategory(objective)
	}
	if abstraction.Mechanism == "" {
		abstraction.Mechanism = fallbackCoreMechanism(objective)
	}
	return abstraction
}

func fallbackTaskCategory(objective string) string {
	lowered := strings.ToLower(objective)
	switch {
	case containsAny(lowered, "research", "investigat", "analysis"):
		return "Research Task"
	case containsAny(lowered, "implement", "build", "develop"):
		return "System Implementation"
	case containsAny(lowered, "debug", "error", "issue"):
		return "Debugging"
	case containsAny(lowered, "plan", "strategy"):
		return "Strategy Planning"
	}
	return "General Problem Analysis"
}

func fallbackCoreMechanism(objective string) string {
	lowered := strings.ToLower(objective)
	switch {
	case containsAny(lowered, "multi-hop", "chain"):
		return "Multi-hop Reasoning"
	case containsAny(lowered, "search", "retrieve"):
		return "Information Retrieval"
	case containsAny(lowered, "code", "implement"):
		return "Code Implementation"
	case containsAny(lowered, "evaluate", "assess"):
		return "Evaluation Analysis"
	}
	return "Cross-document Reasoning"
}

func buildFailureModeQueries(abstraction taskAbstraction, objective string) []string {
	category := abstraction.Category
	if category == "" {
		category = strings.SplitN(strings.TrimSpace(objective), "\n", 2)[0]
	}
	mechanism := abstraction.Mechanism
	if mechanism == "" {
		mechanism = category
	}

	category = strings.TrimSpace(category)
	mechanism = strings.TrimSpace(mechanism)
	if category == "" && mechanism == "" {
		return nil
	}

	candidates := []string{
		strings.TrimSpace(category + " common pitfalls risks"),
		strings.TrimSpace(mechanism + " edge cases failure"),
		strings.TrimSpace("LLM hallucination in " + firstNonEmpty(category, mechanism)),
	}

	var queries []string
	for _, q := range candidates {
		if q != "" {
			queries = append(queries, q)
		}
	}
	return queries
}

// summarizeEvidence collapses the search output to a single line bounded
// by evidenceLimit.
func summarizeEvidence(output string) string {
	normalized := strings.Join(strings.Fields(output), " ")
	if normalized == "" {
		return "No response returned."
	}
	if len(normalized) > evidenceLimit {
		normalized = strings.TrimRight(normalized[:evidenceLimit], " ") + "..."
	}
	return normalized
}

func stripCodeFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if strings.Contains(text, needle) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func orNone(text string) string {
	if strings.TrimSpace(text) == "" {
		return "None"
	}
	return text
}
