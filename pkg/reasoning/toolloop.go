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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neogenesis/neoflow/pkg/form"
	"github.com/neogenesis/neoflow/pkg/llms"
	"github.com/neogenesis/neoflow/pkg/tools"
)

// DefaultMaxIterations bounds the tool loop when no ceiling is set.
const DefaultMaxIterations = 10

const finalAnswerPrompt = "[FINAL_ANSWER_REQUIRED] Output your Final Answer now. No more tool calls."

const toolLogHeader = "### 1. Execution Log"

// ToolEvent describes one dispatched tool call for the plan reviser.
type ToolEvent struct {
	DocumentPath    string
	Tool            string
	Args            map[string]any
	Output          string
	Error           string
	Objective       string
	ContextSnapshot string
}

// PlanReviser audits a tool result and may rewrite the live plan. The
// returned bool reports whether a revision was written.
type PlanReviser interface {
	RevisePlan(ctx context.Context, event ToolEvent) (bool, error)
}

// Loop runs the execution stage's iterative tool-call protocol against a
// live plan anchored in the collaboration document.
type Loop struct {
	Model           llms.Model
	Stream          bool
	Bridge          *tools.Bridge
	Reviser         PlanReviser
	DocumentPath    string
	Objective       string
	ContextSnapshot string
	MaxIterations   int
}

// SeedLivePlan initializes the live plan anchor from the execution plan.
func (l *Loop) SeedLivePlan(plan string) error {
	header := ""
	if strings.TrimSpace(l.Objective) != "" {
		header = fmt.Sprintf("Objective: %s\n\n", strings.TrimSpace(l.Objective))
	}
	return form.UpdateLivePlan(l.DocumentPath, header+"## Steps\n\n"+plan)
}

// Run executes the loop until the model stops emitting tool calls or the
// iteration ceiling is reached. When the loop ends with unanswered tool
// calls (or never ran at all), one forced-finalization prompt is sent and
// its reply returned.
func (l *Loop) Run(ctx context.Context, systemPrompt string) (string, error) {
	maxIterations := l.MaxIterations
	if maxIterations < 0 {
		maxIterations = DefaultMaxIterations
	}

	var messages []llms.Message
	if systemPrompt != "" {
		messages = append(messages, llms.Message{Role: "system", Content: systemPrompt})
	}

	iteration := 0
	lastResponse := ""

	slog.Info("starting live execution loop", "max_iterations", maxIterations)

	for iteration < maxIterations {
		iteration++
		slog.Info("execution loop iteration", "iteration", iteration, "max", maxIterations)

		livePlan, _ := form.ReadLivePlan(l.DocumentPath)
		messages = append(messages, llms.Message{
			Role:    "user",
			Content: buildIterationPrompt(livePlan, iteration),
		})

		responseText, err := l.invoke(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("iteration %d: %w", iteration, err)
		}
		messages = append(messages, llms.Message{Role: "assistant", Content: responseText})
		lastResponse = responseText

		calls := ParseToolCalls(responseText)
		if len(calls) == 0 {
			slog.Info("no tool calls in reply, ending loop")
			break
		}
		slog.Info("parsed tool calls", "count", len(calls))

		for _, call := range calls {
			result := l.Bridge.CallTool(ctx, call.Tool, call.Args)
			slog.Info("tool result",
				"tool", call.Tool,
				"success", result.Success,
				"error", result.Error,
			)

			messages = append(messages, llms.Message{
				Role:    "user",
				Content: formatToolResult(call, result),
			})

			if err := appendToolLog(l.DocumentPath, iteration, call, result); err != nil {
				slog.Warn("failed to append tool log", "error", err)
			}

			l.reviseAfterCall(ctx, call, result)
		}
	}

	slog.Info("execution loop ended", "iterations", iteration)

	if lastResponse == "" || len(ParseToolCalls(lastResponse)) > 0 {
		messages = append(messages, llms.Message{Role: "user", Content: finalAnswerPrompt})
		final, err := l.invoke(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("forced finalization: %w", err)
		}
		lastResponse = final
	}

	return lastResponse, nil
}

func (l *Loop) invoke(ctx context.Context, messages []llms.Message) (string, error) {
	if l.Stream {
		ch, err := l.Model.InvokeStream(ctx, messages)
		if err != nil {
			return "", err
		}
		resp, err := llms.Collect(ch)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(resp.Text()), nil
	}

	resp, err := l.Model.Invoke(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

// reviseAfterCall hands the tool result to the plan reviser. Reviser
// failures are warnings; the loop never aborts because of them.
func (l *Loop) reviseAfterCall(ctx context.Context, call ToolCall, result tools.ToolResult) {
	if l.Reviser == nil {
		return
	}

	revised, err := l.Reviser.RevisePlan(ctx, ToolEvent{
		DocumentPath:    l.DocumentPath,
		Tool:            call.Tool,
		Args:            call.Args,
		Output:          result.Output,
		Error:           result.Error,
		Objective:       l.Objective,
		ContextSnapshot: l.ContextSnapshot,
	})
	if err != nil {
		slog.Warn("plan revision failed", "tool", call.Tool, "error", err)
		return
	}
	if revised {
		slog.Info("live plan revised", "tool", call.Tool)
	}
}

func buildIterationPrompt(livePlan string, iteration int) string {
	return fmt.Sprintf(`# Current Live Plan (Iteration %d)

Read the plan below and execute the next pending step.

`+"```plan\n%s\n```"+`

Execute the next step by outputting a [TOOL_CALL] block, or output Final Answer if done.`,
		iteration, livePlan)
}

func formatToolResult(call ToolCall, result tools.ToolResult) string {
	parts := []string{"[TOOL_RESULT]", "tool: " + call.Tool}
	if result.Output != "" {
		parts = append(parts, "output: "+result.Output)
	}
	if result.Error != "" {
		parts = append(parts, "error: "+result.Error)
	}
	return strings.Join(parts, "\n")
}

func appendToolLog(path string, iteration int, call ToolCall, result tools.ToolResult) error {
	argsJSON, err := json.MarshalIndent(call.Args, "", "  ")
	if err != nil {
		argsJSON = []byte(fmt.Sprintf("%v", call.Args))
	}

	output := result.Output
	if output == "" {
		output = "(none)"
	}
	errText := result.Error
	if errText == "" {
		errText = "(none)"
	}

	entry := fmt.Sprintf("### Iteration %d | Tool: %s\n**Args:**\n```json\n%s\n```\n**Output:** %s\n**Error:** %s",
		iteration, call.Tool, argsJSON, output, errText)

	return form.AppendSection(path, "STAGE4_TOOL_CALLS", entry, toolLogHeader)
}
