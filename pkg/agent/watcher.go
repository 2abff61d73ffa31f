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
	"regexp"
	"strings"

	"github.com/neogenesis/neoflow/pkg/form"
	"github.com/neogenesis/neoflow/pkg/llms"
	"github.com/neogenesis/neoflow/pkg/memory"
	"github.com/neogenesis/neoflow/pkg/reasoning"
)

const toolOutputPreviewLimit = 2000

const watcherAuditHeader = "## Watcher Audit Report"

var planBlockPattern = regexp.MustCompile("(?s)```plan\\s*(.*?)\\s*```")

// WatcherAgent audits tool results during the execution loop and may
// rewrite the live plan. It implements reasoning.PlanReviser.
type WatcherAgent struct {
	*BaseAgent
}

// NewWatcherAgent builds the watcher. Streaming stays off unless
// explicitly enabled; the watcher runs inline with the tool loop.
func NewWatcherAgent(model llms.Model, opts ...Option) *WatcherAgent {
	return &WatcherAgent{
		BaseAgent: newBaseAgent("watcher_agent", "watcher.md", model, opts...),
	}
}

// RevisePlan reviews one tool result against the live plan. It returns
// true when the plan anchor was rewritten. A document without a live plan
// is a no-op.
func (w *WatcherAgent) RevisePlan(ctx context.Context, event reasoning.ToolEvent) (bool, error) {
	currentPlan, ok := form.ReadLivePlan(event.DocumentPath)
	if !ok || strings.TrimSpace(currentPlan) == "" || currentPlan == form.Placeholder {
		return false, nil
	}

	auditContext := memory.WatcherAuditContext(event.DocumentPath, event.Objective)
	request := buildRevisionRequest(currentPlan, auditContext, event)

	text, err := w.complete(ctx, w.messages(request))
	if err != nil {
		return false, err
	}

	revised := extractRevisedPlan(text)
	if revised == "" || strings.TrimSpace(revised) == strings.TrimSpace(currentPlan) {
		return false, nil
	}

	if err := form.UpdateLivePlan(event.DocumentPath, revised); err != nil {
		return false, fmt.Errorf("%s: updating live plan: %w", w.name, err)
	}
	audit := fmt.Sprintf("Last revision for tool: %s\n\n%s", event.Tool, text)
	if err := form.AppendSection(event.DocumentPath, "WATCHER_AUDIT", audit, watcherAuditHeader); err != nil {
		return false, fmt.Errorf("%s: writing audit log: %w", w.name, err)
	}
	return true, nil
}

func buildRevisionRequest(currentPlan, auditContext string, event reasoning.ToolEvent) string {
	sections := []string{"# Plan Revision Request"}

	if event.Objective != "" {
		sections = append(sections, "\n## Objective\n"+strings.TrimSpace(event.Objective))
	}

	sections = append(sections, "\n## Current Live Plan\n```\n"+currentPlan+"\n```")

	sections = append(sections, "\n## Tool Execution Result")
	sections = append(sections, "- Tool: "+event.Tool)

	argsStr := "{}"
	if raw, err := json.Marshal(event.Args); err == nil {
		argsStr = string(raw)
	}
	sections = append(sections, "- Args: "+argsStr)

	preview := event.Output
	if len(preview) > toolOutputPreviewLimit {
		preview = preview[:toolOutputPreviewLimit] + "... [truncated]"
	}
	sections = append(sections, "- Output: "+preview)
	if event.Error != "" {
		sections = append(sections, "- Error: "+event.Error)
	}

	if auditContext != "" {
		sections = append(sections, "\n## Audit Context\n"+auditContext)
	}
	if event.ContextSnapshot != "" {
		sections = append(sections, "\n## Context\n"+strings.TrimSpace(event.ContextSnapshot))
	}

	sections = append(sections, `
## Your Task

Analyze the tool result and decide if the plan needs revision.

If the tool execution failed or returned inadequate results:
1. Diagnose the root cause
2. Revise the current step in the plan with corrected parameters/approach
3. Output the COMPLETE revised plan

If the tool execution succeeded:
1. Mark the current step as completed
2. Ensure the next step is ready for execution
3. Output the COMPLETE plan (with status updates)

## Output Format

Output ONLY the revised plan in this exact format:

`+"```plan\n[Your complete revised plan here, with step statuses]\n```"+`

If NO revision is needed, output:

`+"```plan\nNO_CHANGE\n```")

	return strings.Join(sections, "\n")
}

// extractRevisedPlan pulls the fenced plan block. NO_CHANGE and absent
// blocks both mean no revision.
func extractRevisedPlan(responseText string) string {
	match := planBlockPattern.FindStringSubmatch(responseText)
	if match == nil {
		return ""
	}
	content := strings.TrimSpace(match[1])
	if content == "NO_CHANGE" {
		return ""
	}
	return content
}
