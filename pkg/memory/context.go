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

package memory

import "github.com/neogenesis/neoflow/pkg/form"

// Descriptor projects one anchor into a context section.
type Descriptor struct {
	Marker string
	Header string
	Source string
}

// Descriptor lists, cumulative per stage. Each stage sees everything its
// predecessors wrote plus the external inputs.
var (
	ExternalDescriptors = []Descriptor{
		{"EXTERNAL_INFO", "External Information", "external_input"},
		{"EXTERNAL_OBJECTIVE", "Task Objective", "external_input"},
		{"EXTERNAL_CONTEXT", "External Context", "external_input"},
		{"EXTERNAL_TOOL_CATALOG", "Available Tools", "external_input"},
	}

	Stage1Descriptors = []Descriptor{
		{"STAGE1_ANALYSIS", "Stage 1 Analysis", "stage1_agent"},
	}

	Stage2ADescriptors = []Descriptor{
		{"STAGE2A_ANALYSIS", "Stage 2-A Analysis", "stage2a_agent"},
	}

	Stage2BDescriptors = []Descriptor{
		{"STAGE2B_ANALYSIS", "Stage 2-B Analysis", "stage2b_agent"},
	}

	Stage3Descriptors = []Descriptor{
		{"STAGE3_PLAN", "Stage 3 Plan", "stage3_agent"},
	}

	Stage4Descriptors = []Descriptor{
		{"LIVE_EXECUTION_PLAN", "Live Execution Plan", "system"},
		{"STAGE4_TOOL_CALLS", "Execution Log", "stage4_agent"},
		{"STAGE4_FINAL_ANSWER", "Final Answer to User", "stage4_agent"},
		{"STAGE4_FEEDBACK", "Feedback to Upstream", "stage4_agent"},
	}

	WatcherDescriptors = []Descriptor{
		{"WATCHER_AUDIT", "Watcher Audit Report", "watcher_agent"},
		{"WATCHER_REALTIME", "Watcher Realtime Guidance", "watcher_agent"},
	}

	watcherAuditDescriptors = []Descriptor{
		{"STAGE1_FAILURE_MODES", "Common Failure Modes", "stage1_agent"},
		{"STAGE2B_STRATEGY_SNAPSHOT", "Final Strategy Snapshot", "stage2b_agent"},
		{"STAGE3_EXECUTION_PLAN", "Execution Plan Overview", "stage3_agent"},
	}
)

func addFromDocument(b *Bridge, sections map[string]string, descriptors []Descriptor) {
	for _, d := range descriptors {
		if content := sections[d.Marker]; content != "" {
			b.AddSection(d.Header, content, d.Source)
		}
	}
}

func concat(lists ...[]Descriptor) []Descriptor {
	var out []Descriptor
	for _, list := range lists {
		out = append(out, list...)
	}
	return out
}

// Stage1Context builds the metacognitive analysis prompt.
func Stage1Context(documentPath, objective, userContext string) string {
	b := NewBridge()
	b.AddObjective(objective)
	b.AddUserContext(userContext)

	sections := form.LoadAnchorSections(documentPath)
	addFromDocument(b, sections, concat(ExternalDescriptors, Stage1Descriptors))
	return b.Build()
}

// Stage2AContext builds the candidate strategy prompt.
func Stage2AContext(documentPath, objective, contextSnapshot string) string {
	b := NewBridge()
	b.AddObjective(objective)
	b.AddContextSnapshot(contextSnapshot)

	sections := form.LoadAnchorSections(documentPath)
	addFromDocument(b, sections, concat(ExternalDescriptors, Stage1Descriptors, Stage2ADescriptors))
	return b.Build()
}

// Stage2BContext builds the strategy selection prompt.
func Stage2BContext(documentPath, objective, contextSnapshot string) string {
	b := NewBridge()
	b.AddObjective(objective)
	b.AddContextSnapshot(contextSnapshot)

	sections := form.LoadAnchorSections(documentPath)
	addFromDocument(b, sections, concat(
		ExternalDescriptors, Stage1Descriptors, Stage2ADescriptors, Stage2BDescriptors))
	return b.Build()
}

// Stage3Context builds the execution planning prompt.
func Stage3Context(documentPath, objective, contextSnapshot string, attachments map[string]string) string {
	b := NewBridge()
	b.AddObjective(objective)
	b.AddContextSnapshot(contextSnapshot)
	if len(attachments) > 0 {
		b.AddAttachments(attachments)
	}

	sections := form.LoadAnchorSections(documentPath)
	addFromDocument(b, sections, concat(
		ExternalDescriptors, Stage1Descriptors, Stage2ADescriptors,
		Stage2BDescriptors, Stage3Descriptors))
	return b.Build()
}

// Stage4Context builds the tool-driven execution prompt. It additionally
// projects the live plan, the execution log and the watcher anchors.
func Stage4Context(documentPath, objective, contextSnapshot string, attachments map[string]string) string {
	b := NewBridge()
	b.AddObjective(objective)
	if len(attachments) > 0 {
		b.AddAttachments(attachments)
	}
	b.AddContextSnapshot(contextSnapshot)

	sections := form.LoadAnchorSections(documentPath)
	addFromDocument(b, sections, concat(
		ExternalDescriptors, Stage1Descriptors, Stage2ADescriptors,
		Stage2BDescriptors, Stage3Descriptors, Stage4Descriptors,
		WatcherDescriptors))
	return b.Build()
}

// WatcherAuditContext builds the narrow context the watcher needs to audit
// a tool result: known failure modes, the chosen strategy and the plan
// overview.
func WatcherAuditContext(documentPath, objective string) string {
	b := NewBridge()
	b.AddObjective(objective)

	sections := form.LoadAnchorSections(documentPath)
	addFromDocument(b, sections, watcherAuditDescriptors)
	return b.Build()
}
