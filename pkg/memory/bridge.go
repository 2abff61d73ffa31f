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

// Package memory composes per-stage context prompts from the objective,
// external inputs and prior anchor contents of the collaboration document.
package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/neogenesis/neoflow/pkg/form"
)

// ContextSection is one projected block of context. Content is non-empty
// after trimming; empty candidates are dropped at add time.
type ContextSection struct {
	Header  string
	Content string
	Source  string
}

// Bridge accumulates ordered context sections and renders them into a
// single markdown prompt.
type Bridge struct {
	sections []ContextSection
}

func NewBridge() *Bridge {
	return &Bridge{}
}

func (b *Bridge) Clear() {
	b.sections = b.sections[:0]
}

// AddSection appends a section unless its content is blank.
func (b *Bridge) AddSection(header, content, source string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	b.sections = append(b.sections, ContextSection{
		Header:  strings.TrimSpace(header),
		Content: strings.TrimSpace(content),
		Source:  strings.TrimSpace(source),
	})
}

func (b *Bridge) AddObjective(objective string) {
	b.AddSection("Objective", objective, "user_input")
}

func (b *Bridge) AddContextSnapshot(snapshot string) {
	b.AddSection("Context Snapshot", snapshot, "environment")
}

func (b *Bridge) AddUserContext(content string) {
	b.AddSection("用户附加上下文", content, "user_input")
}

func (b *Bridge) AddToolCatalog(tools []string) {
	var lines []string
	for _, tool := range tools {
		if strings.TrimSpace(tool) != "" {
			lines = append(lines, "- "+tool)
		}
	}
	b.AddSection("Available Tools", strings.Join(lines, "\n"), "system")
}

func (b *Bridge) AddExecutionConstraints(constraints []string) {
	var lines []string
	for _, c := range constraints {
		if strings.TrimSpace(c) != "" {
			lines = append(lines, "- "+c)
		}
	}
	b.AddSection("Execution Constraints", strings.Join(lines, "\n"), "system")
}

// AddAttachments renders key/value attachments as bullets.
func (b *Bridge) AddAttachments(attachments map[string]string) {
	var lines []string
	for _, key := range sortedKeys(attachments) {
		lines = append(lines, fmt.Sprintf("- %s: %s", key, attachments[key]))
	}
	b.AddSection("Task Attachments", strings.Join(lines, "\n"), "user_input")
}

// Build renders the accumulated sections:
//
//	## {header} (from {source})
//
//	{content}
func (b *Bridge) Build() string {
	if len(b.sections) == 0 {
		return ""
	}

	var parts []string
	for _, section := range b.sections {
		headerLine := "## " + section.Header
		if section.Source != "" {
			headerLine += fmt.Sprintf(" (from %s)", section.Source)
		}
		parts = append(parts, headerLine, "", section.Content, "")
	}

	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// LoadStageOutput reads one anchor's trimmed content, or "" when the file
// or marker is missing.
func LoadStageOutput(path, marker string) string {
	content, _ := form.Read(path, marker)
	return content
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
