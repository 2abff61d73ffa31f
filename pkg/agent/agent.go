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

// Package agent implements the stage agents of the reasoning pipeline.
// Each agent wraps a model with a system prompt, optional knowledge
// library sections and the text-extraction protocol; stage-specific
// behavior (pre-search, tool loop, plan revision, patch gating) layers
// on top of the shared base.
package agent

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/neogenesis/neoflow/pkg/form"
	"github.com/neogenesis/neoflow/pkg/llms"
)

//go:embed prompts/*.md
var promptFS embed.FS

// librarySection pairs a display label with a directory of markdown
// knowledge files appended to the system prompt.
type librarySection struct {
	label string
	dir   string
}

type options struct {
	stream       bool
	promptFile   string
	libraries    []librarySection
	promptSuffix string
}

// Option configures a stage agent at construction time.
type Option func(*options)

// WithStream makes the agent request streaming replies and collate them.
func WithStream(stream bool) Option {
	return func(o *options) { o.stream = stream }
}

// WithPromptFile overrides the embedded default system prompt with the
// contents of a file. A missing or empty file falls back to the default.
func WithPromptFile(path string) Option {
	return func(o *options) { o.promptFile = path }
}

// WithLibraryDir appends every markdown file of dir to the system prompt
// under "## {label}: {title}" headings, where title is the filename stem
// with underscores spaced out.
func WithLibraryDir(label, dir string) Option {
	return func(o *options) { o.libraries = append(o.libraries, librarySection{label: label, dir: dir}) }
}

// WithPromptSuffix appends raw text after the prompt and library
// sections.
func WithPromptSuffix(text string) Option {
	return func(o *options) { o.promptSuffix = text }
}

// BaseAgent is the shared body of every stage agent.
type BaseAgent struct {
	name         string
	model        llms.Model
	stream       bool
	systemPrompt string
}

func newBaseAgent(name, defaultPromptFile string, model llms.Model, opts ...Option) *BaseAgent {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	prompt := loadPromptFile(o.promptFile)
	if prompt == "" {
		prompt = loadEmbeddedPrompt(defaultPromptFile)
	}

	if sections := loadLibrarySections(o.libraries); sections != "" {
		if prompt != "" {
			prompt = prompt + "\n\n" + sections
		} else {
			prompt = sections
		}
	}
	if o.promptSuffix != "" {
		prompt = strings.TrimSpace(prompt + "\n\n" + o.promptSuffix)
	}

	return &BaseAgent{
		name:         name,
		model:        model,
		stream:       o.stream,
		systemPrompt: prompt,
	}
}

func loadPromptFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func loadEmbeddedPrompt(name string) string {
	if name == "" {
		return ""
	}
	data, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func loadLibrarySections(libraries []librarySection) string {
	var sections []string
	for _, lib := range libraries {
		files, err := filepath.Glob(filepath.Join(lib.dir, "*.md"))
		if err != nil {
			continue
		}
		sort.Strings(files)
		for _, file := range files {
			data, err := os.ReadFile(file)
			if err != nil {
				continue
			}
			content := strings.TrimSpace(string(data))
			if content == "" {
				continue
			}
			title := strings.ReplaceAll(strings.TrimSuffix(filepath.Base(file), ".md"), "_", " ")
			sections = append(sections, fmt.Sprintf("## %s: %s\n\n%s", lib.label, title, content))
		}
	}
	return strings.Join(sections, "\n\n")
}

// Name reports the agent identifier used in logs.
func (a *BaseAgent) Name() string { return a.name }

// SystemPrompt exposes the resolved system prompt.
func (a *BaseAgent) SystemPrompt() string { return a.systemPrompt }

// Model exposes the underlying model.
func (a *BaseAgent) Model() llms.Model { return a.model }

// Analyze sends the composed context as a single user turn and returns
// the trimmed reply text.
func (a *BaseAgent) Analyze(ctx context.Context, contextBlock string) (string, error) {
	return a.complete(ctx, a.messages(strings.TrimSpace(contextBlock)))
}

// AnalyzeToForm runs Analyze and writes the result into the document
// anchor identified by marker, inserting under header when the anchor is
// absent.
func (a *BaseAgent) AnalyzeToForm(ctx context.Context, contextBlock, documentPath, marker, header string) (string, error) {
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

func writeForm(agentName, documentPath, marker, content, header string) error {
	if err := form.Update(documentPath, marker, content, header); err != nil {
		return fmt.Errorf("%s: writing %s: %w", agentName, marker, err)
	}
	return nil
}

func (a *BaseAgent) messages(userContent string) []llms.Message {
	var messages []llms.Message
	if a.systemPrompt != "" {
		messages = append(messages, llms.Message{Role: "system", Content: a.systemPrompt})
	}
	messages = append(messages, llms.Message{Role: "user", Content: userContent})
	return messages
}

func (a *BaseAgent) complete(ctx context.Context, messages []llms.Message) (string, error) {
	if a.stream {
		ch, err := a.model.InvokeStream(ctx, messages)
		if err != nil {
			return "", fmt.Errorf("%s: %w", a.name, err)
		}
		resp, err := llms.Collect(ch)
		if err != nil {
			return "", fmt.Errorf("%s: %w", a.name, err)
		}
		return strings.TrimSpace(resp.Text()), nil
	}

	resp, err := a.model.Invoke(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("%s: %w", a.name, err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// extractSection pulls the body of a "## {header} ..." block out of a
// composed context string. Capture stops at the next level-2 heading.
func extractSection(contextBlock, header string) string {
	var captured []string
	capture := false
	for _, line := range strings.Split(contextBlock, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "## "+header) {
			capture = true
			continue
		}
		if capture {
			if strings.HasPrefix(stripped, "## ") {
				break
			}
			captured = append(captured, line)
		}
	}
	return strings.TrimSpace(strings.Join(captured, "\n"))
}
