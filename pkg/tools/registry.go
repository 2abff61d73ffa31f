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

package tools

import "sort"

// Registry maps tool names to callables. It is an explicit value, not a
// process-wide singleton: each bridge default-constructs its own, which
// keeps test ordering hazards out.
type Registry struct {
	tools map[string]ToolFunc
	docs  map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]ToolFunc),
		docs:  make(map[string]string),
	}
}

// Register adds or replaces a tool. Registration is additive.
func (r *Registry) Register(name string, fn ToolFunc, doc string) {
	r.tools[name] = fn
	r.docs[name] = doc
}

func (r *Registry) Get(name string) (ToolFunc, bool) {
	fn, ok := r.tools[name]
	return fn, ok
}

// ListTools returns the registered names sorted for stable output.
func (r *Registry) ListTools() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Doc returns a tool's registered description.
func (r *Registry) Doc(name string) string {
	return r.docs[name]
}

// DefaultRegistry builds a registry with the four built-in tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("web_search", webSearch,
		"Unified web search with ordered fallback queries, dedup and provider auto-selection.")
	r.Register("web_scrape", webScrape,
		"Single-URL content extraction to markdown, truncated to 5000 chars.")
	r.Register("code_interpreter", codeInterpreter,
		"Executes Go snippets in a persistent per-bridge namespace.")
	r.Register("calculate", calculate,
		"Evaluates a restricted math expression.")
	return r
}
