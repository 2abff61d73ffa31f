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

// Package reasoning drives the iterative tool-call loop of the execution
// stage: parsing structured [TOOL_CALL] blocks out of model replies,
// dispatching them through the tool bridge, feeding results back and
// enforcing the iteration ceiling.
package reasoning

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const (
	openSentinel  = "[TOOL_CALL]"
	closeSentinel = "[/TOOL_CALL]"
)

// TopLevelKeys are the argument keys recognized at the top level of a
// [TOOL_CALL] block. A line starting with one of these ends a multi-line
// code block. Registering a tool with new argument names requires adding
// them here.
var TopLevelKeys = map[string]bool{
	"tool":             true,
	"query":            true,
	"url":              true,
	"format":           true,
	"expression":       true,
	"max_results":      true,
	"provider":         true,
	"fallback_queries": true,
	"min_results":      true,
	"code":             true,
}

// ToolCall is one parsed tool invocation in document order.
type ToolCall struct {
	Tool string
	Args map[string]any
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseToolCalls extracts every well-formed [TOOL_CALL]...[/TOOL_CALL]
// block from a model reply. Blocks without a tool name are dropped.
// Parsing is idempotent over its own textual output: result messages
// never re-embed the sentinels.
func ParseToolCalls(text string) []ToolCall {
	var calls []ToolCall

	segments := strings.Split(text, openSentinel)
	for _, segment := range segments[1:] {
		if !strings.Contains(segment, closeSentinel) {
			continue
		}
		body := strings.TrimSpace(strings.SplitN(segment, closeSentinel, 2)[0])
		if call, ok := parseCallBody(body); ok {
			calls = append(calls, call)
		}
	}

	return calls
}

func parseCallBody(body string) (ToolCall, bool) {
	lines := strings.Split(body, "\n")
	call := ToolCall{Args: map[string]any{}}

	i := 0
	for i < len(lines) {
		stripped := strings.TrimSpace(lines[i])
		if stripped == "" || !strings.Contains(stripped, ":") {
			i++
			continue
		}

		parts := strings.SplitN(stripped, ":", 2)
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])

		switch key {
		case "tool":
			call.Tool = val
			i++
		case "code":
			code, next := collectCode(lines, i, val)
			call.Args["code"] = code
			i = next
		default:
			call.Args[key] = coerceValue(val)
			i++
		}
	}

	if call.Tool == "" {
		return ToolCall{}, false
	}
	return call, true
}

// collectCode gathers a multi-line code value starting at line index i
// (whose first-line remainder is val). Collection stops at the next
// recognized top-level key, or at a column-zero identifier followed by a
// colon.
func collectCode(lines []string, i int, val string) (string, int) {
	var codeLines []string
	if val != "" {
		var parsed string
		if err := json.Unmarshal([]byte(val), &parsed); err == nil {
			codeLines = append(codeLines, parsed)
		} else {
			codeLines = append(codeLines, val)
		}
	}
	i++

	for i < len(lines) {
		line := lines[i]
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			codeLines = append(codeLines, "")
			i++
			continue
		}
		// A ":=" is an assignment inside the snippet, not a key separator.
		if idx := strings.Index(stripped, ":"); idx != -1 && !strings.HasPrefix(stripped[idx:], ":=") {
			potentialKey := strings.TrimSpace(stripped[:idx])
			if TopLevelKeys[potentialKey] {
				break
			}
			if !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t") &&
				identPattern.MatchString(potentialKey) {
				break
			}
		}
		codeLines = append(codeLines, strings.TrimRight(line, " \t"))
		i++
	}

	return strings.TrimSpace(dedent(strings.Join(codeLines, "\n"))), i
}

// coerceValue parses a scalar argument value: JSON first, repaired JSON
// second, raw string last.
func coerceValue(val string) any {
	var parsed any
	if err := json.Unmarshal([]byte(val), &parsed); err == nil {
		return parsed
	}
	if looksStructured(val) {
		if repaired, err := jsonrepair.JSONRepair(val); err == nil {
			if err := json.Unmarshal([]byte(repaired), &parsed); err == nil {
				return parsed
			}
		}
	}
	return val
}

// looksStructured gates the repair pass so plain prose values stay raw
// strings.
func looksStructured(val string) bool {
	return strings.HasPrefix(val, "[") || strings.HasPrefix(val, "{")
}

func dedent(text string) string {
	lines := strings.Split(text, "\n")

	margin := -1
	for _, line := range lines {
		trimmed := strings.TrimLeft(line, " \t")
		if trimmed == "" {
			continue
		}
		indent := len(line) - len(trimmed)
		if margin == -1 || indent < margin {
			margin = indent
		}
	}
	if margin <= 0 {
		return text
	}

	for idx, line := range lines {
		if len(line) >= margin {
			lines[idx] = line[margin:]
		} else {
			lines[idx] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
