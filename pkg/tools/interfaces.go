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

// Package tools provides the tool registry, the bridge the stage-4 loop
// dispatches through, and the built-in tools: web_search, web_scrape,
// code_interpreter and calculate.
package tools

import (
	"context"
	"fmt"
)

// ToolResult is the uniform result of any tool call. Output is always a
// string; structured data is serialized to text before it gets here.
type ToolResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// ToolFunc is the contract tool authors implement. Args come from the
// parsed [TOOL_CALL] block.
type ToolFunc func(ctx context.Context, bridge *Bridge, args map[string]any) ToolResult

// ErrUnknownTool reports a registry miss, listing the available tools.
type ErrUnknownTool struct {
	Name      string
	Available []string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("Unknown tool: %s. Available: %v", e.Name, e.Available)
}

func successResult(output string) ToolResult {
	return ToolResult{Success: true, Output: output}
}

func errorResult(format string, args ...any) ToolResult {
	return ToolResult{Success: false, Error: fmt.Sprintf(format, args...)}
}
