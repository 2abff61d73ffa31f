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

import (
	"context"
	"fmt"
	"strings"
)

// resultNames are scanned after execution, first match wins.
var resultNames = []string{"_result_", "result", "answer"}

// codeInterpreter evaluates a snippet in the bridge's persistent
// interpreter namespace. Variables and functions defined in one call are
// visible to the next until ResetInterpreter.
func codeInterpreter(ctx context.Context, bridge *Bridge, args map[string]any) ToolResult {
	params := codeArgs{}
	if err := decodeArgs(args, &params); err != nil {
		return errorResult("code_interpreter: %v", err)
	}

	code := dedent(params.Code)
	if code == "" {
		return errorResult("code_interpreter received empty code snippet")
	}

	bridge.interpOut.Reset()
	bridge.interpErr.Reset()

	value, err := bridge.interpreter.EvalWithContext(ctx, code)

	stdout := strings.TrimSpace(bridge.interpOut.String())
	stderr := strings.TrimSpace(bridge.interpErr.String())

	if err != nil {
		parts := []string{fmt.Sprintf("Exception: %v", err)}
		if stdout != "" {
			parts = append([]string{"--- Stdout before error ---\n" + stdout}, parts...)
		}
		if stderr != "" {
			parts = append(parts, "--- Stderr ---\n"+stderr)
		}
		return ToolResult{Success: false, Error: strings.Join(parts, "\n")}
	}

	var outputParts []string
	if stdout != "" {
		outputParts = append(outputParts, stdout)
	}

	if returned, ok := bridge.lookupResult(ctx); ok {
		outputParts = append(outputParts, "Return: "+returned)
	} else if value.IsValid() && value.CanInterface() {
		// A bare trailing expression also counts as a return value.
		if rendered := fmt.Sprintf("%v", value.Interface()); rendered != "" && rendered != "<nil>" && stdout == "" {
			outputParts = append(outputParts, "Return: "+rendered)
		}
	}

	if stderr != "" {
		outputParts = append(outputParts, "Stderr: "+stderr)
	}

	if len(outputParts) == 0 {
		return successResult("Executed with no output")
	}
	return successResult(strings.Join(outputParts, "\n"))
}

// lookupResult probes the conventional result variables in the persistent
// namespace.
func (b *Bridge) lookupResult(ctx context.Context) (string, bool) {
	for _, name := range resultNames {
		value, err := b.interpreter.EvalWithContext(ctx, name)
		if err != nil || !value.IsValid() || !value.CanInterface() {
			continue
		}
		return fmt.Sprintf("%v", value.Interface()), true
	}
	return "", false
}

// dedent strips the common leading whitespace of all non-blank lines.
func dedent(code string) string {
	lines := strings.Split(strings.ReplaceAll(code, "\r\n", "\n"), "\n")

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
		return strings.TrimSpace(code)
	}

	for i, line := range lines {
		if len(line) >= margin {
			lines[i] = line[margin:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
