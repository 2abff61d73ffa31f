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

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// executeRestricted evaluates the snippet in a fresh in-process
// interpreter bounded by the wall-clock timeout. Validation has already
// rejected dangerous imports, so the namespace carries only the stdlib
// symbols the whitelist permits.
func (s *Sandbox) executeRestricted(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	var out bytes.Buffer
	i := interp.New(interp.Options{Stdout: &out, Stderr: &out})
	i.Use(stdlib.Symbols)

	value, err := i.EvalWithContext(ctx, code)
	if err != nil {
		return "", fmt.Errorf("restricted evaluation error: %w", err)
	}

	output := strings.TrimSpace(out.String())

	// Snippets may leave a conventional result variable instead of printing.
	if result, resErr := i.EvalWithContext(ctx, "_result_"); resErr == nil && result.IsValid() && result.CanInterface() {
		if output != "" {
			output += "\n"
		}
		output += fmt.Sprintf("%v", result.Interface())
	} else if output == "" && value.IsValid() && value.CanInterface() {
		output = fmt.Sprintf("%v", value.Interface())
	}

	if output == "" {
		output = "executed with no output"
	}
	return output, nil
}
