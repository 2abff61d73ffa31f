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
	"regexp"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// calculatePrelude exposes the whitelisted math functions under their bare
// names so expressions read like "sqrt(2) * pi".
const calculatePrelude = `
import "math"

var (
	pi    = math.Pi
	e     = math.E
	sqrt  = math.Sqrt
	cbrt  = math.Cbrt
	abs   = math.Abs
	pow   = math.Pow
	exp   = math.Exp
	log   = math.Log
	log2  = math.Log2
	log10 = math.Log10
	sin   = math.Sin
	cos   = math.Cos
	tan   = math.Tan
	asin  = math.Asin
	acos  = math.Acos
	atan  = math.Atan
	floor = math.Floor
	ceil  = math.Ceil
	round = math.Round
	mod   = math.Mod
)
`

// calculateAllowedPattern limits expressions to numbers, operators and the
// identifiers defined by the prelude.
var calculateAllowedPattern = regexp.MustCompile(`^[0-9a-z_+\-*/%().,eE \t]+$`)

var calculateKnownIdents = map[string]bool{
	"pi": true, "e": true, "sqrt": true, "cbrt": true, "abs": true,
	"pow": true, "exp": true, "log": true, "log2": true, "log10": true,
	"sin": true, "cos": true, "tan": true, "asin": true, "acos": true,
	"atan": true, "floor": true, "ceil": true, "round": true, "mod": true,
	"min": true, "max": true,
}

var identPattern = regexp.MustCompile(`[a-z_][a-z0-9_]*`)

// calculate evaluates a restricted math expression in a fresh throwaway
// namespace, never in the persistent interpreter.
func calculate(ctx context.Context, _ *Bridge, args map[string]any) ToolResult {
	params := calculateArgs{}
	if err := decodeArgs(args, &params); err != nil {
		return errorResult("calculate: %v", err)
	}

	expression := strings.TrimSpace(params.Expression)
	if expression == "" {
		return errorResult("calculate received empty expression")
	}
	if err := validateExpression(expression); err != nil {
		return errorResult("Calculate error for expression '%s': %v", expression, err)
	}

	i := interp.New(interp.Options{})
	i.Use(stdlib.Symbols)
	if _, err := i.EvalWithContext(ctx, calculatePrelude); err != nil {
		return errorResult("Calculate error: failed to prepare namespace: %v", err)
	}

	value, err := i.EvalWithContext(ctx, expression)
	if err != nil {
		return errorResult("Calculate error for expression '%s': %v", expression, err)
	}
	if !value.IsValid() || !value.CanInterface() {
		return errorResult("Calculate error for expression '%s': no value produced", expression)
	}

	return successResult(fmt.Sprintf("%v", value.Interface()))
}

func validateExpression(expression string) error {
	lowered := strings.ToLower(expression)
	if !calculateAllowedPattern.MatchString(lowered) {
		return fmt.Errorf("expression contains disallowed characters")
	}
	for _, ident := range identPattern.FindAllString(lowered, -1) {
		// Bare exponent markers inside float literals are not identifiers.
		if ident == "e" {
			continue
		}
		if !calculateKnownIdents[ident] {
			return fmt.Errorf("unknown identifier %q", ident)
		}
	}
	return nil
}
