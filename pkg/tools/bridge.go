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
	"bytes"
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/neogenesis/neoflow/pkg/httpclient"
)

// Bridge is the synchronous façade the tool loop dispatches through. It
// owns the persistent interpreter namespace, so two concurrent runs need
// two bridges.
type Bridge struct {
	registry   *Registry
	httpClient *httpclient.Client

	interpreter *interp.Interpreter
	interpOut   *bytes.Buffer
	interpErr   *bytes.Buffer
}

// NewBridge builds a bridge with the default registry and a fresh
// interpreter namespace.
func NewBridge() *Bridge {
	b := &Bridge{
		registry: DefaultRegistry(),
		httpClient: httpclient.New(
			httpclient.WithTimeout(30 * time.Second),
		),
	}
	b.ResetInterpreter()
	return b
}

// Registry exposes the bridge's tool registry for additional registrations.
func (b *Bridge) Registry() *Registry {
	return b.registry
}

// ResetInterpreter discards every variable and function defined by prior
// code_interpreter calls.
func (b *Bridge) ResetInterpreter() {
	b.interpOut = &bytes.Buffer{}
	b.interpErr = &bytes.Buffer{}
	i := interp.New(interp.Options{
		Stdout: b.interpOut,
		Stderr: b.interpErr,
	})
	i.Use(stdlib.Symbols)
	b.interpreter = i
}

// CallTool dispatches one tool call, turning registry misses and panics
// into failed results so the model can self-correct.
func (b *Bridge) CallTool(ctx context.Context, name string, args map[string]any) (result ToolResult) {
	fn, ok := b.registry.Get(name)
	if !ok {
		err := &ErrUnknownTool{Name: name, Available: b.registry.ListTools()}
		return ToolResult{Success: false, Error: err.Error()}
	}

	defer func() {
		if r := recover(); r != nil {
			result = ToolResult{
				Success: false,
				Error: fmt.Sprintf("Tool invocation error: panic: %v\nArgs: %v\n--- Stack ---\n%s",
					r, args, debug.Stack()),
			}
		}
	}()

	return fn(ctx, b, args)
}
