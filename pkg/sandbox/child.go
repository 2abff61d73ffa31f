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

//go:build unix

package sandbox

import (
	"fmt"
	"io"
	"os"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"golang.org/x/sys/unix"
)

// RunChild is the body of the hidden sandbox-exec command. It applies the
// rlimits, reads the snippet from stdin and evaluates it, writing output
// to stdout and errors to stderr. The exit code is the child's verdict.
func RunChild(timeoutSecs, memoryLimitMB int) int {
	if err := applyLimits(timeoutSecs, memoryLimitMB); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply resource limits: %v\n", err)
		return 1
	}

	code, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read code from stdin: %v\n", err)
		return 1
	}

	i := interp.New(interp.Options{Stdout: os.Stdout, Stderr: os.Stderr})
	i.Use(stdlib.Symbols)

	value, err := i.Eval(string(code))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	if result, resErr := i.Eval("_result_"); resErr == nil && result.IsValid() && result.CanInterface() {
		fmt.Fprintf(os.Stdout, "%v\n", result.Interface())
	} else if value.IsValid() && value.CanInterface() {
		fmt.Fprintf(os.Stdout, "%v\n", value.Interface())
	}

	return 0
}

func applyLimits(timeoutSecs, memoryLimitMB int) error {
	cpu := &unix.Rlimit{Cur: uint64(timeoutSecs), Max: uint64(timeoutSecs)}
	if err := unix.Setrlimit(unix.RLIMIT_CPU, cpu); err != nil {
		return fmt.Errorf("RLIMIT_CPU: %w", err)
	}

	limitBytes := uint64(memoryLimitMB) * 1024 * 1024
	mem := &unix.Rlimit{Cur: limitBytes, Max: limitBytes}
	if err := unix.Setrlimit(unix.RLIMIT_AS, mem); err != nil {
		return fmt.Errorf("RLIMIT_AS: %w", err)
	}

	return nil
}
