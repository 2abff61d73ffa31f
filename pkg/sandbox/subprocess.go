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
	"os"
	"os/exec"
	"strconv"
	"strings"
)

const subprocessOutputLimit = 2000

// ChildCommand is the hidden CLI command the subprocess path re-execs.
const ChildCommand = "sandbox-exec"

// executeSubprocess re-execs the current binary's hidden sandbox-exec
// command. The child applies CPU and address-space rlimits before
// evaluating the snippet it reads from stdin. Environment is reset to a
// minimal PATH, working dir to the OS temp dir.
func (s *Sandbox) executeSubprocess(ctx context.Context, code string) (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("subprocess execution error: cannot locate executable: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	timeoutSecs := int(s.Timeout.Seconds())
	if timeoutSecs < 1 {
		timeoutSecs = 1
	}

	cmd := exec.CommandContext(ctx, self, ChildCommand,
		"--timeout", strconv.Itoa(timeoutSecs),
		"--memory-limit-mb", strconv.Itoa(s.MemoryLimitMB))
	cmd.Env = []string{"PATH=/usr/bin:/bin"}
	cmd.Dir = os.TempDir()
	cmd.Stdin = strings.NewReader(code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("execution timed out after %s", s.Timeout)
	}
	if runErr != nil {
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = runErr.Error()
		}
		return "", fmt.Errorf("subprocess execution error: %s", message)
	}

	output := stdout.String()
	if len(output) > subprocessOutputLimit {
		output = output[:subprocessOutputLimit] + "\n...[output truncated]"
	}
	return output, nil
}
