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

// Package sandbox isolates untrusted interpreter code behind three
// escalating levels: in-process restricted evaluation, a resource-capped
// subprocess, or validation followed by the subprocess.
package sandbox

import (
	"context"
	"time"

	"github.com/neogenesis/neoflow/pkg/logger"
)

// IsolationLevel selects how strictly a snippet is contained.
type IsolationLevel string

const (
	IsolationLow    IsolationLevel = "low"
	IsolationMedium IsolationLevel = "medium"
	IsolationHigh   IsolationLevel = "high"
)

// Result carries the execution outcome plus a Method discriminator so
// post-hoc auditing can reconstruct which path ran.
type Result struct {
	Success   bool   `json:"success"`
	Output    string `json:"output"`
	Error     string `json:"error,omitempty"`
	Method    string `json:"method"`
	CodeSize  int    `json:"code_size"`
	Timestamp string `json:"timestamp"`
}

// Sandbox executes snippets under CPU, memory and wall-clock caps.
type Sandbox struct {
	// Timeout is both the wall-clock cap and the subprocess CPU-seconds
	// rlimit.
	Timeout time.Duration
	// MemoryLimitMB bounds the subprocess address space.
	MemoryLimitMB int
}

// New builds a sandbox with 30s timeout and a 256 MB memory cap.
func New() *Sandbox {
	return &Sandbox{
		Timeout:       30 * time.Second,
		MemoryLimitMB: 256,
	}
}

// Execute runs code at the given isolation level.
//   - low: denylist validation, then in-process restricted evaluation.
//   - medium: resource-capped subprocess without prior validation.
//   - high: denylist validation, then the subprocess.
func (s *Sandbox) Execute(ctx context.Context, code string, level IsolationLevel) Result {
	logger.GetLogger().Info("sandbox execution",
		"code_size", len(code),
		"isolation_level", string(level))

	result := Result{
		CodeSize:  len(code),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	switch level {
	case IsolationLow:
		if err := Validate(code); err != nil {
			result.Error = "code validation failed: " + err.Error()
			result.Method = "validation"
			return result
		}
		output, err := s.executeRestricted(ctx, code)
		result.Method = "restricted"
		result.Output = output
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Success = true
		return result

	case IsolationMedium:
		output, err := s.executeSubprocess(ctx, code)
		result.Method = "subprocess"
		result.Output = output
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Success = true
		return result

	default: // high
		if err := Validate(code); err != nil {
			result.Error = "code validation failed: " + err.Error()
			result.Method = "validation"
			return result
		}
		output, err := s.executeSubprocess(ctx, code)
		result.Method = "subprocess+validation"
		result.Output = output
		if err != nil {
			result.Error = err.Error()
			return result
		}
		result.Success = true
		return result
	}
}
