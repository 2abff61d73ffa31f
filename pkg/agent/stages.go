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

package agent

import "github.com/neogenesis/neoflow/pkg/llms"

// NewStage2AAgent builds the candidate strategy generator. Pass the
// strategy library via WithLibraryDir.
func NewStage2AAgent(model llms.Model, opts ...Option) *BaseAgent {
	return newBaseAgent("stage2a_agent", "stage2a_selector.md", model, opts...)
}

// NewStage2BAgent builds the strategy selection agent. Pass the strategy
// library via WithLibraryDir.
func NewStage2BAgent(model llms.Model, opts ...Option) *BaseAgent {
	return newBaseAgent("stage2b_agent", "stage2b_verifier.md", model, opts...)
}

// NewStage3Agent builds the execution planning agent.
func NewStage3Agent(model llms.Model, opts ...Option) *BaseAgent {
	return newBaseAgent("stage3_agent", "stage3_planner.md", model, opts...)
}
