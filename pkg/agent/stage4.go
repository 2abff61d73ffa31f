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

import (
	"context"
	"fmt"

	"github.com/neogenesis/neoflow/pkg/llms"
	"github.com/neogenesis/neoflow/pkg/reasoning"
	"github.com/neogenesis/neoflow/pkg/tools"
)

// Stage4Agent executes the live plan through the tool loop.
type Stage4Agent struct {
	*BaseAgent
	maxIterations int
}

// NewStage4Agent builds the execution agent. A negative maxIterations
// selects the loop default.
func NewStage4Agent(model llms.Model, maxIterations int, opts ...Option) *Stage4Agent {
	return &Stage4Agent{
		BaseAgent:     newBaseAgent("stage4_agent", "stage4_executor.md", model, opts...),
		maxIterations: maxIterations,
	}
}

// Execute seeds the live plan from the stage 3 output embedded in the
// context and runs the tool loop until a final answer is produced.
func (a *Stage4Agent) Execute(
	ctx context.Context,
	contextBlock, documentPath string,
	bridge *tools.Bridge,
	reviser reasoning.PlanReviser,
) (string, error) {
	loop := &reasoning.Loop{
		Model:           a.model,
		Stream:          a.stream,
		Bridge:          bridge,
		Reviser:         reviser,
		DocumentPath:    documentPath,
		Objective:       extractSection(contextBlock, "Objective"),
		ContextSnapshot: extractSection(contextBlock, "Context Snapshot"),
		MaxIterations:   a.maxIterations,
	}

	if err := loop.SeedLivePlan(extractSection(contextBlock, "Stage 3 Plan")); err != nil {
		return "", fmt.Errorf("%s: seeding live plan: %w", a.name, err)
	}

	return loop.Run(ctx, a.systemPrompt)
}
