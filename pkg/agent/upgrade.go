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
	"os"
	"strings"

	"github.com/neogenesis/neoflow/pkg/library"
	"github.com/neogenesis/neoflow/pkg/llms"
)

const snapshotLimit = 6000

// UpgradeAgent reviews a pipeline run and proposes patches to a markdown
// knowledge library. Patches pass through the library engine's
// decision/quota/novelty gate before touching the file.
type UpgradeAgent struct {
	*BaseAgent
	engine    *library.Engine
	autoApply bool
}

// NewStrategyUpgradeAgent builds the stage 2-C agent maintaining the
// strategy library.
func NewStrategyUpgradeAgent(model llms.Model, libraryFile string, autoApply bool, opts ...Option) *UpgradeAgent {
	opts = append(opts, snapshotSuffix("Current Strategy Library Snapshot", libraryFile))
	return &UpgradeAgent{
		BaseAgent: newBaseAgent("stage2c_agent", "strategy_upgrade.md", model, opts...),
		engine:    library.NewEngine(libraryFile, library.DefaultPolicy()),
		autoApply: autoApply,
	}
}

// NewCapabilityUpgradeAgent builds the post-run agent maintaining the
// capability library. Its decision grammar has no ACTION header.
func NewCapabilityUpgradeAgent(model llms.Model, libraryFile string, autoApply bool, opts ...Option) *UpgradeAgent {
	opts = append(opts, snapshotSuffix("Current Capability Library Snapshot", libraryFile))
	return &UpgradeAgent{
		BaseAgent: newBaseAgent("capability_agent", "capability_upgrade.md", model, opts...),
		engine:    library.NewEngine(libraryFile, library.Policy{RequireAction: false}),
		autoApply: autoApply,
	}
}

// Engine exposes the patch engine for the runner's logging.
func (u *UpgradeAgent) Engine() *library.Engine { return u.engine }

// Evaluate runs the upgrade review. With auto-apply enabled the output is
// gated through the patch engine; either way the returned text carries an
// AUTO_APPLY_STATUS annotation.
func (u *UpgradeAgent) Evaluate(ctx context.Context, contextBlock string) (string, error) {
	text, err := u.Analyze(ctx, contextBlock)
	if err != nil {
		return "", err
	}

	if !u.autoApply {
		if !strings.Contains(text, library.StatusMarker) {
			text = strings.TrimRight(text, " \t\n") + "\n\n" + library.StatusMarker + " skipped (auto-apply disabled)"
		}
		return text, nil
	}

	return u.engine.Process(text), nil
}

// EvaluateToForm runs Evaluate and writes the annotated output into the
// document anchor.
func (u *UpgradeAgent) EvaluateToForm(ctx context.Context, contextBlock, documentPath, marker, header string) (string, error) {
	text, err := u.Evaluate(ctx, contextBlock)
	if err != nil {
		return "", err
	}
	if documentPath != "" && marker != "" {
		if err := writeForm(u.name, documentPath, marker, text, header); err != nil {
			return "", err
		}
	}
	return text, nil
}

// snapshotSuffix appends the current library content to the system prompt
// so the model can check novelty against it.
func snapshotSuffix(header, libraryFile string) Option {
	data, err := os.ReadFile(libraryFile)
	if err != nil {
		return func(*options) {}
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return func(*options) {}
	}
	if len(content) > snapshotLimit {
		content = strings.TrimRight(content[:snapshotLimit], " \n") + "\n\n...[Content truncated]..."
	}
	return WithPromptSuffix(fmt.Sprintf("## %s\n\n%s", header, content))
}
