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

// Package runner orchestrates the five reasoning stages, the watcher, and
// the post-run library upgrades around one collaboration document.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/neogenesis/neoflow/pkg/agent"
	"github.com/neogenesis/neoflow/pkg/config"
	"github.com/neogenesis/neoflow/pkg/form"
	"github.com/neogenesis/neoflow/pkg/httpclient"
	"github.com/neogenesis/neoflow/pkg/llms"
	"github.com/neogenesis/neoflow/pkg/logger"
	"github.com/neogenesis/neoflow/pkg/memory"
	"github.com/neogenesis/neoflow/pkg/reasoning"
	"github.com/neogenesis/neoflow/pkg/tools"
)

// Document headers the stage anchors live under. They mirror the template
// layout so a missing anchor is inserted in the right place.
const (
	stage1Header      = "## Stage 1: Metacognitive Analysis"
	stage2AHeader     = "## Stage 2-A: Candidate Strategies"
	stage2BHeader     = "## Stage 2-B: Strategy Selection"
	stage2CHeader     = "## Stage 2-C: Capability Upgrade Evaluation"
	stage3Header      = "## Stage 3: Execution Plan"
	finalAnswerHeader = "## Final Answer to User"
)

// Stage 2-B selection occasionally dies to transient transport failures;
// it is retried a fixed number of times before the run aborts.
const (
	selectionRetryAttempts = 3
	selectionRetryDelay    = time.Second
)

// Libraries locates the knowledge assets the agents consult and maintain.
// Zero-valued fields fall back to the conventional repository layout.
type Libraries struct {
	// AbilityDir holds the markdown sections injected into the stage 1
	// system prompt.
	AbilityDir string
	// StrategyDir holds the markdown sections injected into the stage 2
	// system prompts.
	StrategyDir string
	// StrategyFile is the patch target of the stage 2-C upgrade agent.
	StrategyFile string
	// CapabilityFile is the patch target of the post-run upgrade agent.
	CapabilityFile string
	// CatalogPath is the default tool catalog document.
	CatalogPath string
}

// SetDefaults fills zero-valued paths with the repository conventions.
func (l *Libraries) SetDefaults() {
	if l.AbilityDir == "" {
		l.AbilityDir = "libraries/ability"
	}
	if l.StrategyDir == "" {
		l.StrategyDir = "libraries/strategy"
	}
	if l.StrategyFile == "" {
		l.StrategyFile = "libraries/strategy_library.md"
	}
	if l.CapabilityFile == "" {
		l.CapabilityFile = "libraries/capability_library.md"
	}
	if l.CatalogPath == "" {
		l.CatalogPath = "libraries/tool_catalog.md"
	}
}

// Request carries the per-run inputs.
type Request struct {
	Objective       string
	ContextSnapshot string
	// CandidateLimit caps how many strategies stage 2-A may propose.
	// Zero means no cap.
	CandidateLimit int
	// ToolCatalog overrides the default catalog when non-empty.
	ToolCatalog []string
}

// Result collects the per-stage outputs of one pipeline run. Fields for
// optional stages stay empty when those stages were skipped.
type Result struct {
	Document          string
	Stage1            string
	Stage2Candidate   string
	Stage2Selection   string
	Stage2Upgrade     string
	Stage3            string
	Stage4            string
	WatcherAudit      string
	CapabilityUpgrade string
}

// Runner wires the stage agents, the tool bridge, and the document
// provisioner into the full pipeline.
type Runner struct {
	cfg  *config.PipelineConfig
	libs Libraries

	bridge      *tools.Bridge
	provisioner *form.Provisioner

	stage1     *agent.Stage1Agent
	stage2a    *agent.BaseAgent
	stage2b    *agent.BaseAgent
	stage2c    *agent.UpgradeAgent
	stage3     *agent.BaseAgent
	stage4     *agent.Stage4Agent
	capability *agent.UpgradeAgent
	watcher    *agent.WatcherAgent

	retryAttempts int
	retryDelay    time.Duration
	sleep         func(time.Duration)
}

// New builds a runner whose agents share one OpenAI-compatible provider.
// The watcher gets its own provider when the config carries a dedicated
// watcher model, otherwise it reuses the shared one.
func New(cfg *config.PipelineConfig, libs Libraries) *Runner {
	cfg.SetDefaults()
	shared := llms.NewOpenAIProvider(cfg.Model)

	var watcherModel llms.Model
	if cfg.WatcherEnabled {
		if cfg.Watcher != nil {
			watcherModel = llms.NewOpenAIProvider(*cfg.Watcher)
		} else {
			watcherModel = shared
		}
	}
	return NewWithModels(cfg, libs, shared, watcherModel)
}

// NewWithModels builds a runner on explicit model implementations. A nil
// watcherModel disables the watcher.
func NewWithModels(cfg *config.PipelineConfig, libs Libraries, shared, watcherModel llms.Model) *Runner {
	cfg.SetDefaults()
	libs.SetDefaults()

	stream := agent.WithStream(cfg.Model.Stream)
	bridge := tools.NewBridge()

	stage1 := agent.NewStage1Agent(shared, stream,
		agent.WithLibraryDir("Ability Library", libs.AbilityDir))
	stage1.EnablePreSearch(bridge)

	strategyLib := agent.WithLibraryDir("Strategy Library", libs.StrategyDir)

	r := &Runner{
		cfg:         cfg,
		libs:        libs,
		bridge:      bridge,
		provisioner: form.NewProvisioner(cfg.TemplatePath, cfg.FinishFormDir),

		stage1:  stage1,
		stage2a: agent.NewStage2AAgent(shared, stream, strategyLib),
		stage2b: agent.NewStage2BAgent(shared, stream, strategyLib),
		stage2c: agent.NewStrategyUpgradeAgent(shared, libs.StrategyFile, cfg.StrategyAutoApply, stream),
		stage3:  agent.NewStage3Agent(shared, stream),
		stage4:  agent.NewStage4Agent(shared, cfg.MaxIterations, stream),
		capability: agent.NewCapabilityUpgradeAgent(
			shared, libs.CapabilityFile, cfg.CapabilityAutoApply, stream),

		retryAttempts: selectionRetryAttempts,
		retryDelay:    selectionRetryDelay,
		sleep:         time.Sleep,
	}
	r.provisioner.Threshold = cfg.TemplateThreshold

	if watcherModel != nil {
		watcherStream := cfg.Model.Stream
		if cfg.Watcher != nil {
			watcherStream = cfg.Watcher.Stream
		}
		r.watcher = agent.NewWatcherAgent(watcherModel, agent.WithStream(watcherStream))
	}
	return r
}

// Bridge exposes the tool bridge, mainly so callers can register extra
// tools before a run.
func (r *Runner) Bridge() *tools.Bridge { return r.bridge }

// WatcherEnabled reports whether plan revision is active for this runner.
func (r *Runner) WatcherEnabled() bool { return r.watcher != nil }

// Run executes the full pipeline: stages 1 through 4 in order, with the
// strategy upgrade after selection and the capability upgrade after
// execution. Upgrade failures degrade to warnings; stage failures abort
// the run with the partial result.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	objective := strings.TrimSpace(req.Objective)
	if objective == "" {
		return nil, errors.New("objective must not be empty")
	}

	log := logger.GetLogger()
	catalog := r.resolveToolCatalog(req.ToolCatalog)

	doc, err := r.prepareDocument(objective, req.ContextSnapshot, catalog)
	if err != nil {
		return nil, err
	}
	res := &Result{Document: doc}

	log.Info("pipeline started", "document", doc, "objective", objective)

	// Stage 1: metacognitive analysis. Pre-search evidence is folded into
	// the agent's own context, not the document.
	text, err := r.stage1.AnalyzeToForm(ctx,
		memory.Stage1Context(doc, objective, req.ContextSnapshot),
		doc, "STAGE1_ANALYSIS", stage1Header)
	if err != nil {
		return res, fmt.Errorf("stage 1: %w", err)
	}
	res.Stage1 = Normalize(text)

	// Stage 2-A: candidate strategies.
	block := memory.Stage2AContext(doc, objective, req.ContextSnapshot)
	if req.CandidateLimit > 0 {
		block += fmt.Sprintf(
			"\n\n## Candidate Limit\n\nPropose at most %d candidate strategies.",
			req.CandidateLimit)
	}
	text, err = r.stage2a.AnalyzeToForm(ctx, block, doc, "STAGE2A_ANALYSIS", stage2AHeader)
	if err != nil {
		return res, fmt.Errorf("stage 2-A: %w", err)
	}
	res.Stage2Candidate = Normalize(text)

	// Stage 2-B: strategy selection, retried on transport errors.
	text, err = r.runSelection(ctx, doc, objective, req.ContextSnapshot)
	if err != nil {
		return res, fmt.Errorf("stage 2-B: %w", err)
	}
	res.Stage2Selection = Normalize(text)

	// Stage 2-C: strategy library upgrade. Non-fatal; a failed review must
	// not cost the run its execution stage.
	text, err = r.stage2c.EvaluateToForm(ctx,
		memory.Stage2BContext(doc, "", ""),
		doc, "STAGE2C_ANALYSIS", stage2CHeader)
	if err != nil {
		log.Warn("strategy upgrade failed", "error", err)
	} else {
		res.Stage2Upgrade = Normalize(text)
	}

	// Stage 3: execution planning.
	text, err = r.stage3.AnalyzeToForm(ctx,
		memory.Stage3Context(doc, objective, req.ContextSnapshot, nil),
		doc, "STAGE3_PLAN", stage3Header)
	if err != nil {
		return res, fmt.Errorf("stage 3: %w", err)
	}
	res.Stage3 = Normalize(text)

	// Stage 4: tool-driven execution over the live plan.
	var reviser reasoning.PlanReviser
	if r.watcher != nil {
		reviser = r.watcher
	}
	text, err = r.stage4.Execute(ctx,
		memory.Stage4Context(doc, objective, req.ContextSnapshot, nil),
		doc, r.bridge, reviser)
	if err != nil {
		return res, fmt.Errorf("stage 4: %w", err)
	}
	res.Stage4 = Normalize(text)
	if err := form.Update(doc, "STAGE4_FINAL_ANSWER", res.Stage4, finalAnswerHeader); err != nil {
		return res, fmt.Errorf("stage 4: recording final answer: %w", err)
	}

	if audit := memory.LoadStageOutput(doc, "WATCHER_AUDIT"); audit != form.Placeholder {
		res.WatcherAudit = audit
	}

	// Post-run capability upgrade reviews the whole document.
	text, err = r.capability.Evaluate(ctx, memory.Stage1Context(doc, "", ""))
	if err != nil {
		log.Warn("capability upgrade failed", "error", err)
	} else {
		res.CapabilityUpgrade = Normalize(text)
	}

	if err := r.finalizeDocument(doc); err != nil {
		return res, err
	}

	log.Info("pipeline finished", "document", doc)
	return res, nil
}

// runSelection runs stage 2-B with a bounded retry on transport errors.
func (r *Runner) runSelection(ctx context.Context, doc, objective, snapshot string) (string, error) {
	block := memory.Stage2BContext(doc, objective, snapshot)

	var lastErr error
	for attempt := 1; attempt <= r.retryAttempts; attempt++ {
		text, err := r.stage2b.AnalyzeToForm(ctx, block, doc, "STAGE2B_ANALYSIS", stage2BHeader)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !httpclient.IsTransportError(err) || attempt == r.retryAttempts {
			break
		}
		logger.GetLogger().Warn("strategy selection hit a transport error, retrying",
			"attempt", attempt, "error", err)
		r.sleep(r.retryDelay)
	}
	return "", lastErr
}

// prepareDocument provisions the collaboration document, fills the
// external inputs, and guarantees every anchor pair exists.
func (r *Runner) prepareDocument(objective, snapshot string, catalog []string) (string, error) {
	doc, err := r.provisioner.Provision()
	if err != nil {
		return "", err
	}
	if err := form.WriteExternalInfo(doc, objective, snapshot, catalog); err != nil {
		return "", fmt.Errorf("writing external info: %w", err)
	}

	pairs := make([]form.MarkerPair, 0, len(form.Anchors))
	for _, name := range form.Anchors {
		pairs = append(pairs, form.MarkerPair{Name: name})
	}
	if err := form.Ensure(doc, pairs); err != nil {
		return "", fmt.Errorf("ensuring anchors: %w", err)
	}
	return doc, nil
}

// resolveToolCatalog picks the first non-empty source: per-run override,
// config entries, the default catalog file, then the bridge registry.
func (r *Runner) resolveToolCatalog(explicit []string) []string {
	if merged := form.MergeToolCatalogs(explicit); len(merged) > 0 {
		return merged
	}
	if merged := form.MergeToolCatalogs(r.cfg.ToolCatalog); len(merged) > 0 {
		return merged
	}
	if entries := form.LoadToolCatalog(r.libs.CatalogPath); len(entries) > 0 {
		return entries
	}
	return r.registryCatalog()
}

// registryCatalog derives a catalog from whatever the bridge registers.
func (r *Runner) registryCatalog() []string {
	registry := r.bridge.Registry()
	var entries []string
	for _, name := range registry.ListTools() {
		if doc := registry.Doc(name); doc != "" {
			entries = append(entries, name+": "+doc)
		} else {
			entries = append(entries, name)
		}
	}
	return entries
}

// finalizeDocument closes out the run. The document already holds every
// stage output, so this only verifies it is still in place; reruns are
// safe.
func (r *Runner) finalizeDocument(doc string) error {
	if _, err := os.Stat(doc); err != nil {
		return fmt.Errorf("collaboration document lost before finalize: %w", err)
	}
	logger.GetLogger().Debug("collaboration document finalized", "path", doc)
	return nil
}
