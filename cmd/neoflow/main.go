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

// Command neoflow runs the staged reasoning pipeline.
//
// Usage:
//
//	neoflow run --objective "Summarize recent findings"
//	neoflow run --config pipeline.yaml --no-watcher
//	neoflow stage stage3 --document finish_form/form.md --objective "..."
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/neogenesis/neoflow/pkg/agent"
	"github.com/neogenesis/neoflow/pkg/config"
	"github.com/neogenesis/neoflow/pkg/form"
	"github.com/neogenesis/neoflow/pkg/llms"
	"github.com/neogenesis/neoflow/pkg/logger"
	"github.com/neogenesis/neoflow/pkg/memory"
	"github.com/neogenesis/neoflow/pkg/runner"
	"github.com/neogenesis/neoflow/pkg/sandbox"
	"github.com/neogenesis/neoflow/pkg/tools"
)

// CLI defines the command-line interface.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Run     RunCmd     `cmd:"" help:"Run the full reasoning pipeline."`
	Stage   StageCmd   `cmd:"" help:"Run a single stage against an existing document."`

	// SandboxExec is the hidden re-exec target of the subprocess sandbox.
	SandboxExec SandboxExecCmd `cmd:"" hidden:"" name:"sandbox-exec"`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("neoflow version %s\n", version)
	return nil
}

// modelFlags are the shared model overrides used by run and stage.
type modelFlags struct {
	APIKey  string `name:"api-key" help:"Model API key (defaults to DEEPSEEK_API_KEY, OPENAI_API_KEY or KIMI_API_KEY)."`
	Model   string `help:"Model name."`
	BaseURL string `name:"base-url" help:"OpenAI-compatible base URL."`
	Stream  bool   `help:"Stream model responses."`
}

func (f *modelFlags) apply(cfg *config.ModelConfig) {
	if f.APIKey != "" {
		cfg.APIKey = f.APIKey
	} else if cfg.APIKey == "" {
		cfg.APIKey = config.ResolveAPIKey()
	}
	if f.Model != "" {
		cfg.Model = f.Model
	} else if cfg.Model == "" {
		cfg.Model = config.ResolveModelName()
	}
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	} else if cfg.BaseURL == "" {
		cfg.BaseURL = config.ResolveBaseURL()
	}
	if f.Stream {
		cfg.Stream = true
	}
}

// RunCmd runs the five stages, the watcher and the library upgrades.
type RunCmd struct {
	Objective      string `help:"Task objective. Prompted for interactively when omitted."`
	Context        string `help:"Extra context snapshot passed to every stage."`
	CandidateLimit int    `name:"candidate-limit" help:"Cap on stage 2-A candidate strategies (0 = no cap)."`

	Config    string `short:"c" help:"Path to a YAML pipeline config file." type:"path"`
	FinishDir string `name:"finish-dir" help:"Directory holding collaboration documents." default:"finish_form"`
	Template  string `help:"Collaboration document template." default:"templates/finish_form_template.md" type:"path"`
	Encoding  string `help:"Document encoding (only utf-8 is supported)." default:"utf-8"`

	modelFlags

	NoStrategyAutoApply bool     `name:"no-strategy-auto-apply" help:"Review strategy patches without applying them."`
	AutoApplyCapability bool     `name:"auto-apply-capability" help:"Apply capability patches instead of only reviewing them."`
	ToolCatalog         []string `name:"tool-catalog" help:"Tool catalog entries overriding the default catalog."`

	NoWatcher              bool   `name:"no-watcher" help:"Disable the watcher plan revision agent."`
	WatcherAPIKey          string `name:"watcher-api-key" help:"Dedicated watcher API key."`
	WatcherModel           string `name:"watcher-model" help:"Dedicated watcher model name."`
	WatcherBaseURL         string `name:"watcher-base-url" help:"Dedicated watcher base URL."`
	WatcherReasoningEffort string `name:"watcher-reasoning-effort" help:"Watcher reasoning effort." enum:",low,medium,high" default:""`
	WatcherStream          bool   `name:"watcher-stream" help:"Stream watcher responses."`

	StrategyLibrary   string `name:"strategy-library" help:"Strategy library file maintained by stage 2-C." default:"libraries/strategy_library.md"`
	CapabilityLibrary string `name:"capability-library" help:"Capability library file maintained after execution." default:"libraries/capability_library.md"`
}

func (c *RunCmd) Run(cli *CLI) error {
	cfg, err := c.buildConfig()
	if err != nil {
		return err
	}

	objective := strings.TrimSpace(c.Objective)
	if objective == "" {
		objective, err = promptObjective()
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := runner.New(cfg, runner.Libraries{
		StrategyFile:   c.StrategyLibrary,
		CapabilityFile: c.CapabilityLibrary,
	})

	res, err := r.Run(ctx, runner.Request{
		Objective:       objective,
		ContextSnapshot: c.Context,
		CandidateLimit:  c.CandidateLimit,
		ToolCatalog:     c.ToolCatalog,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(130)
		}
		return err
	}

	printStageOutputs(res)
	return nil
}

func (c *RunCmd) buildConfig() (*config.PipelineConfig, error) {
	cfg := &config.PipelineConfig{}
	if c.Config != "" {
		loaded, err := config.LoadPipelineConfig(c.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	c.modelFlags.apply(&cfg.Model)

	if c.FinishDir != "" {
		cfg.FinishFormDir = c.FinishDir
	}
	if c.Template != "" {
		cfg.TemplatePath = c.Template
	}
	if c.Encoding != "" {
		cfg.Encoding = c.Encoding
	}
	cfg.StrategyAutoApply = !c.NoStrategyAutoApply
	cfg.CapabilityAutoApply = c.AutoApplyCapability
	cfg.WatcherEnabled = !c.NoWatcher

	if watcher := c.watcherConfig(cfg.Model); watcher != nil {
		cfg.Watcher = watcher
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// watcherConfig builds a dedicated watcher model config when any watcher
// flag is set; unset fields inherit from the shared model.
func (c *RunCmd) watcherConfig(shared config.ModelConfig) *config.ModelConfig {
	if c.WatcherAPIKey == "" && c.WatcherModel == "" && c.WatcherBaseURL == "" &&
		c.WatcherReasoningEffort == "" && !c.WatcherStream {
		return nil
	}
	watcher := shared
	if c.WatcherAPIKey != "" {
		watcher.APIKey = c.WatcherAPIKey
	}
	if c.WatcherModel != "" {
		watcher.Model = c.WatcherModel
	}
	if c.WatcherBaseURL != "" {
		watcher.BaseURL = c.WatcherBaseURL
	}
	watcher.ReasoningEffort = c.WatcherReasoningEffort
	watcher.Stream = c.WatcherStream
	return &watcher
}

// StageCmd runs one stage agent against an existing collaboration
// document, mainly for replaying or debugging a single stage.
type StageCmd struct {
	Name      string `arg:"" help:"Stage to run." enum:"stage1,stage2a,stage2b,stage3,stage4"`
	Document  string `help:"Existing collaboration document." required:"" type:"path"`
	Objective string `help:"Task objective." required:""`
	Context   string `help:"Extra context snapshot."`

	// MaxIterations only applies to stage4.
	MaxIterations int `name:"max-iterations" help:"Tool loop iteration ceiling for stage4." default:"10"`

	modelFlags
}

func (c *StageCmd) Run(cli *CLI) error {
	modelCfg := config.ModelConfig{}
	c.modelFlags.apply(&modelCfg)
	modelCfg.SetDefaults()
	if err := modelCfg.Validate(); err != nil {
		return err
	}
	if _, err := os.Stat(c.Document); err != nil {
		return fmt.Errorf("document not found: %s", c.Document)
	}

	model := llms.NewOpenAIProvider(modelCfg)
	stream := agent.WithStream(modelCfg.Stream)

	var (
		text string
		err  error
	)
	switch c.Name {
	case "stage1":
		text, err = agent.NewStage1Agent(model, stream).AnalyzeToForm(context.Background(),
			memory.Stage1Context(c.Document, c.Objective, c.Context),
			c.Document, "STAGE1_ANALYSIS", "## Stage 1: Metacognitive Analysis")
	case "stage2a":
		text, err = agent.NewStage2AAgent(model, stream).AnalyzeToForm(context.Background(),
			memory.Stage2AContext(c.Document, c.Objective, c.Context),
			c.Document, "STAGE2A_ANALYSIS", "## Stage 2-A: Candidate Strategies")
	case "stage2b":
		text, err = agent.NewStage2BAgent(model, stream).AnalyzeToForm(context.Background(),
			memory.Stage2BContext(c.Document, c.Objective, c.Context),
			c.Document, "STAGE2B_ANALYSIS", "## Stage 2-B: Strategy Selection")
	case "stage3":
		text, err = agent.NewStage3Agent(model, stream).AnalyzeToForm(context.Background(),
			memory.Stage3Context(c.Document, c.Objective, c.Context, nil),
			c.Document, "STAGE3_PLAN", "## Stage 3: Execution Plan")
	case "stage4":
		// Replay executes with a fresh bridge and no watcher.
		text, err = agent.NewStage4Agent(model, c.MaxIterations, stream).Execute(context.Background(),
			memory.Stage4Context(c.Document, c.Objective, c.Context, nil),
			c.Document, tools.NewBridge(), nil)
		if err == nil {
			err = form.Update(c.Document, "STAGE4_FINAL_ANSWER", text, "## Final Answer to User")
		}
	default:
		return fmt.Errorf("unknown stage %q", c.Name)
	}
	if err != nil {
		return err
	}

	fmt.Println(text)
	return nil
}

// SandboxExecCmd applies rlimits and evaluates a snippet read from stdin.
type SandboxExecCmd struct {
	Timeout       int `help:"CPU time limit in seconds." default:"30"`
	MemoryLimitMB int `name:"memory-limit-mb" help:"Address-space limit in megabytes." default:"256"`
}

func (c *SandboxExecCmd) Run() error {
	os.Exit(sandbox.RunChild(c.Timeout, c.MemoryLimitMB))
	return nil
}

func promptObjective() (string, error) {
	fmt.Print("Objective: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading objective: %w", err)
	}
	objective := strings.TrimSpace(line)
	if objective == "" {
		return "", errors.New("objective must not be empty")
	}
	return objective, nil
}

func printStageOutputs(res *runner.Result) {
	divider := strings.Repeat("=", 80)
	sections := []struct {
		title string
		body  string
	}{
		{"Stage 1: Metacognitive Analysis", res.Stage1},
		{"Stage 2-A: Candidate Strategies", res.Stage2Candidate},
		{"Stage 2-B: Strategy Selection", res.Stage2Selection},
		{"Stage 2-C: Strategy Upgrade", res.Stage2Upgrade},
		{"Stage 3: Execution Plan", res.Stage3},
		{"Stage 4: Final Answer", res.Stage4},
		{"Watcher Audit", res.WatcherAudit},
		{"Capability Upgrade", res.CapabilityUpgrade},
	}

	for _, section := range sections {
		body := strings.TrimSpace(section.body)
		if body == "" || body == form.Placeholder {
			continue
		}
		fmt.Println(divider)
		fmt.Println(section.title)
		fmt.Println(strings.Repeat("-", len(section.title)))
		fmt.Println(body)
	}
	fmt.Println(divider)
	fmt.Printf("Collaboration document: %s\n", res.Document)
}

func initLogging(cli *CLI) (func(), error) {
	levelStr := cli.LogLevel
	if env := os.Getenv("LOG_LEVEL"); levelStr == "info" && env != "" {
		levelStr = env
	}
	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		return nil, err
	}

	path := cli.LogFile
	if path == "" {
		path = os.Getenv("LOG_FILE")
	}
	format := cli.LogFormat
	if env := os.Getenv("LOG_FORMAT"); format == "simple" && env != "" {
		format = env
	}

	output := os.Stderr
	cleanup := func() {}
	if path != "" {
		file, closeFile, err := logger.OpenLogFile(path)
		if err != nil {
			return nil, err
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, format)
	return cleanup, nil
}

func main() {
	_ = config.LoadEnvFiles()

	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("neoflow"),
		kong.Description("neoflow - staged reasoning pipeline over an anchored collaboration document"),
		kong.UsageOnError(),
	)

	cleanup, err := initLogging(&cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	err = ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
