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

// Package config holds the model and pipeline configuration shared by the
// stage agents, the watcher, and the full pipeline runner.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultBaseURL is the OpenAI-compatible endpoint used when neither the
	// flag nor MODEL_BASE_URL is set.
	DefaultBaseURL = "https://xh-hk.a3e.top/v1"

	// DefaultModelName is used when neither the flag nor MODEL_NAME is set.
	DefaultModelName = "gemini-3-pro"

	// DefaultEncoding is the only document encoding the engine supports.
	DefaultEncoding = "utf-8"
)

// ModelConfig describes one LLM endpoint. The watcher may carry its own
// ModelConfig distinct from the shared stage config.
type ModelConfig struct {
	APIKey          string  `yaml:"api_key"`
	Model           string  `yaml:"model"`
	BaseURL         string  `yaml:"base_url"`
	Stream          bool    `yaml:"stream"`
	Temperature     float64 `yaml:"temperature"`
	MaxTokens       int     `yaml:"max_tokens"`
	Timeout         int     `yaml:"timeout"` // seconds
	ReasoningEffort string  `yaml:"reasoning_effort,omitempty"`
}

// SetDefaults fills zero-valued fields with usable defaults.
func (c *ModelConfig) SetDefaults() {
	if c.Model == "" {
		c.Model = DefaultModelName
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
}

// Validate reports configuration errors that are fatal at startup.
func (c *ModelConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("model config: missing API key (set DEEPSEEK_API_KEY, OPENAI_API_KEY or KIMI_API_KEY, or pass --api-key)")
	}
	if c.Model == "" {
		return fmt.Errorf("model config: missing model name")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("model config: missing base URL")
	}
	switch c.ReasoningEffort {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("model config: invalid reasoning_effort %q", c.ReasoningEffort)
	}
	return nil
}

// PipelineConfig carries the run-wide settings of the full pipeline runner.
type PipelineConfig struct {
	Model   ModelConfig  `yaml:"model"`
	Watcher *ModelConfig `yaml:"watcher,omitempty"`

	FinishFormDir string   `yaml:"finish_form_dir"`
	TemplatePath  string   `yaml:"template_path"`
	Encoding      string   `yaml:"encoding"`
	ToolCatalog   []string `yaml:"tool_catalog,omitempty"`

	StrategyAutoApply   bool `yaml:"strategy_auto_apply"`
	CapabilityAutoApply bool `yaml:"capability_auto_apply"`
	WatcherEnabled      bool `yaml:"watcher_enabled"`

	TemplateThreshold int `yaml:"template_threshold"`
	MaxIterations     int `yaml:"max_iterations"`
}

// SetDefaults fills zero-valued fields with usable defaults.
func (c *PipelineConfig) SetDefaults() {
	c.Model.SetDefaults()
	if c.Watcher != nil {
		c.Watcher.SetDefaults()
	}
	if c.FinishFormDir == "" {
		c.FinishFormDir = "finish_form"
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	if c.TemplateThreshold == 0 {
		c.TemplateThreshold = 8
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 10
	}
}

// Validate reports configuration errors that are fatal at startup.
func (c *PipelineConfig) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if c.Watcher != nil {
		if err := c.Watcher.Validate(); err != nil {
			return fmt.Errorf("watcher: %w", err)
		}
	}
	if !strings.EqualFold(c.Encoding, DefaultEncoding) {
		return fmt.Errorf("pipeline config: unsupported encoding %q (only utf-8)", c.Encoding)
	}
	if c.TemplatePath == "" {
		return fmt.Errorf("pipeline config: missing template path")
	}
	if _, err := os.Stat(c.TemplatePath); err != nil {
		return fmt.Errorf("pipeline config: template not found: %s", c.TemplatePath)
	}
	return nil
}

// LoadPipelineConfig reads a YAML pipeline config file.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}
