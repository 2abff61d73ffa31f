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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelConfig_SetDefaults(t *testing.T) {
	cfg := ModelConfig{APIKey: "sk-test"}
	cfg.SetDefaults()

	assert.Equal(t, DefaultModelName, cfg.Model)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 120, cfg.Timeout)
}

func TestModelConfig_SetDefaults_TrimsTrailingSlash(t *testing.T) {
	cfg := ModelConfig{APIKey: "sk-test", BaseURL: "https://api.example.com/v1/"}
	cfg.SetDefaults()

	assert.Equal(t, "https://api.example.com/v1", cfg.BaseURL)
}

func TestModelConfig_Validate(t *testing.T) {
	cfg := ModelConfig{}
	cfg.SetDefaults()
	assert.Error(t, cfg.Validate(), "missing API key must fail validation")

	cfg.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())

	cfg.ReasoningEffort = "maximum"
	assert.Error(t, cfg.Validate())

	cfg.ReasoningEffort = "high"
	assert.NoError(t, cfg.Validate())
}

func TestPipelineConfig_SetDefaults(t *testing.T) {
	cfg := PipelineConfig{Model: ModelConfig{APIKey: "sk-test"}}
	cfg.SetDefaults()

	assert.Equal(t, "finish_form", cfg.FinishFormDir)
	assert.Equal(t, DefaultEncoding, cfg.Encoding)
	assert.Equal(t, 8, cfg.TemplateThreshold)
	assert.Equal(t, 10, cfg.MaxIterations)
}

func TestPipelineConfig_Validate_Encoding(t *testing.T) {
	tmpl := filepath.Join(t.TempDir(), "template.md")
	require.NoError(t, os.WriteFile(tmpl, []byte("# template"), 0644))

	cfg := PipelineConfig{
		Model:        ModelConfig{APIKey: "sk-test"},
		TemplatePath: tmpl,
		Encoding:     "gbk",
	}
	cfg.SetDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported encoding")

	cfg.Encoding = "UTF-8"
	assert.NoError(t, cfg.Validate())
}

func TestPipelineConfig_Validate_MissingTemplate(t *testing.T) {
	cfg := PipelineConfig{
		Model:        ModelConfig{APIKey: "sk-test"},
		TemplatePath: filepath.Join(t.TempDir(), "nope.md"),
	}
	cfg.SetDefaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template not found")
}

func TestLoadPipelineConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	content := `
model:
  api_key: sk-from-file
  model: deepseek-chat
  stream: true
finish_form_dir: forms
template_threshold: 12
watcher_enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadPipelineConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-from-file", cfg.Model.APIKey)
	assert.Equal(t, "deepseek-chat", cfg.Model.Model)
	assert.Equal(t, "forms", cfg.FinishFormDir)
	assert.Equal(t, 12, cfg.TemplateThreshold)
	assert.True(t, cfg.WatcherEnabled)
}

func TestResolveAPIKey_FallbackChain(t *testing.T) {
	t.Setenv(EnvDeepseekAPIKey, "")
	t.Setenv(EnvOpenAIAPIKey, "")
	t.Setenv(EnvKimiAPIKey, "")
	assert.Equal(t, "", ResolveAPIKey())

	t.Setenv(EnvKimiAPIKey, "kimi-key")
	assert.Equal(t, "kimi-key", ResolveAPIKey())

	t.Setenv(EnvOpenAIAPIKey, "openai-key")
	assert.Equal(t, "openai-key", ResolveAPIKey())

	t.Setenv(EnvDeepseekAPIKey, "deepseek-key")
	assert.Equal(t, "deepseek-key", ResolveAPIKey())
}

func TestModelConfigFromEnv(t *testing.T) {
	t.Setenv(EnvDeepseekAPIKey, "deepseek-key")
	t.Setenv(EnvModelName, "deepseek-reasoner")
	t.Setenv(EnvModelBaseURL, "https://api.deepseek.com/v1")

	cfg := ModelConfigFromEnv()
	assert.Equal(t, "deepseek-key", cfg.APIKey)
	assert.Equal(t, "deepseek-reasoner", cfg.Model)
	assert.Equal(t, "https://api.deepseek.com/v1", cfg.BaseURL)
	assert.True(t, cfg.Stream)
}
