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
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names recognized by the engine.
const (
	EnvDeepseekAPIKey  = "DEEPSEEK_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvKimiAPIKey      = "KIMI_API_KEY"
	EnvModelName       = "MODEL_NAME"
	EnvModelBaseURL    = "MODEL_BASE_URL"
	EnvTavilyAPIKey    = "TAVILY_API_KEY"
	EnvFirecrawlAPIKey = "FIRECRAWL_API_KEY"
)

// LoadEnvFiles loads .env.local and .env from the working directory.
// Missing files are not an error; values already set in the environment win.
func LoadEnvFiles() error {
	envFiles := []string{".env.local", ".env"}

	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	return nil
}

// ResolveAPIKey returns the first populated model API key, checking
// DEEPSEEK_API_KEY, then OPENAI_API_KEY, then KIMI_API_KEY.
func ResolveAPIKey() string {
	for _, key := range []string{EnvDeepseekAPIKey, EnvOpenAIAPIKey, EnvKimiAPIKey} {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

// ResolveModelName returns the model name from MODEL_NAME or the default.
func ResolveModelName() string {
	if val := os.Getenv(EnvModelName); val != "" {
		return val
	}
	return DefaultModelName
}

// ResolveBaseURL returns the endpoint from MODEL_BASE_URL or the default.
func ResolveBaseURL() string {
	if val := os.Getenv(EnvModelBaseURL); val != "" {
		return val
	}
	return DefaultBaseURL
}

// ModelConfigFromEnv builds a ModelConfig from the environment with
// defaults applied. The caller may override individual fields afterwards.
func ModelConfigFromEnv() ModelConfig {
	cfg := ModelConfig{
		APIKey:  ResolveAPIKey(),
		Model:   ResolveModelName(),
		BaseURL: ResolveBaseURL(),
		Stream:  true,
	}
	cfg.SetDefaults()
	return cfg
}
