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

package tools

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

type webSearchArgs struct {
	Query           string   `mapstructure:"query"`
	MaxResults      int      `mapstructure:"max_results"`
	Provider        string   `mapstructure:"provider"`
	FallbackQueries []string `mapstructure:"fallback_queries"`
	MinResults      int      `mapstructure:"min_results"`
}

type webScrapeArgs struct {
	URL    string `mapstructure:"url"`
	Format string `mapstructure:"format"`
}

type codeArgs struct {
	Code string `mapstructure:"code"`
}

type calculateArgs struct {
	Expression string `mapstructure:"expression"`
}

// decodeArgs maps the loosely-typed parsed args onto a typed struct,
// coercing scalars (a bare string fallback query becomes a one-element
// list, numeric strings become ints).
func decodeArgs(args map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build arg decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return fmt.Errorf("argument type mismatch: %w", err)
	}
	return nil
}
