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

package runner

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// texter covers response-like values exposing their text directly.
type texter interface {
	Text() string
}

// Normalize flattens an arbitrary stage output value into a plain string.
// Strings pass through; lists join their normalized elements; maps prefer
// a "text" or "content" entry and otherwise render "key: value" lines;
// response objects yield their text; anything else falls back to JSON and
// finally fmt.
func Normalize(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		var segments []string
		for _, item := range v {
			if s := strings.TrimSpace(item); s != "" {
				segments = append(segments, s)
			}
		}
		return strings.Join(segments, "\n")
	case []any:
		var segments []string
		for _, item := range v {
			if s := strings.TrimSpace(Normalize(item)); s != "" {
				segments = append(segments, s)
			}
		}
		return strings.Join(segments, "\n")
	case map[string]any:
		for _, key := range []string{"text", "content"} {
			if candidate, ok := v[key]; ok && candidate != nil {
				return Normalize(candidate)
			}
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var segments []string
		for _, key := range keys {
			if s := strings.TrimSpace(Normalize(v[key])); s != "" {
				segments = append(segments, fmt.Sprintf("%s: %s", key, s))
			}
		}
		return strings.Join(segments, "\n")
	case texter:
		return v.Text()
	case fmt.Stringer:
		return v.String()
	}

	if data, err := json.Marshal(value); err == nil && string(data) != "{}" {
		return string(data)
	}
	return fmt.Sprintf("%v", value)
}
