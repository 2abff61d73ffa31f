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

package form

import (
	"os"
	"strings"
)

// LoadToolCatalog reads a markdown tool catalog. The convention is
// `## section` headers followed by `- name: description` bullets; entries
// are rendered as "section · name: description" and deduplicated in order.
// A missing file yields an empty catalog.
func LoadToolCatalog(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var entries []string
	var section string

	for _, line := range strings.Split(normalize(string(data)), "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if strings.HasPrefix(stripped, "#") {
			if strings.HasPrefix(stripped, "##") {
				section = strings.TrimSpace(strings.TrimLeft(stripped, "#"))
			}
			continue
		}
		if !strings.HasPrefix(stripped, "- ") {
			continue
		}

		item := strings.TrimSpace(stripped[2:])
		if item == "" {
			continue
		}

		var entry string
		if name, description, found := strings.Cut(item, ":"); found {
			name = strings.TrimSpace(name)
			description = strings.TrimSpace(description)
			if section != "" {
				name = section + " · " + name
			}
			if description != "" {
				entry = name + ": " + description
			} else {
				entry = name
			}
		} else if section != "" {
			entry = section + " · " + item
		} else {
			entry = item
		}

		entries = append(entries, entry)
	}

	return dedupeEntries(entries)
}

// MergeToolCatalogs combines catalogs, deduplicating while preserving the
// first occurrence order. Nil when everything is empty.
func MergeToolCatalogs(catalogs ...[]string) []string {
	var combined []string
	seen := make(map[string]bool)
	for _, catalog := range catalogs {
		for _, item := range catalog {
			entry := strings.TrimSpace(item)
			if entry == "" || seen[entry] {
				continue
			}
			combined = append(combined, entry)
			seen[entry] = true
		}
	}
	return combined
}

func dedupeEntries(items []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, item := range items {
		entry := strings.TrimSpace(item)
		if entry == "" || seen[entry] {
			continue
		}
		out = append(out, entry)
		seen[entry] = true
	}
	return out
}
