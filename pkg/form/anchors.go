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

// Package form owns the anchored collaboration document. Sections are
// delimited by HTML-comment marker pairs and every mutation rewrites the
// whole file, so callers must serialize writes per document.
package form

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Placeholder marks a section that is known but not yet filled in.
const Placeholder = "`待填写`"

// LivePlanMarker is the anchor rewritten by stage 4 and the watcher.
const LivePlanMarker = "LIVE_EXECUTION_PLAN"

// LivePlanHeader is the markdown header a missing live-plan block is
// inserted under.
const LivePlanHeader = "## Live Execution Plan"

// ErrMissingDocument is returned when an update targets a document that
// does not exist. Reads return ("", false) instead.
var ErrMissingDocument = errors.New("collaboration document not found")

// Anchors lists every recognized anchor name in document order.
var Anchors = []string{
	"EXTERNAL_INFO", "EXTERNAL_OBJECTIVE", "EXTERNAL_CONTEXT", "EXTERNAL_TOOL_CATALOG",
	"STAGE1_ANALYSIS", "STAGE1_FAILURE_MODES",
	"STAGE2A_ANALYSIS", "STAGE2B_ANALYSIS", "STAGE2B_STRATEGY_SNAPSHOT", "STAGE2C_ANALYSIS",
	"STAGE3_PLAN", "STAGE3_EXECUTION_PLAN",
	"LIVE_EXECUTION_PLAN", "STAGE4_TOOL_CALLS", "STAGE4_FINAL_ANSWER", "STAGE4_FEEDBACK",
	"WATCHER_AUDIT", "WATCHER_REALTIME",
}

var anchorStartPattern = regexp.MustCompile(`<!--\s*([A-Z0-9_]+)_START\s*-->`)

func startMarker(name string) string { return fmt.Sprintf("<!-- %s_START -->", name) }
func endMarker(name string) string   { return fmt.Sprintf("<!-- %s_END -->", name) }

// Read returns the trimmed content between the marker pair. The second
// return is false when the file or either marker is missing.
func Read(path, name string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	text := normalize(string(data))

	start := startMarker(name)
	end := endMarker(name)
	startIdx := strings.Index(text, start)
	if startIdx == -1 {
		return "", false
	}
	endIdx := strings.Index(text[startIdx+len(start):], end)
	if endIdx == -1 {
		return "", false
	}
	body := text[startIdx+len(start) : startIdx+len(start)+endIdx]
	return strings.TrimSpace(body), true
}

// ReadLivePlan reads the LIVE_EXECUTION_PLAN anchor.
func ReadLivePlan(path string) (string, bool) {
	return Read(path, LivePlanMarker)
}

// Update replaces the body of the first marker pair, normalizing line
// endings and rewriting the whole file. Empty content becomes the
// placeholder. If the pair is absent, the block is inserted after header
// when header is found, otherwise appended at end of file.
func Update(path, name, content, header string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrMissingDocument, path)
	}
	text := normalize(string(data))

	sanitized := strings.TrimSpace(content)
	if sanitized == "" {
		sanitized = Placeholder
	}

	start := startMarker(name)
	end := endMarker(name)
	block := start + "\n" + sanitized + "\n" + end

	pattern := regexp.MustCompile(`(?s)` + regexp.QuoteMeta(start) + `.*?` + regexp.QuoteMeta(end))
	if loc := pattern.FindStringIndex(text); loc != nil {
		text = text[:loc[0]] + block + text[loc[1]:]
		return writeFile(path, text)
	}

	if header != "" {
		if idx := strings.Index(text, header); idx != -1 {
			insertPos := strings.Index(text[idx:], "\n")
			if insertPos == -1 {
				insertPos = len(text)
			} else {
				insertPos += idx + 1
			}
			text = strings.TrimRight(text[:insertPos], "\n") +
				"\n\n" + block + "\n" +
				strings.TrimLeft(text[insertPos:], "\n")
			return writeFile(path, text)
		}
	}

	text = strings.TrimRight(text, "\n") + "\n\n" + block + "\n"
	return writeFile(path, text)
}

// UpdateLivePlan rewrites the LIVE_EXECUTION_PLAN anchor under its fixed
// header.
func UpdateLivePlan(path, content string) error {
	return Update(path, LivePlanMarker, content, LivePlanHeader)
}

// MarkerPair names an anchor and the placeholder used when appending it.
type MarkerPair struct {
	Name        string
	Placeholder string
}

// Ensure appends an empty block for each missing marker pair. Idempotent;
// a missing document is left untouched.
func Ensure(path string, pairs []MarkerPair) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	text := normalize(string(data))
	updated := false

	for _, pair := range pairs {
		start := startMarker(pair.Name)
		end := endMarker(pair.Name)
		if strings.Contains(text, start) && strings.Contains(text, end) {
			continue
		}
		placeholder := pair.Placeholder
		if placeholder == "" {
			placeholder = Placeholder
		}
		block := start + "\n" + placeholder + "\n" + end
		text = strings.TrimRight(text, "\n") + "\n\n" + block + "\n"
		updated = true
	}

	if !updated {
		return nil
	}
	return writeFile(path, text)
}

// AppendSection appends content after the existing body of an anchor,
// replacing a bare placeholder instead of accumulating it.
func AppendSection(path, name, content, header string) error {
	existing, ok := Read(path, name)
	if !ok || existing == Placeholder {
		return Update(path, name, content, header)
	}
	merged := existing + "\n\n" + strings.TrimSpace(content)
	return Update(path, name, merged, header)
}

// LoadAnchorSections scans every anchor in the document and returns a map
// of anchor name to trimmed content. Unterminated anchors are skipped.
func LoadAnchorSections(path string) map[string]string {
	sections := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		return sections
	}
	text := normalize(string(data))

	for _, match := range anchorStartPattern.FindAllStringSubmatchIndex(text, -1) {
		name := text[match[2]:match[3]]
		end := endMarker(name)
		endIdx := strings.Index(text[match[1]:], end)
		if endIdx == -1 {
			continue
		}
		sections[name] = strings.TrimSpace(text[match[1] : match[1]+endIdx])
	}

	return sections
}

func normalize(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func writeFile(path, text string) error {
	return os.WriteFile(path, []byte(text), 0644)
}
