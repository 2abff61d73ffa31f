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

// Package library implements the patch-and-apply protocol the upgrade
// agents use to evolve shared markdown knowledge libraries. An upgrade
// agent emits structured decision headers followed by a markdown patch
// body; the engine validates the decision against novelty and quota
// rules before appending the body to the library file.
package library

import (
	"regexp"
	"strings"
)

// Decision is the parsed header envelope an upgrade agent emits before
// the patch body.
type Decision struct {
	Decision      string
	Action        string
	Category      string
	TargetID      string
	ReferenceIDs  []string
	Justification map[string]string
	Reason        string
}

var (
	decisionPattern  = regexp.MustCompile(`(?im)^DECISION:\s*(\w+)`)
	actionPattern    = regexp.MustCompile(`(?im)^ACTION:\s*([a-z_]+)`)
	categoryPattern  = regexp.MustCompile(`(?im)^CATEGORY:\s*([A-Z])`)
	targetPattern    = regexp.MustCompile(`(?im)^TARGET_ID:\s*([A-Z0-9\-]+)`)
	referencePattern = regexp.MustCompile(`(?im)^REFERENCE_IDS?:[ \t]*([A-Z0-9,\- \t]+)`)
	justification    = regexp.MustCompile(`(?im)^(coverage_gap|reuse_failure|new_value)\s*:\s*(.+)$`)
	reasonPattern    = regexp.MustCompile(`(?im)^REASON:\s*(.+)$`)

	strategyIDPattern     = regexp.MustCompile(`(?m)^####\s+.*\(([A-Z][A-Z0-9\-]+)\)\s*$`)
	categoryHeaderPattern = regexp.MustCompile(`(?m)^###\s+([A-Z])\.`)
	anyIDPattern          = regexp.MustCompile(`\(([A-Z][A-Z0-9\-]+)\)`)
	patchStartPattern     = regexp.MustCompile(`(?m)^###`)
)

// ParseDecision reads the structured headers out of an upgrade agent's
// output. Header matching is case-insensitive and line-anchored, so
// headers survive surrounding prose. Absent headers leave zero values.
func ParseDecision(text string) Decision {
	d := Decision{Justification: map[string]string{}}
	if text == "" {
		return d
	}

	if m := decisionPattern.FindStringSubmatch(text); m != nil {
		d.Decision = strings.ToUpper(strings.TrimSpace(m[1]))
	}
	if m := actionPattern.FindStringSubmatch(text); m != nil {
		d.Action = strings.ToLower(strings.TrimSpace(m[1]))
	}
	if m := categoryPattern.FindStringSubmatch(text); m != nil {
		d.Category = strings.ToUpper(strings.TrimSpace(m[1]))
	}
	if m := targetPattern.FindStringSubmatch(text); m != nil {
		d.TargetID = strings.ToUpper(strings.TrimSpace(m[1]))
	}
	if m := referencePattern.FindStringSubmatch(text); m != nil {
		for _, item := range strings.Split(m[1], ",") {
			if id := strings.ToUpper(strings.TrimSpace(item)); id != "" {
				d.ReferenceIDs = append(d.ReferenceIDs, id)
			}
		}
	}
	for _, m := range justification.FindAllStringSubmatch(text, -1) {
		d.Justification[strings.ToLower(m[1])] = strings.TrimSpace(m[2])
	}
	if m := reasonPattern.FindStringSubmatch(text); m != nil {
		d.Reason = strings.TrimSpace(m[1])
	}

	return d
}

// ExtractPatch returns the markdown patch body of an upgrade output:
// everything from the first level-3 heading onward. Outputs with no
// heading carry no patch.
func ExtractPatch(text string) string {
	loc := patchStartPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	return strings.TrimSpace(text[loc[0]:])
}

// PrimaryID returns the first entry ID declared in a patch body via the
// `#### name (ID)` convention, or "" when the patch declares none.
func PrimaryID(patch string) string {
	if m := strategyIDPattern.FindStringSubmatch(patch); m != nil {
		return strings.ToUpper(strings.TrimSpace(m[1]))
	}
	return ""
}

// CategoryLetter returns the letter of the first `### X.` category
// header in a patch body, or "".
func CategoryLetter(patch string) string {
	if m := categoryHeaderPattern.FindStringSubmatch(patch); m != nil {
		return strings.ToUpper(strings.TrimSpace(m[1]))
	}
	return ""
}

// collectIDs gathers every `(ID)` occurrence in library text.
func collectIDs(text string) map[string]bool {
	ids := make(map[string]bool)
	for _, m := range anyIDPattern.FindAllStringSubmatch(text, -1) {
		ids[strings.ToUpper(strings.TrimSpace(m[1]))] = true
	}
	return ids
}
