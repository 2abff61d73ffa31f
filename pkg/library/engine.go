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

package library

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// StatusMarker prefixes the auto-apply annotation appended to every
// upgrade-agent output.
const StatusMarker = "AUTO_APPLY_STATUS:"

// Policy tunes the acceptance rules for a library variant. The strategy
// library requires an ACTION header; the capability library does not.
type Policy struct {
	RequireAction     bool
	MinReferenceIDs   int
	MaxNewPerCategory int
	BackupBeforeWrite bool
}

// DefaultPolicy returns the strategy-variant policy: ACTION required,
// two reference IDs to prove novelty, one new entry per category per
// session.
func DefaultPolicy() Policy {
	return Policy{
		RequireAction:     true,
		MinReferenceIDs:   2,
		MaxNewPerCategory: 1,
	}
}

// Engine validates upgrade-agent patches against a library file and
// appends the accepted ones. Quota counters are session-local: one
// engine instance is one session.
type Engine struct {
	libraryPath string
	policy      Policy

	sessionNewCounts  map[string]int
	lastPatchMarkdown string
	lastAppliedPath   string

	now func() time.Time
}

// NewEngine builds an engine for the library file at path. Zero policy
// fields fall back to the defaults.
func NewEngine(path string, policy Policy) *Engine {
	if policy.MinReferenceIDs <= 0 {
		policy.MinReferenceIDs = 2
	}
	if policy.MaxNewPerCategory <= 0 {
		policy.MaxNewPerCategory = 1
	}
	return &Engine{
		libraryPath:      path,
		policy:           policy,
		sessionNewCounts: make(map[string]int),
		now:              time.Now,
	}
}

// LastPatchMarkdown returns the patch body of the most recent applied
// patch, or "" when the last patch was rejected.
func (e *Engine) LastPatchMarkdown() string { return e.lastPatchMarkdown }

// LastAppliedPath returns the library file the most recent patch was
// appended to, or "" when the last patch was rejected.
func (e *Engine) LastAppliedPath() string { return e.lastAppliedPath }

// Process gates an upgrade agent's output. An accepted patch is
// appended to the library file; the returned text always carries an
// AUTO_APPLY_STATUS annotation so downstream readers can tell what
// happened without consulting the library.
func (e *Engine) Process(text string) string {
	meta := ParseDecision(text)
	patch := ExtractPatch(text)

	applied := false
	reason := ""

	switch {
	case meta.Decision == "":
		reason = "missing decision header"
	case meta.Decision != "APPLY":
		reason = fmt.Sprintf("decision=%s", meta.Decision)
	case patch == "":
		reason = "no patch content detected"
	default:
		var category string
		var ok bool
		ok, reason, category = e.shouldApply(meta, patch)
		if ok {
			if err := e.apply(patch); err != nil {
				slog.Warn("library patch apply failed", "path", e.libraryPath, "error", err)
				reason = fmt.Sprintf("apply failed: %v", err)
			} else {
				if category != "" {
					e.sessionNewCounts[category]++
				}
				applied = true
				reason = ""
			}
		}
	}

	if applied {
		e.lastPatchMarkdown = patch
		e.lastAppliedPath = e.libraryPath
	} else {
		e.lastPatchMarkdown = ""
		e.lastAppliedPath = ""
	}

	status := StatusMarker + " applied"
	if !applied {
		status = fmt.Sprintf("%s skipped (%s)", StatusMarker, reason)
	}
	if !strings.Contains(text, StatusMarker) {
		text = strings.TrimRight(text, " \t\n") + "\n\n" + status
	}
	return text
}

// shouldApply runs the acceptance policy. The returned category letter
// is charged against the session quota only after a successful append.
func (e *Engine) shouldApply(meta Decision, patch string) (bool, string, string) {
	action := meta.Action
	if !e.policy.RequireAction && action == "" {
		action = "create_new"
	}
	if action != "create_new" && action != "enhance_existing" {
		if action == "" {
			action = "missing"
		}
		return false, fmt.Sprintf("unsupported action: %s", action), ""
	}

	for _, key := range []string{"coverage_gap", "reuse_failure", "new_value"} {
		if meta.Justification[key] == "" {
			return false, fmt.Sprintf("missing justification for %s", key), ""
		}
	}

	if len(meta.ReferenceIDs) < e.policy.MinReferenceIDs {
		return false, "insufficient reference_ids to prove novelty", ""
	}

	existing := e.readExistingIDs()

	if action == "create_new" {
		newID := PrimaryID(patch)
		if newID == "" {
			return false, "unable to locate new strategy id in patch", ""
		}
		if existing[newID] {
			return false, fmt.Sprintf("strategy id %s already exists", newID), ""
		}
		letter := newID[:1]
		if e.sessionNewCounts[letter] >= e.policy.MaxNewPerCategory {
			return false, fmt.Sprintf("category %s reached new strategy quota", letter), ""
		}
		return true, "", letter
	}

	if meta.TargetID == "" {
		return false, "missing target_id for enhancement action", ""
	}
	if !existing[meta.TargetID] {
		return false, fmt.Sprintf("target strategy %s not found", meta.TargetID), ""
	}
	return true, "", meta.TargetID[:1]
}

// readExistingIDs re-reads the library immediately before each check so
// concurrent appends from another session are seen.
func (e *Engine) readExistingIDs() map[string]bool {
	data, err := os.ReadFile(e.libraryPath)
	if err != nil {
		return map[string]bool{}
	}
	return collectIDs(string(data))
}

func (e *Engine) apply(patch string) error {
	current, err := os.ReadFile(e.libraryPath)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if e.policy.BackupBeforeWrite && len(current) > 0 {
		backup := fmt.Sprintf("%s.%s.bak", e.libraryPath, e.now().Format("20060102-150405"))
		if err := os.WriteFile(backup, current, 0o644); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}

	content := strings.TrimRight(string(current), "\n")
	if content != "" {
		content += "\n\n"
	}
	content += strings.TrimSpace(patch) + "\n"

	return os.WriteFile(e.libraryPath, []byte(content), 0o644)
}
