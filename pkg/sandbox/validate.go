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

package sandbox

import (
	"fmt"
	"regexp"
)

const maxCodeSize = 10000

// dangerousPatterns blocks constructs that reach outside the snippet:
// process control, the filesystem, the network and unsafe memory.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bos\s*\.`),
	regexp.MustCompile(`(?i)\bexec\s*\.`),
	regexp.MustCompile(`(?i)\bsyscall\s*\.`),
	regexp.MustCompile(`(?i)\bunsafe\s*\.`),
	regexp.MustCompile(`(?i)\bnet\s*\.`),
	regexp.MustCompile(`(?i)import\s+"os"`),
	regexp.MustCompile(`(?i)import\s+"os/exec"`),
	regexp.MustCompile(`(?i)import\s+"syscall"`),
	regexp.MustCompile(`(?i)import\s+"unsafe"`),
	regexp.MustCompile(`(?i)import\s+"net`),
	regexp.MustCompile(`(?i)import\s+"plugin"`),
	regexp.MustCompile(`(?i)import\s+"runtime/debug"`),
	regexp.MustCompile(`(?i)rm\s+-rf`),
	regexp.MustCompile(`(?i)chmod\s+777`),
}

// allowedImports is the module whitelist for sandboxed snippets.
var allowedImports = map[string]bool{
	"fmt":           true,
	"math":          true,
	"math/rand":     true,
	"math/big":      true,
	"strings":       true,
	"strconv":       true,
	"sort":          true,
	"time":          true,
	"regexp":        true,
	"encoding/json": true,
	"unicode":       true,
	"errors":        true,
}

var importPattern = regexp.MustCompile(`import\s+(?:\w+\s+)?"([^"]+)"`)
var importBlockPattern = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
var quotedPathPattern = regexp.MustCompile(`"([^"]+)"`)

// Validate rejects snippets matching the denylist, importing modules
// outside the whitelist, or exceeding the size cap.
func Validate(code string) error {
	if len(code) > maxCodeSize {
		return fmt.Errorf("code too long (over %d chars)", maxCodeSize)
	}

	for _, pattern := range dangerousPatterns {
		if pattern.MatchString(code) {
			return fmt.Errorf("dangerous pattern blocked: %s", pattern.String())
		}
	}

	for _, path := range collectImports(code) {
		if !allowedImports[path] {
			return fmt.Errorf("import of module %q is not allowed", path)
		}
	}

	return nil
}

func collectImports(code string) []string {
	var paths []string

	for _, match := range importPattern.FindAllStringSubmatch(code, -1) {
		paths = append(paths, match[1])
	}
	for _, block := range importBlockPattern.FindAllStringSubmatch(code, -1) {
		for _, quoted := range quotedPathPattern.FindAllStringSubmatch(block[1], -1) {
			paths = append(paths, quoted[1])
		}
	}

	return paths
}
