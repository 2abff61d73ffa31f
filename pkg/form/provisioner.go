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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neogenesis/neoflow/pkg/logger"
)

// Provisioner makes sure a collaboration document exists in the finish
// directory before a run starts.
type Provisioner struct {
	TemplatePath string
	FinishDir    string
	// Threshold caps how many documents the finish dir may accumulate
	// before provisioning stops creating new ones.
	Threshold int
}

// NewProvisioner builds a provisioner with the default threshold of 8.
func NewProvisioner(templatePath, finishDir string) *Provisioner {
	return &Provisioner{
		TemplatePath: templatePath,
		FinishDir:    finishDir,
		Threshold:    8,
	}
}

// Provision returns the document the run should adopt. It snapshots the
// finish dir, copies the template into a fresh UUID-named document when the
// dir holds fewer than Threshold documents, and otherwise adopts the most
// recently modified existing document.
func (p *Provisioner) Provision() (string, error) {
	if err := os.MkdirAll(p.FinishDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create finish dir: %w", err)
	}

	existing, err := listDocuments(p.FinishDir)
	if err != nil {
		return "", err
	}

	if len(existing) < p.Threshold {
		name := fmt.Sprintf("finish_form_%s_%s.md",
			time.Now().Format("20060102"),
			uuid.NewString()[:8])
		target := filepath.Join(p.FinishDir, name)

		data, err := os.ReadFile(p.TemplatePath)
		if err != nil {
			return "", fmt.Errorf("failed to read template: %w", err)
		}
		if err := os.WriteFile(target, []byte(normalize(string(data))), 0644); err != nil {
			return "", fmt.Errorf("failed to create document: %w", err)
		}
		logger.GetLogger().Info("provisioned collaboration document", "path", target)
		return target, nil
	}

	if len(existing) == 0 {
		return "", fmt.Errorf("no collaboration document available in %s", p.FinishDir)
	}
	newest := newestDocument(existing)
	logger.GetLogger().Info("adopting existing collaboration document", "path", newest)
	return newest, nil
}

// WriteExternalInfo fills the EXTERNAL_INFO anchor with the objective, the
// context snapshot, and the tool catalog subsections.
func WriteExternalInfo(path, objective, contextSnapshot string, toolCatalog []string) error {
	var sb strings.Builder

	sb.WriteString("### 任务目标\n\n")
	sb.WriteString(strings.TrimSpace(objective))
	sb.WriteString("\n\n### 外部上下文\n")
	if snapshot := strings.TrimSpace(contextSnapshot); snapshot != "" {
		sb.WriteString("\n")
		sb.WriteString(snapshot)
		sb.WriteString("\n")
	}
	sb.WriteString("\n### 可用工具清单\n")
	for _, tool := range toolCatalog {
		if entry := strings.TrimSpace(tool); entry != "" {
			sb.WriteString("- ")
			sb.WriteString(entry)
			sb.WriteString("\n")
		}
	}

	return Update(path, "EXTERNAL_INFO", sb.String(), "")
}

func listDocuments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("failed to list finish dir: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

func newestDocument(paths []string) string {
	newest := paths[0]
	var newestTime time.Time
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().After(newestTime) {
			newestTime = info.ModTime()
			newest = path
		}
	}
	return newest
}
