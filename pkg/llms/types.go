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

// Package llms defines the model contract the stage agents talk to and an
// OpenAI-compatible provider implementing it.
package llms

import (
	"context"
	"strings"
)

// Message is one turn of the conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentBlockType discriminates response content blocks.
type ContentBlockType string

const (
	ContentBlockTypeText ContentBlockType = "text"
)

// ContentBlock is one typed block of a model response.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`
	Text string           `json:"text,omitempty"`
}

// Response is a completed model reply as a content-block sequence.
type Response struct {
	Blocks []ContentBlock
	Tokens int
}

// Text concatenates the text-typed blocks.
func (r *Response) Text() string {
	if r == nil {
		return ""
	}
	var sb strings.Builder
	for _, block := range r.Blocks {
		if block.Type == ContentBlockTypeText {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// TextResponse wraps plain text into a single-block response.
func TextResponse(text string) *Response {
	return &Response{Blocks: []ContentBlock{{Type: ContentBlockTypeText, Text: text}}}
}

// StreamChunk is one fragment of a streaming reply.
type StreamChunk struct {
	Type  string
	Text  string
	Error error
}

// Model is the contract every agent depends on. Implementations must be
// safe for sequential reuse across stages.
type Model interface {
	// Invoke sends the conversation and blocks for the full reply.
	Invoke(ctx context.Context, messages []Message) (*Response, error)
	// InvokeStream sends the conversation and returns a chunk channel that
	// is closed when the reply completes. Errors arrive as error chunks.
	InvokeStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error)
	// ModelName reports the configured model identifier.
	ModelName() string
}

// Collect drains a stream into a single response, surfacing the first
// error chunk.
func Collect(ch <-chan StreamChunk) (*Response, error) {
	var sb strings.Builder
	for chunk := range ch {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Type == "text" {
			sb.WriteString(chunk.Text)
		}
	}
	return TextResponse(sb.String()), nil
}

// ExtractText pulls the plain text out of a response, tolerating nil.
func ExtractText(r *Response) string {
	return r.Text()
}
