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

package llms

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/neogenesis/neoflow/pkg/config"
	"github.com/neogenesis/neoflow/pkg/httpclient"
)

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	config     config.ModelConfig
	httpClient *httpclient.Client
}

type openAIRequest struct {
	Model           string          `json:"model"`
	Messages        []openAIMessage `json:"messages"`
	MaxTokens       int             `json:"max_tokens,omitempty"`
	Temperature     float64         `json:"temperature"`
	Stream          bool            `json:"stream"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIError   `json:"error,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAIStreamResponse struct {
	Choices []openAIStreamChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
	Error   *openAIError         `json:"error,omitempty"`
}

type openAIStreamChoice struct {
	Delta        openAIDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

type openAIDelta struct {
	Content string `json:"content,omitempty"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIProvider builds a provider from a validated model config.
func NewOpenAIProvider(cfg config.ModelConfig) *OpenAIProvider {
	httpClient := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
	)

	return &OpenAIProvider{
		config:     cfg,
		httpClient: httpClient,
	}
}

func (p *OpenAIProvider) ModelName() string {
	return p.config.Model
}

// Invoke sends the conversation and blocks for the complete reply.
func (p *OpenAIProvider) Invoke(ctx context.Context, messages []Message) (*Response, error) {
	request := p.buildRequest(messages, false)

	resp, err := p.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}

	var response openAIResponse
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if response.Error != nil {
		return nil, fmt.Errorf("API error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	result := TextResponse(response.Choices[0].Message.Content)
	result.Tokens = response.Usage.TotalTokens
	return result, nil
}

// InvokeStream sends the conversation with stream=true and forwards SSE
// text deltas as chunks.
func (p *OpenAIProvider) InvokeStream(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	request := p.buildRequest(messages, true)

	outputCh := make(chan StreamChunk, 100)

	go func() {
		defer close(outputCh)
		if err := p.streamRequest(ctx, request, outputCh); err != nil {
			outputCh <- StreamChunk{Type: "error", Error: err}
		}
	}()

	return outputCh, nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, stream bool) openAIRequest {
	converted := make([]openAIMessage, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, openAIMessage{Role: msg.Role, Content: msg.Content})
	}

	return openAIRequest{
		Model:           p.config.Model,
		Messages:        converted,
		MaxTokens:       p.config.MaxTokens,
		Temperature:     p.config.Temperature,
		Stream:          stream,
		ReasoningEffort: p.config.ReasoningEffort,
	}
}

func (p *OpenAIProvider) makeRequest(ctx context.Context, request openAIRequest) (*http.Response, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.config.BaseURL+"/chat/completions", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(requestBody)), nil
	}

	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if resp != nil {
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr == nil && len(body) > 0 {
				if apiErr := parseErrorResponse(body); apiErr != nil {
					return nil, fmt.Errorf("API request failed with status %d: %s (type: %s, code: %s): %w",
						resp.StatusCode, apiErr.Message, apiErr.Type, apiErr.Code, err)
				}
				return nil, fmt.Errorf("API request failed with status %d: %s: %w",
					resp.StatusCode, string(body), err)
			}
		}
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	return resp, nil
}

func (p *OpenAIProvider) streamRequest(ctx context.Context, request openAIRequest, outputCh chan<- StreamChunk) error {
	resp, err := p.makeRequest(ctx, request)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 || !bytes.HasPrefix(line, []byte("data: ")) {
			continue
		}
		line = line[6:]

		if bytes.Equal(line, []byte("[DONE]")) {
			return nil
		}

		var streamResp openAIStreamResponse
		if err := json.Unmarshal(line, &streamResp); err != nil {
			continue
		}

		if streamResp.Error != nil {
			return fmt.Errorf("API error: %s", streamResp.Error.Message)
		}
		if len(streamResp.Choices) == 0 {
			continue
		}

		if content := streamResp.Choices[0].Delta.Content; content != "" {
			outputCh <- StreamChunk{Type: "text", Text: content}
		}
	}
}

func parseErrorResponse(body []byte) *openAIError {
	var wrapper struct {
		Error *openAIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil
	}
	if wrapper.Error == nil || wrapper.Error.Message == "" {
		return nil
	}
	return wrapper.Error
}
