// Package openai implements an adapter for OpenAI-compatible chat completion
// APIs. OpenRouter and Groq are both served by instances of it.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
	"promptpilot/internal/provider"
)

const (
	contentTypeJSON = "application/json"
	userAgent       = "promptpilot/0.1"
)

// Provider implements provider.Adapter for OpenAI-compatible APIs.
type Provider struct {
	name    string
	apiKey  string
	headers map[string]string
	aliases map[string]string
	client  *http.Client
	chatURL string
}

// New creates a new OpenAI-compatible adapter.
func New(name string, cfg config.ProviderConfig, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}

	aliases := make(map[string]string, len(cfg.Aliases))
	for alias, target := range cfg.Aliases {
		aliases[strings.ToLower(strings.TrimSpace(alias))] = target
	}

	return &Provider{
		name:    name,
		apiKey:  cfg.APIKey,
		headers: cfg.Headers,
		aliases: aliases,
		client:  client,
		chatURL: baseURL + "/chat/completions",
	}, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Complete sends a one-shot chat completion and returns the first choice.
func (p *Provider) Complete(ctx context.Context, req models.ProviderRequest) (string, error) {
	httpReq, err := p.newRequest(ctx, p.buildPayload(req, false), p.keyFor(req))
	if err != nil {
		return "", err
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%s chat request failed: %w", p.name, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 300 {
		return "", provider.ParseAPIError(p.name, httpResp)
	}

	var providerResp chatResponse
	if err := provider.DecodeJSON(httpResp.Body, &providerResp); err != nil {
		return "", err
	}
	if len(providerResp.Choices) == 0 {
		return "", fmt.Errorf("%s response did not include choices", p.name)
	}
	return providerResp.Choices[0].Message.Content, nil
}

// Stream requests a streamed completion. Each non-empty delta becomes a
// fragment; upstream failures become a single failed fragment.
func (p *Provider) Stream(ctx context.Context, req models.ProviderRequest) models.Stream {
	payload := p.buildPayload(req, true)
	key := p.keyFor(req)

	open := func() (io.ReadCloser, error) {
		httpReq, err := p.newRequest(ctx, payload, key)
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Accept", "text/event-stream")

		httpResp, err := p.client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%s stream request failed: %w", p.name, err)
		}
		if httpResp.StatusCode >= 300 {
			defer httpResp.Body.Close()
			return nil, provider.ParseAPIError(p.name, httpResp)
		}
		return httpResp.Body, nil
	}

	return provider.NewHTTPStream(p.name, open, decodeDelta)
}

func (p *Provider) keyFor(req models.ProviderRequest) string {
	if req.APIKey != "" {
		return req.APIKey
	}
	return p.apiKey
}

// resolveModel maps configured aliases onto upstream model ids.
func (p *Provider) resolveModel(model string) string {
	if target, ok := p.aliases[strings.ToLower(strings.TrimSpace(model))]; ok {
		return target
	}
	return model
}

func (p *Provider) buildPayload(req models.ProviderRequest, stream bool) chatPayload {
	messages := make([]openAIMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, openAIMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return chatPayload{
		Model:    p.resolveModel(req.Model),
		Messages: messages,
		Stream:   stream,
	}
}

func (p *Provider) newRequest(ctx context.Context, payload any, apiKey string) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}

	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)
	req.Header.Set("User-Agent", userAgent)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	for k, v := range p.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

type chatPayload struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func decodeDelta(payload []byte) (string, bool) {
	var chunk streamChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false
	}
	if len(chunk.Choices) == 0 {
		return "", false
	}
	return chunk.Choices[0].Delta.Content, true
}
