// Package gemini implements the Gemini adapter. It is the only adapter that
// passes attachments to the model natively, via the Files API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
	"promptpilot/internal/provider"
)

const providerName = "gemini"

// Provider implements provider.Adapter for the Gemini REST API.
type Provider struct {
	name       string
	baseURL    string
	stagingDir string
	client     *http.Client
	shared     *apiClient
}

// New creates a Gemini adapter. The shared client is only built when the
// configuration carries a server key.
func New(name string, cfg config.ProviderConfig, stagingDir string, client *http.Client) (*Provider, error) {
	if client == nil {
		return nil, errors.New("http client must not be nil")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("base url must not be empty")
	}
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}

	p := &Provider{
		name:       name,
		baseURL:    baseURL,
		stagingDir: stagingDir,
		client:     client,
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		p.shared = &apiClient{http: client, baseURL: baseURL, key: key}
	}
	return p, nil
}

func (p *Provider) Name() string {
	return p.name
}

// Complete uploads any attachments and runs a one-shot generateContent call.
func (p *Provider) Complete(ctx context.Context, req models.ProviderRequest) (string, error) {
	capability, c := p.resolve(req.APIKey)
	if capability == CapabilityUnavailable {
		return unavailableMessage, nil
	}

	body := p.buildRequest(req, p.attach(ctx, c, req.Attachments))
	resp, err := c.post(ctx, c.modelURL(req.Model, "generateContent", nil), body)
	if err != nil {
		return "", fmt.Errorf("%s generate request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", provider.ParseAPIError(p.name, resp)
	}

	var out generateResponse
	if err := provider.DecodeJSON(resp.Body, &out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 {
		if out.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%s blocked the prompt: %s", p.name, out.PromptFeedback.BlockReason)
		}
		return "", fmt.Errorf("%s response did not include candidates", p.name)
	}
	return out.text(), nil
}

// Stream uploads any attachments and forwards each streamed candidate delta.
// The upstream request is sent on the first call to Next.
func (p *Provider) Stream(ctx context.Context, req models.ProviderRequest) models.Stream {
	capability, c := p.resolve(req.APIKey)
	if capability == CapabilityUnavailable {
		return models.NewSliceStream(models.Fragment{Text: unavailableMessage})
	}

	open := func() (io.ReadCloser, error) {
		body := p.buildRequest(req, p.attach(ctx, c, req.Attachments))
		resp, err := c.post(ctx, c.modelURL(req.Model, "streamGenerateContent", url.Values{"alt": {"sse"}}), body)
		if err != nil {
			return nil, fmt.Errorf("%s stream request failed: %w", p.name, err)
		}
		if resp.StatusCode >= 300 {
			defer resp.Body.Close()
			return nil, provider.ParseAPIError(p.name, resp)
		}
		return resp.Body, nil
	}

	return provider.NewHTTPStream(p.name, open, decodeCandidate)
}

// buildRequest maps messages onto Gemini contents. System messages become the
// system instruction, assistant turns use the "model" role and file parts are
// placed ahead of the final user message's text.
func (p *Provider) buildRequest(req models.ProviderRequest, files []part) generateRequest {
	var (
		out    generateRequest
		system []string
	)
	for _, msg := range req.Messages {
		switch msg.Role {
		case models.RoleSystem:
			system = append(system, msg.Content)
		case models.RoleAssistant:
			out.Contents = append(out.Contents, content{Role: "model", Parts: []part{{Text: msg.Content}}})
		default:
			out.Contents = append(out.Contents, content{Role: "user", Parts: []part{{Text: msg.Content}}})
		}
	}
	if len(system) > 0 {
		out.SystemInstruction = &content{Parts: []part{{Text: strings.Join(system, "\n\n")}}}
	}

	if len(files) == 0 {
		return out
	}
	for i := len(out.Contents) - 1; i >= 0; i-- {
		if out.Contents[i].Role == "user" {
			out.Contents[i].Parts = append(append([]part{}, files...), out.Contents[i].Parts...)
			return out
		}
	}
	out.Contents = append(out.Contents, content{Role: "user", Parts: files})
	return out
}

func (c *apiClient) modelURL(model, method string, query url.Values) string {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	u := c.baseURL + "/v1beta/models/" + url.PathEscape(model) + ":" + method
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func (c *apiClient) post(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("construct request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Goog-Api-Key", c.key)

	return c.http.Do(req)
}

type generateRequest struct {
	SystemInstruction *content  `json:"systemInstruction,omitempty"`
	Contents          []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"file_data,omitempty"`
}

type fileData struct {
	MimeType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func decodeCandidate(payload []byte) (string, bool) {
	var chunk generateResponse
	if err := json.Unmarshal(payload, &chunk); err != nil {
		return "", false
	}
	return chunk.text(), true
}
