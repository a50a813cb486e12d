package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"promptpilot/internal/models"
)

var (
	errEmptyPrompt    = errors.New("prompt or messages must be provided")
	errInvalidRole    = errors.New("invalid role")
	errInvalidContent = errors.New("invalid message content")
	errInvalidURL     = errors.New("invalid attachment url")
)

var allowedRoles = map[string]models.Role{
	"system":    models.RoleSystem,
	"user":      models.RoleUser,
	"assistant": models.RoleAssistant,
}

// ChatRequest models the POST /chat payload.
type ChatRequest struct {
	UID       string
	Prompt    string
	Model     string
	ChatID    string
	Title     string
	ImageURLs []string
	Messages  []ChatMessage
	APIKeys   map[string]string
	Stream    bool
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *ChatRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		UID       string            `json:"uid"`
		Prompt    string            `json:"prompt"`
		Model     string            `json:"model"`
		ChatID    string            `json:"chat_id"`
		Title     string            `json:"title"`
		ImageURLs []string          `json:"image_urls"`
		Messages  []ChatMessage     `json:"messages"`
		APIKeys   map[string]string `json:"api_keys"`
		Stream    bool              `json:"stream"`
		// Sent by the mobile client; accepted and ignored.
		WebSearch bool   `json:"web_search"`
		AgentType string `json:"agent_type"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode chat request: %w", err)
	}

	r.UID = strings.TrimSpace(raw.UID)
	r.Prompt = raw.Prompt
	r.Model = strings.TrimSpace(raw.Model)
	r.ChatID = strings.TrimSpace(raw.ChatID)
	r.Title = raw.Title
	r.Messages = raw.Messages
	r.APIKeys = raw.APIKeys
	r.Stream = raw.Stream

	r.ImageURLs = make([]string, 0, len(raw.ImageURLs))
	for _, u := range raw.ImageURLs {
		if u = strings.TrimSpace(u); u != "" {
			r.ImageURLs = append(r.ImageURLs, u)
		}
	}

	return r.validate()
}

func (r *ChatRequest) validate() error {
	if strings.TrimSpace(r.Prompt) == "" && len(r.Messages) == 0 {
		return errEmptyPrompt
	}
	for _, u := range r.ImageURLs {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%w: %s", errInvalidURL, u)
		}
	}
	return nil
}

// Attachments converts image_urls into attachments, deriving the kind from
// the URL extension.
func (r ChatRequest) Attachments() []models.Attachment {
	out := make([]models.Attachment, 0, len(r.ImageURLs))
	for _, u := range r.ImageURLs {
		out = append(out, models.Attachment{URL: u, Kind: models.KindFromURL(u)})
	}
	return out
}

// ToRoute converts the request into the router's input. When messages are
// given the prompt, if any, becomes the final user turn.
func (r ChatRequest) ToRoute(attachments []models.Attachment) models.RouteRequest {
	msgs := make([]models.Message, 0, len(r.Messages)+1)
	for _, m := range r.Messages {
		msgs = append(msgs, models.Message{Role: m.Role, Content: m.Content})
	}
	if strings.TrimSpace(r.Prompt) != "" {
		msgs = append(msgs, models.Message{Role: models.RoleUser, Content: r.Prompt})
	}

	keys := make(models.CredentialSet, len(r.APIKeys))
	for k, v := range r.APIKeys {
		keys[strings.ToLower(strings.TrimSpace(k))] = v
	}

	return models.RouteRequest{
		Model:       r.Model,
		Messages:    msgs,
		Attachments: attachments,
		Keys:        keys,
	}
}

// ChatMessage captures a single prior turn.
type ChatMessage struct {
	Role    models.Role
	Content string
}

// UnmarshalJSON supports string and array-of-text content formats.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}

	role, ok := allowedRoles[strings.ToLower(strings.TrimSpace(raw.Role))]
	if !ok {
		return fmt.Errorf("%w: %s", errInvalidRole, raw.Role)
	}

	content, err := extractMessageContent(raw.Content)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("%w: message content must not be empty", errInvalidContent)
	}

	m.Role = role
	m.Content = content
	return nil
}

func extractMessageContent(raw json.RawMessage) (string, error) {
	if raw == nil {
		return "", fmt.Errorf("%w: missing content", errInvalidContent)
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, nil
	}

	var segments []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &segments); err == nil {
		var builder strings.Builder
		for _, segment := range segments {
			if segment.Type != "text" {
				return "", fmt.Errorf("%w: segment type %q not supported", errInvalidContent, segment.Type)
			}
			builder.WriteString(segment.Text)
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("%w: unsupported content structure", errInvalidContent)
}

// ChatResponse is the synchronous /chat reply.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// StreamChunk is one SSE frame of a streamed reply.
type StreamChunk struct {
	Chunk string `json:"chunk"`
	Error bool   `json:"error,omitempty"`
}

// StreamDone is the frame sent after the last chunk.
type StreamDone struct {
	Done bool `json:"done"`
}

// FromFragment converts a stream fragment into its wire frame.
func FromFragment(f models.Fragment) StreamChunk {
	return StreamChunk{Chunk: f.Text, Error: f.Failed}
}
