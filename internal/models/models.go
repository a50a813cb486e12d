package models

import (
	"path"
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single conversational turn.
type Message struct {
	Role    Role
	Content string
}

// AttachmentKind classifies an uploaded file for context extraction.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindPDF   AttachmentKind = "pdf"
	KindOther AttachmentKind = "other"
)

// Attachment references a user-uploaded file by URL.
type Attachment struct {
	URL  string
	Kind AttachmentKind
}

// KindFromFileType maps a stored file_type value onto an attachment kind.
func KindFromFileType(fileType string) AttachmentKind {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(fileType), ".")) {
	case "pdf", "application/pdf":
		return KindPDF
	case "jpg", "jpeg", "png", "webp", "gif", "image", "image/jpeg", "image/png", "image/webp", "image/gif":
		return KindImage
	default:
		return KindOther
	}
}

// KindFromURL derives an attachment kind from the extension of a URL path.
func KindFromURL(rawURL string) AttachmentKind {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := path.Ext(p)
	if ext == "" {
		return KindOther
	}
	return KindFromFileType(ext)
}

// CredentialSet maps provider names to user-supplied secrets for one request.
type CredentialSet map[string]string

// Provider is a backend family that can serve a model.
type Provider int

const (
	ProviderOpenRouter Provider = iota
	ProviderGemini
	ProviderGroq
)

// String returns the name used for credential lookup and configuration.
func (p Provider) String() string {
	switch p {
	case ProviderGemini:
		return "gemini"
	case ProviderGroq:
		return "groq"
	default:
		return "openrouter"
	}
}

// RouteRequest is the router's input for both the sync and streaming paths.
type RouteRequest struct {
	Model       string
	Messages    []Message
	Attachments []Attachment
	Keys        CredentialSet
}

// ProviderRequest is what an adapter receives after routing.
type ProviderRequest struct {
	Model       string
	Messages    []Message
	Attachments []Attachment
	APIKey      string
}

// FileRecord is the stored metadata for an uploaded file.
type FileRecord struct {
	ID             string    `json:"id"`
	UID            string    `json:"uid"`
	ConversationID string    `json:"conversation_id"`
	URL            string    `json:"file_url"`
	FileType       string    `json:"file_type"`
	FileName       string    `json:"file_name"`
	PublicID       string    `json:"public_id"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// Attachment converts the record into the router's attachment shape.
func (r FileRecord) Attachment() Attachment {
	kind := KindFromFileType(r.FileType)
	if kind == KindOther {
		kind = KindFromURL(r.URL)
	}
	return Attachment{URL: r.URL, Kind: kind}
}
