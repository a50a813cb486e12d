package translator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"promptpilot/internal/models"
)

var (
	errEmptyConversation = errors.New("conversation_id must be provided")
	errEmptyFileURL      = errors.New("file_url must be provided")
)

// FileRequest models the POST /files payload.
type FileRequest struct {
	UID            string
	ConversationID string
	FileURL        string
	FileType       string
	FileName       string
	PublicID       string
}

// UnmarshalJSON implements custom parsing to enforce validation.
func (r *FileRequest) UnmarshalJSON(data []byte) error {
	type alias struct {
		UID            string `json:"uid"`
		ConversationID string `json:"conversation_id"`
		FileURL        string `json:"file_url"`
		FileType       string `json:"file_type"`
		FileName       string `json:"file_name"`
		PublicID       string `json:"public_id"`
	}

	var raw alias
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode file request: %w", err)
	}

	r.UID = strings.TrimSpace(raw.UID)
	r.ConversationID = strings.TrimSpace(raw.ConversationID)
	r.FileURL = strings.TrimSpace(raw.FileURL)
	r.FileType = strings.TrimSpace(raw.FileType)
	r.FileName = strings.TrimSpace(raw.FileName)
	r.PublicID = strings.TrimSpace(raw.PublicID)

	if r.ConversationID == "" {
		return errEmptyConversation
	}
	if r.FileURL == "" {
		return errEmptyFileURL
	}
	return nil
}

// ToRecord converts the request into a file record.
func (r FileRequest) ToRecord() models.FileRecord {
	return models.FileRecord{
		UID:            r.UID,
		ConversationID: r.ConversationID,
		URL:            r.FileURL,
		FileType:       r.FileType,
		FileName:       r.FileName,
		PublicID:       r.PublicID,
	}
}

// FilesResponse lists a conversation's files.
type FilesResponse struct {
	Files []models.FileRecord `json:"files"`
}

// DeleteResponse reports how many records a deletion removed.
type DeleteResponse struct {
	Deleted int `json:"deleted"`
}
