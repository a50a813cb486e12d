// Package filestore persists metadata for files uploaded to conversations.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
)

// ErrNotFound indicates that no record matched.
var ErrNotFound = errors.New("file record not found")

// Store is implemented by every metadata driver.
type Store interface {
	// Create stores rec, assigning an ID and upload time when unset.
	Create(ctx context.Context, rec models.FileRecord) (models.FileRecord, error)
	// ListByConversation returns the records of a conversation, oldest first.
	ListByConversation(ctx context.Context, conversationID string) ([]models.FileRecord, error)
	// Delete removes a single record by ID.
	Delete(ctx context.Context, id string) error
	// DeleteByPublicID removes every record of the conversation that points
	// at the given blob and returns how many were removed.
	DeleteByPublicID(ctx context.Context, conversationID, publicID string) (int, error)
	Close() error
}

// Open returns the driver selected in the configuration.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreRedis:
		return NewRedis(ctx, cfg.Redis)
	case config.StoreSQLite:
		return NewSQLite(ctx, cfg.SQLite)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func prepareRecord(rec models.FileRecord) (models.FileRecord, error) {
	if strings.TrimSpace(rec.ConversationID) == "" {
		return rec, errors.New("conversation_id must not be empty")
	}
	if strings.TrimSpace(rec.URL) == "" {
		return rec, errors.New("file_url must not be empty")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}
	rec.UploadedAt = rec.UploadedAt.UTC()
	return rec, nil
}
