package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"promptpilot/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS files (
	id              TEXT PRIMARY KEY,
	uid             TEXT NOT NULL DEFAULT '',
	conversation_id TEXT NOT NULL,
	file_url        TEXT NOT NULL,
	file_type       TEXT NOT NULL DEFAULT '',
	file_name       TEXT NOT NULL DEFAULT '',
	public_id       TEXT NOT NULL DEFAULT '',
	uploaded_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_files_conversation ON files(conversation_id, uploaded_at);
`

// SQLiteStore keeps records in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("filestore: open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("filestore: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("filestore: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec models.FileRecord) (models.FileRecord, error) {
	rec, err := prepareRecord(rec)
	if err != nil {
		return models.FileRecord{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO files (id, uid, conversation_id, file_url, file_type, file_name, public_id, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UID, rec.ConversationID, rec.URL, rec.FileType, rec.FileName, rec.PublicID, rec.UploadedAt.UnixNano(),
	)
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("filestore: insert: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) ListByConversation(ctx context.Context, conversationID string) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, uid, conversation_id, file_url, file_type, file_name, public_id, uploaded_at
		FROM files WHERE conversation_id = ? ORDER BY uploaded_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("filestore: query: %w", err)
	}
	defer rows.Close()

	var records []models.FileRecord
	for rows.Next() {
		var (
			rec        models.FileRecord
			uploadedAt int64
		)
		if err := rows.Scan(&rec.ID, &rec.UID, &rec.ConversationID, &rec.URL, &rec.FileType, &rec.FileName, &rec.PublicID, &uploadedAt); err != nil {
			return nil, fmt.Errorf("filestore: scan: %w", err)
		}
		rec.UploadedAt = time.Unix(0, uploadedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filestore: rows: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("filestore: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("filestore: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteByPublicID(ctx context.Context, conversationID, publicID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM files WHERE conversation_id = ? AND public_id = ?", conversationID, publicID)
	if err != nil {
		return 0, fmt.Errorf("filestore: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("filestore: rows affected: %w", err)
	}
	return int(n), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return err
	}
	return nil
}
