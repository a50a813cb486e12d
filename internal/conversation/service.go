// Package conversation manages the files attached to conversations.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"promptpilot/internal/blob"
	"promptpilot/internal/filestore"
	"promptpilot/internal/metrics"
	"promptpilot/internal/models"
)

const deleteConcurrency = 4

// Service ties file metadata to blob storage.
type Service struct {
	store filestore.Store
	blobs blob.Deleter
}

// New constructs a service.
func New(store filestore.Store, blobs blob.Deleter) *Service {
	if blobs == nil {
		blobs = blob.Noop{}
	}
	return &Service{store: store, blobs: blobs}
}

// AddFile records an uploaded file.
func (s *Service) AddFile(ctx context.Context, rec models.FileRecord) (models.FileRecord, error) {
	return s.store.Create(ctx, rec)
}

// Files lists the files of a conversation, oldest first.
func (s *Service) Files(ctx context.Context, conversationID string) ([]models.FileRecord, error) {
	return s.store.ListByConversation(ctx, conversationID)
}

// Attachments returns the conversation's files in the router's shape.
func (s *Service) Attachments(ctx context.Context, conversationID string) ([]models.Attachment, error) {
	records, err := s.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Attachment, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Attachment())
	}
	return out, nil
}

// DeleteFile removes a blob and its metadata records. A public id with no
// record in the conversation is ErrNotFound and leaves blob storage
// untouched. Metadata is removed even when the blob deletion fails; that
// failure is still returned.
func (s *Service) DeleteFile(ctx context.Context, conversationID, publicID string) (int, error) {
	records, err := s.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}
	if !slices.ContainsFunc(records, func(r models.FileRecord) bool { return r.PublicID == publicID }) {
		return 0, filestore.ErrNotFound
	}

	blobErr := s.deleteBlob(ctx, publicID)

	n, err := s.store.DeleteByPublicID(ctx, conversationID, publicID)
	if err != nil {
		return n, errors.Join(blobErr, err)
	}
	return n, blobErr
}

// DeleteConversationFiles removes every blob and record of a conversation.
// Blobs are deleted concurrently, each public id once. Every record is
// removed regardless of blob failures, which are joined into the result.
func (s *Service) DeleteConversationFiles(ctx context.Context, conversationID string) (int, error) {
	records, err := s.store.ListByConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(records))
	var publicIDs []string
	for _, rec := range records {
		if rec.PublicID == "" {
			continue
		}
		if _, ok := seen[rec.PublicID]; ok {
			continue
		}
		seen[rec.PublicID] = struct{}{}
		publicIDs = append(publicIDs, rec.PublicID)
	}

	var (
		mu     sync.Mutex
		failed []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for _, id := range publicIDs {
		id := id // per-iteration copy; go.mod targets go1.21 (pre-1.22 loopvar semantics)
		g.Go(func() error {
			if err := s.deleteBlob(gctx, id); err != nil {
				mu.Lock()
				failed = append(failed, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	deleted := 0
	for _, rec := range records {
		if err := s.store.Delete(ctx, rec.ID); err != nil && !errors.Is(err, filestore.ErrNotFound) {
			failed = append(failed, fmt.Errorf("delete record %s: %w", rec.ID, err))
			continue
		}
		deleted++
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].Error() < failed[j].Error() })
	return deleted, errors.Join(failed...)
}

func (s *Service) deleteBlob(ctx context.Context, publicID string) error {
	if publicID == "" {
		return nil
	}
	err := s.blobs.Delete(ctx, publicID)
	switch {
	case err == nil:
		metrics.BlobDeletionsTotal.WithLabelValues(metrics.StatusOK).Inc()
		return nil
	case errors.Is(err, blob.ErrDisabled):
		slog.Warn("blob storage disabled, leaving blob in place", "public_id", publicID)
		return nil
	default:
		metrics.BlobDeletionsTotal.WithLabelValues(metrics.StatusError).Inc()
		slog.Error("blob deletion failed", "public_id", publicID, "err", err)
		return fmt.Errorf("delete blob %s: %w", publicID, err)
	}
}
