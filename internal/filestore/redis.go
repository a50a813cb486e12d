package filestore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"promptpilot/internal/config"
	"promptpilot/internal/models"
)

// RedisStore keeps each record as JSON under file:{id} and indexes records
// per conversation in a sorted set scored by upload time.
type RedisStore struct {
	client *redis.Client
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("filestore: redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func recordKey(id string) string {
	return "file:" + id
}

func conversationKey(conversationID string) string {
	return "conversation:" + conversationID + ":files"
}

func (s *RedisStore) Create(ctx context.Context, rec models.FileRecord) (models.FileRecord, error) {
	rec, err := prepareRecord(rec)
	if err != nil {
		return models.FileRecord{}, err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("filestore: marshal: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recordKey(rec.ID), data, 0)
		pipe.ZAdd(ctx, conversationKey(rec.ConversationID), redis.Z{
			Score:  float64(rec.UploadedAt.UnixMilli()),
			Member: rec.ID,
		})
		return nil
	})
	if err != nil {
		return models.FileRecord{}, fmt.Errorf("filestore: create: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) ListByConversation(ctx context.Context, conversationID string) ([]models.FileRecord, error) {
	ids, err := s.client.ZRange(ctx, conversationKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("filestore: list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recordKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("filestore: list: %w", err)
	}

	records := make([]models.FileRecord, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec models.FileRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("filestore: unmarshal: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	raw, err := s.client.Get(ctx, recordKey(id)).Result()
	if err == redis.Nil {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("filestore: get: %w", err)
	}

	var rec models.FileRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("filestore: unmarshal: %w", err)
	}
	return s.remove(ctx, rec)
}

func (s *RedisStore) DeleteByPublicID(ctx context.Context, conversationID, publicID string) (int, error) {
	records, err := s.ListByConversation(ctx, conversationID)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range records {
		if rec.PublicID != publicID {
			continue
		}
		if err := s.remove(ctx, rec); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *RedisStore) remove(ctx context.Context, rec models.FileRecord) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, recordKey(rec.ID))
		pipe.ZRem(ctx, conversationKey(rec.ConversationID), rec.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("filestore: delete: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
