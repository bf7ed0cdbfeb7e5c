package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	internalregistry "github.com/hireloop/interview-capture/internal/registry"
)

type RedisRegistry struct {
	client *redis.Client
}

func NewRedisRegistry(client *redis.Client) internalregistry.Registry {
	return &RedisRegistry{client: client}
}

func chunksKey(sessionID string) string {
	return "session:" + sessionID + ":chunks"
}

func metaKey(sessionID string) string {
	return "session:" + sessionID + ":meta"
}

func (r *RedisRegistry) CreateSession(ctx context.Context, sessionID string) error {
	key := chunksKey(sessionID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("reset chunk buffer: %w", err)
	}
	return nil
}

func (r *RedisRegistry) AppendAudioChunk(ctx context.Context, sessionID string, chunk []byte) error {
	key := chunksKey(sessionID)
	pipe := r.client.Pipeline()
	pipe.RPush(ctx, key, chunk)
	pipe.Expire(ctx, key, internalregistry.SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append audio chunk: %w", err)
	}
	return nil
}

func (r *RedisRegistry) AudioChunks(ctx context.Context, sessionID string) ([][]byte, error) {
	values, err := r.client.LRange(ctx, chunksKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list audio chunks: %w", err)
	}
	chunks := make([][]byte, 0, len(values))
	for _, v := range values {
		chunks = append(chunks, []byte(v))
	}
	return chunks, nil
}

func (r *RedisRegistry) SetSessionMeta(ctx context.Context, sessionID string, meta internalregistry.SessionMeta) error {
	key := metaKey(sessionID)
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"interview_id": meta.InterviewID,
		"response_id":  meta.ResponseID,
		"token":        meta.Token,
		"created_at":   meta.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, key, internalregistry.SessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set session meta: %w", err)
	}
	return nil
}

func (r *RedisRegistry) GetSessionMeta(ctx context.Context, sessionID string) (*internalregistry.SessionMeta, error) {
	raw, err := r.client.HGetAll(ctx, metaKey(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get session meta: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	meta := &internalregistry.SessionMeta{
		InterviewID: raw["interview_id"],
		ResponseID:  raw["response_id"],
		Token:       raw["token"],
	}
	if createdAt, err := time.Parse(time.RFC3339Nano, raw["created_at"]); err == nil {
		meta.CreatedAt = createdAt
	}
	return meta, nil
}

func (r *RedisRegistry) RemoveSession(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, chunksKey(sessionID), metaKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("remove session keys: %w", err)
	}
	return nil
}
