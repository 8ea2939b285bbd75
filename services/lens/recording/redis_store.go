// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package recording

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "objectlens"

// RedisStore keeps recordings in Redis so several lens servers can share
// them.
//
// # Description
//
// Layout under the prefix:
//   - <prefix>:recording:<id> string, the encoded Recording;
//   - <prefix>:recordings sorted set of ids scored by creation time;
//   - <prefix>:frames:<id> list of encoded Frames in append order.
//
// FrameCount is derived from the frame list length on read.
//
// # Thread Safety
//
// Safe for concurrent use.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore connects to the Redis at url and verifies the connection.
//
// # Inputs
//
//   - ctx: Bounds the initial ping.
//   - url: A redis:// or rediss:// URL.
//   - prefix: Key namespace. Empty uses DefaultRedisPrefix.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return NewRedisStoreFromClient(client, prefix), nil
}

// NewRedisStoreFromClient wraps an existing client. Close closes it.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) recordingKey(id string) string {
	return s.prefix + ":recording:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + ":recordings"
}

func (s *RedisStore) framesKey(id string) string {
	return s.prefix + ":frames:" + id
}

// SaveRecording implements Store.
func (s *RedisStore) SaveRecording(ctx context.Context, rec Recording) error {
	rec.FrameCount = 0
	data, err := encode(rec)
	if err != nil {
		return fmt.Errorf("encoding recording: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordingKey(rec.ID), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(rec.CreatedAt.UnixNano()), Member: rec.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving recording: %w", err)
	}
	return nil
}

// AppendFrame implements Store.
func (s *RedisStore) AppendFrame(ctx context.Context, id string, frame Frame) error {
	exists, err := s.client.Exists(ctx, s.recordingKey(id)).Result()
	if err != nil {
		return fmt.Errorf("checking recording: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	data, err := encode(frame)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	if err := s.client.RPush(ctx, s.framesKey(id), data).Err(); err != nil {
		return fmt.Errorf("appending frame: %w", err)
	}
	return nil
}

// GetRecording implements Store.
func (s *RedisStore) GetRecording(ctx context.Context, id string) (Recording, error) {
	data, err := s.client.Get(ctx, s.recordingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Recording{}, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	if err != nil {
		return Recording{}, fmt.Errorf("getting recording: %w", err)
	}
	var rec Recording
	if err := decode(data, &rec); err != nil {
		return Recording{}, fmt.Errorf("decoding recording: %w", err)
	}
	count, err := s.client.LLen(ctx, s.framesKey(id)).Result()
	if err != nil {
		return Recording{}, fmt.Errorf("counting frames: %w", err)
	}
	rec.FrameCount = int(count)
	return rec, nil
}

// ListRecordings implements Store.
func (s *RedisStore) ListRecordings(ctx context.Context) ([]Recording, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}
	recs := make([]Recording, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetRecording(ctx, id)
		if errors.Is(err, ErrRecordingNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// Frames implements Store.
func (s *RedisStore) Frames(ctx context.Context, id string) ([]Frame, error) {
	exists, err := s.client.Exists(ctx, s.recordingKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("checking recording: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	raw, err := s.client.LRange(ctx, s.framesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading frames: %w", err)
	}
	frames := make([]Frame, 0, len(raw))
	for _, item := range raw {
		var f Frame
		if err := decode([]byte(item), &f); err != nil {
			return nil, fmt.Errorf("decoding frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// DeleteRecording implements Store.
func (s *RedisStore) DeleteRecording(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, s.recordingKey(id)).Result()
	if err != nil {
		return fmt.Errorf("deleting recording: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", ErrRecordingNotFound, id)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.framesKey(id))
		pipe.ZRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("deleting frames: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
