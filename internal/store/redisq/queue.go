// Package redisq provides the sync-item queue over Redis Streams, with an
// in-process fallback for dev mode and tests. Items cross the queue as
// kind-tagged JSON envelopes and are re-validated on decode.
package redisq

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/emperorhan/walletsync/internal/domain/item"
)

// Queue is the transport between item producers (UI-driven enqueues,
// cursor continuations, side-effect spawns) and the sync engine.
type Queue interface {
	Enqueue(ctx context.Context, items ...item.SyncItem) error
	// Dequeue returns up to max items, blocking until at least one is
	// available or ctx is done. An empty slice with a nil error means the
	// context expired.
	Dequeue(ctx context.Context, max int) ([]item.SyncItem, error)
	Close() error
}

const (
	streamKey    = "walletsync:items"
	payloadField = "payload"
)

// Stream is the Redis Streams queue backend.
type Stream struct {
	client *redis.Client
	lastID string
	mu     sync.Mutex
}

func NewStream(url string) (*Stream, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Stream{client: client, lastID: "0"}, nil
}

func (s *Stream) Enqueue(ctx context.Context, items ...item.SyncItem) error {
	for _, it := range items {
		payload, err := item.Encode(it)
		if err != nil {
			return fmt.Errorf("enqueue %s item: %w", it.Kind(), err)
		}
		if err := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: streamKey,
			Values: map[string]interface{}{payloadField: payload},
		}).Err(); err != nil {
			return fmt.Errorf("xadd %s item: %w", it.Kind(), err)
		}
	}
	return nil
}

func (s *Stream) Dequeue(ctx context.Context, max int) ([]item.SyncItem, error) {
	s.mu.Lock()
	lastID := s.lastID
	s.mu.Unlock()

	streams, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{streamKey, lastID},
		Count:   int64(max),
		Block:   0,
	}).Result()
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xread: %w", err)
	}

	var out []item.SyncItem
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			s.mu.Lock()
			s.lastID = msg.ID
			s.mu.Unlock()

			raw, ok := msg.Values[payloadField].(string)
			if !ok {
				return nil, fmt.Errorf("dequeue: message %s has no payload", msg.ID)
			}
			it, err := item.Decode([]byte(raw))
			if err != nil {
				return nil, fmt.Errorf("dequeue message %s: %w", msg.ID, err)
			}
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *Stream) Close() error {
	return s.client.Close()
}

// Memory is the in-process queue backend used when no Redis is configured.
type Memory struct {
	mu     sync.Mutex
	items  []item.SyncItem
	notify chan struct{}
	closed bool
}

func NewMemory() *Memory {
	return &Memory{notify: make(chan struct{}, 1)}
}

func (m *Memory) Enqueue(_ context.Context, items ...item.SyncItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("enqueue: queue closed")
	}
	m.items = append(m.items, items...)
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

func (m *Memory) Dequeue(ctx context.Context, max int) ([]item.SyncItem, error) {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			n := max
			if n > len(m.items) {
				n = len(m.items)
			}
			out := make([]item.SyncItem, n)
			copy(out, m.items[:n])
			m.items = m.items[n:]
			m.mu.Unlock()
			return out, nil
		}
		closed := m.closed
		m.mu.Unlock()
		if closed {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil
		case <-m.notify:
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Len reports the number of queued items. Test helper.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
