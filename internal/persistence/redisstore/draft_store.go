// Package redisstore keeps booking drafts in Redis so several API instances
// can share the wizard state.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kaizen2025/Formation/internal/application"
)

const defaultPrefix = "booking"

// tombstoneFactor sets how long the marker of an expired draft outlives it.
const tombstoneFactor = 24

// Options configures the Redis connection and key layout.
type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// DraftStore implements application.DraftStore on Redis. Each draft is a JSON
// value stored with the idle lifetime as its expiry. A longer-lived marker key
// lets Load tell an expired draft apart from one that never existed.
type DraftStore struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ application.DraftStore = (*DraftStore)(nil)

// Open connects to Redis and checks the connection with PING.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (*DraftStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	store := New(rdb, opts.Prefix, opts.TTL, logger)
	store.logger.Info("redis draft store connected", "addr", opts.Addr, "db", opts.DB)
	return store, nil
}

// New wraps an existing client.
func New(rdb goredis.UniversalClient, prefix string, ttl time.Duration, logger *slog.Logger) *DraftStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if ttl <= 0 {
		ttl = application.DefaultDraftTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DraftStore{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *DraftStore) draftKey(id string) string {
	return s.prefix + ":draft:" + id
}

func (s *DraftStore) markerKey(id string) string {
	return s.prefix + ":draft-seen:" + id
}

// Load returns the draft, application.ErrDraftExpired when only its marker
// survives, or application.ErrDraftNotFound.
func (s *DraftStore) Load(ctx context.Context, id string) (application.Draft, error) {
	if id == "" {
		return application.Draft{}, application.ErrDraftNotFound
	}
	raw, err := s.rdb.Get(ctx, s.draftKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		n, existsErr := s.rdb.Del(ctx, s.markerKey(id)).Result()
		if existsErr != nil {
			return application.Draft{}, fmt.Errorf("check draft marker: %w", existsErr)
		}
		if n > 0 {
			return application.Draft{}, application.ErrDraftExpired
		}
		return application.Draft{}, application.ErrDraftNotFound
	}
	if err != nil {
		return application.Draft{}, fmt.Errorf("get draft: %w", err)
	}

	var draft application.Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return application.Draft{}, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return draft, nil
}

// Save writes the draft and restarts its idle lifetime.
func (s *DraftStore) Save(ctx context.Context, draft application.Draft) error {
	if draft.ID == "" {
		return application.ErrDraftNotFound
	}
	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft %s: %w", draft.ID, err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, s.draftKey(draft.ID), raw, s.ttl)
		pipe.Set(ctx, s.markerKey(draft.ID), "1", s.ttl*tombstoneFactor)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save draft %s: %w", draft.ID, err)
	}
	return nil
}

// Delete removes the draft and its marker.
func (s *DraftStore) Delete(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.draftKey(id), s.markerKey(id)).Err(); err != nil {
		return fmt.Errorf("delete draft %s: %w", id, err)
	}
	return nil
}

// Ping checks the connection.
func (s *DraftStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (s *DraftStore) Close() error {
	return s.rdb.Close()
}
