// Package session stores per-browser-session key-value data: the wizard's
// persisted entries and the access token of the signed-in user.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/livetemplate/awardwizard"
	"github.com/livetemplate/awardwizard/internal/config"
	"go.uber.org/zap"
)

// KeyAccessToken holds the API access token in a session bucket.
const KeyAccessToken = "accessToken"

// Backend stores string values scoped by session id. Get returns
// awardwizard.ErrNotFound for a missing key.
type Backend interface {
	Get(ctx context.Context, sessionID, key string) (string, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID string, keys ...string) error
	// Drop removes every key of a session.
	Drop(ctx context.Context, sessionID string) error
	// Sweep removes sessions not written for longer than idle and
	// returns how many were removed.
	Sweep(ctx context.Context, idle time.Duration) (int, error)
	Close() error
}

// Bucket is the KV view of one session, optionally narrowed to a scope
// within it.
type Bucket struct {
	backend Backend
	id      string
	prefix  string
}

var _ awardwizard.KV = Bucket{}

// NewBucket returns the KV for sessionID.
func NewBucket(b Backend, sessionID string) Bucket {
	return Bucket{backend: b, id: sessionID}
}

// Scoped returns a bucket whose keys live under scope. Buckets of
// different scopes in one session never see each other's keys, and Drop
// of the session still removes them all.
func (b Bucket) Scoped(scope string) Bucket {
	b.prefix += scope + ":"
	return b
}

// ID returns the session id.
func (b Bucket) ID() string { return b.id }

// Key returns the backend key stored for key.
func (b Bucket) Key(key string) string { return b.prefix + key }

func (b Bucket) Get(ctx context.Context, key string) (string, error) {
	return b.backend.Get(ctx, b.id, b.Key(key))
}

func (b Bucket) Set(ctx context.Context, key, value string) error {
	return b.backend.Set(ctx, b.id, b.Key(key), value)
}

func (b Bucket) Delete(ctx context.Context, keys ...string) error {
	if b.prefix != "" {
		scoped := make([]string, len(keys))
		for i, k := range keys {
			scoped[i] = b.Key(k)
		}
		keys = scoped
	}
	return b.backend.Delete(ctx, b.id, keys...)
}

// Open creates the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.SessionConfig, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemory(cfg.GetTTL()), nil
	case config.BackendSQLite:
		return OpenSQLite(ctx, cfg.DSN, logger)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}

// RunSweeper removes idle sessions every interval until ctx is done.
func RunSweeper(ctx context.Context, b Backend, idle, interval time.Duration, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := b.Sweep(ctx, idle)
			if err != nil {
				logger.Warn("session sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Debug("idle sessions removed", zap.Int("count", n))
			}
		}
	}
}
