// Package sessioncache persists the last connected provider kind so a
// later run can reconnect silently.
package sessioncache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrz1836/tether/internal/config"
	"github.com/mrz1836/tether/internal/fileutil"
	"github.com/mrz1836/tether/internal/wallet"
	tethererr "github.com/mrz1836/tether/pkg/errors"
)

// Backend names.
const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

// Record is the single persisted value.
type Record struct {
	Kind wallet.Kind `json:"kind"`
	// Resume is the wallet resume token. Stores that seal it hold ciphertext here.
	Resume  string    `json:"resume,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

// Store holds at most one Record.
type Store interface {
	// Load returns the stored record, or nil when none is stored.
	Load(ctx context.Context) (*Record, error)
	Save(ctx context.Context, rec Record) error
	// Clear removes the record. Clearing an empty store succeeds.
	Clear(ctx context.Context) error
}

// Sealer encrypts resume tokens at rest.
type Sealer interface {
	Seal(plaintext []byte) (string, error)
	Unseal(sealed string) ([]byte, error)
}

// Open builds the store named by cfg.Backend. When sealer is non-nil,
// resume tokens are encrypted before they reach the backend.
func Open(cfg config.SessionCacheConfig, sealer Sealer) (Store, error) {
	var store Store
	switch cfg.Backend {
	case BackendFile, "":
		store = NewFileStore(fileutil.ExpandHome(cfg.File))
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store = NewRedisStore(client, cfg.Redis.Key)
	default:
		return nil, tethererr.WithDetails(tethererr.ErrConfigInvalid, map[string]string{
			"key":    "session_cache.backend",
			"reason": "unknown backend " + cfg.Backend,
		})
	}

	if sealer != nil {
		store = NewSealed(store, sealer)
	}
	return store, nil
}

// Sealed wraps a Store and encrypts Record.Resume.
type Sealed struct {
	inner  Store
	sealer Sealer
}

// NewSealed wraps inner.
func NewSealed(inner Store, sealer Sealer) *Sealed {
	return &Sealed{inner: inner, sealer: sealer}
}

// Load implements Store.
func (s *Sealed) Load(ctx context.Context) (*Record, error) {
	rec, err := s.inner.Load(ctx)
	if err != nil || rec == nil || rec.Resume == "" {
		return rec, err
	}

	plain, err := s.sealer.Unseal(rec.Resume)
	if err != nil {
		return nil, err
	}
	rec.Resume = string(plain)
	return rec, nil
}

// Save implements Store.
func (s *Sealed) Save(ctx context.Context, rec Record) error {
	if rec.Resume != "" {
		sealed, err := s.sealer.Seal([]byte(rec.Resume))
		if err != nil {
			return tethererr.Wrap(err, "sealing resume token")
		}
		rec.Resume = sealed
	}
	return s.inner.Save(ctx, rec)
}

// Clear implements Store.
func (s *Sealed) Clear(ctx context.Context) error {
	return s.inner.Clear(ctx)
}
