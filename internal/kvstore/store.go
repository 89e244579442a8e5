// Package kvstore holds the key-value stores with TTL that back card tokens
// and 3-D Secure sessions.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Store is a key-value store where every entry carries a TTL.
// Expired entries are never returned, whether or not they were swept.
type Store interface {
	// Get returns the value of a live key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes the value unconditionally and resets the TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Create writes the value only if no live entry exists, otherwise ErrConflict.
	Create(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// CompareAndSwap replaces the value of a live key if it still equals old.
	// The expiry of the entry is kept. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, key string, old, new []byte) (bool, error)
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Sweeper is implemented by stores that keep expired entries until removed.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

func validateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive (got %s)", ttl)
	}
	return nil
}

// RunSweeper calls s.Sweep every interval until ctx is done.
func RunSweeper(ctx context.Context, s Sweeper, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				logger.Error("sweeping expired entries", "err", err)
				continue
			}
			if n > 0 {
				logger.Debug("swept expired entries", slog.Int("count", n))
			}
		}
	}
}
