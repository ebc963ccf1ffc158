// Package dedup remembers which domain events already minted a notification.
package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/care-notify/internal/domain"
)

// KeyStore is the persisted set of processed keys.
type KeyStore interface {
	Exists(ctx context.Context, userID, key string) (bool, error)
	Put(ctx context.Context, k *domain.ProcessedEventKey) error
	DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error)
}

// Guard answers "was this event already turned into a notification?".
// Checks and writes are not atomic; the minting path serialises keys within a
// process and accepts the rare duplicate across processes.
type Guard interface {
	IsProcessed(ctx context.Context, userID, key string) (bool, error)
	MarkProcessed(ctx context.Context, userID, key string) error
	Cleanup(ctx context.Context, userID string, olderThanDays int) (int, error)
}

type guard struct {
	store     KeyStore
	retention time.Duration
	now       func() time.Time
}

// NewGuard returns a Guard whose keys carry a storage TTL of retention.
func NewGuard(store KeyStore, retention time.Duration) Guard {
	return &guard{store: store, retention: retention, now: time.Now}
}

func (g *guard) IsProcessed(ctx context.Context, userID, key string) (bool, error) {
	ok, err := g.store.Exists(ctx, userID, key)
	if err != nil {
		return false, fmt.Errorf("check key %s: %w", key, err)
	}
	return ok, nil
}

func (g *guard) MarkProcessed(ctx context.Context, userID, key string) error {
	now := g.now()
	err := g.store.Put(ctx, &domain.ProcessedEventKey{
		UserID:      userID,
		Key:         key,
		ProcessedAt: now.UnixMilli(),
		ExpiresAt:   now.Add(g.retention).Unix(),
	})
	if err != nil {
		return fmt.Errorf("mark key %s: %w", key, err)
	}
	return nil
}

// Cleanup deletes the user's keys processed more than olderThanDays ago and
// reports how many were removed.
func (g *guard) Cleanup(ctx context.Context, userID string, olderThanDays int) (int, error) {
	if olderThanDays <= 0 {
		return 0, fmt.Errorf("retention must be positive, got %d days: %w", olderThanDays, domain.ErrBadRequest)
	}
	cutoff := g.now().AddDate(0, 0, -olderThanDays)
	n, err := g.store.DeleteOlderThan(ctx, userID, cutoff)
	if err != nil {
		return n, fmt.Errorf("prune processed keys: %w", err)
	}
	return n, nil
}
