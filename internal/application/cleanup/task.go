// Package cleanup prunes a user's old notifications and stale dedup keys.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/care-notify/internal/application/dedup"
	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/rs/zerolog/log"
)

type NotificationPruner interface {
	ListPrunable(ctx context.Context, userID string, cutoff, now time.Time) ([]domain.Notification, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// Archiver keeps a copy of notifications before they are deleted.
type Archiver interface {
	Store(ctx context.Context, userID string, notifications []domain.Notification, at time.Time) (string, error)
}

type Options struct {
	NotificationRetentionDays int
	KeyRetentionDays          int
	Interval                  time.Duration
}

// Result reports one pass. The two prunes fail independently.
type Result struct {
	Notifications    int
	Keys             int
	NotificationsErr error
	KeysErr          error
}

// Task runs on start and then every Interval for one user.
type Task struct {
	userID  string
	pruner  NotificationPruner
	guard   dedup.Guard
	archive Archiver
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewTask builds a cleanup task. archive and m may be nil.
func NewTask(userID string, pruner NotificationPruner, guard dedup.Guard, archive Archiver, opts Options, m *metrics.Metrics) *Task {
	return &Task{
		userID:  userID,
		pruner:  pruner,
		guard:   guard,
		archive: archive,
		opts:    opts,
		metrics: m,
		now:     time.Now,
	}
}

// Start runs a pass immediately and then on every tick until ctx is cancelled.
func (t *Task) Start(ctx context.Context) {
	t.RunOnce(ctx)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass. Failures are logged and counted, never returned
// to foreground callers.
func (t *Task) RunOnce(ctx context.Context) Result {
	var res Result
	res.Notifications, res.NotificationsErr = t.pruneNotifications(ctx)
	t.record("notifications", res.Notifications, res.NotificationsErr)

	res.Keys, res.KeysErr = t.guard.Cleanup(ctx, t.userID, t.opts.KeyRetentionDays)
	t.record("keys", res.Keys, res.KeysErr)
	return res
}

func (t *Task) pruneNotifications(ctx context.Context) (int, error) {
	now := t.now()
	cutoff := now.AddDate(0, 0, -t.opts.NotificationRetentionDays)
	stale, err := t.pruner.ListPrunable(ctx, t.userID, cutoff, now)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if t.archive != nil {
		url, err := t.archive.Store(ctx, t.userID, stale, now)
		if err != nil {
			return 0, fmt.Errorf("archive before delete: %w", err)
		}
		log.Debug().Str("user_id", t.userID).Str("object", url).Int("count", len(stale)).Msg("archived notifications")
	}

	ids := make([]string, len(stale))
	for i, n := range stale {
		ids[i] = n.NotificationID
	}
	if err := t.pruner.DeleteByIDs(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (t *Task) record(kind string, n int, err error) {
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		log.Warn().Err(err).Str("user_id", t.userID).Str("kind", kind).Msg("cleanup failed")
		if t.metrics != nil {
			t.metrics.CleanupErrors.WithLabelValues(kind).Inc()
		}
		return
	}
	if n > 0 {
		log.Info().Str("user_id", t.userID).Str("kind", kind).Int("deleted", n).Msg("cleanup pass")
	}
	if t.metrics != nil {
		t.metrics.CleanupDeleted.WithLabelValues(kind).Add(float64(n))
	}
}
