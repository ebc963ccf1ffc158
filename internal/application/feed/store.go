// Package feed keeps a signed-in user's notification feed: a paginated,
// live-reconciled list with optimistic read and delete.
package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/infrastructure/stream"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/rs/zerolog/log"
)

// Repository is the backend slice the store reads and writes.
type Repository interface {
	Page(ctx context.Context, userID string, limit int, before *int64) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, ids []string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID, notificationID string) error
}

// Subscriber is the change-stream source. *stream.Hub satisfies it.
type Subscriber interface {
	Subscribe(path string, onChange func()) (unsubscribe func())
}

// TextProcessor rewrites display text in place. *message.Processor satisfies it.
type TextProcessor interface {
	Apply(ctx context.Context, ns []domain.Notification)
}

type State string

const (
	StateUninitialized State = "uninitialized"
	StateLoading       State = "loading"
	StateReady         State = "ready"
	StateLoadingMore   State = "loadingMore"
	StateError         State = "error"
)

// ReadModel is what clients render.
type ReadModel struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
	Loading       bool                  `json:"loading"`
	LoadingMore   bool                  `json:"loadingMore"`
	Error         string                `json:"error,omitempty"`
	HasMore       bool                  `json:"hasMore"`
}

// Store is one user's feed. The live subscription is the source of truth:
// every push replaces the whole list. The first page only gives a fast first
// paint and the pagination cursor.
type Store struct {
	repo     Repository
	sub      Subscriber
	proc     TextProcessor
	pageSize int
	metrics  *metrics.Metrics

	// pushCtx bounds re-reads triggered by the subscription.
	pushCtx    context.Context
	pushCancel context.CancelFunc

	mu          sync.Mutex
	state       State
	userID      string
	items       []domain.Notification
	unread      int
	cursor      *int64 // timestamp of the oldest loaded notification
	hasMore     bool
	errMsg      string
	unsubscribe func()
	gen         uint64 // bumped on every (re)initialise; stale results are dropped

	watchers    map[int]chan ReadModel
	nextWatcher int
}

func NewStore(repo Repository, sub Subscriber, proc TextProcessor, pageSize int, m *metrics.Metrics) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		repo:       repo,
		sub:        sub,
		proc:       proc,
		pageSize:   pageSize,
		metrics:    m,
		pushCtx:    ctx,
		pushCancel: cancel,
		state:      StateUninitialized,
		watchers:   make(map[int]chan ReadModel),
	}
}

// Initialize loads the first page for userID and opens the live subscription.
// A previous user's subscription is torn down first.
func (s *Store) Initialize(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.gen++
	gen := s.gen
	s.userID = userID
	s.items = nil
	s.unread = 0
	s.cursor = nil
	s.hasMore = false
	s.errMsg = ""
	s.state = StateLoading
	s.mu.Unlock()
	s.notify()

	page, unread, err := s.firstPage(ctx, userID)
	if err != nil {
		s.fail(gen, err)
		return err
	}

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	s.apply(page, unread)
	s.unsubscribe = s.sub.Subscribe(stream.NotificationsPath(userID), func() { s.onPush(gen) })
	s.mu.Unlock()
	s.notify()
	return nil
}

// LoadMore appends the next older page. It is a no-op while another load is
// running, when no more pages exist, or before the first page arrived.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReady || !s.hasMore || s.cursor == nil {
		s.mu.Unlock()
		return nil
	}
	s.state = StateLoadingMore
	gen, userID, before := s.gen, s.userID, *s.cursor
	s.mu.Unlock()
	s.notify()

	page, err := s.repo.Page(ctx, userID, s.pageSize, &before)
	if err != nil {
		s.mu.Lock()
		if gen == s.gen && s.state == StateLoadingMore {
			s.state = StateReady
			s.errMsg = err.Error()
		}
		s.mu.Unlock()
		s.notify()
		return fmt.Errorf("load more: %w", err)
	}
	s.proc.Apply(ctx, page)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	s.items = merge(s.items, page)
	if oldest, ok := oldestTimestamp(page); ok {
		s.cursor = &oldest
	}
	if len(page) < s.pageSize {
		s.hasMore = false
	}
	s.errMsg = ""
	if s.state == StateLoadingMore {
		s.state = StateReady
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// MarkAsRead flips the notification locally, then writes through.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return domain.ErrNotReady
	}
	userID := s.userID
	for i := range s.items {
		if s.items[i].NotificationID == id && !s.items[i].Read {
			s.items[i].Read = true
			s.unread = max(s.unread-1, 0)
			break
		}
	}
	s.mu.Unlock()
	s.notify()

	return s.writeThrough(ctx, s.repo.MarkRead(ctx, userID, []string{id}))
}

// MarkAllAsRead marks everything read locally, then writes through.
func (s *Store) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return domain.ErrNotReady
	}
	userID := s.userID
	for i := range s.items {
		s.items[i].Read = true
	}
	s.unread = 0
	s.mu.Unlock()
	s.notify()

	return s.writeThrough(ctx, s.repo.MarkAllRead(ctx, userID))
}

// Delete removes the notification locally, then writes through.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return domain.ErrNotReady
	}
	userID := s.userID
	for i := range s.items {
		if s.items[i].NotificationID == id {
			if !s.items[i].Read {
				s.unread = max(s.unread-1, 0)
			}
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()

	return s.writeThrough(ctx, s.repo.Delete(ctx, userID, id))
}

// writeThrough resynchronises with a full reload when the backend write failed.
func (s *Store) writeThrough(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if s.metrics != nil {
		s.metrics.FeedReloads.Inc()
	}
	log.Warn().Err(err).Msg("optimistic update failed, reloading feed")
	if rerr := s.Refresh(ctx); rerr != nil {
		log.Warn().Err(rerr).Msg("feed reload failed")
	}
	return err
}

// Refresh refetches the first page and the unread count and resets the
// cursor. The subscription is kept.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return domain.ErrNotReady
	}
	gen, userID := s.gen, s.userID
	s.state = StateLoading
	s.mu.Unlock()
	s.notify()

	page, unread, err := s.firstPage(ctx, userID)
	if err != nil {
		s.fail(gen, err)
		return err
	}

	s.mu.Lock()
	if gen == s.gen {
		s.apply(page, unread)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Retry re-initialises when the subscription never opened, else refreshes.
func (s *Store) Retry(ctx context.Context) error {
	s.mu.Lock()
	userID, subscribed := s.userID, s.unsubscribe != nil
	s.mu.Unlock()

	if userID == "" {
		return domain.ErrNotReady
	}
	if !subscribed {
		return s.Initialize(ctx, userID)
	}
	return s.Refresh(ctx)
}

// Close drops the subscription and every watcher.
func (s *Store) Close() {
	s.mu.Lock()
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.gen++
	s.state = StateUninitialized
	for id, ch := range s.watchers {
		close(ch)
		delete(s.watchers, id)
	}
	s.mu.Unlock()
	s.pushCancel()
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Find returns a copy of a loaded notification.
func (s *Store) Find(id string) (domain.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.items {
		if n.NotificationID == id {
			return n, true
		}
	}
	return domain.Notification{}, false
}

// Snapshot returns the current read model.
func (s *Store) Snapshot() ReadModel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Watch streams read models, starting with the current one. Slow readers only
// ever see the latest model. The channel closes on cancel or Close.
func (s *Store) Watch() (<-chan ReadModel, func()) {
	ch := make(chan ReadModel, 1)
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	s.watchers[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if w, ok := s.watchers[id]; ok {
			close(w)
			delete(s.watchers, id)
		}
	}
}

// onPush replaces the list with the newest max(pageSize, loaded) items.
func (s *Store) onPush(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	userID := s.userID
	limit := max(s.pageSize, len(s.items))
	s.mu.Unlock()

	fresh, err := s.repo.Page(s.pushCtx, userID, limit, nil)
	if err != nil {
		if s.pushCtx.Err() != nil {
			return
		}
		log.Warn().Err(err).Str("user_id", userID).Msg("live feed re-read failed")
		s.mu.Lock()
		if gen == s.gen {
			s.errMsg = err.Error()
		}
		s.mu.Unlock()
		s.notify()
		return
	}
	s.proc.Apply(s.pushCtx, fresh)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	sortDesc(fresh)
	s.items = fresh
	s.unread = countUnread(fresh)
	s.cursor = nil
	if oldest, ok := oldestTimestamp(fresh); ok {
		s.cursor = &oldest
	}
	s.hasMore = len(fresh) >= limit
	s.errMsg = ""
	// A successful re-read supersedes a failed load.
	if s.state == StateError {
		s.state = StateReady
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) firstPage(ctx context.Context, userID string) ([]domain.Notification, int, error) {
	page, err := s.repo.Page(ctx, userID, s.pageSize, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("load feed: %w", err)
	}
	s.proc.Apply(ctx, page)

	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("unread count failed, counting loaded page")
		unread = countUnread(page)
	}
	return page, unread, nil
}

// apply installs a first page. Caller holds mu.
func (s *Store) apply(page []domain.Notification, unread int) {
	sortDesc(page)
	s.items = page
	s.unread = unread
	s.cursor = nil
	if oldest, ok := oldestTimestamp(page); ok {
		s.cursor = &oldest
	}
	s.hasMore = len(page) == s.pageSize
	s.errMsg = ""
	s.state = StateReady
}

func (s *Store) fail(gen uint64, err error) {
	s.mu.Lock()
	if gen == s.gen {
		s.state = StateError
		s.errMsg = err.Error()
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) snapshotLocked() ReadModel {
	items := make([]domain.Notification, len(s.items))
	copy(items, s.items)
	return ReadModel{
		Notifications: items,
		UnreadCount:   s.unread,
		Loading:       s.state == StateLoading,
		LoadingMore:   s.state == StateLoadingMore,
		Error:         s.errMsg,
		HasMore:       s.hasMore,
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.watchers) == 0 {
		return
	}
	rm := s.snapshotLocked()
	for _, ch := range s.watchers {
		select {
		case <-ch: // drop the stale model
		default:
		}
		ch <- rm
	}
}

// merge adds the notifications of page not already present and keeps the
// list newest first.
func merge(items, page []domain.Notification) []domain.Notification {
	seen := make(map[string]struct{}, len(items))
	for _, n := range items {
		seen[n.NotificationID] = struct{}{}
	}
	for _, n := range page {
		if _, ok := seen[n.NotificationID]; ok {
			continue
		}
		seen[n.NotificationID] = struct{}{}
		items = append(items, n)
	}
	sortDesc(items)
	return items
}

func sortDesc(ns []domain.Notification) {
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].Timestamp > ns[j].Timestamp })
}

func oldestTimestamp(ns []domain.Notification) (int64, bool) {
	if len(ns) == 0 {
		return 0, false
	}
	oldest := ns[0].Timestamp
	for _, n := range ns[1:] {
		oldest = min(oldest, n.Timestamp)
	}
	return oldest, true
}

func countUnread(ns []domain.Notification) int {
	c := 0
	for _, n := range ns {
		if !n.Read {
			c++
		}
	}
	return c
}
