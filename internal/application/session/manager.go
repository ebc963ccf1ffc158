// Package session owns the per-user realtime notification sessions: one feed
// store, one document watcher and one cleanup loop per signed-in user,
// created on sign-in and torn down on sign-out.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/care-notify/internal/application/cleanup"
	"github.com/care-notify/internal/application/dedup"
	"github.com/care-notify/internal/application/feed"
	"github.com/care-notify/internal/application/minting"
	"github.com/care-notify/internal/application/routing"
	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Subscriber is the change-stream source shared by all sessions.
type Subscriber interface {
	Subscribe(path string, onChange func()) (unsubscribe func())
}

// Deps are the collaborators every session is built from.
type Deps struct {
	Feed      feed.Repository
	Changes   Subscriber
	Processor feed.TextProcessor
	Minter    minting.Minter
	Sources   minting.Sources
	Pruner    cleanup.NotificationPruner
	Guard     dedup.Guard
	Archive   cleanup.Archiver // optional
	PageSize  int
	Cleanup   cleanup.Options
	Metrics   *metrics.Metrics
}

type Manager interface {
	SignIn(ctx context.Context, userID string, section domain.Section) (*Session, error)
	SignOut(userID string) error
	Get(userID string) (*Session, error)
	Close()
}

type manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(deps Deps) Manager {
	return &manager{deps: deps, sessions: make(map[string]*Session)}
}

// SignIn returns the user's live session, starting one if needed. A session
// for another section is replaced. A failed first load does not fail sign-in:
// it shows in the read model and Retry re-attempts it.
//
// The new session is built outside the lock; when two sign-ins for the same
// user and section race, the first installed wins and the other is closed.
func (m *manager) SignIn(ctx context.Context, userID string, section domain.Section) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok && s.info.Section == section {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	s := m.start(ctx, userID, section)

	m.mu.Lock()
	old, ok := m.sessions[userID]
	if ok && old.info.Section == section {
		m.mu.Unlock()
		s.close()
		return old, nil
	}
	m.sessions[userID] = s
	m.mu.Unlock()

	m.gauge(1)
	if ok {
		old.close()
		m.gauge(-1)
	}
	return s, nil
}

func (m *manager) SignOut(userID string) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return domain.ErrNoSession
	}
	s.close()
	m.gauge(-1)
	return nil
}

func (m *manager) Get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, domain.ErrNoSession
	}
	return s, nil
}

// Close tears down every session.
func (m *manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
		m.gauge(-1)
	}
}

func (m *manager) start(ctx context.Context, userID string, section domain.Section) *Session {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		info: domain.Session{
			SessionID: uuid.NewString(),
			UserID:    userID,
			Section:   section,
			CreatedAt: time.Now(),
		},
		store:   feed.NewStore(m.deps.Feed, m.deps.Changes, m.deps.Processor, m.deps.PageSize, m.deps.Metrics),
		watcher: minting.NewWatcher(m.sources(), m.deps.Changes, m.deps.Minter, userID, section),
		cancel:  cancel,
	}

	if err := s.store.Initialize(ctx, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("initial feed load failed")
	}
	s.watcher.Start(runCtx)

	task := cleanup.NewTask(userID, m.deps.Pruner, m.deps.Guard, m.deps.Archive, m.deps.Cleanup, m.deps.Metrics)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		task.Start(runCtx)
	}()

	log.Info().Str("user_id", userID).Str("section", string(section)).Str("session_id", s.info.SessionID).Msg("notification session started")
	return s
}

// sources bounds catch-up to the processed-key retention window, past which
// the dedup guard can no longer recognise an item.
func (m *manager) sources() minting.Sources {
	src := m.deps.Sources
	if days := m.deps.Cleanup.KeyRetentionDays; days > 0 {
		src.Horizon = time.Duration(days) * 24 * time.Hour
	}
	return src
}

func (m *manager) gauge(delta float64) {
	if m.deps.Metrics != nil {
		m.deps.Metrics.LiveSessions.Add(delta)
	}
}

// Session is one user's live notification context.
type Session struct {
	info    domain.Session
	store   *feed.Store
	watcher *minting.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
}

func (s *Session) Info() domain.Session { return s.info }

func (s *Session) Feed() *feed.Store { return s.store }

// Press navigates to the notification's target and then marks it read, so the
// read state never flips before the transition starts. navigate may be nil.
func (s *Session) Press(ctx context.Context, notificationID string, navigate func(routing.Target)) (routing.Target, error) {
	n, ok := s.store.Find(notificationID)
	if !ok {
		return routing.Target{}, domain.ErrNotFound
	}
	target, err := routing.Resolve(n, s.info.Section)
	if err != nil {
		return routing.Target{}, err
	}
	if navigate != nil {
		navigate(target)
	}
	if !n.Read {
		if err := s.store.MarkAsRead(ctx, notificationID); err != nil {
			return target, err
		}
	}
	return target, nil
}

func (s *Session) close() {
	s.once.Do(func() {
		s.cancel()
		s.watcher.Stop()
		s.store.Close()
		s.wg.Wait()
		log.Info().Str("user_id", s.info.UserID).Str("session_id", s.info.SessionID).Msg("notification session closed")
	})
}
