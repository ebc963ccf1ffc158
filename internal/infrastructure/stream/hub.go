// Package stream delivers change signals for document paths to in-process
// subscribers. Signals carry no payload: a subscriber re-reads whatever it
// cares about when told that data under its path changed.
package stream

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Relay forwards locally published changes to other instances.
type Relay interface {
	Forward(ctx context.Context, path string) error
}

type subscription struct {
	path     string
	onChange func()
	signal   chan struct{} // 1-slot; pending signals coalesce
	done     chan struct{}
	once     sync.Once
}

// Hub is a path → subscriber-set registry. Each subscription runs its callback
// on its own goroutine, so callbacks for one subscription never overlap and a
// burst of changes collapses into a single pending signal.
type Hub struct {
	mu    sync.RWMutex
	subs  map[string]map[*subscription]struct{}
	relay Relay
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscription]struct{})}
}

// SetRelay installs a relay used by Publish. Call before serving traffic.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	h.relay = r
	h.mu.Unlock()
}

// Subscribe invokes onChange after every change under path until the returned
// func is called. Unsubscribing is idempotent.
func (h *Hub) Subscribe(path string, onChange func()) (unsubscribe func()) {
	s := &subscription{
		path:     path,
		onChange: onChange,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	h.mu.Lock()
	if h.subs[path] == nil {
		h.subs[path] = make(map[*subscription]struct{})
	}
	h.subs[path][s] = struct{}{}
	h.mu.Unlock()

	go s.run()

	return func() { h.remove(s) }
}

func (h *Hub) remove(s *subscription) {
	s.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.subs[s.path]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.path)
			}
		}
		h.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
			select {
			case <-s.done:
				return
			default:
			}
			s.onChange()
		}
	}
}

// Deliver signals local subscribers of path only.
func (h *Hub) Deliver(path string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs[path] {
		select {
		case s.signal <- struct{}{}:
		default:
			// a signal is already pending
		}
	}
}

// Publish signals local subscribers and forwards the change through the relay
// when one is installed. Relay failures are logged.
func (h *Hub) Publish(ctx context.Context, path string) {
	h.Deliver(path)

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()
	if relay == nil {
		return
	}
	if err := relay.Forward(ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("could not relay change")
	}
}

// Subscribers returns the number of live subscriptions on path.
func (h *Hub) Subscribers(path string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[path])
}
