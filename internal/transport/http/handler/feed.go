package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/care-notify/internal/application/session"
	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// keepAlive is how often an idle event stream gets a comment line.
const keepAlive = 25 * time.Second

// FeedHandler exposes the caller's notification session.
type FeedHandler struct {
	sessions session.Manager
}

func NewFeedHandler(sessions session.Manager) *FeedHandler {
	return &FeedHandler{sessions: sessions}
}

// SignIn starts (or reuses) the caller's realtime session. The section follows
// the bearer role.
func (h *FeedHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s, err := h.sessions.SignIn(r.Context(), claims.UserID, domain.SectionForRole(claims.Role))
	if err != nil {
		httpError(w, err)
		return
	}
	info, model := s.Info(), s.Feed().Snapshot()
	writeJSON(w, http.StatusCreated, SessionEnvelope{Session: &info, Feed: &model})
}

func (h *FeedHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.sessions.SignOut(claims.UserID); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "signed out"})
}

func (h *FeedHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Feed().Snapshot())
}

// Events streams the read model as server-sent events until the client leaves
// or the session ends.
func (h *FeedHandler) Events(w http.ResponseWriter, r *http.Request) {
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	models, cancel := s.Feed().Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case model, open := <-models:
			if !open {
				return
			}
			data, err := json.Marshal(model)
			if err != nil {
				log.Error().Err(err).Msg("encode feed event")
				return
			}
			fmt.Fprintf(w, "event: feed\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (h *FeedHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctx context.Context, s *session.Session) error { return s.Feed().LoadMore(ctx) })
}

func (h *FeedHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctx context.Context, s *session.Session) error { return s.Feed().Refresh(ctx) })
}

func (h *FeedHandler) Retry(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctx context.Context, s *session.Session) error { return s.Feed().Retry(ctx) })
}

func (h *FeedHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(ctx context.Context, s *session.Session) error { return s.Feed().MarkAllAsRead(ctx) })
}

func (h *FeedHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.apply(w, r, func(ctx context.Context, s *session.Session) error { return s.Feed().MarkAsRead(ctx, id) })
}

func (h *FeedHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.apply(w, r, func(ctx context.Context, s *session.Session) error { return s.Feed().Delete(ctx, id) })
}

// Press resolves where a notification leads and marks it read. The client
// navigates with the returned route.
func (h *FeedHandler) Press(w http.ResponseWriter, r *http.Request) {
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	target, err := s.Press(r.Context(), chi.URLParam(r, "id"), nil)
	if err != nil && target.Route == "" {
		httpError(w, err)
		return
	}
	if err != nil {
		// Navigation already happened; the feed reloads on its own.
		log.Warn().Err(err).Str("notification_id", chi.URLParam(r, "id")).Msg("mark read after press failed")
	}
	writeJSON(w, http.StatusOK, PressEnvelope{Route: target.Route, Params: target.Params})
}

// apply runs op against the caller's session and answers with the resulting
// read model.
func (h *FeedHandler) apply(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Session) error) {
	s, ok := h.current(w, r)
	if !ok {
		return
	}
	if err := op(r.Context(), s); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Feed().Snapshot())
}

func (h *FeedHandler) current(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	s, err := h.sessions.Get(claims.UserID)
	if err != nil {
		httpError(w, err)
		return nil, false
	}
	return s, true
}
