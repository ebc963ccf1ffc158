package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/care-notify/internal/application/cleanup"
	"github.com/care-notify/internal/application/feed"
	"github.com/care-notify/internal/application/minting"
	"github.com/care-notify/internal/application/session"
	"github.com/care-notify/internal/domain"
	jwtinfra "github.com/care-notify/internal/infrastructure/jwt"
	"github.com/care-notify/internal/infrastructure/stream"
	"github.com/care-notify/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type memFeed struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (f *memFeed) Page(_ context.Context, userID string, limit int, _ *int64) ([]domain.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Notification
	for _, n := range f.items {
		if n.UserID == userID && len(out) < limit {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *memFeed) CountUnread(_ context.Context, userID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := 0
	for _, n := range f.items {
		if n.UserID == userID && !n.Read {
			c++
		}
	}
	return c, nil
}

func (f *memFeed) MarkRead(_ context.Context, _ string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		for i := range f.items {
			if f.items[i].NotificationID == id {
				f.items[i].Read = true
			}
		}
	}
	return nil
}

func (f *memFeed) MarkAllRead(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].UserID == userID {
			f.items[i].Read = true
		}
	}
	return nil
}

func (f *memFeed) Delete(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].NotificationID == id {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type emptySources struct{}

func (emptySources) ListByPatient(context.Context, string) ([]domain.MedicalHistoryEntry, error) {
	return nil, nil
}

func (emptySources) ListByParticipant(context.Context, domain.Section, string) ([]domain.Appointment, error) {
	return nil, nil
}

type emptyReferrals struct{}

func (emptyReferrals) ListByPatient(context.Context, string) ([]domain.Referral, error) {
	return nil, nil
}

type idle struct{}

func (idle) Mint(context.Context, string, domain.Event) (*domain.Notification, error) { return nil, nil }
func (idle) Apply(context.Context, []domain.Notification) {}
func (idle) ListPrunable(context.Context, string, time.Time, time.Time) ([]domain.Notification, error) {
	return nil, nil
}
func (idle) DeleteByIDs(context.Context, []string) error { return nil }
func (idle) IsProcessed(context.Context, string, string) (bool, error) { return false, nil }
func (idle) MarkProcessed(context.Context, string, string) error { return nil }
func (idle) Cleanup(context.Context, string, int) (int, error) { return 0, nil }

// --- helpers ---

func newFeedHandler(t *testing.T, items ...domain.Notification) *FeedHandler {
	t.Helper()
	mgr := session.NewManager(session.Deps{
		Feed:      &memFeed{items: items},
		Changes:   stream.NewHub(),
		Processor: idle{},
		Minter:    idle{},
		Sources:   minting.Sources{History: emptySources{}, Appointments: emptySources{}, Referrals: emptyReferrals{}},
		Pruner:    idle{},
		Guard:     idle{},
		PageSize:  20,
		Cleanup:   cleanup.Options{NotificationRetentionDays: 30, KeyRetentionDays: 60, Interval: time.Hour},
	})
	t.Cleanup(mgr.Close)
	return NewFeedHandler(mgr)
}

func asUser(r *http.Request, userID, role string) *http.Request {
	return r.WithContext(middleware.WithClaims(r.Context(), &jwtinfra.Claims{UserID: userID, Role: role}))
}

// withChiID injects a chi URL param "id" into the request context.
func withChiID(r *http.Request, id string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func signIn(t *testing.T, h *FeedHandler, userID, role string) SessionEnvelope {
	t.Helper()
	rr := httptest.NewRecorder()
	h.SignIn(rr, asUser(httptest.NewRequest(http.MethodPost, "/v1/feed/session", nil), userID, role))
	require.Equal(t, http.StatusCreated, rr.Code)
	var env SessionEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	return env
}

func decodeModel(t *testing.T, rr *httptest.ResponseRecorder) feed.ReadModel {
	t.Helper()
	var m feed.ReadModel
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&m))
	return m
}

var sample = []domain.Notification{
	{NotificationID: "n2", UserID: "u1", Type: domain.TypeAppointment, RelatedID: "a1", Route: "/foo", Timestamp: 200},
	{NotificationID: "n1", UserID: "u1", Type: domain.TypePrescription, RelatedID: "e1", Timestamp: 100},
	{NotificationID: "n0", UserID: "u1", Type: domain.NotificationType("lab"), Timestamp: 50, Read: true},
}

// --- tests ---

func TestFeed_MissingClaims(t *testing.T) {
	h := newFeedHandler(t)
	rr := httptest.NewRecorder()
	h.Get(rr, httptest.NewRequest(http.MethodGet, "/v1/feed", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestFeed_NoSession(t *testing.T) {
	h := newFeedHandler(t)
	rr := httptest.NewRecorder()
	h.Get(rr, asUser(httptest.NewRequest(http.MethodGet, "/v1/feed", nil), "u1", "patient"))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestFeed_SignInReturnsFirstPage(t *testing.T) {
	h := newFeedHandler(t, sample...)
	env := signIn(t, h, "u1", "patient")

	require.NotNil(t, env.Session)
	assert.Equal(t, domain.SectionPatient, env.Session.Section)
	require.NotNil(t, env.Feed)
	require.Len(t, env.Feed.Notifications, 3)
	assert.Equal(t, "n2", env.Feed.Notifications[0].NotificationID)
	assert.Equal(t, 2, env.Feed.UnreadCount)
}

func TestFeed_MarkAsRead(t *testing.T) {
	h := newFeedHandler(t, sample...)
	signIn(t, h, "u1", "patient")

	rr := httptest.NewRecorder()
	req := withChiID(asUser(httptest.NewRequest(http.MethodPut, "/v1/feed/notifications/n1/read", nil), "u1", "patient"), "n1")
	h.MarkAsRead(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 1, decodeModel(t, rr).UnreadCount)
}

func TestFeed_MarkAllAsRead(t *testing.T) {
	h := newFeedHandler(t, sample...)
	signIn(t, h, "u1", "patient")

	rr := httptest.NewRecorder()
	h.MarkAllAsRead(rr, asUser(httptest.NewRequest(http.MethodPut, "/v1/feed/read-all", nil), "u1", "patient"))
	require.Equal(t, http.StatusOK, rr.Code)
	m := decodeModel(t, rr)
	assert.Zero(t, m.UnreadCount)
	for _, n := range m.Notifications {
		assert.True(t, n.Read, n.NotificationID)
	}
}

func TestFeed_Delete(t *testing.T) {
	h := newFeedHandler(t, sample...)
	signIn(t, h, "u1", "patient")

	rr := httptest.NewRecorder()
	req := withChiID(asUser(httptest.NewRequest(http.MethodDelete, "/v1/feed/notifications/n2", nil), "u1", "patient"), "n2")
	h.Delete(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	m := decodeModel(t, rr)
	require.Len(t, m.Notifications, 2)
	assert.Equal(t, "n1", m.Notifications[0].NotificationID)
	assert.Equal(t, 1, m.UnreadCount)
}

func TestFeed_PressAppointmentIgnoresStoredRoute(t *testing.T) {
	h := newFeedHandler(t, sample...)
	signIn(t, h, "u1", "specialist")

	rr := httptest.NewRecorder()
	req := withChiID(asUser(httptest.NewRequest(http.MethodPost, "/v1/feed/notifications/n2/press", nil), "u1", "specialist"), "n2")
	h.Press(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var env PressEnvelope
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&env))
	assert.Equal(t, "/specialist/visit-overview", env.Route)
	assert.Equal(t, map[string]string{"appointmentId": "a1"}, env.Params)

	rr = httptest.NewRecorder()
	h.Get(rr, asUser(httptest.NewRequest(http.MethodGet, "/v1/feed", nil), "u1", "specialist"))
	assert.Equal(t, 1, decodeModel(t, rr).UnreadCount)
}

func TestFeed_PressErrors(t *testing.T) {
	h := newFeedHandler(t, sample...)
	signIn(t, h, "u1", "patient")

	tests := []struct {
		id   string
		want int
	}{
		{"missing", http.StatusNotFound},
		{"n0", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		req := withChiID(asUser(httptest.NewRequest(http.MethodPost, "/v1/feed/notifications/"+tt.id+"/press", nil), "u1", "patient"), tt.id)
		h.Press(rr, req)
		assert.Equal(t, tt.want, rr.Code, tt.id)
	}
}

func TestFeed_SignOut(t *testing.T) {
	h := newFeedHandler(t, sample...)
	signIn(t, h, "u1", "patient")

	rr := httptest.NewRecorder()
	h.SignOut(rr, asUser(httptest.NewRequest(http.MethodDelete, "/v1/feed/session", nil), "u1", "patient"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.SignOut(rr, asUser(httptest.NewRequest(http.MethodDelete, "/v1/feed/session", nil), "u1", "patient"))
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestFeed_EventsStreamsReadModel(t *testing.T) {
	h := newFeedHandler(t, sample...)
	signIn(t, h, "u1", "patient")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Events(w, asUser(r, "u1", "patient"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	var data string
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	require.NotEmpty(t, data)

	var m feed.ReadModel
	require.NoError(t, json.Unmarshal([]byte(data), &m))
	assert.Len(t, m.Notifications, 3)
	assert.Equal(t, 2, m.UnreadCount)
}
