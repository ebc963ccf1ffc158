package http

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/care-notify/internal/config"
	jwtinfra "github.com/care-notify/internal/infrastructure/jwt"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (http.Handler, *jwtinfra.Provider) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	p := jwtinfra.NewProviderFromKeys(key, &key.PublicKey, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	cfg := &config.Config{AllowedOrigins: []string{"*"}}
	return NewRouter(ctx, cfg, &Deps{Verifier: p, Metrics: metrics.New("test")}), p
}

func TestRouter_HealthIsPublic(t *testing.T) {
	r, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health-check/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouter_FeedRequiresBearer(t *testing.T) {
	r, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/feed", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouter_FeedRejectsOtherRoles(t *testing.T) {
	r, p := newTestRouter(t)
	tok, err := p.Sign("u1", "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/feed", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "test_live_sessions")
}
