package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type checkFunc func(context.Context) error

func (f checkFunc) Check(ctx context.Context) error { return f(ctx) }

func healthRequest(action string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/v1/health-check/"+action, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("action", action)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestHealth_Ping(t *testing.T) {
	h := NewHealthHandler(nil)
	rr := httptest.NewRecorder()
	h.Ping(rr, healthRequest("ping"))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "pong")
}

func TestHealth_Ready(t *testing.T) {
	ok := checkFunc(func(context.Context) error { return nil })
	down := checkFunc(func(context.Context) error { return errors.New("timeout") })

	rr := httptest.NewRecorder()
	NewHealthHandler(map[string]Checker{"dynamodb": ok}).Ping(rr, healthRequest("ready"))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	NewHealthHandler(map[string]Checker{"dynamodb": ok, "redis": down}).Ping(rr, healthRequest("ready"))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "redis unavailable")
}

func TestHealth_UnknownAction(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandler(nil).Ping(rr, healthRequest("explode"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
