package http

import (
	"github.com/care-notify/internal/application/session"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/care-notify/internal/transport/http/handler"
	"github.com/care-notify/internal/transport/http/middleware"
)

// Deps holds everything the router needs.
type Deps struct {
	Sessions session.Manager
	Verifier middleware.TokenVerifier
	Metrics  *metrics.Metrics
	// Checks back the readiness probe.
	Checks map[string]handler.Checker
}
