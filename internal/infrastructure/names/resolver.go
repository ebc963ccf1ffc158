// Package names resolves opaque clinic ids into display names.
package names

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ClinicLookup is the backing store. *dynamo.ClinicRepo satisfies it.
type ClinicLookup interface {
	Name(ctx context.Context, clinicID string) (string, error)
}

// negativeTTL bounds how long an unknown id is remembered.
const negativeTTL = time.Minute

// ClinicResolver caches lookups and stops calling the store while it is failing.
type ClinicResolver struct {
	lookup  ClinicLookup
	cache   *cache.Cache
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Metrics
}

func NewClinicResolver(lookup ClinicLookup, ttl time.Duration, m *metrics.Metrics) *ClinicResolver {
	return &ClinicResolver{
		lookup: lookup,
		cache:  cache.New(ttl, 2*ttl),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "clinic-names",
			MaxRequests: 1,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 3
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, domain.ErrNotFound)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
		metrics: m,
	}
}

// ResolveName returns the clinic's display name. Unknown ids and an open
// breaker are errors; callers keep the original text.
func (r *ClinicResolver) ResolveName(ctx context.Context, clinicID string) (string, error) {
	if v, ok := r.cache.Get(clinicID); ok {
		name := v.(string)
		if name == "" {
			r.count("negative_hit")
			return "", fmt.Errorf("clinic %s: %w", clinicID, domain.ErrNotFound)
		}
		r.count("hit")
		return name, nil
	}

	v, err := r.breaker.Execute(func() (interface{}, error) {
		return r.lookup.Name(ctx, clinicID)
	})
	switch {
	case err == nil:
		name := v.(string)
		r.cache.SetDefault(clinicID, name)
		r.count("resolved")
		return name, nil
	case errors.Is(err, domain.ErrNotFound):
		r.cache.Set(clinicID, "", negativeTTL)
		r.count("unknown")
		return "", err
	default:
		r.count("error")
		return "", fmt.Errorf("resolve clinic %s: %w", clinicID, err)
	}
}

func (r *ClinicResolver) count(result string) {
	if r.metrics != nil {
		r.metrics.NameLookups.WithLabelValues(result).Inc()
	}
}
