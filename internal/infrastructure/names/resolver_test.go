package names

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/care-notify/internal/domain"
	"github.com/care-notify/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	names map[string]string
	err   error
	calls int
}

func (f *fakeLookup) Name(_ context.Context, id string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if n, ok := f.names[id]; ok {
		return n, nil
	}
	return "", domain.ErrNotFound
}

func TestClinicResolver_CachesHits(t *testing.T) {
	lookup := &fakeLookup{names: map[string]string{"clinic-abc123": "Riverside Clinic"}}
	m := metrics.New("test")
	r := NewClinicResolver(lookup, time.Minute, m)

	for i := 0; i < 3; i++ {
		name, err := r.ResolveName(context.Background(), "clinic-abc123")
		require.NoError(t, err)
		assert.Equal(t, "Riverside Clinic", name)
	}
	assert.Equal(t, 1, lookup.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NameLookups.WithLabelValues("hit")))
}

func TestClinicResolver_RemembersUnknownIDs(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewClinicResolver(lookup, time.Minute, nil)

	_, err := r.ResolveName(context.Background(), "clinic-x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = r.ResolveName(context.Background(), "clinic-x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, 1, lookup.calls)
}

func TestClinicResolver_BreakerOpensOnRepeatedFailures(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("throttled")}
	r := NewClinicResolver(lookup, time.Minute, nil)

	for i := 0; i < 4; i++ {
		_, err := r.ResolveName(context.Background(), "clinic-x")
		require.Error(t, err)
	}
	_, err := r.ResolveName(context.Background(), "clinic-x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 4, lookup.calls)
}

func TestClinicResolver_UnknownIDsDoNotTripBreaker(t *testing.T) {
	lookup := &fakeLookup{}
	r := NewClinicResolver(lookup, time.Minute, nil)

	for i := 0; i < 6; i++ {
		_, _ = r.ResolveName(context.Background(), "clinic-"+string(rune('a'+i)))
	}
	assert.Equal(t, gobreaker.StateClosed, r.breaker.State())
	assert.Equal(t, 6, lookup.calls)
}
