package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/care-notify/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockKeyStore struct{ mock.Mock }

func (m *mockKeyStore) Exists(ctx context.Context, userID, key string) (bool, error) {
	args := m.Called(ctx, userID, key)
	return args.Bool(0), args.Error(1)
}
func (m *mockKeyStore) Put(ctx context.Context, k *domain.ProcessedEventKey) error {
	return m.Called(ctx, k).Error(0)
}
func (m *mockKeyStore) DeleteOlderThan(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	args := m.Called(ctx, userID, cutoff)
	return args.Int(0), args.Error(1)
}

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestGuard(store KeyStore) *guard {
	return &guard{store: store, retention: 60 * 24 * time.Hour, now: func() time.Time { return fixedNow }}
}

func TestIsProcessed(t *testing.T) {
	store := &mockKeyStore{}
	store.On("Exists", mock.Anything, "u1", "prescription-e1-Lisinopril").Return(true, nil)
	store.On("Exists", mock.Anything, "u1", "certificate-e1-sick-leave").Return(false, nil)
	g := newTestGuard(store)

	ok, err := g.IsProcessed(context.Background(), "u1", "prescription-e1-Lisinopril")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsProcessed(context.Background(), "u1", "certificate-e1-sick-leave")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsProcessed_StoreError(t *testing.T) {
	store := &mockKeyStore{}
	store.On("Exists", mock.Anything, "u1", "k").Return(false, errors.New("timeout"))

	_, err := newTestGuard(store).IsProcessed(context.Background(), "u1", "k")
	assert.ErrorContains(t, err, "timeout")
}

func TestMarkProcessed_StampsTimeAndTTL(t *testing.T) {
	store := &mockKeyStore{}
	store.On("Put", mock.Anything, mock.MatchedBy(func(k *domain.ProcessedEventKey) bool {
		return k.UserID == "u1" &&
			k.Key == "referral-r1" &&
			k.ProcessedAt == fixedNow.UnixMilli() &&
			k.ExpiresAt == fixedNow.Add(60*24*time.Hour).Unix()
	})).Return(nil).Twice()
	g := newTestGuard(store)

	require.NoError(t, g.MarkProcessed(context.Background(), "u1", "referral-r1"))
	require.NoError(t, g.MarkProcessed(context.Background(), "u1", "referral-r1"))
	store.AssertExpectations(t)
}

func TestCleanup_UsesDayCutoff(t *testing.T) {
	store := &mockKeyStore{}
	store.On("DeleteOlderThan", mock.Anything, "u1", fixedNow.AddDate(0, 0, -60)).Return(3, nil)

	n, err := newTestGuard(store).Cleanup(context.Background(), "u1", 60)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestCleanup_RejectsNonPositiveWindow(t *testing.T) {
	store := &mockKeyStore{}

	_, err := newTestGuard(store).Cleanup(context.Background(), "u1", 0)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	store.AssertNotCalled(t, "DeleteOlderThan", mock.Anything, mock.Anything, mock.Anything)
}
