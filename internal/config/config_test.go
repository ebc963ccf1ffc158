package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, "notifications", cfg.DynamoTables.Notifications)
	assert.Equal(t, "processed_notifications", cfg.DynamoTables.ProcessedKeys)
	assert.Equal(t, 20, cfg.FeedPageSize)
	assert.Equal(t, 30, cfg.NotificationRetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.CleanupInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.False(t, cfg.StreamsEnabled)
}

func TestLoad_StreamsDefaultOnOutsideDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.StreamsEnabled)
}

func TestLoad_StreamsExplicitlyDisabled(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STREAMS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.StreamsEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("DYNAMO_TABLE_NOTIFICATIONS", "notif_test")
	t.Setenv("FEED_PAGE_SIZE", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("STREAMS_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.AppPort)
	assert.Equal(t, "notif_test", cfg.DynamoTables.Notifications)
	assert.Equal(t, 5, cfg.FeedPageSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.StreamsEnabled)
}

func TestLoad_RejectsNonPositivePageSize(t *testing.T) {
	t.Setenv("FEED_PAGE_SIZE", "0")

	_, err := Load()
	assert.ErrorContains(t, err, "FEED_PAGE_SIZE")
}
