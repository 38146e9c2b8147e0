package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/collivery/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Port)
	assert.Equal(t, config.CacheFile, cfg.CacheBackend)
	assert.Zero(t, cfg.CacheMirrorTTL)
	assert.Equal(t, "rest", cfg.ColliveryTransport)
	assert.Equal(t, 30*time.Second, cfg.ColliveryTimeout)
	assert.True(t, cfg.CheckoutAutoAccept)
	assert.Equal(t, "MDS Collivery.net", cfg.Checkout().Title)
}

func TestLoad_CheckoutSettings(t *testing.T) {
	t.Setenv("CHECKOUT_SERVICES", "1,2,5")
	t.Setenv("CHECKOUT_MARKUP", "2:10,5:0.25")
	t.Setenv("CHECKOUT_DISPLAY_NAMES", "5:Economy")
	t.Setenv("CHECKOUT_WORDING", "2:Express")
	t.Setenv("CHECKOUT_ROUND", "true")

	cfg, err := config.Load()
	require.NoError(t, err)

	settings := cfg.Checkout()
	assert.Equal(t, []int{1, 2, 5}, settings.Services)
	assert.Equal(t, map[int]float64{2: 10, 5: 0.25}, settings.Markup)
	assert.Equal(t, map[int]string{5: "Economy"}, settings.DisplayNames)
	assert.Equal(t, map[int]string{2: "Express"}, settings.Wording)
	assert.True(t, settings.Round)
}

func TestLoad_Collivery(t *testing.T) {
	t.Setenv("COLLIVERY_USERNAME", "shop@example.com")
	t.Setenv("COLLIVERY_PASSWORD", "secret")
	t.Setenv("COLLIVERY_TRANSPORT", "soap")
	t.Setenv("COLLIVERY_APP_HOST", "shop.example.com")

	cfg, err := config.Load()
	require.NoError(t, err)

	c := cfg.Collivery()
	assert.Equal(t, "shop@example.com", c.Username)
	assert.Equal(t, "secret", c.Password)
	assert.Equal(t, "soap", c.Transport)
	assert.Equal(t, "shop.example.com", c.App.Host)
	assert.Equal(t, "Go", c.App.Lang)
	assert.Contains(t, cfg.Attributes(), attribute.Bool("collivery.sandbox", false))
}

func TestLoad_SandboxAttribute(t *testing.T) {
	t.Setenv("COLLIVERY_USERNAME", "not-an-email")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Contains(t, cfg.Attributes(), attribute.Bool("collivery.sandbox", true))
}

func TestLoad_InvalidCacheBackend(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "redis")

	_, err := config.Load()

	assert.ErrorContains(t, err, "CACHE_BACKEND")
}

func TestLoad_PostgresNeedsDSN(t *testing.T) {
	t.Setenv("CACHE_BACKEND", "postgres")

	_, err := config.Load()
	assert.ErrorContains(t, err, "CACHE_POSTGRES_DSN")

	t.Setenv("CACHE_POSTGRES_DSN", "postgres://localhost/collivery")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.CachePostgres, cfg.CacheBackend)
}
