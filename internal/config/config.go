package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/tournevent/collivery/pkg/checkout"
	"github.com/tournevent/collivery/pkg/collivery"
	"go.opentelemetry.io/otel/attribute"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheFile     = "file"
	CacheSQLite   = "sqlite"
	CachePostgres = "postgres"
	CacheMemory   = "memory"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Collivery
	ColliveryUsername   string        `envconfig:"COLLIVERY_USERNAME"`
	ColliveryPassword   string        `envconfig:"COLLIVERY_PASSWORD"`
	ColliveryTransport  string        `envconfig:"COLLIVERY_TRANSPORT" default:"rest"`
	ColliveryBaseURL    string        `envconfig:"COLLIVERY_BASE_URL" default:"https://api.collivery.co.za/v3/"`
	ColliverySOAPURL    string        `envconfig:"COLLIVERY_SOAP_URL" default:"https://www.collivery.co.za/wsdl/v2"`
	ColliveryTimeout    time.Duration `envconfig:"COLLIVERY_TIMEOUT" default:"30s"`
	ColliveryAppName    string        `envconfig:"COLLIVERY_APP_NAME" default:"Tournevent Collivery"`
	ColliveryAppVersion string        `envconfig:"COLLIVERY_APP_VERSION" default:"0.0.1"`
	ColliveryAppHost    string        `envconfig:"COLLIVERY_APP_HOST"`
	ColliveryAppURL     string        `envconfig:"COLLIVERY_APP_URL"`
	ColliveryAppLang    string        `envconfig:"COLLIVERY_APP_LANG" default:"Go"`

	// Cache
	CacheBackend     string        `envconfig:"CACHE_BACKEND" default:"file"`
	CacheDir         string        `envconfig:"CACHE_DIR" default:"./cache"`
	CacheSQLitePath  string        `envconfig:"CACHE_SQLITE_PATH" default:"./cache/collivery.db"`
	CachePostgresDSN string        `envconfig:"CACHE_POSTGRES_DSN"`
	CacheMirrorTTL   time.Duration `envconfig:"CACHE_MIRROR_TTL" default:"0s"`

	// Checkout
	CheckoutTitle             string          `envconfig:"CHECKOUT_TITLE" default:"MDS Collivery.net"`
	CheckoutInsurance         bool            `envconfig:"CHECKOUT_INSURANCE" default:"false"`
	CheckoutRica              bool            `envconfig:"CHECKOUT_RICA" default:"false"`
	CheckoutTaxClassID        int             `envconfig:"CHECKOUT_TAX_CLASS_ID" default:"0"`
	CheckoutGeoZoneID         int             `envconfig:"CHECKOUT_GEO_ZONE_ID" default:"0"`
	CheckoutAutoCreateAddress bool            `envconfig:"CHECKOUT_AUTO_CREATE_ADDRESS" default:"false"`
	CheckoutAutoCreateWaybill bool            `envconfig:"CHECKOUT_AUTO_CREATE_WAYBILL" default:"false"`
	CheckoutAutoAccept        bool            `envconfig:"CHECKOUT_AUTO_ACCEPT" default:"true"`
	CheckoutRound             bool            `envconfig:"CHECKOUT_ROUND" default:"false"`
	CheckoutServices          []int           `envconfig:"CHECKOUT_SERVICES"`
	CheckoutMarkup            map[int]float64 `envconfig:"CHECKOUT_MARKUP"`
	CheckoutDisplayNames      map[int]string  `envconfig:"CHECKOUT_DISPLAY_NAMES"`
	CheckoutWording           map[int]string  `envconfig:"CHECKOUT_WORDING"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"true"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://jaeger-collector.claude.svc.cluster.local:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"tournevent-collivery"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	switch cfg.CacheBackend {
	case CacheFile, CacheSQLite, CachePostgres, CacheMemory:
	default:
		return nil, fmt.Errorf("loading config: unknown CACHE_BACKEND %q", cfg.CacheBackend)
	}
	if cfg.CacheBackend == CachePostgres && cfg.CachePostgresDSN == "" {
		return nil, fmt.Errorf("loading config: CACHE_POSTGRES_DSN is required for the postgres cache")
	}
	return &cfg, nil
}

// Collivery returns the carrier client configuration.
func (c *Config) Collivery() collivery.Config {
	return collivery.Config{
		Username:  c.ColliveryUsername,
		Password:  c.ColliveryPassword,
		Transport: c.ColliveryTransport,
		BaseURL:   c.ColliveryBaseURL,
		SOAPURL:   c.ColliverySOAPURL,
		Timeout:   c.ColliveryTimeout,
		App: collivery.AppInfo{
			Name:    c.ColliveryAppName,
			Version: c.ColliveryAppVersion,
			Host:    c.ColliveryAppHost,
			URL:     c.ColliveryAppURL,
			Lang:    c.ColliveryAppLang,
		},
	}
}

// Checkout returns the checkout settings.
func (c *Config) Checkout() checkout.Settings {
	return checkout.Settings{
		Title:             c.CheckoutTitle,
		TaxClassID:        c.CheckoutTaxClassID,
		GeoZoneID:         c.CheckoutGeoZoneID,
		Insurance:         c.CheckoutInsurance,
		Rica:              c.CheckoutRica,
		AutoCreateAddress: c.CheckoutAutoCreateAddress,
		AutoCreateWaybill: c.CheckoutAutoCreateWaybill,
		AutoAccept:        c.CheckoutAutoAccept,
		Round:             c.CheckoutRound,
		Services:          c.CheckoutServices,
		Markup:            c.CheckoutMarkup,
		DisplayNames:      c.CheckoutDisplayNames,
		Wording:           c.CheckoutWording,
	}
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.String("collivery.transport", c.ColliveryTransport),
		attribute.String("collivery.cache", c.CacheBackend),
		attribute.Bool("collivery.sandbox", collivery.IsSandboxUsername(c.ColliveryUsername)),
	}
}
