package warmup_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/collivery/internal/warmup"
	"github.com/tournevent/collivery/pkg/cache"
	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func testOptions() warmup.Options {
	return warmup.Options{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
		Logger:      otelzap.New(zap.NewNop()),
	}
}

func clientFactory(mockAPI *collivery.MockAPIClient, password string) (func() *collivery.Client, *cache.Cache) {
	shared := cache.New(cache.NewMemoryStore())
	logger := otelzap.New(zap.NewNop())
	return func() *collivery.Client {
		return collivery.NewWithAPIClient(collivery.Config{Username: "shop@example.com", Password: password},
			mockAPI, shared, logger, nil)
	}, shared
}

func unavailable() error {
	return &collivery.APIError{Kind: collivery.KindHTTP, Code: "http", Message: "HTTP 503: Service Unavailable", StatusCode: 503}
}

func TestRun_FillsSharedCache(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	newClient, _ := clientFactory(mockAPI, "secret")
	ctx := context.Background()

	result, err := warmup.Run(ctx, newClient, testOptions())

	require.NoError(t, err)
	assert.Equal(t, warmup.Result{
		"towns":          3,
		"suburbs":        5,
		"location_types": 3,
		"parcel_types":   3,
		"services":       4,
	}, result)

	client := newClient()
	_, err = client.Towns(ctx, collivery.DefaultCountry, "")
	require.NoError(t, err)
	_, err = client.Services(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, mockAPI.Calls("GetTowns"))
	assert.Equal(t, 1, mockAPI.Calls("GetServices"))
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	var failures atomic.Int32
	mockAPI.OnGetServices = func(ctx context.Context) (collivery.ReferenceSet, error) {
		if failures.Add(1) <= 2 {
			return nil, unavailable()
		}
		return collivery.ReferenceSet{1: "Overnight Before 10:00"}, nil
	}
	newClient, _ := clientFactory(mockAPI, "secret")

	result, err := warmup.Run(context.Background(), newClient, testOptions())

	require.NoError(t, err)
	assert.Equal(t, 1, result["services"])
	assert.Equal(t, 3, mockAPI.Calls("GetServices"))
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	mockAPI.OnGetTowns = func(ctx context.Context, country, province string) (collivery.ReferenceSet, error) {
		return nil, unavailable()
	}
	newClient, _ := clientFactory(mockAPI, "secret")

	result, err := warmup.Run(context.Background(), newClient, testOptions())

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Contains(t, err.Error(), "warming towns")
	ledger, ok := collivery.AsLedger(err)
	require.True(t, ok)
	assert.True(t, ledger.HasKind(collivery.KindHTTP))
	assert.Equal(t, 4, mockAPI.Calls("GetTowns"))
}

func TestRun_AuthFailureIsNotRetried(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	newClient, _ := clientFactory(mockAPI, "")

	_, err := warmup.Run(context.Background(), newClient, testOptions())

	require.Error(t, err)
	ledger, ok := collivery.AsLedger(err)
	require.True(t, ok)
	assert.True(t, ledger.HasKind(collivery.KindAuth))
	assert.Equal(t, 5, mockAPI.Calls("Authenticate"))
}

func TestRun_CancelledContext(t *testing.T) {
	mockAPI := collivery.NewMockAPIClient()
	mockAPI.OnGetTowns = func(ctx context.Context, country, province string) (collivery.ReferenceSet, error) {
		return nil, unavailable()
	}
	newClient, _ := clientFactory(mockAPI, "secret")
	opts := testOptions()
	opts.MaxRetries = 100
	opts.BaseBackoff = 50 * time.Millisecond
	opts.MaxBackoff = 50 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := warmup.Run(ctx, newClient, opts)

	require.Error(t, err)
	assert.Less(t, mockAPI.Calls("GetTowns"), 100)
}
