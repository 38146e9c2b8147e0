// Package warmup prefetches carrier reference data into the shared cache.
package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tournevent/collivery/pkg/collivery"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes a warm-up run.
type Options struct {
	// MaxRetries is the number of retries after a failed fetch.
	MaxRetries  uint64
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Logger      *otelzap.Logger
}

// DefaultOptions returns the options used by the warm command.
func DefaultOptions(logger *otelzap.Logger) Options {
	return Options{
		MaxRetries:  3,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
		Logger:      logger,
	}
}

// Result reports how many entries each task cached.
type Result map[string]int

type task struct {
	name  string
	fetch func(ctx context.Context, c *collivery.Client) (collivery.ReferenceSet, error)
}

var tasks = []task{
	{"towns", func(ctx context.Context, c *collivery.Client) (collivery.ReferenceSet, error) {
		return c.Towns(ctx, collivery.DefaultCountry, "")
	}},
	{"suburbs", func(ctx context.Context, c *collivery.Client) (collivery.ReferenceSet, error) {
		return c.Suburbs(ctx, 0)
	}},
	{"location_types", func(ctx context.Context, c *collivery.Client) (collivery.ReferenceSet, error) {
		return c.LocationTypes(ctx)
	}},
	{"parcel_types", func(ctx context.Context, c *collivery.Client) (collivery.ReferenceSet, error) {
		return c.ParcelTypes(ctx)
	}},
	{"services", func(ctx context.Context, c *collivery.Client) (collivery.ReferenceSet, error) {
		return c.Services(ctx)
	}},
}

// Run fetches every reference list concurrently. Each task gets its own client
// from newClient, since a client serves one caller at a time; clients should
// share a cache for the run to be useful. The first task to exhaust its retries
// cancels the rest.
func Run(ctx context.Context, newClient func() *collivery.Client, opts Options) (Result, error) {
	results := make([]int, len(tasks))
	g, ctx := errgroup.WithContext(ctx)

	for i, t := range tasks {
		client := newClient()
		g.Go(func() error {
			n, err := fetchWithRetry(ctx, client, t, opts)
			if err != nil {
				return fmt.Errorf("warming %s: %w", t.name, err)
			}
			results[i] = n
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(Result, len(tasks))
	for i, t := range tasks {
		out[t.name] = results[i]
	}
	return out, nil
}

func fetchWithRetry(ctx context.Context, client *collivery.Client, t task, opts Options) (int, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = opts.BaseBackoff
	exp.MaxInterval = opts.MaxBackoff
	exp.Multiplier = 2
	exp.MaxElapsedTime = 0

	var n int
	attempt := 0
	op := func() error {
		attempt++
		set, err := t.fetch(ctx, client)
		if err != nil {
			if ledger, ok := collivery.AsLedger(err); ok && ledger.HasKind(collivery.KindAuth) {
				return backoff.Permanent(err)
			}
			return err
		}
		n = len(set)
		return nil
	}
	notify := func(err error, wait time.Duration) {
		if opts.Logger != nil {
			opts.Logger.Ctx(ctx).Warn("Warm-up fetch failed, retrying",
				zap.String("task", t.name),
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(exp, opts.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return 0, err
	}
	if opts.Logger != nil {
		opts.Logger.Ctx(ctx).Info("Warmed Collivery reference data", zap.String("task", t.name), zap.Int("entries", n))
	}
	return n, nil
}
