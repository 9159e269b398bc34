// Package aggregate fans metric queries out in parallel and reduces the
// nullable series they return into display-ready scalars.
package aggregate

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

// SeriesFetcher is the single backend operation the aggregator needs.
type SeriesFetcher interface {
	LinearIntValues(ctx context.Context, metricName, entityID string, d models.Duration) (models.MetricSeries, error)
}

// DefaultConcurrency bounds how many metric queries run at once per batch.
const DefaultConcurrency = 4

// Aggregator runs batched metric fetches against one backend.
type Aggregator struct {
	fetcher     SeriesFetcher
	logger      *slog.Logger
	concurrency int
}

// NewAggregator wires an aggregator to a backend fetcher. Concurrency values
// below one fall back to the default.
func NewAggregator(fetcher SeriesFetcher, logger *slog.Logger, concurrency int) *Aggregator {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Aggregator{fetcher: fetcher, logger: logger, concurrency: concurrency}
}

// FetchSeries queries every named metric for the entity concurrently and
// returns a map keyed by metric name. A failed metric contributes an empty
// series rather than failing the batch, so one bad metric cannot blank an
// entire page.
func (a *Aggregator) FetchSeries(ctx context.Context, metricNames []string, entityID string, d models.Duration) map[string]models.MetricSeries {
	out := make(map[string]models.MetricSeries, len(metricNames))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, a.concurrency)
	)
	for _, name := range metricNames {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			series, err := a.fetcher.LinearIntValues(ctx, name, entityID, d)
			if err != nil {
				a.logger.Warn("metric fetch failed, substituting empty series",
					"metric", name, "entity", entityID, "error", err)
				series = models.MetricSeries{}
			}

			mu.Lock()
			out[name] = series
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return out
}

// Average reduces a series to the mean of its non-null values. A series with
// no usable values averages to zero rather than NaN.
func Average(s models.MetricSeries) float64 {
	sum, count := 0.0, 0
	for _, v := range s {
		if v.Value == nil {
			continue
		}
		sum += *v.Value
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// LastValid returns the most recent non-null value, scanning from the newest
// bucket backwards. Nil means the whole series was empty.
func LastValid(s models.MetricSeries) *float64 {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Value != nil {
			v := *s[i].Value
			return &v
		}
	}
	return nil
}

// SLAPercent converts the backend's hundredths-of-a-percent SLA encoding
// (10000 = 100%) to a percentage.
func SLAPercent(v float64) float64 {
	return v / 100
}

// BytesToMB converts a byte count to mebibytes.
func BytesToMB(v float64) float64 {
	return v / 1024 / 1024
}

// Round2 rounds to two decimal places for display values.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
