package aggregate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

func ptr(v float64) *float64 { return &v }

func series(values ...*float64) models.MetricSeries {
	s := make(models.MetricSeries, 0, len(values))
	for i, v := range values {
		s = append(s, models.MetricValue{ID: string(rune('a' + i)), Value: v})
	}
	return s
}

type stubFetcher struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	fail     map[string]bool
	data     map[string]models.MetricSeries
}

func (f *stubFetcher) LinearIntValues(_ context.Context, name, _ string, _ models.Duration) (models.MetricSeries, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.fail[name] {
		return nil, errors.New("backend unavailable")
	}
	return f.data[name], nil
}

func TestFetchSeriesPartialFailure(t *testing.T) {
	fetcher := &stubFetcher{
		fail: map[string]bool{"service_sla": true},
		data: map[string]models.MetricSeries{
			"service_resp_time": series(ptr(120), ptr(130)),
			"service_cpm":       series(ptr(40)),
		},
	}
	a := NewAggregator(fetcher, slog.Default(), 2)

	got := a.FetchSeries(context.Background(), []string{"service_resp_time", "service_sla", "service_cpm"}, "svc-1", models.Duration{})

	if len(got) != 3 {
		t.Fatalf("result keys = %d, want every requested metric", len(got))
	}
	if len(got["service_resp_time"]) != 2 {
		t.Errorf("resp_time series = %+v", got["service_resp_time"])
	}
	if len(got["service_sla"]) != 0 {
		t.Errorf("failed metric should yield empty series, got %+v", got["service_sla"])
	}
}

func TestFetchSeriesBoundsConcurrency(t *testing.T) {
	fetcher := &stubFetcher{data: map[string]models.MetricSeries{}}
	a := NewAggregator(fetcher, slog.Default(), 2)

	names := []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"}
	a.FetchSeries(context.Background(), names, "svc-1", models.Duration{})

	if fetcher.peak > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", fetcher.peak)
	}
}

func TestAverage(t *testing.T) {
	cases := []struct {
		name string
		s    models.MetricSeries
		want float64
	}{
		{"all valid", series(ptr(10), ptr(20), ptr(30)), 20},
		{"nulls skipped", series(ptr(10), nil, ptr(30), nil), 20},
		{"all null", series(nil, nil), 0},
		{"empty", nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Average(tc.s); got != tc.want {
				t.Fatalf("Average = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLastValid(t *testing.T) {
	if got := LastValid(series(ptr(1), ptr(2), nil, nil)); got == nil || *got != 2 {
		t.Fatalf("LastValid skipped trailing nulls wrong: %v", got)
	}
	if got := LastValid(series(nil, nil)); got != nil {
		t.Fatalf("LastValid of all-null series = %v, want nil", got)
	}
	if got := LastValid(nil); got != nil {
		t.Fatalf("LastValid of empty series = %v, want nil", got)
	}
}

func TestConversions(t *testing.T) {
	if got := SLAPercent(9987); got != 99.87 {
		t.Errorf("SLAPercent(9987) = %v", got)
	}
	if got := BytesToMB(268435456); got != 256 {
		t.Errorf("BytesToMB = %v", got)
	}
	if got := Round2(99.8765); got != 99.88 {
		t.Errorf("Round2 = %v", got)
	}
}
