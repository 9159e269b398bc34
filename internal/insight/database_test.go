package insight

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

type stubSource struct {
	mu       sync.Mutex
	traces   []models.Trace
	details  map[string][]models.Span
	failing  map[string]bool
	inFlight int
	peak     int
}

func (s *stubSource) QueryBasicTraces(context.Context, models.TraceQuery) ([]models.Trace, error) {
	return s.traces, nil
}

func (s *stubSource) TraceDetail(_ context.Context, traceID string) ([]models.Span, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.failing[traceID] {
		return nil, errors.New("trace vanished")
	}
	return s.details[traceID], nil
}

func exitSpan(id int, start, end int64, layer, component, endpoint string, tags ...models.SpanTag) models.Span {
	return models.Span{
		SpanID:       id,
		StartTime:    start,
		EndTime:      end,
		Type:         "Exit",
		Layer:        layer,
		Component:    component,
		EndpointName: endpoint,
		Tags:         tags,
	}
}

func TestScanExtractsStorageSpans(t *testing.T) {
	src := &stubSource{
		traces: []models.Trace{
			{Key: "t1", TraceIDs: []string{"trace-1"}},
			{Key: "t2", TraceIDs: []string{"trace-2"}},
		},
		details: map[string][]models.Span{
			"trace-1": {
				exitSpan(1, 100, 130, "Database", "Mysql", "Mysql/JDBC/Query",
					models.SpanTag{Key: "db.statement", Value: "SELECT * FROM orders"}),
				{SpanID: 2, Type: "Entry", Layer: "Http", EndpointName: "/orders"},
				exitSpan(3, 200, 210, "", "redis-client", "Redis/GET",
					models.SpanTag{Key: "redis.command", Value: "GET cart:42"}),
			},
			"trace-2": {
				exitSpan(4, 300, 320, "Cache", "", "Memcached/set"),
				{SpanID: 5, Type: "Exit", Layer: "Http", Component: "httpclient", EndpointName: "/downstream"},
			},
		},
	}

	report, err := NewScanner(src, slog.Default(), 0, 0).Scan(context.Background(), models.Duration{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Summary.Ops != 3 {
		t.Fatalf("ops = %d, want 3 storage spans", report.Summary.Ops)
	}
	if report.Summary.Health != "ONLINE" {
		t.Fatalf("health = %q", report.Summary.Health)
	}
	if report.Summary.AvgLatencyMs != 20 {
		t.Fatalf("avg latency = %d, want (30+10+20)/3", report.Summary.AvgLatencyMs)
	}

	// Newest first.
	if report.Ops[0].Time != 300 || report.Ops[2].Time != 100 {
		t.Fatalf("ops not sorted by time desc: %+v", report.Ops)
	}

	// Statement tag wins; missing tag falls back to the endpoint name;
	// missing component gets the generic label.
	if report.Ops[2].Statement != "SELECT * FROM orders" {
		t.Errorf("statement = %q", report.Ops[2].Statement)
	}
	if report.Ops[0].Statement != "Memcached/set" {
		t.Errorf("fallback statement = %q", report.Ops[0].Statement)
	}
	if report.Ops[0].Component != "Storage" {
		t.Errorf("component = %q", report.Ops[0].Component)
	}
}

func TestScanToleratesFailedExpansions(t *testing.T) {
	src := &stubSource{
		traces: []models.Trace{
			{Key: "t1", TraceIDs: []string{"good"}},
			{Key: "t2", TraceIDs: []string{"bad"}},
			{Key: "t3"}, // no trace ids at all
		},
		details: map[string][]models.Span{
			"good": {exitSpan(1, 10, 15, "Database", "Postgresql", "Query")},
		},
		failing: map[string]bool{"bad": true},
	}

	report, err := NewScanner(src, slog.Default(), 0, 0).Scan(context.Background(), models.Duration{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Summary.Ops != 1 {
		t.Fatalf("ops = %d, want the surviving trace only", report.Summary.Ops)
	}
}

func TestScanEmptyWindowIsIdle(t *testing.T) {
	src := &stubSource{}
	report, err := NewScanner(src, slog.Default(), 0, 0).Scan(context.Background(), models.Duration{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if report.Summary.Health != "IDLE" || report.Summary.Ops != 0 || report.Summary.AvgLatencyMs != 0 {
		t.Fatalf("idle summary = %+v", report.Summary)
	}
}

func TestScanBoundsConcurrency(t *testing.T) {
	traces := make([]models.Trace, 20)
	details := map[string][]models.Span{}
	for i := range traces {
		id := string(rune('a' + i))
		traces[i] = models.Trace{Key: id, TraceIDs: []string{id}}
		details[id] = nil
	}
	src := &stubSource{traces: traces, details: details}

	if _, err := NewScanner(src, slog.Default(), 0, 3).Scan(context.Background(), models.Duration{}); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if src.peak > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", src.peak)
	}
}

func TestIsStorageSpanComponentFallback(t *testing.T) {
	cases := []struct {
		span models.Span
		want bool
	}{
		{models.Span{Layer: "DATABASE"}, true},
		{models.Span{Layer: "cache"}, true},
		{models.Span{Component: "mongodb-driver"}, true},
		{models.Span{Component: "PostgreSQL-jdbc"}, true},
		{models.Span{Layer: "Http", Component: "httpclient"}, false},
	}
	for _, tc := range cases {
		if got := isStorageSpan(tc.span); got != tc.want {
			t.Errorf("isStorageSpan(%+v) = %v", tc.span, got)
		}
	}
}
