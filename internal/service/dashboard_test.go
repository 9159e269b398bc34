package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ankitchouhan119/SkyObserv/internal/aggregate"
	"github.com/ankitchouhan119/SkyObserv/internal/entity"
	"github.com/ankitchouhan119/SkyObserv/internal/insight"
	"github.com/ankitchouhan119/SkyObserv/internal/models"
	"github.com/ankitchouhan119/SkyObserv/internal/syncbus"
	"github.com/ankitchouhan119/SkyObserv/internal/timefmt"
	"github.com/ankitchouhan119/SkyObserv/internal/window"
)

func ptr(v float64) *float64 { return &v }

type stubBackend struct {
	services    []models.Service
	series      map[string]models.MetricSeries
	traces      []models.Trace
	lastTraceQ  models.TraceQuery
	nodes       []models.TopologyNode
	calls       []models.TopologyCall
	instances   []models.Instance
	endpoints   []models.Endpoint
	expressions map[string][]models.MQEResult
}

func (b *stubBackend) ListServices(context.Context, models.Duration) ([]models.Service, error) {
	return b.services, nil
}

func (b *stubBackend) LinearIntValues(_ context.Context, name, _ string, _ models.Duration) (models.MetricSeries, error) {
	return b.series[name], nil
}

func (b *stubBackend) QueryBasicTraces(_ context.Context, q models.TraceQuery) ([]models.Trace, error) {
	b.lastTraceQ = q
	return b.traces, nil
}

func (b *stubBackend) TraceDetail(context.Context, string) ([]models.Span, error) {
	return nil, nil
}

func (b *stubBackend) GlobalTopology(context.Context, models.Duration) ([]models.TopologyNode, []models.TopologyCall, error) {
	return b.nodes, b.calls, nil
}

func (b *stubBackend) ServiceInstances(context.Context, string, models.Duration) ([]models.Instance, error) {
	return b.instances, nil
}

func (b *stubBackend) Endpoints(context.Context, string, string, int) ([]models.Endpoint, error) {
	return b.endpoints, nil
}

func (b *stubBackend) ExecExpression(_ context.Context, expression string, _ models.MQEEntity, _ models.Duration) ([]models.MQEResult, error) {
	return b.expressions[expression], nil
}

func newTestDashboard(t *testing.T, backend *stubBackend) (*Dashboard, *window.Store, *syncbus.Bus) {
	t.Helper()
	logger := slog.Default()
	now := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)
	windows := window.NewStore(logger, window.WithClock(func() time.Time { return now }))
	bus := syncbus.NewBus(logger)
	d := NewDashboard(
		logger,
		backend,
		aggregate.NewAggregator(backend, logger, 2),
		insight.NewScanner(backend, logger, 10, 2),
		windows,
		bus,
		entity.Resolver{ClusterPrefix: "k8s-cluster", Qualify: true},
	)
	t.Cleanup(d.Close)
	return d, windows, bus
}

func TestNavigateRetargetsWindowAndTraceQuery(t *testing.T) {
	backend := &stubBackend{traces: []models.Trace{{Key: "t1"}}}
	d, windows, _ := newTestDashboard(t, backend)

	err := d.Navigate("/traces", models.FilterSet{
		Tab:        "traces",
		TraceState: models.TraceStateError,
		StartDate:  "2026-02-07 0549",
		EndDate:    "2026-02-07 1149",
	})
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	w := windows.Window()
	if w.Start != "2026-02-07 0549" || w.End != "2026-02-07 1149" {
		t.Fatalf("window = [%q, %q]", w.Start, w.End)
	}
	if w.Label != window.CustomLabel {
		t.Fatalf("label = %q", w.Label)
	}

	if _, err := d.Traces(context.Background(), TraceRequest{State: models.TraceStateError}); err != nil {
		t.Fatalf("Traces: %v", err)
	}
	q := backend.lastTraceQ
	if q.State != models.TraceStateError {
		t.Errorf("trace state = %q", q.State)
	}
	if q.Window.Start != "2026-02-07 0549" || q.Window.End != "2026-02-07 1149" {
		t.Errorf("trace window = %+v", q.Window)
	}
}

func TestNavigateWithoutDatesKeepsWindow(t *testing.T) {
	backend := &stubBackend{}
	d, windows, _ := newTestDashboard(t, backend)

	before := windows.Window()
	if err := d.Navigate("/topology", models.FilterSet{Tab: "topology"}); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if got := windows.Window(); got != before {
		t.Fatalf("window drifted without dates: %+v", got)
	}
}

func TestServiceMetricsReduction(t *testing.T) {
	backend := &stubBackend{series: map[string]models.MetricSeries{
		"service_resp_time": {{Value: ptr(100)}, {Value: ptr(200)}, {Value: nil}},
		"service_cpm":       {{Value: ptr(40)}, {Value: ptr(60)}},
		"service_sla":       {{Value: ptr(9950)}, {Value: ptr(10000)}},
	}}
	d, _, _ := newTestDashboard(t, backend)

	m, err := d.ServiceMetrics(context.Background(), "svc-1", "", "")
	if err != nil {
		t.Fatalf("ServiceMetrics: %v", err)
	}
	if m.AvgLatencyMs != 150 {
		t.Errorf("avg latency = %v", m.AvgLatencyMs)
	}
	if m.ThroughputCPM != 50 {
		t.Errorf("throughput = %v", m.ThroughputCPM)
	}
	if m.SLAPercent != 99.75 {
		t.Errorf("sla = %v", m.SLAPercent)
	}
	if len(m.Series) != 3 {
		t.Errorf("series map = %v", m.Series)
	}
}

func TestServiceMetricsRequiresServiceID(t *testing.T) {
	d, _, _ := newTestDashboard(t, &stubBackend{})
	if _, err := d.ServiceMetrics(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTopologyDropsDanglingEdges(t *testing.T) {
	backend := &stubBackend{
		nodes: []models.TopologyNode{{ID: "a"}, {ID: "b"}},
		calls: []models.TopologyCall{
			{ID: "a-b", Source: "a", Target: "b"},
			{ID: "a-c", Source: "a", Target: "c"},
		},
	}
	d, _, _ := newTestDashboard(t, backend)

	g, err := d.Topology(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Topology: %v", err)
	}
	if len(g.Nodes) != 2 || len(g.Edges) != 1 {
		t.Fatalf("graph = %+v", g)
	}
}

func TestPodOverview(t *testing.T) {
	backend := &stubBackend{
		instances: []models.Instance{{
			ID:   "opaque-1",
			Name: "orders-api-7f9c8-xk2p1",
			Attributes: []models.Attr{
				{Name: "namespace", Value: "shop"},
				{Name: "pod", Value: "orders-api-7f9c8-xk2p1"},
				{Name: "node_name", Value: "node-2"},
				{Name: "pod_ip", Value: "10.1.2.3"},
			},
		}},
		expressions: map[string][]models.MQEResult{
			podStatusExpression: {{
				Labels: []models.MQELabel{{Key: "phase", Value: "Running"}},
				Values: []models.MetricValue{{Value: ptr(1)}},
			}},
			podResourceExpression: {
				{Values: []models.MetricValue{{Value: ptr(12.345)}, {Value: nil}}},
				{Values: []models.MetricValue{{Value: ptr(268435456)}}},
			},
		},
	}
	d, _, _ := newTestDashboard(t, backend)

	pods, err := d.PodOverview(context.Background(), "svc-1", "", "")
	if err != nil {
		t.Fatalf("PodOverview: %v", err)
	}
	if len(pods) != 1 {
		t.Fatalf("pods = %+v", pods)
	}
	p := pods[0]
	if p.Deployment != "orders-api" || p.ReplicaSet != "orders-api-7f9c8" {
		t.Errorf("hierarchy = (%q, %q)", p.Deployment, p.ReplicaSet)
	}
	if p.Phase != "RUNNING" {
		t.Errorf("phase = %q", p.Phase)
	}
	if p.CPU == nil || *p.CPU != "12.35 m" {
		t.Errorf("cpu = %v", p.CPU)
	}
	if p.MemoryMB == nil || *p.MemoryMB != "256.00 MB" {
		t.Errorf("memory = %v", p.MemoryMB)
	}
	if p.Node != "node-2" || p.PodIP != "10.1.2.3" {
		t.Errorf("attrs = %+v", p)
	}
}

func TestPodOverviewStoppedWithoutLiveStatus(t *testing.T) {
	backend := &stubBackend{
		instances: []models.Instance{{ID: "x", Name: "toolbox"}},
		expressions: map[string][]models.MQEResult{
			podStatusExpression: {{
				Labels: []models.MQELabel{{Key: "phase", Value: "Running"}},
				Values: []models.MetricValue{{Value: ptr(0)}},
			}},
		},
	}
	d, _, _ := newTestDashboard(t, backend)

	pods, err := d.PodOverview(context.Background(), "svc-1", "", "")
	if err != nil {
		t.Fatalf("PodOverview: %v", err)
	}
	if pods[0].Phase != "STOPPED" {
		t.Errorf("phase = %q", pods[0].Phase)
	}
	if pods[0].CPU != nil || pods[0].MemoryMB != nil {
		t.Errorf("resources should be nil without data: %+v", pods[0])
	}
	if !pods[0].Standalone {
		t.Errorf("single-segment pod should be standalone")
	}
}

func TestExplicitWindowOverridesStore(t *testing.T) {
	backend := &stubBackend{}
	d, _, _ := newTestDashboard(t, backend)

	if _, err := d.Traces(context.Background(), TraceRequest{
		Start: "07-02-2026 05:49",
		End:   "2026-02-07 1149",
	}); err != nil {
		t.Fatalf("Traces: %v", err)
	}
	w := backend.lastTraceQ.Window
	if w.Start != "2026-02-07 0549" || w.End != "2026-02-07 1149" {
		t.Fatalf("explicit window = %+v", w)
	}
	if w.Step != string(timefmt.Minute) {
		t.Fatalf("step = %q", w.Step)
	}
}
