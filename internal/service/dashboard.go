// Package service is the dashboard facade: every tool-call operation the API
// exposes is implemented here, orchestrating the backend client, the window
// store and the query-sync bus.
package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ankitchouhan119/SkyObserv/internal/aggregate"
	"github.com/ankitchouhan119/SkyObserv/internal/entity"
	"github.com/ankitchouhan119/SkyObserv/internal/insight"
	"github.com/ankitchouhan119/SkyObserv/internal/metrics"
	"github.com/ankitchouhan119/SkyObserv/internal/models"
	"github.com/ankitchouhan119/SkyObserv/internal/syncbus"
	"github.com/ankitchouhan119/SkyObserv/internal/timefmt"
	"github.com/ankitchouhan119/SkyObserv/internal/topology"
	"github.com/ankitchouhan119/SkyObserv/internal/utils"
	"github.com/ankitchouhan119/SkyObserv/internal/window"
)

// Metric names the service-metrics operation aggregates.
const (
	metricRespTime   = "service_resp_time"
	metricSLA        = "service_sla"
	metricThroughput = "service_cpm"
)

// podResourceExpression fetches CPU and memory usage in one MQE evaluation;
// result rows come back in expression order.
const (
	podResourceExpression = "k8s_service_pod_cpu_usage,k8s_service_pod_memory_usage"
	podStatusExpression   = "k8s_service_pod_status"
)

// Backend is the slice of the query client the facade uses directly. Metric
// series and trace expansion go through the aggregator and scanner instead.
type Backend interface {
	ListServices(ctx context.Context, d models.Duration) ([]models.Service, error)
	QueryBasicTraces(ctx context.Context, q models.TraceQuery) ([]models.Trace, error)
	GlobalTopology(ctx context.Context, d models.Duration) ([]models.TopologyNode, []models.TopologyCall, error)
	ServiceInstances(ctx context.Context, serviceID string, d models.Duration) ([]models.Instance, error)
	Endpoints(ctx context.Context, serviceID, keyword string, limit int) ([]models.Endpoint, error)
	ExecExpression(ctx context.Context, expression string, entity models.MQEEntity, d models.Duration) ([]models.MQEResult, error)
}

// ServiceMetrics is the reduced health view of one service over a window.
type ServiceMetrics struct {
	ServiceID     string                         `json:"serviceId"`
	AvgLatencyMs  float64                        `json:"avgLatencyMs"`
	ThroughputCPM float64                        `json:"throughputCpm"`
	SLAPercent    float64                        `json:"slaPercent"`
	Series        map[string]models.MetricSeries `json:"series"`
}

// PodStatus is the resolved state of one pod instance.
type PodStatus struct {
	InstanceID string  `json:"instanceId"`
	Pod        string  `json:"pod"`
	Service    string  `json:"service"`
	Namespace  string  `json:"namespace"`
	Deployment string  `json:"deployment"`
	ReplicaSet string  `json:"replicaSet"`
	Node       string  `json:"node"`
	PodIP      string  `json:"podIp"`
	Phase      string  `json:"phase"`
	CPU        *string `json:"cpu,omitempty"`
	MemoryMB   *string `json:"memoryMb,omitempty"`
	Standalone bool    `json:"standalone"`
}

// TraceRequest carries the filters of a trace-list operation.
type TraceRequest struct {
	ServiceID   string
	State       models.TraceState
	MinDuration int
	PageNum     int
	PageSize    int
	Start       string
	End         string
}

// Dashboard implements the tool-call surface.
type Dashboard struct {
	logger      *slog.Logger
	backend     Backend
	aggregator  *aggregate.Aggregator
	scanner     *insight.Scanner
	windows     *window.Store
	bus         *syncbus.Bus
	resolver    entity.Resolver
	latencies   *utils.LatencyTracker
	unsubscribe func()
}

// NewDashboard wires the facade and subscribes it to the sync bus so
// query-updates carrying a custom date range retarget the shared window.
func NewDashboard(logger *slog.Logger, backend Backend, aggregator *aggregate.Aggregator, scanner *insight.Scanner, windows *window.Store, bus *syncbus.Bus, resolver entity.Resolver) *Dashboard {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dashboard{
		logger:     logger,
		backend:    backend,
		aggregator: aggregator,
		scanner:    scanner,
		windows:    windows,
		bus:        bus,
		resolver:   resolver,
		latencies:  utils.NewLatencyTracker(1024),
	}
	d.unsubscribe = bus.Subscribe(func(e models.SyncEvent) {
		metrics.CountSyncEvent(string(e.Type))
		if e.Type == models.SyncQueryUpdate && e.Filters.HasDates() {
			windows.SetCustomRange(e.Filters.StartDate, e.Filters.EndDate)
		}
	})
	return d
}

// Close detaches the facade from the sync bus.
func (d *Dashboard) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
	}
}

// ListServices returns the service inventory for the window.
func (d *Dashboard) ListServices(ctx context.Context, start, end string) ([]models.Service, error) {
	began := time.Now()
	services, err := d.backend.ListServices(ctx, d.windowFor(start, end))
	d.observe("list_services", began, err)
	if err != nil {
		return nil, utils.NewAppError("ListServices", "service inventory unavailable", err)
	}
	return services, nil
}

// ServiceMetrics aggregates latency, throughput and SLA for one service.
func (d *Dashboard) ServiceMetrics(ctx context.Context, serviceID, start, end string) (ServiceMetrics, error) {
	if serviceID == "" {
		return ServiceMetrics{}, utils.NewAppError("ServiceMetrics", "service id is required", nil)
	}
	began := time.Now()

	w := d.windowFor(start, end)
	series := d.aggregator.FetchSeries(ctx, []string{metricRespTime, metricThroughput, metricSLA}, serviceID, w)
	d.observe("service_metrics", began, nil)

	return ServiceMetrics{
		ServiceID:     serviceID,
		AvgLatencyMs:  aggregate.Round2(aggregate.Average(series[metricRespTime])),
		ThroughputCPM: aggregate.Round2(aggregate.Average(series[metricThroughput])),
		SLAPercent:    aggregate.Round2(aggregate.SLAPercent(aggregate.Average(series[metricSLA]))),
		Series:        series,
	}, nil
}

// Traces lists trace summaries matching the request filters.
func (d *Dashboard) Traces(ctx context.Context, req TraceRequest) ([]models.Trace, error) {
	began := time.Now()
	traces, err := d.backend.QueryBasicTraces(ctx, models.TraceQuery{
		ServiceID:   req.ServiceID,
		State:       req.State,
		MinDuration: req.MinDuration,
		PageNum:     req.PageNum,
		PageSize:    req.PageSize,
		Window:      d.windowFor(req.Start, req.End),
	})
	d.observe("traces", began, err)
	if err != nil {
		return nil, utils.NewAppError("Traces", "trace query failed", err)
	}
	return traces, nil
}

// Topology returns the validated dependency graph for the window.
func (d *Dashboard) Topology(ctx context.Context, start, end string) (models.TopologyGraph, error) {
	began := time.Now()
	nodes, calls, err := d.backend.GlobalTopology(ctx, d.windowFor(start, end))
	d.observe("topology", began, err)
	if err != nil {
		return models.TopologyGraph{}, utils.NewAppError("Topology", "topology query failed", err)
	}
	return topology.Build(d.logger, nodes, calls), nil
}

// Instances lists the instances of one service.
func (d *Dashboard) Instances(ctx context.Context, serviceID, start, end string) ([]models.Instance, error) {
	if serviceID == "" {
		return nil, utils.NewAppError("Instances", "service id is required", nil)
	}
	began := time.Now()
	instances, err := d.backend.ServiceInstances(ctx, serviceID, d.windowFor(start, end))
	d.observe("instances", began, err)
	if err != nil {
		return nil, utils.NewAppError("Instances", "instance query failed", err)
	}
	return instances, nil
}

// Endpoints searches the endpoints of one service.
func (d *Dashboard) Endpoints(ctx context.Context, serviceID, keyword string, limit int) ([]models.Endpoint, error) {
	if serviceID == "" {
		return nil, utils.NewAppError("Endpoints", "service id is required", nil)
	}
	began := time.Now()
	endpoints, err := d.backend.Endpoints(ctx, serviceID, keyword, limit)
	d.observe("endpoints", began, err)
	if err != nil {
		return nil, utils.NewAppError("Endpoints", "endpoint search failed", err)
	}
	return endpoints, nil
}

// DatabaseInsights scans the window's traces for storage activity.
func (d *Dashboard) DatabaseInsights(ctx context.Context, start, end string) (insight.Report, error) {
	began := time.Now()
	report, err := d.scanner.Scan(ctx, d.windowFor(start, end))
	d.observe("database_insights", began, err)
	if err != nil {
		return insight.Report{}, utils.NewAppError("DatabaseInsights", "storage scan failed", err)
	}
	return report, nil
}

// PodOverview resolves every instance of a service and decorates it with pod
// phase and resource usage from MQE. Resource lookups fail soft per pod.
func (d *Dashboard) PodOverview(ctx context.Context, serviceID, start, end string) ([]PodStatus, error) {
	if serviceID == "" {
		return nil, utils.NewAppError("PodOverview", "service id is required", nil)
	}
	began := time.Now()

	w := d.windowFor(start, end)
	instances, err := d.backend.ServiceInstances(ctx, serviceID, w)
	if err != nil {
		d.observe("pod_overview", began, err)
		return nil, utils.NewAppError("PodOverview", "instance query failed", err)
	}

	pods := make([]PodStatus, 0, len(instances))
	for _, inst := range instances {
		resolved := d.resolver.Resolve(inst.ID, inst.Attributes)

		pod := PodStatus{
			InstanceID: inst.ID,
			Pod:        inst.Name,
			Service:    resolved.ServiceName,
			Namespace:  resolved.Namespace,
			Deployment: resolved.Deployment,
			ReplicaSet: resolved.ReplicaSet,
			Node:       resolved.NodeName,
			PodIP:      resolved.PodIP,
			Standalone: resolved.Standalone,
		}

		mqeEntity := models.MQEEntity{
			Scope:        string(entity.ScopeServiceInstance),
			ServiceName:  d.resolver.QualifiedServiceName(resolved),
			InstanceName: inst.Name,
			Normal:       true,
		}
		pod.Phase = d.podPhase(ctx, mqeEntity, w)
		pod.CPU, pod.MemoryMB = d.podResources(ctx, mqeEntity, w)

		pods = append(pods, pod)
	}

	d.observe("pod_overview", began, nil)
	return pods, nil
}

// Navigate broadcasts a navigation intent on the sync bus.
func (d *Dashboard) Navigate(path string, filters models.FilterSet) error {
	if path == "" {
		return utils.NewAppError("Navigate", "path is required", nil)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	d.bus.Navigate(path, filters)
	return nil
}

// Window exposes the current shared window.
func (d *Dashboard) Window() window.TimeWindow {
	return d.windows.Window()
}

// Refresh slides the shared window to the current instant.
func (d *Dashboard) Refresh() window.TimeWindow {
	return d.windows.Refresh()
}

// podPhase evaluates the pod-status expression. Each labelled result is one
// candidate phase; the live one has 1 as its most recent value. No live row
// means the pod is stopped.
func (d *Dashboard) podPhase(ctx context.Context, mqeEntity models.MQEEntity, w models.Duration) string {
	results, err := d.backend.ExecExpression(ctx, podStatusExpression, mqeEntity, w)
	if err != nil {
		d.logger.Warn("pod status lookup failed", "instance", mqeEntity.InstanceName, "error", err)
		return "UNKNOWN"
	}
	for _, row := range results {
		last := aggregate.LastValid(models.MetricSeries(row.Values))
		if last == nil || *last != 1 {
			continue
		}
		for _, label := range row.Labels {
			if label.Key == "phase" && label.Value != "" {
				return strings.ToUpper(label.Value)
			}
		}
		return "RUNNING"
	}
	return "STOPPED"
}

// podResources evaluates CPU and memory usage. CPU is rendered in millicores
// and memory in MB; a series with no valid sample yields nil so callers can
// distinguish "no data" from zero.
func (d *Dashboard) podResources(ctx context.Context, mqeEntity models.MQEEntity, w models.Duration) (cpu, memoryMB *string) {
	results, err := d.backend.ExecExpression(ctx, podResourceExpression, mqeEntity, w)
	if err != nil {
		d.logger.Warn("pod resource lookup failed", "instance", mqeEntity.InstanceName, "error", err)
		return nil, nil
	}
	if len(results) > 0 {
		if v := aggregate.LastValid(models.MetricSeries(results[0].Values)); v != nil {
			s := strconv.FormatFloat(aggregate.Round2(*v), 'f', 2, 64) + " m"
			cpu = &s
		}
	}
	if len(results) > 1 {
		if v := aggregate.LastValid(models.MetricSeries(results[1].Values)); v != nil {
			s := strconv.FormatFloat(aggregate.Round2(aggregate.BytesToMB(*v)), 'f', 2, 64) + " MB"
			memoryMB = &s
		}
	}
	return cpu, memoryMB
}

// windowFor returns an explicit window when both bounds are supplied and the
// shared window otherwise. Explicit bounds pass through loose normalization
// so agent-supplied timestamps in near-miss formats still work.
func (d *Dashboard) windowFor(start, end string) models.Duration {
	if start == "" || end == "" {
		return d.windows.Snapshot()
	}
	return models.Duration{
		Start: timefmt.NormalizeLoose(start),
		End:   timefmt.NormalizeLoose(end),
		Step:  string(timefmt.Minute),
	}
}

// observe records per-operation latency and emits a periodic p95 log line.
func (d *Dashboard) observe(operation string, began time.Time, err error) {
	duration := time.Since(began)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveQuery(operation, duration, outcome)
	if err != nil {
		return
	}
	d.latencies.Observe(duration)
	if count := d.latencies.Count(); count >= 20 && count%20 == 0 {
		d.logger.Info("query latency",
			slog.Duration("p95", d.latencies.Percentile(95)), slog.Int("samples", count))
	}
}

// LatencyP95 returns the current p95 query latency.
func (d *Dashboard) LatencyP95() time.Duration {
	return d.latencies.Percentile(95)
}
