package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/ankitchouhan119/SkyObserv/internal/cache"
	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

// GraphQL documents for the OAP query protocol. Field selections mirror what
// the dashboard consumes; anything else is left unrequested.
const (
	servicesQuery = `query ListServices($duration: Duration!) {
  services: getAllServices(duration: $duration) {
    id name shortName group layers normal
  }
}`

	linearIntValuesQuery = `query LinearIntValues($metric: MetricCondition!, $duration: Duration!) {
  getLinearIntValues(metric: $metric, duration: $duration) {
    values { id value }
  }
}`

	basicTracesQuery = `query BasicTraces($condition: TraceQueryCondition) {
  queryBasicTraces(condition: $condition) {
    traces {
      key endpointNames duration start isError traceIds
    }
  }
}`

	traceDetailQuery = `query TraceDetail($traceId: ID!) {
  trace: queryTrace(traceId: $traceId) {
    spans {
      traceId spanId parentSpanId serviceCode startTime endTime
      endpointName type peer component layer isError
      tags { key value }
    }
  }
}`

	globalTopologyQuery = `query GlobalTopology($duration: Duration!) {
  topology: getGlobalTopology(duration: $duration) {
    nodes { id name type isReal layers }
    calls { id source target detectPoints }
  }
}`

	instancesQuery = `query Instances($serviceId: ID!, $duration: Duration!) {
  instances: getServiceInstances(serviceId: $serviceId, duration: $duration) {
    id name language attributes { name value }
  }
}`

	endpointsQuery = `query Endpoints($serviceId: ID!, $keyword: String!, $limit: Int!) {
  endpoints: findEndpoint(serviceId: $serviceId, keyword: $keyword, limit: $limit) {
    id name
  }
}`

	execExpressionQuery = `query ExecExpression($expression: String!, $entity: Entity!, $duration: Duration!) {
  execExpression(expression: $expression, entity: $entity, duration: $duration) {
    type
    error
    results {
      metric { labels { key value } }
      values { id value }
    }
  }
}`
)

// SkyWalkingClient executes GraphQL queries against an OAP backend. Service
// inventory and topology responses are cached because they are both the most
// expensive queries and the slowest-changing data.
type SkyWalkingClient struct {
	baseURL     string
	graphqlPath string
	httpClient  *http.Client

	store        cache.Provider
	inventoryTTL time.Duration
	topologyTTL  time.Duration
}

// NewSkyWalkingClient constructs a client for the configured OAP instance.
// A nil provider disables caching.
func NewSkyWalkingClient(baseURL, graphqlPath string, timeout time.Duration, store cache.Provider, inventoryTTL, topologyTTL time.Duration) *SkyWalkingClient {
	if store == nil {
		store = cache.NoopProvider{}
	}
	return &SkyWalkingClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		graphqlPath: graphqlPath,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		store:        store,
		inventoryTTL: inventoryTTL,
		topologyTTL:  topologyTTL,
	}
}

// ListServices fetches the service inventory for the window.
func (c *SkyWalkingClient) ListServices(ctx context.Context, d models.Duration) ([]models.Service, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("skywalking client not configured")
	}

	key := cacheKey("services", d)
	var services []models.Service
	if c.cachedJSON(ctx, key, &services) {
		return services, nil
	}

	var response struct {
		Services []struct {
			ID        string   `json:"id"`
			Name      string   `json:"name"`
			ShortName string   `json:"shortName"`
			Group     string   `json:"group"`
			Layers    []string `json:"layers"`
			Normal    *bool    `json:"normal"`
		} `json:"services"`
	}
	if err := c.execute(ctx, servicesQuery, map[string]any{"duration": d}, &response); err != nil {
		return nil, fmt.Errorf("skywalking services query failed: %w", err)
	}

	services = make([]models.Service, 0, len(response.Services))
	for _, s := range response.Services {
		services = append(services, models.Service{
			ID:           s.ID,
			Name:         s.Name,
			ShortName:    s.ShortName,
			Group:        s.Group,
			Layers:       s.Layers,
			NormalStatus: normalStatus(s.Normal),
		})
	}

	c.storeJSON(ctx, key, services, c.inventoryTTL)
	return services, nil
}

// normalStatus folds the backend's nullable health boolean into the
// three-valued status the inventory exposes.
func normalStatus(normal *bool) string {
	switch {
	case normal == nil:
		return "UNKNOWN"
	case *normal:
		return "NORMAL"
	default:
		return "ABNORMAL"
	}
}

// LinearIntValues fetches one metric series for an entity id. The returned
// series preserves the backend's bucket order and keeps nil values for empty
// buckets.
func (c *SkyWalkingClient) LinearIntValues(ctx context.Context, metricName, entityID string, d models.Duration) (models.MetricSeries, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("skywalking client not configured")
	}

	variables := map[string]any{
		"metric": map[string]any{
			"name": metricName,
			"id":   entityID,
		},
		"duration": d,
	}

	var response struct {
		GetLinearIntValues struct {
			Values []models.MetricValue `json:"values"`
		} `json:"getLinearIntValues"`
	}
	if err := c.execute(ctx, linearIntValuesQuery, variables, &response); err != nil {
		return nil, fmt.Errorf("skywalking metric %s query failed: %w", metricName, err)
	}
	return models.MetricSeries(response.GetLinearIntValues.Values), nil
}

// QueryBasicTraces fetches trace summaries matching the condition, newest
// first.
func (c *SkyWalkingClient) QueryBasicTraces(ctx context.Context, q models.TraceQuery) ([]models.Trace, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("skywalking client not configured")
	}

	state := q.State
	if state == "" {
		state = models.TraceStateAll
	}
	pageNum := q.PageNum
	if pageNum <= 0 {
		pageNum = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	condition := map[string]any{
		"queryDuration": q.Window,
		"traceState":    string(state),
		"queryOrder":    "BY_START_TIME",
		"paging": map[string]any{
			"pageNum":  pageNum,
			"pageSize": pageSize,
		},
	}
	if q.ServiceID != "" {
		condition["serviceId"] = q.ServiceID
	}
	if q.MinDuration > 0 {
		condition["minTraceDuration"] = q.MinDuration
	}

	var response struct {
		QueryBasicTraces struct {
			Traces []models.Trace `json:"traces"`
		} `json:"queryBasicTraces"`
	}
	if err := c.execute(ctx, basicTracesQuery, map[string]any{"condition": condition}, &response); err != nil {
		return nil, fmt.Errorf("skywalking traces query failed: %w", err)
	}
	return response.QueryBasicTraces.Traces, nil
}

// TraceDetail fetches every span of one trace.
func (c *SkyWalkingClient) TraceDetail(ctx context.Context, traceID string) ([]models.Span, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("skywalking client not configured")
	}
	if traceID == "" {
		return nil, fmt.Errorf("trace id is required")
	}

	var response struct {
		Trace struct {
			Spans []models.Span `json:"spans"`
		} `json:"trace"`
	}
	if err := c.execute(ctx, traceDetailQuery, map[string]any{"traceId": traceID}, &response); err != nil {
		return nil, fmt.Errorf("skywalking trace %s query failed: %w", traceID, err)
	}
	return response.Trace.Spans, nil
}

// GlobalTopology fetches the raw dependency graph for the window: observed
// nodes plus the call edges between them, unvalidated.
func (c *SkyWalkingClient) GlobalTopology(ctx context.Context, d models.Duration) ([]models.TopologyNode, []models.TopologyCall, error) {
	if c == nil || c.baseURL == "" {
		return nil, nil, fmt.Errorf("skywalking client not configured")
	}

	type rawTopology struct {
		Nodes []models.TopologyNode `json:"nodes"`
		Calls []models.TopologyCall `json:"calls"`
	}

	key := cacheKey("topology", d)
	var cached rawTopology
	if c.cachedJSON(ctx, key, &cached) {
		return cached.Nodes, cached.Calls, nil
	}

	var response struct {
		Topology rawTopology `json:"topology"`
	}
	if err := c.execute(ctx, globalTopologyQuery, map[string]any{"duration": d}, &response); err != nil {
		return nil, nil, fmt.Errorf("skywalking topology query failed: %w", err)
	}

	c.storeJSON(ctx, key, response.Topology, c.topologyTTL)
	return response.Topology.Nodes, response.Topology.Calls, nil
}

// ServiceInstances fetches the instances of one service with their attribute
// bags.
func (c *SkyWalkingClient) ServiceInstances(ctx context.Context, serviceID string, d models.Duration) ([]models.Instance, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("skywalking client not configured")
	}
	if serviceID == "" {
		return nil, fmt.Errorf("service id is required")
	}

	var response struct {
		Instances []models.Instance `json:"instances"`
	}
	variables := map[string]any{"serviceId": serviceID, "duration": d}
	if err := c.execute(ctx, instancesQuery, variables, &response); err != nil {
		return nil, fmt.Errorf("skywalking instances query failed: %w", err)
	}
	return response.Instances, nil
}

// Endpoints searches the endpoints registered under a service.
func (c *SkyWalkingClient) Endpoints(ctx context.Context, serviceID, keyword string, limit int) ([]models.Endpoint, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("skywalking client not configured")
	}
	if serviceID == "" {
		return nil, fmt.Errorf("service id is required")
	}
	if limit <= 0 {
		limit = 20
	}

	var response struct {
		Endpoints []models.Endpoint `json:"endpoints"`
	}
	variables := map[string]any{"serviceId": serviceID, "keyword": keyword, "limit": limit}
	if err := c.execute(ctx, endpointsQuery, variables, &response); err != nil {
		return nil, fmt.Errorf("skywalking endpoints query failed: %w", err)
	}
	return response.Endpoints, nil
}

// ExecExpression evaluates an MQE expression scoped to an entity. MQE values
// arrive as strings with "null" marking empty buckets; they are converted to
// the same nullable series shape the linear-values query produces.
func (c *SkyWalkingClient) ExecExpression(ctx context.Context, expression string, entity models.MQEEntity, d models.Duration) ([]models.MQEResult, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("skywalking client not configured")
	}
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}

	var response struct {
		ExecExpression struct {
			Type    string `json:"type"`
			Error   string `json:"error"`
			Results []struct {
				Metric struct {
					Labels []models.MQELabel `json:"labels"`
				} `json:"metric"`
				Values []struct {
					ID    string `json:"id"`
					Value string `json:"value"`
				} `json:"values"`
			} `json:"results"`
		} `json:"execExpression"`
	}

	variables := map[string]any{"expression": expression, "entity": entity, "duration": d}
	if err := c.execute(ctx, execExpressionQuery, variables, &response); err != nil {
		return nil, fmt.Errorf("skywalking expression query failed: %w", err)
	}
	if e := response.ExecExpression.Error; e != "" {
		return nil, fmt.Errorf("skywalking expression rejected: %s", e)
	}

	results := make([]models.MQEResult, 0, len(response.ExecExpression.Results))
	for _, row := range response.ExecExpression.Results {
		values := make([]models.MetricValue, 0, len(row.Values))
		for _, v := range row.Values {
			values = append(values, models.MetricValue{ID: v.ID, Value: parseMQEValue(v.Value)})
		}
		results = append(results, models.MQEResult{Labels: row.Metric.Labels, Values: values})
	}
	return results, nil
}

func parseMQEValue(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &f
}

func (c *SkyWalkingClient) graphqlURL() string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(c.graphqlPath, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

// execute posts one GraphQL request and decodes the data envelope into out.
// GraphQL-level errors are surfaced as Go errors even on HTTP 200.
func (c *SkyWalkingClient) execute(ctx context.Context, query string, variables map[string]any, out any) error {
	endpoint := c.graphqlURL()
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}

	body, err := json.Marshal(map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oap returned %s", resp.Status)
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			messages = append(messages, e.Message)
		}
		return fmt.Errorf("graphql errors: %s", strings.Join(messages, "; "))
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

// cachedJSON loads and decodes a cached value, reporting whether it was
// usable. Decode failures count as misses so stale shapes heal themselves.
func (c *SkyWalkingClient) cachedJSON(ctx context.Context, key string, out any) bool {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

// storeJSON best-effort caches a value; failures are ignored because the
// cache is purely an accelerator.
func (c *SkyWalkingClient) storeJSON(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.store.Set(ctx, key, raw, ttl)
}

func cacheKey(kind string, d models.Duration) string {
	return "skyobserv:" + kind + ":" + d.Start + ":" + d.End + ":" + d.Step
}
