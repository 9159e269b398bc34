package models

// Duration is the time-range argument every backend query carries. Start and
// End are wire timestamps ("YYYY-MM-DD HHmm", "YYYY-MM-DD HH" or
// "YYYY-MM-DD"); Step selects the bucket resolution the backend aggregates
// into.
type Duration struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Step  string `json:"step"`
}

// Service is one entry of the backend's service inventory.
type Service struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	ShortName    string   `json:"shortName,omitempty"`
	Group        string   `json:"group,omitempty"`
	Layers       []string `json:"layers,omitempty"`
	NormalStatus string   `json:"normalStatus"`
}

// Instance is a service instance (a pod, for k8s-layer services) together
// with the attribute bag the observability agent reported.
type Instance struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Language   string `json:"language,omitempty"`
	Attributes []Attr `json:"attributes"`
}

// Attr is a single name/value pair from an instance attribute bag. Agents are
// inconsistent about attribute naming, so consumers resolve values through
// alias lists rather than exact keys.
type Attr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Endpoint is a single endpoint registered under a service.
type Endpoint struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MetricValue is one point of a time series. The bucket id embeds the bucket
// timestamp in the backend's compact format; Value is nil when the backend
// reported no sample for that bucket.
type MetricValue struct {
	ID    string   `json:"id"`
	Value *float64 `json:"value"`
}

// MetricSeries is an ordered sequence of bucket values covering the queried
// window, oldest first.
type MetricSeries []MetricValue

// Trace is a basic trace summary as returned by a trace-list query.
type Trace struct {
	Key           string   `json:"key"`
	EndpointNames []string `json:"endpointNames"`
	Duration      int      `json:"duration"`
	Start         string   `json:"start"`
	IsError       bool     `json:"isError"`
	TraceIDs      []string `json:"traceIds"`
}

// Span is one span of a fully expanded trace.
type Span struct {
	TraceID      string    `json:"traceId"`
	SpanID       int       `json:"spanId"`
	ParentSpanID int       `json:"parentSpanId"`
	ServiceCode  string    `json:"serviceCode"`
	StartTime    int64     `json:"startTime"`
	EndTime      int64     `json:"endTime"`
	EndpointName string    `json:"endpointName"`
	Type         string    `json:"type"`
	Peer         string    `json:"peer,omitempty"`
	Component    string    `json:"component,omitempty"`
	Layer        string    `json:"layer,omitempty"`
	IsError      bool      `json:"isError"`
	Tags         []SpanTag `json:"tags,omitempty"`
}

// SpanTag is a key/value annotation on a span.
type SpanTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// TraceState filters a trace query by outcome.
type TraceState string

const (
	TraceStateAll     TraceState = "ALL"
	TraceStateSuccess TraceState = "SUCCESS"
	TraceStateError   TraceState = "ERROR"
)

// TraceQuery carries the condition block of a basic-trace query.
type TraceQuery struct {
	ServiceID   string
	State       TraceState
	MinDuration int
	PageNum     int
	PageSize    int
	Window      Duration
}

// MQEEntity scopes an MQE expression query to a service or one of its
// instances. ServiceName must be fully qualified for the target backend; the
// entity resolver owns that normalization.
type MQEEntity struct {
	Scope        string `json:"scope"`
	ServiceName  string `json:"serviceName"`
	InstanceName string `json:"serviceInstanceName,omitempty"`
	Normal       bool   `json:"normal"`
}

// MQELabel is a metric label on an MQE result row.
type MQELabel struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MQEResult is one labelled series from an MQE expression evaluation. Values
// arrive as strings and may be "null" per bucket.
type MQEResult struct {
	Labels []MQELabel    `json:"labels"`
	Values []MetricValue `json:"values"`
}
