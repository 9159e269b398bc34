package models

// FilterSet is the partial filter payload carried by a query-sync intent.
// Every field is optional; consumers merge whatever is present into their
// local query state.
type FilterSet struct {
	Tab         string     `json:"tab,omitempty"`
	TraceState  TraceState `json:"traceState,omitempty"`
	StartDate   string     `json:"startDate,omitempty"`
	EndDate     string     `json:"endDate,omitempty"`
	MinDuration string     `json:"minDuration,omitempty"`
	ServiceID   string     `json:"serviceId,omitempty"`
}

// HasDates reports whether the filter carries a complete custom time range.
func (f FilterSet) HasDates() bool {
	return f.StartDate != "" && f.EndDate != ""
}

// IsZero reports whether no filter field is set.
func (f FilterSet) IsZero() bool {
	return f == FilterSet{}
}

// SyncEventType discriminates query-sync bus events.
type SyncEventType string

const (
	// SyncRouteChange asks the routing layer to move to Path.
	SyncRouteChange SyncEventType = "route-change"
	// SyncQueryUpdate asks mounted pages to merge Filters and re-query.
	SyncQueryUpdate SyncEventType = "query-update"
)

// SyncEvent is one broadcast on the query-sync bus. Path is only meaningful
// for route-change events.
type SyncEvent struct {
	Type    SyncEventType `json:"type"`
	Path    string        `json:"path,omitempty"`
	Filters FilterSet     `json:"filters"`
}
