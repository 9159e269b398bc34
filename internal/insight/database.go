// Package insight scans recent traces for storage activity and reduces it
// into database health summaries.
package insight

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
)

// TraceSource is the backend slice the scanner needs: a page of trace
// summaries plus per-trace span expansion.
type TraceSource interface {
	QueryBasicTraces(ctx context.Context, q models.TraceQuery) ([]models.Trace, error)
	TraceDetail(ctx context.Context, traceID string) ([]models.Span, error)
}

// StorageOp is one observed storage call extracted from a trace.
type StorageOp struct {
	Key       string `json:"key"`
	Statement string `json:"statement"`
	LatencyMs int64  `json:"latencyMs"`
	Time      int64  `json:"time"`
	Component string `json:"component"`
	Peer      string `json:"peer,omitempty"`
	IsError   bool   `json:"isError"`
}

// Summary reduces a scan into the scalars a status panel shows. Health is
// "ONLINE" when the window contained any storage activity, "IDLE" otherwise.
type Summary struct {
	AvgLatencyMs int64  `json:"avgLatencyMs"`
	Ops          int    `json:"ops"`
	Health       string `json:"health"`
}

// Report is the full result of one database scan, newest operation first.
type Report struct {
	Summary Summary     `json:"summary"`
	Ops     []StorageOp `json:"operations"`
}

const (
	defaultPageSize    = 60
	defaultConcurrency = 8
)

// storageComponent matches span components naming a storage engine, for
// agents that report no layer field.
var storageComponent = regexp.MustCompile(`(?i)mysql|postgres|mongodb|redis`)

// statementTags are the span tag keys that carry the executed statement, in
// preference order across database families.
var statementTags = map[string]bool{
	"db.statement":    true,
	"redis.command":   true,
	"mongodb.command": true,
}

// Scanner expands trace pages into storage operation reports.
type Scanner struct {
	source      TraceSource
	logger      *slog.Logger
	pageSize    int
	concurrency int
}

// NewScanner builds a scanner over the given trace source. Non-positive page
// size and concurrency fall back to defaults.
func NewScanner(source TraceSource, logger *slog.Logger, pageSize, concurrency int) *Scanner {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Scanner{source: source, logger: logger, pageSize: pageSize, concurrency: concurrency}
}

// Scan pulls one page of traces for the window, expands each into its spans
// with a bounded fan-out, and keeps every storage Exit span. Individual
// trace expansions may fail without failing the scan.
func (s *Scanner) Scan(ctx context.Context, window models.Duration) (Report, error) {
	traces, err := s.source.QueryBasicTraces(ctx, models.TraceQuery{
		State:    models.TraceStateAll,
		PageNum:  1,
		PageSize: s.pageSize,
		Window:   window,
	})
	if err != nil {
		return Report{}, err
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, s.concurrency)
		ops []StorageOp
	)
	for _, tr := range traces {
		if len(tr.TraceIDs) == 0 {
			continue
		}
		traceID := tr.TraceIDs[0]

		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			spans, err := s.source.TraceDetail(ctx, traceID)
			if err != nil {
				s.logger.Warn("trace expansion failed during storage scan",
					"traceId", traceID, "error", err)
				return
			}

			found := extractStorageOps(spans)
			if len(found) == 0 {
				return
			}
			mu.Lock()
			ops = append(ops, found...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(ops, func(i, j int) bool { return ops[i].Time > ops[j].Time })
	return Report{Summary: summarize(ops), Ops: ops}, nil
}

// extractStorageOps keeps the Exit spans that touched a storage system. A
// span qualifies by layer (database or cache) or, for agents that omit the
// layer, by a storage-engine component name.
func extractStorageOps(spans []models.Span) []StorageOp {
	var ops []StorageOp
	for _, span := range spans {
		if span.Type != "Exit" || !isStorageSpan(span) {
			continue
		}
		component := span.Component
		if component == "" {
			component = "Storage"
		}
		ops = append(ops, StorageOp{
			Key:       strconv.Itoa(span.SpanID) + "-" + strconv.FormatInt(span.StartTime, 10),
			Statement: statementOf(span),
			LatencyMs: span.EndTime - span.StartTime,
			Time:      span.StartTime,
			Component: component,
			Peer:      span.Peer,
			IsError:   span.IsError,
		})
	}
	return ops
}

func isStorageSpan(span models.Span) bool {
	switch strings.ToLower(span.Layer) {
	case "database", "cache":
		return true
	}
	return storageComponent.MatchString(span.Component)
}

// statementOf prefers the recorded statement tag and falls back to the
// endpoint name, which for storage spans is usually the operation verb.
func statementOf(span models.Span) string {
	for _, tag := range span.Tags {
		if statementTags[tag.Key] && tag.Value != "" {
			return tag.Value
		}
	}
	return span.EndpointName
}

func summarize(ops []StorageOp) Summary {
	if len(ops) == 0 {
		return Summary{Health: "IDLE"}
	}
	var total int64
	for _, op := range ops {
		total += op.LatencyMs
	}
	return Summary{
		AvgLatencyMs: total / int64(len(ops)),
		Ops:          len(ops),
		Health:       "ONLINE",
	}
}
