// Package window owns the single authoritative observation window every view
// queries against. The store is dependency-injected rather than a package
// level variable so tests can run isolated instances while production keeps
// the single-source-of-truth contract.
package window

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ankitchouhan119/SkyObserv/internal/models"
	"github.com/ankitchouhan119/SkyObserv/internal/timefmt"
)

// DefaultSkew compensates for backend ingestion lag so the most recent
// bucket is not queried before data lands.
const DefaultSkew = 2 * time.Minute

// CustomLabel marks a user-chosen calendar range. Custom windows are sticky:
// Refresh leaves them untouched so a historical range never drifts silently.
const CustomLabel = "Custom Date"

const defaultLabel = "Last 15 Minutes"

// TimeWindow is an immutable snapshot of the active window.
type TimeWindow struct {
	Start       string
	End         string
	Granularity timefmt.Granularity
	Label       string
}

// Duration renders the window as backend query arguments.
func (w TimeWindow) Duration() models.Duration {
	return models.Duration{Start: w.Start, End: w.End, Step: string(w.Granularity)}
}

// Store holds the active window. Writes replace the whole window value
// atomically, so concurrent readers never observe a partially updated range.
type Store struct {
	logger *slog.Logger
	skew   time.Duration
	now    func() time.Time

	mu         sync.RWMutex
	current    TimeWindow
	generation uint64
}

// Option customises a Store.
type Option func(*Store)

// WithSkew overrides the ingestion-lag compensation applied to presets.
func WithSkew(skew time.Duration) Option {
	return func(s *Store) { s.skew = skew }
}

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store initialised to the default "last 15 minutes"
// preset.
func NewStore(logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		logger: logger,
		skew:   DefaultSkew,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetPreset(defaultLabel, 15, timefmt.Minute)
	return s
}

// SetPreset replaces the window with [now - minutes - skew, now - skew]. The
// label is stored verbatim for display and so Refresh can recompute the same
// width later.
func (s *Store) SetPreset(label string, minutes int, g timefmt.Granularity) TimeWindow {
	end := s.now().Add(-s.skew)
	start := end.Add(-time.Duration(minutes) * time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = TimeWindow{
		Start:       timefmt.ToWire(start, g),
		End:         timefmt.ToWire(end, g),
		Granularity: g,
		Label:       label,
	}
	s.generation++
	return s.current
}

// SetCustomRange replaces the window with an explicit calendar range.
// Date-only inputs expand to day bounds 00:00-23:59; inputs that carry a
// minute component are honoured as-is. Unparseable input is rejected
// silently and the previous window retained, never surfaced into the render
// path.
func (s *Store) SetCustomRange(startDate, endDate string) TimeWindow {
	start, okStart := normalizeBound(startDate, "0000")
	end, okEnd := normalizeBound(endDate, "2359")
	if !okStart || !okEnd {
		s.logger.Debug("rejected custom range",
			slog.String("start", startDate), slog.String("end", endDate))
		return s.Window()
	}
	if start > end {
		start, end = end, start
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = TimeWindow{
		Start:       start,
		End:         end,
		Granularity: timefmt.Minute,
		Label:       CustomLabel,
	}
	s.generation++
	return s.current
}

// Refresh re-derives the active preset's width from its label and slides the
// window to the current instant. Custom ranges are left untouched.
func (s *Store) Refresh() TimeWindow {
	s.mu.RLock()
	label := s.current.Label
	g := s.current.Granularity
	s.mu.RUnlock()

	if label == CustomLabel {
		return s.Window()
	}
	return s.SetPreset(label, presetMinutes(label), g)
}

// Window returns the current immutable window.
func (s *Store) Window() TimeWindow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Snapshot renders the current window as backend query arguments.
func (s *Store) Snapshot() models.Duration {
	return s.Window().Duration()
}

// Generation returns a counter that increments on every window change.
// Fetch initiators tag requests with it and discard responses whose
// generation no longer matches, avoiding out-of-order renders when the
// window changes rapidly.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// presetMinutes recovers a preset's width from its display label. Storing
// only the label and re-parsing the width keeps the state that the user sees
// and the state Refresh uses from ever disagreeing.
func presetMinutes(label string) int {
	switch {
	case strings.Contains(label, "30"):
		return 30
	case strings.Contains(label, "1 Hour"):
		return 60
	case strings.Contains(label, "6 Hour"):
		return 360
	case strings.Contains(label, "12 Hour"):
		return 720
	case strings.Contains(label, "24 Hour"):
		return 1440
	default:
		return 15
	}
}

var (
	dayOnlyYearFirst = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dayOnlyDayFirst  = regexp.MustCompile(`^\d{2}[-/]\d{2}[-/]\d{4}$`)
)

// normalizeBound canonicalises one custom-range bound to minute resolution,
// substituting the given default time when the input carries only a date.
// The result is re-parsed as a calendar instant, so impossible dates such as
// February 30th are rejected, not just digit-range violations.
func normalizeBound(input, defaultTime string) (string, bool) {
	trimmed := strings.TrimSpace(input)

	dateOnly := dayOnlyYearFirst.MatchString(trimmed) || dayOnlyDayFirst.MatchString(trimmed)
	normalized := timefmt.NormalizeLoose(trimmed)
	if dateOnly && len(normalized) >= len("2006-01-02") {
		normalized = normalized[:len("2006-01-02")] + " " + defaultTime
	}
	// Hour-form bounds gain an explicit minute so the stored window is
	// uniformly minute-resolution.
	if hourForm.MatchString(normalized) {
		normalized += "00"
	}

	if _, err := time.Parse("2006-01-02 1504", normalized); err != nil {
		return "", false
	}
	return normalized, true
}

var hourForm = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}$`)

// compactWire strips the separators of a wire timestamp so the bucket
// decoder can validate its digits.
func compactWire(wire string) string {
	return strings.NewReplacer("-", "", " ", "", ":", "").Replace(wire)
}
