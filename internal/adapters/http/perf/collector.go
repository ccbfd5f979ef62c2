package perf

import (
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes mocked backend calls from control-plane calls.
type EntryKind uint8

const (
	KindMock EntryKind = iota
	KindControl
)

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Path       string // "METHOD /path"
	StatusCode int
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer for timing entries.
// Writes are non-blocking; when full, oldest entries are overwritten.
// Aggregation happens only on read (Snapshot).
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int64 // total entries ever written (atomic for stats)
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: size > 0, otherwise DefaultRingSize is used
// POST: Returns a ready-to-use collector with pre-allocated storage
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry to the ring buffer.
// PRE: e is a valid Entry
// POST: Entry stored; if buffer full, oldest entry overwritten
func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % c.size
	c.mu.Unlock()
	atomic.AddInt64(&c.count, 1)
}

// TotalRecorded returns the total number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return atomic.LoadInt64(&c.count)
}

// Snapshot holds aggregated timing data computed on read.
type Snapshot struct {
	TotalRecorded  int64      `json:"total_recorded"`
	MockCalls      int        `json:"mock_calls"`
	UnmatchedCalls int        `json:"unmatched_calls"`
	MockP50Ms      float64    `json:"mock_p50_ms"`
	MockP95Ms      float64    `json:"mock_p95_ms"`
	MockP99Ms      float64    `json:"mock_p99_ms"`
	SlowestMocks   []PathStat `json:"slowest_mocks"`
	SlowestControl []PathStat `json:"slowest_control"`
}

// PathStat aggregates timing for a single method and path.
type PathStat struct {
	Path    string  `json:"path"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	Count   int     `json:"count"`
	TotalMs float64 `json:"total_ms"`
}

// Snapshot computes aggregated stats from entries newer than since.
// PRE: topN > 0
// POST: Returns percentiles over mocked calls and top-N lists per kind
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := make([]Entry, c.size)
	copy(buf, c.entries)
	c.mu.Unlock()

	var mockDurations []float64
	mockStats := make(map[string]*PathStat)
	controlStats := make(map[string]*PathStat)
	unmatched := 0

	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		stats := controlStats
		if e.Kind == KindMock {
			stats = mockStats
			mockDurations = append(mockDurations, e.DurationMs)
			if e.StatusCode == http.StatusNotImplemented {
				unmatched++
			}
		}
		s, ok := stats[e.Path]
		if !ok {
			s = &PathStat{Path: e.Path}
			stats[e.Path] = s
		}
		s.Count++
		s.TotalMs += e.DurationMs
		if e.DurationMs > s.MaxMs {
			s.MaxMs = e.DurationMs
		}
	}

	snap := Snapshot{
		TotalRecorded:  c.TotalRecorded(),
		MockCalls:      len(mockDurations),
		UnmatchedCalls: unmatched,
		SlowestMocks:   topByAvg(mockStats, topN),
		SlowestControl: topByAvg(controlStats, topN),
	}
	if len(mockDurations) > 0 {
		sort.Float64s(mockDurations)
		snap.MockP50Ms = percentile(mockDurations, 50)
		snap.MockP95Ms = percentile(mockDurations, 95)
		snap.MockP99Ms = percentile(mockDurations, 99)
	}
	return snap
}

// percentile returns the p-th percentile from a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// topByAvg returns the top N paths by average duration, slowest first.
func topByAvg(stats map[string]*PathStat, n int) []PathStat {
	list := make([]PathStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs == list[j].AvgMs {
			return list[i].Path < list[j].Path
		}
		return list[i].AvgMs > list[j].AvgMs
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}
