package journal

import (
	"errors"
	"sort"
	"time"
)

// Domain errors
var (
	ErrEmptyRunID  = errors.New("run id cannot be empty")
	ErrEmptyMethod = errors.New("method cannot be empty")
)

// Entry is one intercepted call written to the journal.
type Entry struct {
	ID         string
	RunID      string
	Alias      string
	Method     string
	Path       string
	StatusCode int
	Matched    bool
	At         time.Time
}

// Validate checks if the Entry has valid data.
// PRE: Entry struct is populated
// POST: Returns nil if valid, error otherwise
func (e *Entry) Validate() error {
	if e.RunID == "" {
		return ErrEmptyRunID
	}
	if e.Method == "" {
		return ErrEmptyMethod
	}
	return nil
}

// AliasCount is the number of delivered hits for one alias.
type AliasCount struct {
	Alias string
	Hits  int
}

// Summary aggregates the entries of one run.
type Summary struct {
	RunID     string
	Total     int
	Unmatched []Entry
	Aliases   []AliasCount
	StartedAt time.Time
	EndedAt   time.Time
}

// Failed reports whether the run saw an unmatched call.
func (s Summary) Failed() bool {
	return len(s.Unmatched) > 0
}

// Summarize aggregates entries belonging to runID.
// PRE: entries are from a single run
// POST: Aliases sorted by name; unaliased hits counted under "(none)"
func Summarize(runID string, entries []Entry) Summary {
	s := Summary{RunID: runID, Total: len(entries)}
	counts := make(map[string]int)
	for _, e := range entries {
		if s.StartedAt.IsZero() || e.At.Before(s.StartedAt) {
			s.StartedAt = e.At
		}
		if e.At.After(s.EndedAt) {
			s.EndedAt = e.At
		}
		if !e.Matched {
			s.Unmatched = append(s.Unmatched, e)
			continue
		}
		alias := e.Alias
		if alias == "" {
			alias = "(none)"
		}
		counts[alias]++
	}
	for alias, n := range counts {
		s.Aliases = append(s.Aliases, AliasCount{Alias: alias, Hits: n})
	}
	sort.Slice(s.Aliases, func(i, j int) bool { return s.Aliases[i].Alias < s.Aliases[j].Alias })
	return s
}

// Run is a journaled run listed by the CLI.
type Run struct {
	ID        string
	Entries   int
	Unmatched int
	StartedAt time.Time
}
