package journal_test

import (
	"errors"
	"testing"
	"time"

	"yogastudio/internal/domain/journal"
)

// TestEntry_Validate tests validation of Entry.
func TestEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   journal.Entry
		wantErr error
	}{
		{name: "valid", entry: journal.Entry{RunID: "r1", Method: "GET"}},
		{name: "no run", entry: journal.Entry{Method: "GET"}, wantErr: journal.ErrEmptyRunID},
		{name: "no method", entry: journal.Entry{RunID: "r1"}, wantErr: journal.ErrEmptyMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.entry.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestSummarize verifies alias counts, unmatched collection and time bounds.
func TestSummarize(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	entries := []journal.Entry{
		{RunID: "r1", Alias: "getSessions", Method: "GET", Path: "/api/session", StatusCode: 200, Matched: true, At: t0.Add(2 * time.Second)},
		{RunID: "r1", Alias: "getSessions", Method: "GET", Path: "/api/session", StatusCode: 200, Matched: true, At: t0.Add(3 * time.Second)},
		{RunID: "r1", Alias: "login", Method: "POST", Path: "/api/auth/login", StatusCode: 200, Matched: true, At: t0},
		{RunID: "r1", Method: "GET", Path: "/api/teacher", StatusCode: 200, Matched: true, At: t0.Add(time.Second)},
		{RunID: "r1", Method: "GET", Path: "/api/user/9", StatusCode: 501, Matched: false, At: t0.Add(4 * time.Second)},
	}

	s := journal.Summarize("r1", entries)
	if s.Total != 5 {
		t.Errorf("Total = %d, want 5", s.Total)
	}
	if !s.Failed() || len(s.Unmatched) != 1 || s.Unmatched[0].Path != "/api/user/9" {
		t.Errorf("Unmatched = %+v", s.Unmatched)
	}
	want := []journal.AliasCount{{Alias: "(none)", Hits: 1}, {Alias: "getSessions", Hits: 2}, {Alias: "login", Hits: 1}}
	if len(s.Aliases) != len(want) {
		t.Fatalf("Aliases = %+v", s.Aliases)
	}
	for i := range want {
		if s.Aliases[i] != want[i] {
			t.Errorf("Aliases[%d] = %+v, want %+v", i, s.Aliases[i], want[i])
		}
	}
	if !s.StartedAt.Equal(t0) || !s.EndedAt.Equal(t0.Add(4*time.Second)) {
		t.Errorf("bounds = %v..%v", s.StartedAt, s.EndedAt)
	}
}

// TestSummarize_Empty verifies an empty run is not failed.
func TestSummarize_Empty(t *testing.T) {
	s := journal.Summarize("r2", nil)
	if s.Failed() || s.Total != 0 || len(s.Aliases) != 0 {
		t.Errorf("Summarize(nil) = %+v", s)
	}
}
