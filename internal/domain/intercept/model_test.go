package intercept_test

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"yogastudio/internal/domain/intercept"
)

// TestParsePattern tests pattern parsing and normalization.
func TestParsePattern(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		want      string
		wantParam string
		wantErr   bool
	}{
		{name: "literal", raw: "/api/session", want: "/api/session"},
		{name: "trailing slash", raw: "/api/session/", want: "/api/session"},
		{name: "brace param", raw: "/api/session/{id}", want: "/api/session/{id}", wantParam: "id"},
		{name: "colon param", raw: "/api/user/:id", want: "/api/user/:id", wantParam: "id"},
		{name: "param in middle", raw: "/api/session/1/participate/{userId}", want: "/api/session/1/participate/{userId}", wantParam: "userId"},
		{name: "root", raw: "/", want: "/"},
		{name: "no leading slash", raw: "api/session", wantErr: true},
		{name: "two params", raw: "/api/session/{id}/participate/{userId}", wantErr: true},
		{name: "empty param name", raw: "/api/session/{}", wantErr: true},
		{name: "query string", raw: "/api/session?x=1", wantErr: true},
		{name: "empty", raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := intercept.ParsePattern(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, intercept.ErrInvalidPattern) {
					t.Fatalf("ParsePattern(%q) error = %v, want ErrInvalidPattern", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePattern(%q) unexpected error: %v", tt.raw, err)
			}
			if p.String() != tt.want {
				t.Errorf("String() = %q, want %q", p.String(), tt.want)
			}
			if p.ParamName() != tt.wantParam {
				t.Errorf("ParamName() = %q, want %q", p.ParamName(), tt.wantParam)
			}
		})
	}
}

// TestPattern_Match tests path matching and parameter capture.
func TestPattern_Match(t *testing.T) {
	tests := []struct {
		pattern   string
		path      string
		wantOK    bool
		wantParam string
	}{
		{pattern: "/api/session", path: "/api/session", wantOK: true},
		{pattern: "/api/session", path: "/api/session/", wantOK: true},
		{pattern: "/api/session", path: "/api/session/1", wantOK: false},
		{pattern: "/api/session/{id}", path: "/api/session/1", wantOK: true, wantParam: "1"},
		{pattern: "/api/session/{id}", path: "/api/session", wantOK: false},
		{pattern: "/api/session/{id}", path: "/api/teacher/1", wantOK: false},
		{pattern: "/api/session/1/participate/{userId}", path: "/api/session/1/participate/2", wantOK: true, wantParam: "2"},
		{pattern: "/api/session/1/participate/{userId}", path: "/api/session/3/participate/2", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			p := intercept.MustParsePattern(tt.pattern)
			param, ok := p.Match(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("Match(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			}
			if param != tt.wantParam {
				t.Errorf("Match(%q) param = %q, want %q", tt.path, param, tt.wantParam)
			}
		})
	}
}

// TestRule_Validate tests validation of Rule.
func TestRule_Validate(t *testing.T) {
	p := intercept.MustParsePattern("/api/session")
	tests := []struct {
		name    string
		rule    intercept.Rule
		wantErr error
	}{
		{name: "valid", rule: intercept.Rule{Method: "GET", Pattern: p}},
		{name: "explicit status", rule: intercept.Rule{Method: "DELETE", Pattern: p, Response: intercept.Response{StatusCode: 204}}},
		{name: "bad method", rule: intercept.Rule{Method: "FETCH", Pattern: p}, wantErr: intercept.ErrInvalidMethod},
		{name: "lower case method", rule: intercept.Rule{Method: "get", Pattern: p}, wantErr: intercept.ErrInvalidMethod},
		{name: "missing pattern", rule: intercept.Rule{Method: "GET"}, wantErr: intercept.ErrInvalidPattern},
		{name: "bad status", rule: intercept.Rule{Method: "GET", Pattern: p, Response: intercept.Response{StatusCode: 42}}, wantErr: intercept.ErrInvalidStatus},
		{name: "negative times", rule: intercept.Rule{Method: "GET", Pattern: p, Times: -1}, wantErr: intercept.ErrInvalidTimes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestNewRule_UppercasesMethod verifies raw method input is normalized.
func TestNewRule_UppercasesMethod(t *testing.T) {
	r, err := intercept.NewRule(" post ", "/api/auth/login", intercept.Response{})
	if err != nil {
		t.Fatalf("NewRule: %v", err)
	}
	if r.Key() != "POST /api/auth/login" {
		t.Errorf("Key() = %q", r.Key())
	}
}

// TestRule_Resolve_DefaultsStatus verifies a zero status becomes 200 and responders win.
func TestRule_Resolve_DefaultsStatus(t *testing.T) {
	r, _ := intercept.NewRule("GET", "/api/user/{id}", intercept.Response{Body: "static"})
	if got := r.Resolve(intercept.Request{}); got.StatusCode != http.StatusOK || got.Body != "static" {
		t.Errorf("Resolve() = %+v", got)
	}

	r.Respond = func(req intercept.Request) intercept.Response {
		return intercept.Response{StatusCode: http.StatusNotFound, Body: req.Param}
	}
	got := r.Resolve(intercept.Request{Param: "7"})
	if got.StatusCode != http.StatusNotFound || got.Body != "7" {
		t.Errorf("Resolve() with responder = %+v", got)
	}
}

// TestErrors_Is verifies typed errors match their sentinels.
func TestErrors_Is(t *testing.T) {
	var err error = &intercept.UnmatchedRequestError{Method: "GET", Path: "/api/x"}
	if !errors.Is(err, intercept.ErrUnmatchedRequest) {
		t.Error("UnmatchedRequestError should match ErrUnmatchedRequest")
	}
	if !strings.Contains(err.Error(), "GET /api/x") {
		t.Errorf("Error() = %q", err.Error())
	}
	err = &intercept.TimeoutError{Alias: "getSessions"}
	if !errors.Is(err, intercept.ErrTimeout) {
		t.Error("TimeoutError should match ErrTimeout")
	}
	if errors.Is(err, intercept.ErrUnmatchedRequest) {
		t.Error("TimeoutError must not match ErrUnmatchedRequest")
	}
}

// TestPattern_MatchesOwnConcretePaths checks that a single-segment pattern
// matches any concrete value in that position and nothing with a different shape.
func TestPattern_MatchesOwnConcretePaths(t *testing.T) {
	segment := rapid.StringMatching(`[a-z0-9]{1,8}`)
	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.SliceOfN(segment, 1, 4).Draw(t, "prefix")
		value := segment.Draw(t, "value")

		p := intercept.MustParsePattern("/" + strings.Join(prefix, "/") + "/{id}")
		param, ok := p.Match("/" + strings.Join(prefix, "/") + "/" + value)
		if !ok || param != value {
			t.Fatalf("pattern %s did not capture %q (ok=%v param=%q)", p, value, ok, param)
		}
		if _, ok := p.Match("/" + strings.Join(prefix, "/")); ok {
			t.Fatalf("pattern %s matched a shorter path", p)
		}
		if _, ok := p.Match("/" + strings.Join(prefix, "/") + "/" + value + "/extra"); ok {
			t.Fatalf("pattern %s matched a longer path", p)
		}
	})
}
