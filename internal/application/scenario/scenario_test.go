package scenario

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"yogastudio/internal/adapters/interceptor"
	domain "yogastudio/internal/domain/intercept"
)

const sessionScenario = `
name: session-list
rules:
  - method: get
    path: /api/session
    alias: getSessions
    body:
      - id: 1
        name: Morning Yoga
        users: []
  - method: POST
    path: /api/auth/login
    alias: login
    status: 401
    body:
      message: Invalid credentials
  - method: GET
    path: /api/teacher
    alias: getTeachers
    body_file: teachers.json
    times: 1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

// TestLoad_AndApply verifies a scenario file drives the engine.
func TestLoad_AndApply(t *testing.T) {
	dir := tempDir(t)
	writeFile(t, dir, "teachers.json", `[{"id":1,"lastName":"Doe","firstName":"John"}]`)
	path := writeFile(t, dir, "list.yaml", sessionScenario)

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	engine := interceptor.NewEngine()
	if err := Apply(engine, sc); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := len(engine.Rules()); got != 3 {
		t.Fatalf("Rules() = %d, want 3", got)
	}

	srv := httptest.NewServer(engine)
	defer srv.Close()

	tests := []struct {
		method, path string
		wantStatus   int
		wantBody     string
	}{
		{http.MethodGet, "/api/session", 200, `[{"id":1,"name":"Morning Yoga","users":[]}]`},
		{http.MethodPost, "/api/auth/login", 401, `{"message":"Invalid credentials"}`},
		{http.MethodGet, "/api/teacher", 200, `[{"id":1,"lastName":"Doe","firstName":"John"}]`},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(tt.method, srv.URL+tt.path, nil)
		resp, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", tt.method, tt.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != tt.wantStatus || string(body) != tt.wantBody {
			t.Errorf("%s %s = %d %s, want %d %s", tt.method, tt.path, resp.StatusCode, body, tt.wantStatus, tt.wantBody)
		}
	}

	// times: 1 exhausts the teacher rule.
	resp, err := srv.Client().Get(srv.URL + "/api/teacher")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Errorf("second teacher call = %d, want 501", resp.StatusCode)
	}
}

// TestParse_Invalid tests rejection of malformed scenarios.
func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
	}{
		{name: "empty", doc: "", wantErr: ErrEmptyScenario},
		{name: "no rules", doc: "name: x\nrules: []\n", wantErr: ErrNoRules},
		{name: "bad method", doc: "rules:\n  - method: FETCH\n    path: /api\n", wantErr: domain.ErrInvalidMethod},
		{name: "two params", doc: "rules:\n  - method: GET\n    path: /api/{a}/{b}\n", wantErr: domain.ErrInvalidPattern},
		{name: "bad status", doc: "rules:\n  - method: GET\n    path: /api\n    status: 42\n", wantErr: domain.ErrInvalidStatus},
		{name: "negative times", doc: "rules:\n  - method: GET\n    path: /api\n    times: -1\n", wantErr: domain.ErrInvalidTimes},
		{name: "body conflict", doc: "rules:\n  - method: GET\n    path: /api\n    body: {}\n    body_file: x.json\n", wantErr: ErrBodyConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc, err := Parse([]byte(tt.doc))
			if err == nil {
				_, err = sc.Build()
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestApply_DuplicateAlias verifies alias uniqueness is enforced on apply.
func TestApply_DuplicateAlias(t *testing.T) {
	sc, err := Parse([]byte("rules:\n  - {method: GET, path: /a, alias: x}\n  - {method: GET, path: /b, alias: x}\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Apply(interceptor.NewEngine(), sc); !errors.Is(err, domain.ErrDuplicateAlias) {
		t.Errorf("Apply error = %v, want ErrDuplicateAlias", err)
	}
}

// TestReplace_ResetsRegistry verifies stale rules are dropped.
func TestReplace_ResetsRegistry(t *testing.T) {
	engine := interceptor.NewEngine()
	first, _ := Parse([]byte("rules:\n  - {method: GET, path: /old, alias: old}\n"))
	second, _ := Parse([]byte("rules:\n  - {method: GET, path: /new, alias: new}\n"))
	if err := Apply(engine, first); err != nil {
		t.Fatal(err)
	}
	if err := Replace(engine, second); err != nil {
		t.Fatal(err)
	}
	rules := engine.Rules()
	if len(rules) != 1 || rules[0].Alias != "new" {
		t.Errorf("Rules() = %+v", rules)
	}
}

// TestReplace_ConflictKeepsRegistry verifies a rejected scenario leaves the
// previous rules active.
func TestReplace_ConflictKeepsRegistry(t *testing.T) {
	engine := interceptor.NewEngine()
	first, _ := Parse([]byte("rules:\n  - {method: GET, path: /old, alias: old}\n"))
	bad, _ := Parse([]byte("rules:\n  - {method: GET, path: /a, alias: x}\n  - {method: GET, path: /b, alias: x}\n"))
	if err := Apply(engine, first); err != nil {
		t.Fatal(err)
	}
	if err := Replace(engine, bad); !errors.Is(err, domain.ErrDuplicateAlias) {
		t.Fatalf("Replace error = %v, want ErrDuplicateAlias", err)
	}
	rules := engine.Rules()
	if len(rules) != 1 || rules[0].Alias != "old" {
		t.Errorf("Rules() = %+v", rules)
	}
}

// TestAliases verifies per-alias counts.
func TestAliases(t *testing.T) {
	sc, _ := Parse([]byte(sessionScenario))
	got := sc.Aliases()
	want := []AliasCount{{"getSessions", 1}, {"getTeachers", 1}, {"login", 1}}
	if len(got) != len(want) {
		t.Fatalf("Aliases() = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Aliases()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// TestWatch_ReloadsOnChange verifies edits are picked up and broken edits skipped.
func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := tempDir(t)
	path := writeFile(t, dir, "s.yaml", "name: v1\nrules:\n  - {method: GET, path: /a}\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan Scenario, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, 20*time.Millisecond, func(s Scenario) { got <- s }) }()

	// Give the watcher time to register before editing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "s.yaml", "name: broken\nrules: [")
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "s.yaml", "name: v2\nrules:\n  - {method: GET, path: /b}\n")

	select {
	case s := <-got:
		if s.Name != "v2" {
			t.Errorf("reloaded %q, want v2", s.Name)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload observed")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Watch returned %v", err)
	}
}
