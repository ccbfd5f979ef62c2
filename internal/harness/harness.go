// Package harness is the test-facing entry point: one Harness per test,
// owning a fresh rule registry, a page and its client storage.
package harness

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"yogastudio/internal/adapters/browser"
	"yogastudio/internal/adapters/interceptor"
	"yogastudio/internal/application/fixtures"
	"yogastudio/internal/application/orchestrators"
	"yogastudio/internal/config"
	"yogastudio/internal/domain/identity"
	domain "yogastudio/internal/domain/intercept"
)

// T is the part of testing.TB the harness needs. *testing.T satisfies it.
type T interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
	Cleanup(func())
}

// Options configures New.
type Options struct {
	// Config defaults to config.Defaults() when AppURL is empty.
	Config config.Config
	// Driver opens the page; nil means a MemoryPage.
	Driver browser.Driver
	// Recorder journals intercepted calls when set.
	Recorder interceptor.Recorder
	// RunID groups journal entries; defaults to a random uuid.
	RunID string
}

// Harness composes the engine, the session fixture and the assertion helpers.
// Every helper fails the test through t instead of returning an error.
type Harness struct {
	t      T
	cfg    config.Config
	engine *interceptor.Engine
	page   browser.Page
	memory *MemoryPage
}

// New builds a harness for one test and closes its page on cleanup.
// PRE: called from the test goroutine
// POST: the registry is empty and storage is anonymous
func New(t T, opts Options) *Harness {
	t.Helper()
	cfg := opts.Config
	if cfg.AppURL == "" {
		cfg = config.Defaults()
	}

	engineOpts := []interceptor.Option{
		interceptor.WithReporter(t),
		interceptor.WithAwaitTimeout(cfg.AwaitTimeout),
	}
	if opts.Recorder != nil {
		runID := opts.RunID
		if runID == "" {
			runID = uuid.New().String()
		}
		engineOpts = append(engineOpts, interceptor.WithRecorder(opts.Recorder, runID))
	}
	h := &Harness{t: t, cfg: cfg, engine: interceptor.NewEngine(engineOpts...)}

	if opts.Driver == nil {
		h.memory = NewMemoryPage()
		h.page = h.memory
	} else {
		p, err := opts.Driver.NewPage(h.engine)
		if err != nil {
			t.Fatalf("open page: %v", err)
		}
		h.page = p
	}
	t.Cleanup(func() {
		if err := h.page.Close(); err != nil {
			slog.Warn("harness_event", "event", "page_close_failed", "error", err.Error())
		}
	})
	return h
}

// Engine returns the interceptor the page's API calls are routed through.
func (h *Harness) Engine() *interceptor.Engine { return h.engine }

// Page returns the page under test.
func (h *Harness) Page() browser.Page { return h.page }

// Config returns the settings the harness was built with.
func (h *Harness) Config() config.Config { return h.cfg }

// Memory returns the in-memory page, or nil when a real browser is driving.
func (h *Harness) Memory() *MemoryPage { return h.memory }

// Client returns an HTTP client whose calls are answered by the registry,
// for exercising in-process code the same way the browser would.
func (h *Harness) Client() *http.Client {
	return &http.Client{Transport: h.engine.Transport(), Timeout: h.cfg.AwaitTimeout}
}

// API joins a path onto the configured API prefix.
func (h *Harness) API(format string, args ...any) string {
	return fixtures.Path(h.cfg.APIPrefix, format, args...)
}

// RegisterRule registers (method, path) -> resp under alias.
func (h *Harness) RegisterRule(method, path string, resp domain.Response, alias string) domain.Rule {
	h.t.Helper()
	r, err := domain.NewRule(method, path, resp)
	if err != nil {
		h.t.Fatalf("rule %s %s: %v", method, path, err)
	}
	r.Alias = alias
	h.Register(r)
	return r
}

// Intercept is RegisterRule for a plain status and body.
func (h *Harness) Intercept(method, path string, status int, body any, alias string) domain.Rule {
	h.t.Helper()
	return h.RegisterRule(method, path, domain.Response{StatusCode: status, Body: body}, alias)
}

// Register registers prebuilt rules in order.
func (h *Harness) Register(rules ...domain.Rule) {
	h.t.Helper()
	for _, r := range rules {
		if err := h.engine.Register(r); err != nil {
			h.t.Fatalf("register %s: %v", r.Key(), err)
		}
	}
}

// Await blocks until alias is answered and returns the hit.
func (h *Harness) Await(alias string) domain.Hit {
	h.t.Helper()
	hit, err := h.engine.Await(context.Background(), alias, h.cfg.AwaitTimeout)
	if err != nil {
		h.t.Fatalf("await @%s: %v", alias, err)
	}
	return hit
}

// Visit opens route on the application.
func (h *Harness) Visit(route string) {
	h.t.Helper()
	ctx, cancel := h.actionContext()
	defer cancel()
	if err := h.page.Goto(ctx, h.cfg.URL(route)); err != nil {
		h.t.Fatalf("visit %s: %v", route, err)
	}
}

// SeedAsRole authenticates as role without the login form and opens the
// landing route.
func (h *Harness) SeedAsRole(role string) identity.Identity {
	h.t.Helper()
	ctx, cancel := h.actionContext()
	defer cancel()
	id, err := orchestrators.ExecuteSeedAsRole(ctx, orchestrators.SeedAsRoleInput{
		Role:         role,
		BaseURL:      h.cfg.AppURL,
		LandingRoute: h.cfg.LandingRoute,
	}, orchestrators.SeedAsRoleDeps{Store: h.page, Navigator: h.page})
	if err != nil {
		h.t.Fatalf("seed as %s: %v", role, err)
	}
	return id
}

// ClearSession removes the stored identity.
func (h *Harness) ClearSession() {
	h.t.Helper()
	ctx, cancel := h.actionContext()
	defer cancel()
	if err := orchestrators.ExecuteClearSession(ctx, orchestrators.ClearSessionDeps{Store: h.page}); err != nil {
		h.t.Fatalf("clear session: %v", err)
	}
}

// Identity reads the stored identity.
func (h *Harness) Identity() (identity.Identity, bool) {
	h.t.Helper()
	ctx, cancel := h.actionContext()
	defer cancel()
	id, ok, err := h.page.Load(ctx)
	if err != nil {
		h.t.Fatalf("read identity: %v", err)
	}
	return id, ok
}

// Login submits the login form and waits for the login alias and then each
// followUp alias. An empty email or password field is left blank.
// PRE: the login page is open and a rule aliased fixtures.AliasLogin is registered
func (h *Harness) Login(email, password string, followUp ...string) orchestrators.LoginResult {
	h.t.Helper()
	res, err := orchestrators.ExecuteLogin(context.Background(), orchestrators.LoginInput{
		Email:      email,
		Password:   password,
		LoginAlias: fixtures.AliasLogin,
		FollowUp:   followUp,
		Timeout:    h.cfg.AwaitTimeout,
	}, orchestrators.LoginDeps{Form: h.page, Awaiter: h.engine})
	if err != nil {
		h.t.Fatalf("login as %s: %v", email, err)
	}
	return res
}

// Submit clicks the login button without awaiting any call, for forms the
// application should reject client-side.
func (h *Harness) Submit(email, password string) {
	h.t.Helper()
	_, err := orchestrators.ExecuteLogin(context.Background(), orchestrators.LoginInput{
		Email:    email,
		Password: password,
	}, orchestrators.LoginDeps{Form: h.page, Awaiter: h.engine})
	if err != nil {
		h.t.Fatalf("submit login form: %v", err)
	}
}

// Click clicks the first element matching selector.
func (h *Harness) Click(selector string) {
	h.t.Helper()
	ctx, cancel := h.actionContext()
	defer cancel()
	if err := h.page.Click(ctx, selector); err != nil {
		h.t.Fatalf("click %s: %v", selector, err)
	}
}

// ClickText clicks the first element showing text.
func (h *Harness) ClickText(text string) {
	h.t.Helper()
	ctx, cancel := h.actionContext()
	defer cancel()
	if err := h.page.ClickText(ctx, text); err != nil {
		h.t.Fatalf("click %q: %v", text, err)
	}
}

// Fill types value into the field matching selector.
func (h *Harness) Fill(selector, value string) {
	h.t.Helper()
	ctx, cancel := h.actionContext()
	defer cancel()
	if err := h.page.Fill(ctx, selector, value); err != nil {
		h.t.Fatalf("fill %s: %v", selector, err)
	}
}

// WaitThenSee awaits alias, then expects every text to be visible. An empty
// alias skips the await.
func (h *Harness) WaitThenSee(alias string, texts ...string) domain.Hit {
	h.t.Helper()
	return h.waitThen(alias, true, texts)
}

// WaitThenMissing awaits alias, then expects every text to be absent.
func (h *Harness) WaitThenMissing(alias string, texts ...string) domain.Hit {
	h.t.Helper()
	return h.waitThen(alias, false, texts)
}

func (h *Harness) waitThen(alias string, visible bool, texts []string) domain.Hit {
	h.t.Helper()
	var hit domain.Hit
	if alias != "" {
		hit = h.Await(alias)
	}
	for _, text := range texts {
		if err := h.page.WaitText(context.Background(), text, visible, h.cfg.AwaitTimeout); err != nil {
			h.t.Fatalf("after @%s: %v", alias, err)
		}
	}
	return hit
}

// ExpectURLContains waits for the page URL to contain part.
func (h *Harness) ExpectURLContains(part string) {
	h.t.Helper()
	deadline := time.Now().Add(h.cfg.AwaitTimeout)
	var last string
	for {
		ctx, cancel := h.actionContext()
		url, err := h.page.URL(ctx)
		cancel()
		if err != nil {
			h.t.Fatalf("read url: %v", err)
		}
		if strings.Contains(url, part) {
			return
		}
		last = url
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	h.t.Fatalf("url %q does not contain %q after %s", last, part, h.cfg.AwaitTimeout)
}

// ExpectRequestJSON compares the hit's request body with want as JSON,
// ignoring key order and formatting.
func (h *Harness) ExpectRequestJSON(hit domain.Hit, want any) {
	h.t.Helper()
	diff, equal, err := jsonDiff(hit.RequestBody, want)
	if err != nil {
		h.t.Fatalf("@%s request body: %v", hit.Alias, err)
	}
	if !equal {
		h.t.Fatalf("@%s request body mismatch (-want +got):\n%s", hit.Alias, diff)
	}
}

func (h *Harness) actionContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), browser.DefaultActionTimeout)
}
