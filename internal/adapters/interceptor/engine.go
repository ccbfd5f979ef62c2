package interceptor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "yogastudio/internal/domain/intercept"
	"yogastudio/internal/domain/journal"
)

// DefaultAwaitTimeout bounds Await when the caller passes no timeout.
const DefaultAwaitTimeout = 4 * time.Second

// Reporter receives hard failures as they happen. *testing.T satisfies it.
type Reporter interface {
	Errorf(format string, args ...any)
}

// Recorder persists journal entries.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithReporter routes unmatched calls to r as soon as they occur.
func WithReporter(r Reporter) Option {
	return func(e *Engine) { e.reporter = r }
}

// WithRecorder journals every intercepted call under runID.
func WithRecorder(r Recorder, runID string) Option {
	return func(e *Engine) {
		e.recorder = r
		e.runID = runID
	}
}

// WithAwaitTimeout overrides DefaultAwaitTimeout.
func WithAwaitTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type entry struct {
	rule domain.Rule
	used int
}

func (en *entry) exhausted() bool {
	return en.rule.Times > 0 && en.used >= en.rule.Times
}

type aliasState struct {
	hits []domain.Hit
	next int
}

// Engine is the interception registry. It matches outbound calls against
// registered rules, answers them, and lets tests await aliased calls.
// One Engine serves one test; adapters may call it from any goroutine.
type Engine struct {
	mu sync.Mutex

	// rules is kept in registration order, newest last.
	rules []*entry

	// bound maps an alias to the key of the rule holding it.
	bound map[string]string

	// failed holds calls the engine could not answer, oldest first.
	failed []error

	aliases map[string]*aliasState
	changed chan struct{}
	subs    map[int]chan domain.Hit
	nextSub int

	reporter Reporter
	recorder Recorder
	runID    string
	timeout  time.Duration
	now      func() time.Time
}

// NewEngine creates an empty Engine.
// POST: Returns an engine with no rules and the default await timeout
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		bound:   make(map[string]string),
		aliases: make(map[string]*aliasState),
		changed: make(chan struct{}),
		subs:    make(map[int]chan domain.Hit),
		timeout: DefaultAwaitTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunID returns the journal run id, or "" when journaling is off.
func (e *Engine) RunID() string {
	return e.runID
}

// Register adds rule, replacing any rule with the same method and pattern.
// PRE: rule passes Validate
// POST: rule is consulted before every older rule; no network activity occurs
// INVARIANT: an alias is bound to at most one active rule
func (e *Engine) Register(rule domain.Rule) error {
	return e.RegisterAll(rule)
}

// RegisterAll registers rules in order as one batch.
// POST: on error nothing was registered
func (e *Engine) RegisterAll(rules ...domain.Rule) error {
	rules, err := e.prepare(rules)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := checkAliases(e.bound, rules); err != nil {
		return err
	}
	for _, rule := range rules {
		e.registerLocked(rule)
	}
	return nil
}

// ReplaceAll resets the engine and registers rules as one batch.
// POST: on error the engine is unchanged
func (e *Engine) ReplaceAll(rules ...domain.Rule) error {
	rules, err := e.prepare(rules)
	if err != nil {
		return err
	}
	if err := checkAliases(nil, rules); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
	for _, rule := range rules {
		e.registerLocked(rule)
	}
	return nil
}

func (e *Engine) prepare(rules []domain.Rule) ([]domain.Rule, error) {
	out := make([]domain.Rule, 0, len(rules))
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		if rule.CreatedAt.IsZero() {
			rule.CreatedAt = e.now()
		}
		out = append(out, rule)
	}
	return out, nil
}

// checkAliases replays the alias bindings rules would produce on top of bound
// and reports the first conflict. bound is not modified.
func checkAliases(bound map[string]string, rules []domain.Rule) error {
	sim := make(map[string]string, len(bound)+len(rules))
	for alias, key := range bound {
		sim[alias] = key
	}
	for _, rule := range rules {
		key := rule.Key()
		if rule.Alias != "" {
			if other, ok := sim[rule.Alias]; ok && other != key {
				return fmt.Errorf("@%s is bound to %s: %w", rule.Alias, other, domain.ErrDuplicateAlias)
			}
		}
		for alias, k := range sim {
			if k == key {
				delete(sim, alias)
			}
		}
		if rule.Alias != "" {
			sim[rule.Alias] = key
		}
	}
	return nil
}

func (e *Engine) registerLocked(rule domain.Rule) {
	key := rule.Key()
	kept := e.rules[:0]
	for _, en := range e.rules {
		if en.rule.Key() == key {
			if en.rule.Alias != "" {
				delete(e.bound, en.rule.Alias)
			}
			continue
		}
		kept = append(kept, en)
	}
	e.rules = append(kept, &entry{rule: rule})

	if rule.Alias != "" {
		e.bound[rule.Alias] = key
		if _, ok := e.aliases[rule.Alias]; !ok {
			e.aliases[rule.Alias] = &aliasState{}
		}
	}
	slog.Debug("intercept_event", "event", "rule_registered", "key", key, "alias", rule.Alias, "times", rule.Times)
}

// Rules returns the active rules, newest first.
func (e *Engine) Rules() []domain.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Rule, 0, len(e.rules))
	for i := len(e.rules) - 1; i >= 0; i-- {
		out = append(out, e.rules[i].rule)
	}
	return out
}

// Reset drops every rule, hit and recorded failure.
// POST: Engine is equivalent to a fresh NewEngine with the same options
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) resetLocked() {
	e.rules = nil
	e.bound = make(map[string]string)
	e.aliases = make(map[string]*aliasState)
	e.failed = nil
	e.broadcastLocked()
}

// Intercept matches req against the registry.
// PRE: req.Method and req.Path describe the outbound call
// POST: Returns an Exchange to deliver, or an *UnmatchedRequestError or
// *ResponseEncodeError that has already been recorded and reported
func (e *Engine) Intercept(req domain.Request) (*Exchange, error) {
	req.Path = domain.NormalizePath(req.Path)

	e.mu.Lock()
	var match *entry
	for i := len(e.rules) - 1; i >= 0; i-- {
		en := e.rules[i]
		if en.rule.Method != req.Method || en.exhausted() {
			continue
		}
		param, ok := en.rule.Pattern.Match(req.Path)
		if !ok {
			continue
		}
		req.Param = param
		en.used++
		match = en
		break
	}
	if match == nil {
		e.mu.Unlock()
		uerr := &domain.UnmatchedRequestError{Method: req.Method, Path: req.Path}
		e.fail(req, uerr, http.StatusNotImplemented)
		return nil, uerr
	}
	rule := match.rule
	e.mu.Unlock()

	// Responders run outside the lock so they may inspect the engine.
	resp := rule.Resolve(req)
	body, contentType, err := encodeBody(resp.Body)
	if err != nil {
		eerr := &domain.ResponseEncodeError{Method: req.Method, Path: req.Path, Rule: rule.Key(), Err: err}
		e.fail(req, eerr, http.StatusInternalServerError)
		return nil, eerr
	}
	return &Exchange{
		Request:     req,
		Response:    resp,
		body:        body,
		contentType: contentType,
		alias:       rule.Alias,
		engine:      e,
	}, nil
}

// Await blocks until a delivered hit for alias is available and consumes it.
// PRE: alias was registered at some point in this test
// POST: Returns the oldest unconsumed hit, a *TimeoutError, or the first
// failed call seen by the engine
func (e *Engine) Await(ctx context.Context, alias string, timeout time.Duration) (domain.Hit, error) {
	if timeout <= 0 {
		timeout = e.timeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		e.mu.Lock()
		st, ok := e.aliases[alias]
		if !ok {
			e.mu.Unlock()
			return domain.Hit{}, fmt.Errorf("@%s: %w", alias, domain.ErrUnknownAlias)
		}
		if len(e.failed) > 0 {
			ferr := e.failed[0]
			e.mu.Unlock()
			return domain.Hit{}, ferr
		}
		if st.next < len(st.hits) {
			hit := st.hits[st.next]
			st.next++
			e.mu.Unlock()
			return hit, nil
		}
		changed := e.changed
		e.mu.Unlock()

		select {
		case <-changed:
		case <-timer.C:
			return domain.Hit{}, &domain.TimeoutError{Alias: alias, After: timeout}
		case <-ctx.Done():
			return domain.Hit{}, ctx.Err()
		}
	}
}

// Hits returns every delivered hit recorded for alias, consumed or not.
func (e *Engine) Hits(alias string) []domain.Hit {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.aliases[alias]
	if !ok {
		return nil
	}
	return append([]domain.Hit(nil), st.hits...)
}

// Unmatched returns the calls the engine could not answer so far: requests
// no rule matched and matched rules whose body failed to encode.
func (e *Engine) Unmatched() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.failed...)
}

// Subscribe streams delivered hits until cancel is called.
// Slow subscribers drop hits rather than block delivery.
func (e *Engine) Subscribe() (<-chan domain.Hit, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	ch := make(chan domain.Hit, 64)
	e.subs[id] = ch
	return ch, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
}

func (e *Engine) deliver(x *Exchange) {
	hit := domain.Hit{
		ID:          uuid.New().String(),
		Alias:       x.alias,
		Method:      x.Request.Method,
		Path:        x.Request.Path,
		Param:       x.Request.Param,
		StatusCode:  x.Response.StatusCode,
		RequestBody: x.Request.Body,
		At:          e.now(),
	}

	slog.Debug("intercept_event", "event", "hit", "alias", hit.Alias, "method", hit.Method, "path", hit.Path, "status", hit.StatusCode)
	// Journal before the hit becomes awaitable.
	e.record(journal.Entry{
		ID:         hit.ID,
		Alias:      hit.Alias,
		Method:     hit.Method,
		Path:       hit.Path,
		StatusCode: hit.StatusCode,
		Matched:    true,
		At:         hit.At,
	})

	e.mu.Lock()
	if x.alias != "" {
		st, ok := e.aliases[x.alias]
		if !ok {
			st = &aliasState{}
			e.aliases[x.alias] = st
		}
		st.hits = append(st.hits, hit)
	}
	for _, ch := range e.subs {
		select {
		case ch <- hit:
		default:
		}
	}
	e.broadcastLocked()
	e.mu.Unlock()
}

func (e *Engine) fail(req domain.Request, err error, status int) {
	e.mu.Lock()
	e.failed = append(e.failed, err)
	e.broadcastLocked()
	e.mu.Unlock()

	event := "unmatched"
	if status != http.StatusNotImplemented {
		event = "response_encode_failed"
	}
	slog.Warn("intercept_event", "event", event, "method", req.Method, "path", req.Path, "error", err.Error())
	if e.reporter != nil {
		e.reporter.Errorf("%v", err)
	}
	e.record(journal.Entry{
		ID:         uuid.New().String(),
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: status,
		Matched:    status != http.StatusNotImplemented,
		At:         e.now(),
	})
}

func (e *Engine) record(en journal.Entry) {
	if e.recorder == nil {
		return
	}
	en.RunID = e.runID
	if err := e.recorder.Record(context.Background(), en); err != nil {
		slog.Error("journal_record_failed", "run_id", e.runID, "path", en.Path, "error", err.Error())
	}
}

// broadcastLocked wakes every Await. Caller holds e.mu.
func (e *Engine) broadcastLocked() {
	close(e.changed)
	e.changed = make(chan struct{})
}
