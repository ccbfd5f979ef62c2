package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"

	"yogastudio/internal/application/scenario"
	domain "yogastudio/internal/domain/intercept"
)

// maxControlBody bounds rule and scenario uploads.
const maxControlBody = 1 << 20

// ruleView is the JSON shape of an active rule.
type ruleView struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Alias    string `json:"alias,omitempty"`
	Status   int    `json:"status"`
	Times    int    `json:"times,omitempty"`
	Computed bool   `json:"computed,omitempty"`
}

func toRuleView(r domain.Rule) ruleView {
	status := r.Response.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	return ruleView{
		Method:   r.Method,
		Path:     r.Pattern.String(),
		Alias:    r.Alias,
		Status:   status,
		Times:    r.Times,
		Computed: r.Respond != nil,
	}
}

// hitView is the JSON shape of a delivered hit. Request bodies that are
// valid JSON are embedded; anything else is sent as text.
type hitView struct {
	ID          string          `json:"id"`
	Alias       string          `json:"alias"`
	Method      string          `json:"method"`
	Path        string          `json:"path"`
	Param       string          `json:"param,omitempty"`
	Status      int             `json:"status"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	RequestText string          `json:"request_text,omitempty"`
	At          time.Time       `json:"at"`
}

func toHitView(h domain.Hit) hitView {
	v := hitView{
		ID:     h.ID,
		Alias:  h.Alias,
		Method: h.Method,
		Path:   h.Path,
		Param:  h.Param,
		Status: h.StatusCode,
		At:     h.At,
	}
	switch {
	case len(h.RequestBody) == 0:
	case json.Valid(h.RequestBody):
		v.RequestBody = json.RawMessage(h.RequestBody)
	default:
		v.RequestText = string(h.RequestBody)
	}
	return v
}

type unmatchedView struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Error  string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("control_event", "event", "encode_failed", "error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// registerStatus maps a registration failure to an HTTP status.
func registerStatus(err error) int {
	if errors.Is(err, domain.ErrDuplicateAlias) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"rules":     len(s.engine.Rules()),
		"unmatched": len(s.engine.Unmatched()),
		"run_id":    s.engine.RunID(),
		"uptime_s":  int(time.Since(s.started).Seconds()),
	})
}

func (s *server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules := s.engine.Rules()
	out := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleView(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleRegisterRules adds rules on top of the active ones. The whole batch
// is validated before anything is registered.
func (s *server) handleRegisterRules(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxControlBody)
	var specs []scenario.RuleSpec
	if err := strictDecode(r, &specs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid rules: %w", err))
		return
	}
	if len(specs) == 0 {
		writeError(w, http.StatusBadRequest, scenario.ErrNoRules)
		return
	}
	rules, err := scenario.Scenario{Name: "control", Rules: specs}.Build()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.engine.RegisterAll(rules...); err != nil {
		writeError(w, registerStatus(err), err)
		return
	}
	slog.Info("control_event", "event", "rules_registered", "count", len(rules))
	writeJSON(w, http.StatusCreated, map[string]int{"registered": len(rules)})
}

func (s *server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	slog.Info("control_event", "event", "reset")
	w.WriteHeader(http.StatusNoContent)
}

// handleScenario replaces the registry with a YAML scenario document.
func (s *server) handleScenario(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxControlBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	sc, err := scenario.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := sc.Build(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := scenario.Replace(s.engine, sc); err != nil {
		writeError(w, registerStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    sc.Name,
		"rules":   len(sc.Rules),
		"aliases": sc.Aliases(),
	})
}

// parseTimeout accepts a Go duration ("2s") or bare milliseconds ("2000").
// Empty means the engine default.
func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.Atoi(raw); err == nil {
		if ms < 0 {
			return 0, fmt.Errorf("negative timeout %q", raw)
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q", raw)
	}
	return d, nil
}

// handleAwait blocks until the alias fires, then returns and consumes the hit.
// 404 unknown alias, 408 timeout, 409 an unmatched call happened first.
func (s *server) handleAwait(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	timeout, err := parseTimeout(r.URL.Query().Get("timeout"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	hit, err := s.engine.Await(r.Context(), alias, timeout)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toHitView(hit))
	case errors.Is(err, domain.ErrUnknownAlias):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrTimeout):
		writeError(w, http.StatusRequestTimeout, err)
	case errors.Is(err, domain.ErrUnmatchedRequest), errors.Is(err, domain.ErrResponseEncode):
		writeError(w, http.StatusConflict, err)
	case r.Context().Err() != nil:
		slog.Debug("control_event", "event", "await_abandoned", "alias", alias)
	default:
		slog.Error("internal_error", "error", err.Error())
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (s *server) handleHits(w http.ResponseWriter, r *http.Request) {
	hits := s.engine.Hits(chi.URLParam(r, "alias"))
	out := make([]hitView, 0, len(hits))
	for _, h := range hits {
		out = append(out, toHitView(h))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleUnmatched(w http.ResponseWriter, r *http.Request) {
	errs := s.engine.Unmatched()
	out := make([]unmatchedView, 0, len(errs))
	for _, err := range errs {
		v := unmatchedView{Error: err.Error()}
		var uerr *domain.UnmatchedRequestError
		var eerr *domain.ResponseEncodeError
		switch {
		case errors.As(err, &uerr):
			v.Method, v.Path = uerr.Method, uerr.Path
		case errors.As(err, &eerr):
			v.Method, v.Path = eerr.Method, eerr.Path
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePerf returns timing aggregates. Query: since (duration, default 1h), top (default 10).
func (s *server) handlePerf(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusNotFound, errors.New("timing collection is disabled"))
		return
	}
	since := time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q", raw))
			return
		}
		since = d
	}
	top := 10
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid top %q", raw))
			return
		}
		top = n
	}
	writeJSON(w, http.StatusOK, s.collector.Snapshot(time.Now().Add(-since), top))
}
