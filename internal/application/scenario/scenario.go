// Package scenario loads intercept rules from YAML files so the control
// server can be driven without Go code.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	domain "yogastudio/internal/domain/intercept"
)

var (
	ErrNoRules       = errors.New("scenario declares no rules")
	ErrBodyConflict  = errors.New("body and body_file are mutually exclusive")
	ErrEmptyScenario = errors.New("scenario file is empty")
)

// RuleSpec is one rule as written in a scenario file.
type RuleSpec struct {
	Method   string            `yaml:"method" json:"method"`
	Path     string            `yaml:"path" json:"path"`
	Alias    string            `yaml:"alias" json:"alias,omitempty"`
	Status   int               `yaml:"status" json:"status,omitempty"`
	Times    int               `yaml:"times" json:"times,omitempty"`
	Headers  map[string]string `yaml:"headers" json:"headers,omitempty"`
	Body     any               `yaml:"body" json:"body,omitempty"`
	BodyFile string            `yaml:"body_file" json:"body_file,omitempty"`
}

// Scenario is a named, ordered list of rules. Later rules win on key clashes,
// exactly as if registered one after another.
type Scenario struct {
	Name  string     `yaml:"name"`
	Rules []RuleSpec `yaml:"rules"`

	dir string
}

// Registry is the part of the engine a scenario is applied to.
type Registry interface {
	RegisterAll(rules ...domain.Rule) error
	ReplaceAll(rules ...domain.Rule) error
}

// Load reads and validates the scenario at path. body_file entries are
// resolved relative to the file's directory.
// PRE: path names a readable YAML file
// POST: Returns a scenario whose Build succeeds
func Load(path string) (Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	sc, err := Parse(raw)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	sc.dir = filepath.Dir(path)
	if _, err := sc.Build(); err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes a scenario document without touching the filesystem.
func Parse(raw []byte) (Scenario, error) {
	var sc Scenario
	if err := yaml.Unmarshal(raw, &sc); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario yaml: %w", err)
	}
	if sc.Name == "" && sc.Rules == nil {
		return Scenario{}, ErrEmptyScenario
	}
	if len(sc.Rules) == 0 {
		return Scenario{}, ErrNoRules
	}
	return sc, nil
}

// Build converts the specs into engine rules.
// POST: every returned rule passes Validate
func (s Scenario) Build() ([]domain.Rule, error) {
	out := make([]domain.Rule, 0, len(s.Rules))
	for i, spec := range s.Rules {
		r, err := s.rule(spec)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s %s): %w", i+1, spec.Method, spec.Path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s Scenario) rule(spec RuleSpec) (domain.Rule, error) {
	if spec.Body != nil && spec.BodyFile != "" {
		return domain.Rule{}, ErrBodyConflict
	}
	body := spec.Body
	if spec.BodyFile != "" {
		path := spec.BodyFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(s.dir, path)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return domain.Rule{}, fmt.Errorf("failed to read body file: %w", err)
		}
		if !json.Valid(raw) {
			return domain.Rule{}, fmt.Errorf("body file %s is not valid JSON", spec.BodyFile)
		}
		body = json.RawMessage(raw)
	}
	r, err := domain.NewRule(spec.Method, spec.Path, domain.Response{
		StatusCode: spec.Status,
		Body:       body,
		Headers:    spec.Headers,
	})
	if err != nil {
		return domain.Rule{}, err
	}
	r.Alias = spec.Alias
	r.Times = spec.Times
	if err := r.Validate(); err != nil {
		return domain.Rule{}, err
	}
	return r, nil
}

// Apply registers the scenario's rules in order.
// PRE: the scenario passed Load or Build
// POST: on error nothing was registered
func Apply(reg Registry, s Scenario) error {
	rules, err := s.Build()
	if err != nil {
		return err
	}
	if err := reg.RegisterAll(rules...); err != nil {
		return fmt.Errorf("apply %s: %w", s.Name, err)
	}
	slog.Info("scenario_event", "event", "applied", "name", s.Name, "rules", len(rules))
	return nil
}

// Replace swaps the registry's rules for the scenario's, dropping hits and
// rules from the previous scenario.
// POST: on error the registry is unchanged
func Replace(reg Registry, s Scenario) error {
	rules, err := s.Build()
	if err != nil {
		return err
	}
	if err := reg.ReplaceAll(rules...); err != nil {
		return fmt.Errorf("replace with %s: %w", s.Name, err)
	}
	slog.Info("scenario_event", "event", "replaced", "name", s.Name, "rules", len(rules))
	return nil
}

// AliasCount is the number of rules declaring one alias.
type AliasCount struct {
	Alias string `json:"alias"`
	Rules int    `json:"rules"`
}

// Aliases counts rules per alias; unaliased rules are grouped under "".
// POST: sorted by alias
func (s Scenario) Aliases() []AliasCount {
	counts := make(map[string]int)
	for _, r := range s.Rules {
		counts[r.Alias]++
	}
	out := make([]AliasCount, 0, len(counts))
	for a, n := range counts {
		out = append(out, AliasCount{Alias: a, Rules: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}
