package harness

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// canonicalJSON re-encodes v with sorted keys and two-space indent.
// []byte, string and json.RawMessage are taken as JSON text.
func canonicalJSON(v any) (string, error) {
	var raw []byte
	switch b := v.(type) {
	case []byte:
		raw = b
	case json.RawMessage:
		raw = b
	case string:
		raw = []byte(b)
	default:
		enc, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		raw = enc
	}
	if len(raw) == 0 {
		return "", nil
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return "", fmt.Errorf("not JSON: %w", err)
	}
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out) + "\n", nil
}

// jsonDiff reports whether got and want encode the same JSON value, with a
// line diff when they do not.
func jsonDiff(got []byte, want any) (string, bool, error) {
	g, err := canonicalJSON(got)
	if err != nil {
		return "", false, fmt.Errorf("got: %w", err)
	}
	w, err := canonicalJSON(want)
	if err != nil {
		return "", false, fmt.Errorf("want: %w", err)
	}
	if g == w {
		return "", true, nil
	}
	return lineDiff(w, g), false, nil
}

// lineDiff renders a -/+ line diff from a to b.
func lineDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(strings.TrimSuffix(line, "\n"))
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
