package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"

	emailAdapter "yogastudio/internal/adapters/email"
	"yogastudio/internal/domain/journal"
)

// ErrRunNotFound is returned when a run has no journal entries.
var ErrRunNotFound = errors.New("run not found in journal")

// mdRenderer renders run reports. Raw HTML in the markdown is escaped.
var mdRenderer = goldmark.New(
	goldmark.WithExtensions(extension.Table),
	goldmark.WithRendererOptions(goldmarkHTML.WithHardWraps()),
)

// JournalReader lists the entries of one run.
type JournalReader interface {
	ListByRun(ctx context.Context, runID string) ([]journal.Entry, error)
}

// Report is a rendered run report.
type Report struct {
	Summary  journal.Summary
	Markdown string
	HTML     string
}

// RenderReportInput carries input for the render orchestrator.
type RenderReportInput struct {
	RunID string
}

// RenderReportDeps holds dependencies for RenderReport.
type RenderReportDeps struct {
	Journal JournalReader
}

// ExecuteRenderReport summarizes a journaled run as markdown and HTML.
// PRE: RunID is non-empty
// POST: Returns ErrRunNotFound when the run has no entries
func ExecuteRenderReport(ctx context.Context, input RenderReportInput, deps RenderReportDeps) (Report, error) {
	if input.RunID == "" {
		return Report{}, journal.ErrEmptyRunID
	}
	entries, err := deps.Journal.ListByRun(ctx, input.RunID)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read run %s: %w", input.RunID, err)
	}
	if len(entries) == 0 {
		return Report{}, ErrRunNotFound
	}

	sum := journal.Summarize(input.RunID, entries)
	md := reportMarkdown(sum, entries)
	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(md), &buf); err != nil {
		return Report{}, fmt.Errorf("failed to render report: %w", err)
	}
	return Report{Summary: sum, Markdown: md, HTML: buf.String()}, nil
}

func reportMarkdown(sum journal.Summary, entries []journal.Entry) string {
	var b strings.Builder
	status := "PASSED"
	if sum.Failed() {
		status = "FAILED"
	}
	fmt.Fprintf(&b, "# Run %s: %s\n\n", sum.RunID, status)
	fmt.Fprintf(&b, "%d calls between %s and %s.\n\n", sum.Total,
		sum.StartedAt.UTC().Format(time.RFC3339), sum.EndedAt.UTC().Format(time.RFC3339))

	if len(sum.Aliases) > 0 {
		b.WriteString("## Aliases\n\n| Alias | Hits |\n|---|---|\n")
		for _, a := range sum.Aliases {
			fmt.Fprintf(&b, "| @%s | %d |\n", a.Alias, a.Hits)
		}
		b.WriteString("\n")
	}
	if sum.Failed() {
		b.WriteString("## Unmatched requests\n\n")
		for _, e := range sum.Unmatched {
			fmt.Fprintf(&b, "- `%s %s`\n", e.Method, e.Path)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Calls\n\n| # | Method | Path | Status | Alias |\n|---|---|---|---|---|\n")
	for i, e := range entries {
		alias := ""
		if e.Alias != "" {
			alias = "@" + e.Alias
		}
		fmt.Fprintf(&b, "| %d | %s | `%s` | %d | %s |\n", i+1, e.Method, e.Path, e.StatusCode, alias)
	}
	return b.String()
}

// SendReportInput carries input for sending a run report.
type SendReportInput struct {
	RunID string
	To    []string
}

// SendReportDeps holds dependencies for SendReport.
type SendReportDeps struct {
	Journal     JournalReader
	EmailSender emailAdapter.Sender
	FromAddress string
}

// ExecuteSendReport renders a run report and emails it.
// PRE: RunID is journaled; To has at least one address
// POST: the provider accepted the message
func ExecuteSendReport(ctx context.Context, input SendReportInput, deps SendReportDeps) (emailAdapter.SendResult, error) {
	if len(input.To) == 0 {
		return emailAdapter.SendResult{}, emailAdapter.ErrNoRecipients
	}
	rep, err := ExecuteRenderReport(ctx, RenderReportInput{RunID: input.RunID}, RenderReportDeps{Journal: deps.Journal})
	if err != nil {
		return emailAdapter.SendResult{}, err
	}

	status := "passed"
	if rep.Summary.Failed() {
		status = "failed"
	}
	res, err := deps.EmailSender.Send(ctx, emailAdapter.SendRequest{
		To:      input.To,
		From:    deps.FromAddress,
		Subject: fmt.Sprintf("Harness run %s %s", input.RunID, status),
		HTML:    rep.HTML,
	})
	if err != nil {
		slog.Error("report_event", "event", "send_failed", "run_id", input.RunID, "error", err.Error())
		return emailAdapter.SendResult{}, fmt.Errorf("failed to send report: %w", err)
	}
	slog.Info("report_event", "event", "sent", "run_id", input.RunID, "recipients", len(input.To), "message_id", res.MessageID)
	return res, nil
}
