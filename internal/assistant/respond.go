package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/novaops/nova/internal/executor"
	"github.com/novaops/nova/internal/router"
	"github.com/novaops/nova/internal/session"
	"github.com/novaops/nova/internal/tool"
)

// maxRenderedRows caps how many result rows go into the reply verbatim.
const maxRenderedRows = 25

// respond builds the reply text for an executed decision. With a
// composer configured, the assembled context plus rendered results go
// through it; a composer failure falls back to the deterministic
// rendering so a turn never fails on prose generation.
func (a *Assistant) respond(ctx context.Context, decision *router.Decision, invs []executor.InvocationResult, history []session.Turn, utterance string) string {
	deterministic := renderInvocations(invs)

	last := lastInvocation(invs)
	if a.composer == nil || last == nil || last.Status != executor.StatusSuccess {
		return deterministic
	}

	bctx := a.assembler.Build(a.corpus,
		tool.CatalogSummary(a.registry), a.registry.Version(),
		history, utterance)
	prompt := bctx.Text + "\n\n## Tool results\n" + deterministic +
		"\n\nAnswer the user's last message using only the tool results above. Be concise."

	text, err := a.composer.Compose(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		a.logger.Warn("composer failed, using deterministic rendering",
			slog.Any("error", err))
		return deterministic
	}
	return text
}

// renderInvocations produces the deterministic reply for a sequence of
// invocation results.
func renderInvocations(invs []executor.InvocationResult) string {
	var parts []string
	for _, inv := range invs {
		parts = append(parts, renderInvocation(inv))
	}
	return strings.Join(parts, "\n\n")
}

func renderInvocation(inv executor.InvocationResult) string {
	switch inv.Status {
	case executor.StatusSuccess:
		return renderResult(inv.Result)
	case executor.StatusConfirmationRequired:
		return fmt.Sprintf("%s Reply with confirmation to proceed.", inv.ErrorDetail)
	case executor.StatusNeedsInput:
		return fmt.Sprintf("I need more detail before running %s: %s", inv.Tool, inv.ErrorDetail)
	default:
		return renderError(inv)
	}
}

func renderError(inv executor.InvocationResult) string {
	switch inv.ErrorKind {
	case "timeout":
		return fmt.Sprintf("The %s call timed out. The collaborator may be under load; try again shortly.", inv.Tool)
	case "unavailable":
		return fmt.Sprintf("I could not reach the service behind %s. Check the cluster endpoints.", inv.Tool)
	case "argument_validation":
		return fmt.Sprintf("I could not assemble valid arguments for %s: %s", inv.Tool, inv.ErrorDetail)
	default:
		return fmt.Sprintf("The %s call was rejected: %s", inv.Tool, inv.ErrorDetail)
	}
}

// renderResult formats a normalized result as a markdown table, capped
// at maxRenderedRows.
func renderResult(r *executor.Result) string {
	if r == nil {
		return "Done."
	}
	if len(r.Columns) == 0 {
		if r.Summary != "" {
			return upperFirst(r.Summary) + "."
		}
		return "Done."
	}

	var b strings.Builder
	if r.Summary != "" {
		b.WriteString(upperFirst(r.Summary))
		b.WriteString(".\n\n")
	}
	b.WriteString("| " + strings.Join(r.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(r.Columns)) + "\n")
	for i, row := range r.Rows {
		if i == maxRenderedRows {
			fmt.Fprintf(&b, "\n… and %d more rows", len(r.Rows)-maxRenderedRows)
			break
		}
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = cell(v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if len(r.Rows) == 0 {
		b.WriteString("\nNo rows.")
	}
	return strings.TrimRight(b.String(), "\n")
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// toolResultSummary is the compact transcript form of an invocation.
func toolResultSummary(inv executor.InvocationResult) string {
	switch inv.Status {
	case executor.StatusSuccess:
		if inv.Result != nil && inv.Result.Summary != "" {
			return inv.Result.Summary
		}
		if inv.Result != nil {
			return fmt.Sprintf("%d rows", len(inv.Result.Rows))
		}
		return "ok"
	default:
		return string(inv.Status) + ": " + inv.ErrorDetail
	}
}

// suggestionsFor offers follow-up prompts matched to what just happened.
func suggestionsFor(decision *router.Decision, invs []executor.InvocationResult) []string {
	if decision.NeedsClarification() {
		return []string{
			"List all buckets",
			"Show live iops for store <name>",
			"What tables can I query?",
		}
	}
	if len(decision.Steps) == 0 {
		return nil
	}
	switch decision.Steps[len(decision.Steps)-1].Tool {
	case "list_buckets":
		return []string{
			"Show objects in bucket <name>",
			"Show stats for bucket <name>",
			"Create a bucket named <name>",
		}
	case "list_objects":
		return []string{
			"Delete object <key> from bucket <name>",
			"Show stats for bucket <name>",
		}
	case "query_metadata", "list_tables", "describe_table":
		return []string{
			"Describe table <name>",
			"Run a query: SELECT ...",
		}
	case "object_store_stats":
		return []string{
			"Show throughput for the last 24 hours",
			"List the object stores",
		}
	case "search_logs", "error_summary", "log_trends":
		return []string{
			"Show error logs for the last 6 hours",
			"Show the log trends for the last 7 days",
		}
	case "delete_bucket", "delete_object":
		if last := lastInvocation(invs); last != nil && last.Status == executor.StatusConfirmationRequired {
			return []string{"Yes, delete it", "No, keep it"}
		}
		return []string{"List all buckets"}
	}
	return nil
}
