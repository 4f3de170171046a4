// Package router maps a user utterance, against the frozen tool
// catalog and the session history, to a routing decision: which tool(s)
// to invoke, with what arguments, in what order. Classification is
// deterministic and rule-based so the same utterance always produces
// the same decision for a fixed catalog version.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/novaops/nova/internal/session"
	"github.com/novaops/nova/internal/tool"
)

// ErrAmbiguousIntent is returned when an utterance carries conflicting
// signals beyond the read-then-write tie-break (all three mutation
// classes at once). The caller turns it into a clarification request.
var ErrAmbiguousIntent = errors.New("ambiguous intent")

// Step is one tool invocation within a decision. Pending lists required
// argument slots that could not be extracted from the utterance and
// must be bound from the preceding step's result.
type Step struct {
	Tool    string         `json:"tool"`
	Args    map[string]any `json:"args"`
	Pending []string       `json:"pending,omitempty"`
}

// Decision is the router's output for one utterance. A clarification
// decision carries a question instead of steps. Basis records the
// signals the classification rested on, for the routing trace.
type Decision struct {
	Class         tool.Class `json:"class"`
	Steps         []Step     `json:"steps,omitempty"`
	Clarification string     `json:"clarification,omitempty"`
	Basis         []string   `json:"basis"`
}

// NeedsClarification reports whether the decision asks a follow-up
// question instead of invoking a tool.
func (d *Decision) NeedsClarification() bool { return d.Clarification != "" }

// Router classifies utterances against a frozen registry.
type Router struct {
	registry *tool.Registry
	logger   *slog.Logger
}

// New creates a router over registry, which must be frozen.
func New(registry *tool.Registry, logger *slog.Logger) (*Router, error) {
	if !registry.Frozen() {
		return nil, errors.New("registry must be frozen before routing")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{registry: registry, logger: logger}, nil
}

// Route produces a decision for the utterance. History supplies
// referents for follow-up phrasing ("delete it", "show me more").
//
// Precedence: a write verb plus a read signal yields a two-step plan,
// read first; realtime vocabulary wins over plain reads; everything
// else defaults to READ. All three classes signaled at once is
// ErrAmbiguousIntent.
func (r *Router) Route(utterance string, history []session.Turn) (*Decision, error) {
	lower := strings.ToLower(utterance)
	slots := extractSlots(lower, history)

	realtime := realtimeSignals(lower)
	write := writeSignals(lower)
	read := readSignals(lower)

	var basis []string
	for _, s := range realtime {
		basis = append(basis, "realtime:"+s)
	}
	for _, s := range write {
		basis = append(basis, "write:"+s)
	}
	for _, s := range read {
		basis = append(basis, "read:"+s)
	}
	basis = append(basis, slots.basis()...)

	if len(realtime) > 0 && len(write) > 0 && len(read) > 0 {
		r.logger.Debug("routing rejected", slog.String("reason", "three-way signal conflict"))
		return nil, fmt.Errorf("%w: realtime, write and read signals in one utterance", ErrAmbiguousIntent)
	}
	if len(realtime) > 0 && len(write) > 0 {
		return nil, fmt.Errorf("%w: realtime and write signals in one utterance", ErrAmbiguousIntent)
	}

	var decision *Decision
	switch {
	case len(write) > 0 && len(read) > 0:
		// read-then-write plan, never a single collapsed call
		decision = r.planReadThenWrite(lower, slots, basis)
	case len(write) > 0:
		decision = r.routeWrite(lower, slots, basis)
	case len(realtime) > 0:
		decision = r.routeRealtime(slots, realtime, basis)
	default:
		// "stats" without realtime vocabulary is analytics, not monitoring
		decision = r.routeRead(lower, slots, basis)
	}

	r.logger.Debug("utterance routed",
		slog.String("class", string(decision.Class)),
		slog.Int("steps", len(decision.Steps)),
		slog.Bool("clarification", decision.NeedsClarification()))
	return decision, nil
}

func (r *Router) routeRead(lower string, slots slotSet, basis []string) *Decision {
	d := &Decision{Class: tool.ClassRead, Basis: basis}

	switch {
	case slots.sql != "":
		d.Steps = []Step{{Tool: "query_metadata", Args: map[string]any{"sql": slots.sql}}}

	case mentionsAny(lower, "table", "tables", "schema", "columns"):
		if slots.table != "" {
			d.Steps = []Step{{Tool: "describe_table", Args: map[string]any{"table": slots.table}}}
		} else {
			d.Steps = []Step{{Tool: "list_tables", Args: map[string]any{}}}
		}

	case logWordPattern.MatchString(lower):
		d.Steps = []Step{routeLogs(lower, slots)}

	case mentionsAny(lower, "error", "errors", "warning", "warnings", "failure", "failures"):
		// an error question without log vocabulary is still a log
		// question; a named bucket narrows it to a search
		if slots.bucket != "" {
			d.Steps = []Step{searchLogsStep(slots)}
		} else {
			args := map[string]any{}
			if slots.hours > 0 {
				args["hours"] = slots.hours
			}
			d.Steps = []Step{{Tool: "error_summary", Args: args}}
		}

	case mentionsAny(lower, "object store", "object stores", "object-store", "deployment", "deployments"):
		d.Steps = []Step{{Tool: "list_object_stores", Args: map[string]any{}}}

	case mentionsAny(lower, "stats", "statistics", "usage", "how big", "size of") && slots.bucket != "":
		// aggregate bucket stats come from the analytics store
		d.Steps = []Step{{Tool: "query_metadata", Args: map[string]any{"sql": bucketStatsQuery(slots.bucket)}}}

	case mentionsAny(lower, "object", "objects", "file", "files", "key", "keys", "contents of"):
		if slots.bucket == "" {
			d.Clarification = "Which bucket should I list objects from?"
			return d
		}
		args := map[string]any{"bucket": slots.bucket}
		if slots.prefix != "" {
			args["prefix"] = slots.prefix
		}
		d.Steps = []Step{{Tool: "list_objects", Args: args}}

	case mentionsAny(lower, "bucket", "buckets"):
		if slots.bucket != "" && mentionsAny(lower, "info", "about", "details") {
			d.Steps = []Step{{Tool: "bucket_info", Args: map[string]any{"bucket": slots.bucket}}}
		} else {
			d.Steps = []Step{{Tool: "list_buckets", Args: map[string]any{}}}
		}

	default:
		d.Clarification = "I can query cluster metadata, list buckets and objects, search logs, or fetch live metrics. What would you like to see?"
	}
	return d
}

// routeLogs picks the log diagnostics tool for an utterance that names
// logs explicitly: trends for volume-over-time questions, the summary
// for aggregate error questions, a filtered search otherwise.
func routeLogs(lower string, slots slotSet) Step {
	switch {
	case mentionsAny(lower, "trend", "trends", "volume"):
		args := map[string]any{}
		if slots.days > 0 {
			args["days"] = slots.days
		}
		return Step{Tool: "log_trends", Args: args}

	case mentionsAny(lower, "summary", "summarize", "breakdown"):
		args := map[string]any{}
		if slots.hours > 0 {
			args["hours"] = slots.hours
		}
		return Step{Tool: "error_summary", Args: args}

	default:
		return searchLogsStep(slots)
	}
}

func searchLogsStep(slots slotSet) Step {
	args := map[string]any{}
	if slots.severity != "" {
		args["severity"] = slots.severity
	}
	if slots.pod != "" {
		args["pod"] = slots.pod
	}
	if slots.bucket != "" {
		args["bucket"] = slots.bucket
	}
	hours := slots.hours
	if hours == 0 && slots.days > 0 {
		hours = slots.days * 24
	}
	if hours > 0 {
		args["hours"] = hours
	}
	return Step{Tool: "search_logs", Args: args}
}

func (r *Router) routeRealtime(slots slotSet, signals, basis []string) *Decision {
	d := &Decision{Class: tool.ClassRealtime, Basis: basis}
	if slots.store == "" {
		d.Clarification = "Which object store should I fetch live metrics for?"
		return d
	}

	args := map[string]any{"store": slots.store}
	if slots.start != "" {
		args["start_time"] = slots.start
	}
	if slots.end != "" {
		args["end_time"] = slots.end
	}
	if metrics := metricNames(signals); len(metrics) > 0 {
		args["metrics"] = metrics
	}
	d.Steps = []Step{{Tool: "object_store_stats", Args: args}}
	return d
}

func (r *Router) routeWrite(lower string, slots slotSet, basis []string) *Decision {
	d := &Decision{Class: tool.ClassWrite, Basis: basis}

	deleting := mentionsAny(lower, "delete", "remove", "drop")
	objectWord := mentionsAny(lower, "object", "objects", "file", "files", "key")

	switch {
	case deleting && objectWord:
		if slots.bucket == "" || slots.key == "" {
			d.Clarification = "Which object should I delete? I need both the bucket and the key."
			return d
		}
		d.Steps = []Step{{Tool: "delete_object", Args: map[string]any{"bucket": slots.bucket, "key": slots.key}}}

	case deleting:
		if slots.bucket == "" {
			d.Clarification = "Which bucket should I delete?"
			return d
		}
		d.Steps = []Step{{Tool: "delete_bucket", Args: map[string]any{"bucket": slots.bucket}}}

	case mentionsAny(lower, "upload", "put", "write") && objectWord:
		if slots.bucket == "" || slots.key == "" {
			d.Clarification = "Where should I put the object? I need the bucket and the key."
			return d
		}
		if slots.content == "" {
			d.Clarification = "What content should the object hold? Quote it, e.g. containing 'hello'."
			return d
		}
		d.Steps = []Step{{Tool: "put_object", Args: map[string]any{
			"bucket":  slots.bucket,
			"key":     slots.key,
			"content": slots.content,
		}}}

	case mentionsAny(lower, "create", "make", "new"):
		args := map[string]any{}
		if slots.bucket != "" {
			args["bucket"] = slots.bucket
		}
		d.Steps = []Step{{Tool: "create_bucket", Args: args}}

	default:
		d.Clarification = "What change should I make? I can create buckets, upload objects, or delete buckets and objects."
	}
	return d
}

// planReadThenWrite builds the two-step plan for utterances that carry
// both signals, e.g. "show me buckets then delete the empty ones". The
// write step's unresolved slots stay pending until the executor binds
// them from the read step's result.
func (r *Router) planReadThenWrite(lower string, slots slotSet, basis []string) *Decision {
	read := r.routeRead(lower, slots, basis)
	write := r.routeWrite(lower, slots, basis)

	d := &Decision{Class: tool.ClassWrite, Basis: basis}
	if read.NeedsClarification() {
		// without a resolvable read step there is nothing to bind from
		d.Clarification = read.Clarification
		return d
	}

	d.Steps = append(d.Steps, read.Steps...)
	if write.NeedsClarification() {
		// the write step's slots resolve against the read result
		desc, err := r.registry.Lookup(pendingWriteTool(lower))
		if err != nil {
			d.Clarification = write.Clarification
			return d
		}
		d.Steps = append(d.Steps, Step{
			Tool:    desc.Name,
			Args:    map[string]any{},
			Pending: desc.RequiredArgs(),
		})
		return d
	}
	d.Steps = append(d.Steps, write.Steps...)
	return d
}

// pendingWriteTool picks the write tool for a two-step plan when the
// write step's arguments are still unresolved.
func pendingWriteTool(lower string) string {
	deleting := mentionsAny(lower, "delete", "remove", "drop")
	objectWord := mentionsAny(lower, "object", "objects", "file", "files", "key")
	switch {
	case deleting && objectWord:
		return "delete_object"
	case deleting:
		return "delete_bucket"
	case mentionsAny(lower, "upload", "put"):
		return "put_object"
	default:
		return "create_bucket"
	}
}

func bucketStatsQuery(bucket string) string {
	// single-quote escaping only; the analytics store rejects
	// non-SELECT statements anyway
	escaped := strings.ReplaceAll(bucket, "'", "''")
	return fmt.Sprintf(
		"SELECT bucket, object_count, total_size_bytes FROM bucket_stats WHERE bucket = '%s'",
		escaped)
}

func mentionsAny(s string, words ...string) bool {
	for _, w := range words {
		if containsWord(s, w) {
			return true
		}
	}
	return false
}
