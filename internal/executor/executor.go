// Package executor carries out routing decisions against the backing
// collaborators. It owns the safety rules around tool invocation:
// schema validation before any external call, a confirmation gate for
// destructive writes, per-call timeouts, and a retry policy that never
// repeats a mutation.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/novaops/nova/internal/collab"
	"github.com/novaops/nova/internal/router"
	"github.com/novaops/nova/internal/tool"
)

// Status of one tool invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	// StatusConfirmationRequired: a destructive write was requested
	// without confirmation; no collaborator call was made.
	StatusConfirmationRequired Status = "confirmation_required"
	// StatusNeedsInput: a pending argument slot could not be bound
	// unambiguously from the previous step's result.
	StatusNeedsInput Status = "needs_input"
)

// Result is the normalized payload every collaborator output is shaped
// into, so presentation logic never cares which collaborator answered.
type Result struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Summary string   `json:"summary,omitempty"`
}

// InvocationResult reports the outcome of one step.
type InvocationResult struct {
	Tool        string        `json:"tool"`
	Status      Status        `json:"status"`
	Result      *Result       `json:"result,omitempty"`
	ErrorKind   string        `json:"error_kind,omitempty"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	Latency     time.Duration `json:"latency"`
}

// Executor invokes tools against their collaborators.
type Executor struct {
	registry   *tool.Registry
	analytics  collab.Analytics
	control    collab.ControlPlane
	monitoring collab.Monitoring
	timeout    time.Duration
	backoff    time.Duration
	logger     *slog.Logger
}

// Config wires an executor.
type Config struct {
	Registry   *tool.Registry
	Analytics  collab.Analytics
	Control    collab.ControlPlane
	Monitoring collab.Monitoring
	// Timeout bounds each collaborator call. Zero means 15s.
	Timeout time.Duration
	// Backoff before the single read retry. Zero means 500ms.
	Backoff time.Duration
	Logger  *slog.Logger
}

// New creates an executor over a frozen registry.
func New(cfg Config) (*Executor, error) {
	if cfg.Registry == nil || !cfg.Registry.Frozen() {
		return nil, fmt.Errorf("executor requires a frozen registry")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{
		registry:   cfg.Registry,
		analytics:  cfg.Analytics,
		control:    cfg.Control,
		monitoring: cfg.Monitoring,
		timeout:    cfg.Timeout,
		backoff:    cfg.Backoff,
		logger:     cfg.Logger,
	}, nil
}

// ExecutePlan runs a decision's steps in order. A later step only runs
// when every earlier step succeeded; its pending slots are bound from
// the preceding step's result first. The returned slice holds one
// entry per attempted step.
func (e *Executor) ExecutePlan(ctx context.Context, d *router.Decision, confirmed bool) []InvocationResult {
	var results []InvocationResult
	var prev *Result

	for _, step := range d.Steps {
		if len(step.Pending) > 0 {
			bound, res := e.bindPending(step, prev)
			if res != nil {
				results = append(results, *res)
				return results
			}
			step = bound
		}

		res := e.executeStep(ctx, step, confirmed)
		results = append(results, res)
		if res.Status != StatusSuccess {
			return results
		}
		prev = res.Result
	}
	return results
}

// bindPending resolves a step's pending slots against the previous
// result. A slot binds when the previous result has a matching column
// and exactly one row; anything else asks the caller to narrow down.
func (e *Executor) bindPending(step router.Step, prev *Result) (router.Step, *InvocationResult) {
	fail := func(detail string) *InvocationResult {
		return &InvocationResult{
			Tool:        step.Tool,
			Status:      StatusNeedsInput,
			ErrorDetail: detail,
		}
	}
	if prev == nil {
		return step, fail("no preceding result to resolve arguments from")
	}

	args := make(map[string]any, len(step.Args)+len(step.Pending))
	for k, v := range step.Args {
		args[k] = v
	}
	for _, slot := range step.Pending {
		col := columnIndex(prev.Columns, slot)
		if col < 0 {
			return step, fail(fmt.Sprintf("previous result has no %q column to bind from", slot))
		}
		switch len(prev.Rows) {
		case 0:
			return step, fail(fmt.Sprintf("previous result is empty, nothing to bind %q to", slot))
		case 1:
			args[slot] = prev.Rows[0][col]
		default:
			return step, fail(fmt.Sprintf(
				"previous result has %d candidates for %q, please name one", len(prev.Rows), slot))
		}
	}
	return router.Step{Tool: step.Tool, Args: args}, nil
}

// columnIndex finds the column for a slot, accepting the common aliases
// the collaborators use.
func columnIndex(columns []string, slot string) int {
	aliases := map[string][]string{
		"bucket": {"bucket", "bucket_name", "name"},
		"key":    {"key", "object_key"},
		"store":  {"store", "name"},
	}
	candidates, ok := aliases[slot]
	if !ok {
		candidates = []string{slot}
	}
	for _, want := range candidates {
		for i, c := range columns {
			if strings.EqualFold(c, want) {
				return i
			}
		}
	}
	return -1
}

// executeStep runs a single invocation end to end.
func (e *Executor) executeStep(ctx context.Context, step router.Step, confirmed bool) InvocationResult {
	start := time.Now()
	res := InvocationResult{Tool: step.Tool}

	desc, err := e.registry.Lookup(step.Tool)
	if err != nil {
		res.Status = StatusError
		res.ErrorKind = "unknown_tool"
		res.ErrorDetail = err.Error()
		res.Latency = time.Since(start)
		return res
	}

	// validation precedes any external call, so a rejected invocation
	// has no partial side effects
	if err := desc.ValidateArgs(step.Args); err != nil {
		res.Status = StatusError
		res.ErrorKind = "argument_validation"
		res.ErrorDetail = err.Error()
		res.Latency = time.Since(start)
		return res
	}

	if desc.Destructive && !confirmed {
		res.Status = StatusConfirmationRequired
		res.ErrorDetail = fmt.Sprintf("%s is destructive and needs explicit confirmation", desc.Name)
		res.Latency = time.Since(start)
		e.logger.Info("destructive call held for confirmation", slog.String("tool", desc.Name))
		return res
	}

	payload, err := e.invoke(ctx, desc, step.Args)
	if err != nil && desc.Class != tool.ClassWrite && retryable(err) {
		// reads and metric fetches are idempotent, one retry with
		// backoff; writes get at most one attempt
		select {
		case <-time.After(e.backoff):
			e.logger.Warn("retrying idempotent call",
				slog.String("tool", desc.Name),
				slog.String("error", err.Error()))
			payload, err = e.invoke(ctx, desc, step.Args)
		case <-ctx.Done():
			// keep the original error; a retry against a cancelled
			// context cannot succeed
		}
	}

	res.Latency = time.Since(start)
	if err != nil {
		res.Status = StatusError
		res.ErrorKind = string(collab.KindOf(err))
		res.ErrorDetail = sanitize(err)
		e.logger.Error("tool invocation failed",
			slog.String("tool", desc.Name),
			slog.String("kind", res.ErrorKind),
			slog.Duration("latency", res.Latency))
		return res
	}

	res.Status = StatusSuccess
	res.Result = payload
	e.logger.Debug("tool invoked",
		slog.String("tool", desc.Name),
		slog.Duration("latency", res.Latency))
	return res
}

// invoke calls the collaborator behind desc with a bounded deadline.
func (e *Executor) invoke(ctx context.Context, desc *tool.Descriptor, args map[string]any) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.dispatch(ctx, desc.Name, args)
}

func retryable(err error) bool {
	switch collab.KindOf(err) {
	case collab.KindTimeout, collab.KindUnavailable:
		return true
	default:
		return false
	}
}

// sanitize keeps the collaborator's message but strips wrapped internals
// down to a single line.
func sanitize(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}
