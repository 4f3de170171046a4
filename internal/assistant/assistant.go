// Package assistant is the orchestration core. One SubmitTurn call runs
// the full pipeline: load history, route the utterance, execute the
// decision, persist every turn, and shape the reply. Turns within one
// session are strictly serialized; distinct sessions proceed in parallel.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/novaops/nova/internal/assembler"
	"github.com/novaops/nova/internal/executor"
	"github.com/novaops/nova/internal/knowledge"
	"github.com/novaops/nova/internal/router"
	"github.com/novaops/nova/internal/session"
	"github.com/novaops/nova/internal/tool"
)

// ErrEmptyUtterance is returned when a turn carries no text.
var ErrEmptyUtterance = errors.New("utterance is empty")

// Composer turns an assembled context plus tool results into prose.
// When nil or failing, the assistant falls back to deterministic
// rendering of the results.
type Composer interface {
	Compose(ctx context.Context, prompt string) (string, error)
}

// TurnResponse is the result of one submitted turn.
type TurnResponse struct {
	SessionID         string                      `json:"session_id"`
	Response          string                      `json:"response"`
	Trace             *router.Decision            `json:"routing_trace,omitempty"`
	Invocations       []executor.InvocationResult `json:"invocations,omitempty"`
	NeedsConfirmation bool                        `json:"needs_confirmation,omitempty"`
	Suggestions       []string                    `json:"suggestions,omitempty"`
}

// Assistant wires the orchestration pipeline.
type Assistant struct {
	store     session.Store
	registry  *tool.Registry
	router    *router.Router
	executor  *executor.Executor
	assembler *assembler.Assembler
	corpus    *knowledge.Corpus
	composer  Composer
	historyN  int
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]*sync.Mutex
}

// Config wires an Assistant.
type Config struct {
	Store     session.Store
	Registry  *tool.Registry
	Router    *router.Router
	Executor  *executor.Executor
	Assembler *assembler.Assembler
	Corpus    *knowledge.Corpus
	// Composer is optional; nil selects deterministic rendering.
	Composer Composer
	// HistoryTurns bounds the routing and context window.
	HistoryTurns int
	Logger       *slog.Logger
}

// New creates an assistant.
func New(cfg Config) (*Assistant, error) {
	switch {
	case cfg.Store == nil:
		return nil, errors.New("assistant requires a session store")
	case cfg.Registry == nil || !cfg.Registry.Frozen():
		return nil, errors.New("assistant requires a frozen registry")
	case cfg.Router == nil || cfg.Executor == nil || cfg.Assembler == nil || cfg.Corpus == nil:
		return nil, errors.New("assistant requires router, executor, assembler and corpus")
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = 40
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Assistant{
		store:     cfg.Store,
		registry:  cfg.Registry,
		router:    cfg.Router,
		executor:  cfg.Executor,
		assembler: cfg.Assembler,
		corpus:    cfg.Corpus,
		composer:  cfg.Composer,
		historyN:  cfg.HistoryTurns,
		logger:    cfg.Logger,
		inFlight:  make(map[string]*sync.Mutex),
	}, nil
}

// lockSession returns the per-session mutex, creating it on first use.
// At most one submit pipeline runs per session at a time, so tool
// results never interleave in the transcript.
func (a *Assistant) lockSession(id string) func() {
	a.mu.Lock()
	m, ok := a.inFlight[id]
	if !ok {
		m = &sync.Mutex{}
		a.inFlight[id] = m
	}
	a.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// CreateSession starts a new conversation.
func (a *Assistant) CreateSession(ctx context.Context) (*session.Session, error) {
	return a.store.Create(ctx)
}

// History returns a session's transcript in append order.
func (a *Assistant) History(ctx context.Context, id string) ([]session.Turn, error) {
	return a.store.History(ctx, id, 0)
}

// DeleteSession removes a conversation and its per-session lock.
func (a *Assistant) DeleteSession(ctx context.Context, id string) error {
	if err := a.store.Delete(ctx, id); err != nil {
		return err
	}
	a.mu.Lock()
	delete(a.inFlight, id)
	a.mu.Unlock()
	return nil
}

// Sessions lists live sessions, most recently active first.
func (a *Assistant) Sessions(ctx context.Context) ([]session.Session, error) {
	return a.store.List(ctx)
}

// Registry exposes the frozen catalog for read-only surfaces.
func (a *Assistant) Registry() *tool.Registry {
	return a.registry
}

// SubmitTurn processes one utterance in a session. confirmed marks the
// turn as carrying explicit approval for a destructive operation; a
// destructive decision without it comes back with NeedsConfirmation set
// and no collaborator call made.
//
// A turn's failure never fails the session: routing and execution errors
// become clarification or error prose in the response, and only session
// store failures surface as errors.
func (a *Assistant) SubmitTurn(ctx context.Context, sessionID, utterance string, confirmed bool) (*TurnResponse, error) {
	if strings.TrimSpace(utterance) == "" {
		return nil, ErrEmptyUtterance
	}

	unlock := a.lockSession(sessionID)
	defer unlock()

	if _, err := a.store.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	history, err := a.store.History(ctx, sessionID, a.historyN)
	if err != nil {
		return nil, err
	}
	if _, err := a.store.Append(ctx, sessionID, session.Turn{
		Role:    session.RoleUser,
		Content: utterance,
	}); err != nil {
		return nil, err
	}

	resp := &TurnResponse{SessionID: sessionID}

	decision, err := a.router.Route(utterance, history)
	if err != nil {
		if errors.Is(err, router.ErrAmbiguousIntent) {
			resp.Response = "That request mixes live metrics with a change to the cluster. Please split it: ask for the metrics first, then tell me what to change."
			return resp, a.appendAssistant(ctx, sessionID, resp.Response)
		}
		return nil, fmt.Errorf("route utterance: %w", err)
	}
	resp.Trace = decision

	if decision.NeedsClarification() {
		resp.Response = decision.Clarification
		resp.Suggestions = suggestionsFor(decision, nil)
		return resp, a.appendAssistant(ctx, sessionID, resp.Response)
	}

	resp.Invocations = a.executor.ExecutePlan(ctx, decision, confirmed)
	for _, inv := range resp.Invocations {
		if err := a.appendToolTurn(ctx, sessionID, inv); err != nil {
			return nil, err
		}
	}

	resp.Response = a.respond(ctx, decision, resp.Invocations, history, utterance)
	if last := lastInvocation(resp.Invocations); last != nil && last.Status == executor.StatusConfirmationRequired {
		resp.NeedsConfirmation = true
	}
	resp.Suggestions = suggestionsFor(decision, resp.Invocations)

	return resp, a.appendAssistant(ctx, sessionID, resp.Response)
}

func (a *Assistant) appendAssistant(ctx context.Context, sessionID, content string) error {
	_, err := a.store.Append(ctx, sessionID, session.Turn{
		Role:    session.RoleAssistant,
		Content: content,
	})
	return err
}

func (a *Assistant) appendToolTurn(ctx context.Context, sessionID string, inv executor.InvocationResult) error {
	_, err := a.store.Append(ctx, sessionID, session.Turn{
		Role:        session.RoleTool,
		Content:     string(inv.Status),
		InvokedTool: inv.Tool,
		ToolResult:  toolResultSummary(inv),
	})
	return err
}

func lastInvocation(invs []executor.InvocationResult) *executor.InvocationResult {
	if len(invs) == 0 {
		return nil
	}
	return &invs[len(invs)-1]
}
