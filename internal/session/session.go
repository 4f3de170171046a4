// Package session persists conversation state. Two backends implement
// the Store interface: an in-memory map for single-node deployments and
// a PostgreSQL store for anything that must survive a restart.
package session

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by all store backends.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrEmptySessionID  = errors.New("session id is empty")
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Turn is one entry in a session transcript. Seq starts at 1 and
// increases by exactly one per appended turn, with no gaps.
type Turn struct {
	Seq         int       `json:"seq"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	InvokedTool string    `json:"invoked_tool,omitempty"`
	ToolResult  string    `json:"tool_result,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is the transcript metadata returned by Get and List.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}

// Store is the session persistence contract.
type Store interface {
	// Create starts a new session and returns it.
	Create(ctx context.Context) (*Session, error)
	// Get returns session metadata, or ErrSessionNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Append adds a turn, assigning its sequence number. Appends to
	// the same session are serialized by the store.
	Append(ctx context.Context, id string, turn Turn) (*Turn, error)
	// History returns the most recent limit turns in ascending
	// sequence order. limit <= 0 returns all turns.
	History(ctx context.Context, id string, limit int) ([]Turn, error)
	// Delete removes a session and its turns.
	Delete(ctx context.Context, id string) error
	// List returns all live sessions, most recently updated first.
	List(ctx context.Context) ([]Session, error)
	// Sweep removes sessions idle longer than ttl and reports how
	// many were removed.
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
}
