package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in PostgreSQL. Appends lock the
// session row FOR UPDATE, so concurrent writers to one session get
// strictly increasing sequence numbers.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore creates a store backed by pool. The schema must
// already be migrated.
func NewPostgresStore(pool *pgxpool.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PostgresStore{pool: pool, logger: logger}
}

func (s *PostgresStore) Create(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx, `
		INSERT INTO sessions (id)
		VALUES ($1)
		RETURNING created_at, updated_at`, id,
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("session created", slog.String("session_id", id))
	return &Session{ID: id, CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	sess := &Session{ID: id}
	err := s.pool.QueryRow(ctx, `
		SELECT s.created_at, s.updated_at,
		       (SELECT count(*) FROM turns t WHERE t.session_id = s.id)
		FROM sessions s
		WHERE s.id = $1`, id,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt, &sess.TurnCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) Append(ctx context.Context, id string, turn Turn) (*Turn, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	// lock the session row so concurrent appends serialize
	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT true FROM sessions WHERE id = $1 FOR UPDATE`, id,
	).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock session: %w", err)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO turns (session_id, seq, role, content, invoked_tool, tool_result, created_at)
		SELECT $1, coalesce(max(seq), 0) + 1, $2, $3, $4, $5, $6
		FROM turns WHERE session_id = $1
		RETURNING seq`,
		id, turn.Role, turn.Content, turn.InvokedTool, turn.ToolResult, turn.Timestamp,
	).Scan(&turn.Seq)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("touch session: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return &turn, nil
}

func (s *PostgresStore) History(ctx context.Context, id string, limit int) ([]Turn, error) {
	if id == "" {
		return nil, ErrEmptySessionID
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	q := `
		SELECT seq, role, content, invoked_tool, tool_result, created_at
		FROM (
			SELECT * FROM turns
			WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC`
	lim := any(nil)
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, q, id, lim)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Seq, &t.Role, &t.Content, &t.InvokedTool, &t.ToolResult, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return turns, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptySessionID
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	s.logger.Debug("session deleted", slog.String("session_id", id))
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.created_at, s.updated_at,
		       (SELECT count(*) FROM turns t WHERE t.session_id = s.id)
		FROM sessions s
		ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.CreatedAt, &sess.UpdatedAt, &sess.TurnCount); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return sessions, nil
}

func (s *PostgresStore) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sessions WHERE updated_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(ttl.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	removed := int(tag.RowsAffected())
	if removed > 0 {
		s.logger.Info("sessions swept", slog.Int("removed", removed))
	}
	return removed, nil
}
