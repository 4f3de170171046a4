package collab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStatementNotAllowed is returned when a submitted statement is not a
// read-only query.
var ErrStatementNotAllowed = errors.New("only SELECT and WITH statements are allowed")

// ErrEmptyTableName is returned when DescribeTable is called without a table.
var ErrEmptyTableName = errors.New("table name is empty")

// MetadataStore implements Analytics on top of a PostgreSQL pool.
type MetadataStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewMetadataStore creates a metadata store backed by pool.
func NewMetadataStore(pool *pgxpool.Pool, logger *slog.Logger) *MetadataStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MetadataStore{pool: pool, logger: logger}
}

// Query executes sql and collects the full result set. Only read-only
// statements are accepted; writes belong to the control plane, never to
// the metadata store.
func (s *MetadataStore) Query(ctx context.Context, sql string) (*Table, error) {
	if err := checkReadOnly(sql); err != nil {
		return nil, &Error{Kind: KindUpstream, Op: "analytics.query", Err: err}
	}

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, wrapErr("analytics.query", KindUpstream, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = fd.Name
	}

	table := &Table{Columns: columns, Rows: [][]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wrapErr("analytics.query", KindUpstream, err)
		}
		table.Rows = append(table.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("analytics.query", KindUpstream, err)
	}

	s.logger.Debug("analytics query executed",
		slog.Int("columns", len(table.Columns)),
		slog.Int("rows", len(table.Rows)))
	return table, nil
}

// ListTables returns the public table names in alphabetical order.
func (s *MetadataStore) ListTables(ctx context.Context) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, wrapErr("analytics.list_tables", KindUpstream, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapErr("analytics.list_tables", KindUpstream, err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("analytics.list_tables", KindUpstream, err)
	}
	return tables, nil
}

// DescribeTable returns the column name, data type and nullability of a
// table as a result set.
func (s *MetadataStore) DescribeTable(ctx context.Context, table string) (*Table, error) {
	if strings.TrimSpace(table) == "" {
		return nil, &Error{Kind: KindUpstream, Op: "analytics.describe_table", Err: ErrEmptyTableName}
	}

	const q = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`

	rows, err := s.pool.Query(ctx, q, table)
	if err != nil {
		return nil, wrapErr("analytics.describe_table", KindUpstream, err)
	}
	defer rows.Close()

	result := &Table{Columns: []string{"column_name", "data_type", "is_nullable"}, Rows: [][]any{}}
	for rows.Next() {
		var name, dtype, nullable string
		if err := rows.Scan(&name, &dtype, &nullable); err != nil {
			return nil, wrapErr("analytics.describe_table", KindUpstream, err)
		}
		result.Rows = append(result.Rows, []any{name, dtype, nullable})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("analytics.describe_table", KindUpstream, err)
	}
	if len(result.Rows) == 0 {
		return nil, &Error{
			Kind: KindUpstream,
			Op:   "analytics.describe_table",
			Err:  fmt.Errorf("table %q not found", table),
		}
	}
	return result, nil
}

// Log search defaults, applied when the filter leaves them unset.
const (
	defaultLogHours = 24
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// SearchLogs returns log events matching the filter, newest first.
// Filters are passed as bound parameters, never interpolated.
func (s *MetadataStore) SearchLogs(ctx context.Context, filter LogFilter) (*Table, error) {
	hours := filter.Hours
	if hours <= 0 {
		hours = defaultLogHours
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	conds := []string{"logged_at > now() - make_interval(hours => $1)"}
	args := []any{hours}
	addCond := func(expr, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	addCond("severity = upper($%d)", filter.Severity)
	addCond("pod = upper($%d)", filter.Pod)
	addCond("event_type = upper($%d)", filter.EventType)
	addCond("bucket_name = $%d", filter.Bucket)

	args = append(args, limit)
	q := fmt.Sprintf(`
		SELECT logged_at, pod, node_name, severity, event_type, message, bucket_name
		FROM log_events
		WHERE %s
		ORDER BY logged_at DESC
		LIMIT $%d`, strings.Join(conds, " AND "), len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, wrapErr("analytics.search_logs", KindUpstream, err)
	}
	defer rows.Close()

	result := &Table{
		Columns: []string{"logged_at", "pod", "node_name", "severity", "event_type", "message", "bucket_name"},
		Rows:    [][]any{},
	}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wrapErr("analytics.search_logs", KindUpstream, err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("analytics.search_logs", KindUpstream, err)
	}
	return result, nil
}

// ErrorSummary aggregates ERROR, WARN and FATAL counts by pod and
// severity over the past hours.
func (s *MetadataStore) ErrorSummary(ctx context.Context, hours int) (*Table, error) {
	if hours <= 0 {
		hours = defaultLogHours
	}

	const q = `
		SELECT pod, severity, COUNT(*) AS count
		FROM log_events
		WHERE logged_at > now() - make_interval(hours => $1)
		  AND severity IN ('ERROR', 'WARN', 'FATAL')
		GROUP BY pod, severity
		ORDER BY count DESC`

	rows, err := s.pool.Query(ctx, q, hours)
	if err != nil {
		return nil, wrapErr("analytics.error_summary", KindUpstream, err)
	}
	defer rows.Close()

	result := &Table{Columns: []string{"pod", "severity", "count"}, Rows: [][]any{}}
	for rows.Next() {
		var pod, severity string
		var count int64
		if err := rows.Scan(&pod, &severity, &count); err != nil {
			return nil, wrapErr("analytics.error_summary", KindUpstream, err)
		}
		result.Rows = append(result.Rows, []any{pod, severity, count})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("analytics.error_summary", KindUpstream, err)
	}
	return result, nil
}

// LogTrends returns daily log counts by severity over the past days.
func (s *MetadataStore) LogTrends(ctx context.Context, days int) (*Table, error) {
	if days <= 0 {
		days = 7
	}

	const q = `
		SELECT date_trunc('day', logged_at)::date AS day, severity, COUNT(*) AS count
		FROM log_events
		WHERE logged_at > now() - make_interval(days => $1)
		GROUP BY day, severity
		ORDER BY day, severity`

	rows, err := s.pool.Query(ctx, q, days)
	if err != nil {
		return nil, wrapErr("analytics.log_trends", KindUpstream, err)
	}
	defer rows.Close()

	result := &Table{Columns: []string{"day", "severity", "count"}, Rows: [][]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, wrapErr("analytics.log_trends", KindUpstream, err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("analytics.log_trends", KindUpstream, err)
	}
	return result, nil
}

// checkReadOnly rejects anything but SELECT or WITH statements, and
// statements stacked behind a semicolon.
func checkReadOnly(sql string) error {
	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return ErrStatementNotAllowed
	}
	if rest := strings.TrimRight(trimmed, "; \t\n"); strings.Contains(rest, ";") {
		return ErrStatementNotAllowed
	}
	first := strings.ToUpper(strings.Fields(trimmed)[0])
	if first != "SELECT" && first != "WITH" {
		return ErrStatementNotAllowed
	}
	return nil
}
