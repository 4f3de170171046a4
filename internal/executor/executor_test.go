package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/novaops/nova/internal/collab"
	"github.com/novaops/nova/internal/router"
	"github.com/novaops/nova/internal/tool"
)

type mockAnalytics struct {
	queryCalls  int
	searchCalls int
	lastFilter  collab.LogFilter
	table       *collab.Table
	errs        []error // popped per call, nil entries mean success
}

func (m *mockAnalytics) popErr() error {
	if len(m.errs) == 0 {
		return nil
	}
	err := m.errs[0]
	m.errs = m.errs[1:]
	return err
}

func (m *mockAnalytics) Query(ctx context.Context, sql string) (*collab.Table, error) {
	m.queryCalls++
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if err := m.popErr(); err != nil {
		return nil, err
	}
	return m.table, nil
}

func (m *mockAnalytics) ListTables(ctx context.Context) ([]string, error) {
	return []string{"buckets", "objects"}, nil
}

func (m *mockAnalytics) DescribeTable(ctx context.Context, table string) (*collab.Table, error) {
	return &collab.Table{Columns: []string{"column_name"}, Rows: [][]any{{"id"}}}, nil
}

func (m *mockAnalytics) SearchLogs(ctx context.Context, filter collab.LogFilter) (*collab.Table, error) {
	m.searchCalls++
	m.lastFilter = filter
	return &collab.Table{
		Columns: []string{"logged_at", "pod", "node_name", "severity", "event_type", "message", "bucket_name"},
		Rows:    [][]any{{"2026-01-02T03:04:05Z", "OC", "node-1", "ERROR", "IO_ERROR", "read failed", "media"}},
	}, nil
}

func (m *mockAnalytics) ErrorSummary(ctx context.Context, hours int) (*collab.Table, error) {
	return &collab.Table{
		Columns: []string{"pod", "severity", "count"},
		Rows:    [][]any{{"OC", "ERROR", int64(7)}},
	}, nil
}

func (m *mockAnalytics) LogTrends(ctx context.Context, days int) (*collab.Table, error) {
	return &collab.Table{
		Columns: []string{"day", "severity", "count"},
		Rows:    [][]any{{"2026-01-02", "ERROR", int64(3)}},
	}, nil
}

type mockControl struct {
	listCalls   int
	deleteCalls int
	createCalls int
	buckets     []collab.Bucket
	deleteErr   error
	lastDeleted string
}

func (m *mockControl) ListBuckets(ctx context.Context) ([]collab.Bucket, error) {
	m.listCalls++
	return m.buckets, nil
}

func (m *mockControl) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]collab.Object, error) {
	return []collab.Object{{Key: "a.txt", Size: 10}}, nil
}

func (m *mockControl) BucketInfo(ctx context.Context, bucket string) (*collab.BucketStats, error) {
	return &collab.BucketStats{Bucket: bucket, ObjectCount: 3, TotalSize: 4096}, nil
}

func (m *mockControl) ListObjectStores(ctx context.Context) ([]collab.ObjectStore, error) {
	return nil, nil
}

func (m *mockControl) CreateBucket(ctx context.Context, name string) (*collab.Bucket, error) {
	m.createCalls++
	return &collab.Bucket{Name: name}, nil
}

func (m *mockControl) PutObject(ctx context.Context, bucket, key, content string) (*collab.Object, error) {
	return &collab.Object{Key: key, Size: int64(len(content))}, nil
}

func (m *mockControl) DeleteObject(ctx context.Context, bucket, key string) error {
	m.deleteCalls++
	return nil
}

func (m *mockControl) DeleteBucket(ctx context.Context, bucket string) error {
	m.deleteCalls++
	m.lastDeleted = bucket
	return m.deleteErr
}

type mockMonitoring struct {
	statsCalls int
	lastStore  string
}

func (m *mockMonitoring) StoreStats(ctx context.Context, store string, start, end time.Time, metrics []string) ([]collab.Series, error) {
	m.statsCalls++
	m.lastStore = store
	return []collab.Series{{Metric: "iops", Points: []collab.Point{
		{Timestamp: time.Unix(1700000000, 0), Value: 42},
	}}}, nil
}

type fixture struct {
	exec       *Executor
	analytics  *mockAnalytics
	control    *mockControl
	monitoring *mockMonitoring
}

func setup(t *testing.T) *fixture {
	t.Helper()
	registry := tool.NewRegistry(nil)
	if err := tool.RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	registry.Freeze()

	f := &fixture{
		analytics:  &mockAnalytics{table: &collab.Table{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}},
		control:    &mockControl{},
		monitoring: &mockMonitoring{},
	}
	exec, err := New(Config{
		Registry:   registry,
		Analytics:  f.analytics,
		Control:    f.control,
		Monitoring: f.monitoring,
		Timeout:    time.Second,
		Backoff:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.exec = exec
	return f
}

func step(name string, args map[string]any) *router.Decision {
	if args == nil {
		args = map[string]any{}
	}
	return &router.Decision{Steps: []router.Step{{Tool: name, Args: args}}}
}

func TestExecuteListBucketsEmpty(t *testing.T) {
	f := setup(t)

	results := f.exec.ExecutePlan(context.Background(), step("list_buckets", nil), false)
	if len(results) != 1 || results[0].Status != StatusSuccess {
		t.Fatalf("results = %+v, want one success", results)
	}
	r := results[0].Result
	if len(r.Columns) != 1 || r.Columns[0] != "bucket_name" || len(r.Rows) != 0 {
		t.Errorf("result = %+v, want exactly a bucket_name column and no rows", r)
	}
	if f.control.listCalls != 1 {
		t.Errorf("listCalls = %d, want 1", f.control.listCalls)
	}
}

func TestExecuteSearchLogsFilters(t *testing.T) {
	f := setup(t)

	results := f.exec.ExecutePlan(context.Background(),
		step("search_logs", map[string]any{
			"severity": "ERROR",
			"bucket":   "media",
			"hours":    float64(6), // JSON numbers decode as float64
		}), false)
	if results[0].Status != StatusSuccess {
		t.Fatalf("results = %+v, want success", results)
	}
	if f.analytics.searchCalls != 1 {
		t.Fatalf("searchCalls = %d, want 1", f.analytics.searchCalls)
	}
	filter := f.analytics.lastFilter
	if filter.Severity != "ERROR" || filter.Bucket != "media" || filter.Hours != 6 {
		t.Errorf("filter = %+v, want severity ERROR, bucket media, 6 hours", filter)
	}
	r := results[0].Result
	if r.Columns[0] != "logged_at" || len(r.Rows) != 1 {
		t.Errorf("result = %+v, want one log event row", r)
	}
}

func TestExecuteErrorSummary(t *testing.T) {
	f := setup(t)

	results := f.exec.ExecutePlan(context.Background(),
		step("error_summary", map[string]any{"hours": float64(24)}), false)
	if results[0].Status != StatusSuccess {
		t.Fatalf("results = %+v, want success", results)
	}
	r := results[0].Result
	if len(r.Columns) != 3 || r.Columns[0] != "pod" || r.Columns[2] != "count" {
		t.Errorf("columns = %v, want pod/severity/count", r.Columns)
	}
}

func TestExecuteConfirmationGate(t *testing.T) {
	f := setup(t)

	results := f.exec.ExecutePlan(context.Background(),
		step("delete_bucket", map[string]any{"bucket": "logs-2023"}), false)
	if results[0].Status != StatusConfirmationRequired {
		t.Fatalf("status = %s, want confirmation_required", results[0].Status)
	}
	if f.control.deleteCalls != 0 {
		t.Errorf("deleteCalls = %d, want 0: gate must precede any collaborator call", f.control.deleteCalls)
	}

	// with confirmation the same decision executes exactly once
	results = f.exec.ExecutePlan(context.Background(),
		step("delete_bucket", map[string]any{"bucket": "logs-2023"}), true)
	if results[0].Status != StatusSuccess {
		t.Fatalf("status = %s, want success", results[0].Status)
	}
	if f.control.deleteCalls != 1 || f.control.lastDeleted != "logs-2023" {
		t.Errorf("deleteCalls = %d lastDeleted = %q, want one call for logs-2023",
			f.control.deleteCalls, f.control.lastDeleted)
	}
}

func TestExecuteValidatesBeforeCall(t *testing.T) {
	f := setup(t)

	results := f.exec.ExecutePlan(context.Background(), step("query_metadata", nil), false)
	if results[0].Status != StatusError || results[0].ErrorKind != "argument_validation" {
		t.Fatalf("results = %+v, want argument_validation error", results)
	}
	if f.analytics.queryCalls != 0 {
		t.Errorf("queryCalls = %d, want 0: validation must precede the call", f.analytics.queryCalls)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	f := setup(t)
	results := f.exec.ExecutePlan(context.Background(), step("no_such_tool", nil), false)
	if results[0].Status != StatusError || results[0].ErrorKind != "unknown_tool" {
		t.Errorf("results = %+v, want unknown_tool error", results)
	}
}

func TestExecuteReadRetriesOnce(t *testing.T) {
	f := setup(t)
	f.analytics.errs = []error{
		&collab.Error{Kind: collab.KindUnavailable, Op: "analytics.query", Err: errors.New("refused")},
	}

	results := f.exec.ExecutePlan(context.Background(),
		step("query_metadata", map[string]any{"sql": "SELECT 1"}), false)
	if results[0].Status != StatusSuccess {
		t.Fatalf("status = %s, want success after retry", results[0].Status)
	}
	if f.analytics.queryCalls != 2 {
		t.Errorf("queryCalls = %d, want 2 (original + one retry)", f.analytics.queryCalls)
	}
}

func TestExecuteReadRetriesOnlyOnce(t *testing.T) {
	f := setup(t)
	unavailable := &collab.Error{Kind: collab.KindUnavailable, Op: "analytics.query", Err: errors.New("refused")}
	f.analytics.errs = []error{unavailable, unavailable}

	results := f.exec.ExecutePlan(context.Background(),
		step("query_metadata", map[string]any{"sql": "SELECT 1"}), false)
	if results[0].Status != StatusError || results[0].ErrorKind != string(collab.KindUnavailable) {
		t.Fatalf("results = %+v, want unavailable error", results)
	}
	if f.analytics.queryCalls != 2 {
		t.Errorf("queryCalls = %d, want exactly 2", f.analytics.queryCalls)
	}
}

func TestExecuteNoRetryAfterCancel(t *testing.T) {
	registry := tool.NewRegistry(nil)
	if err := tool.RegisterBuiltins(registry); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	registry.Freeze()

	analytics := &mockAnalytics{errs: []error{
		&collab.Error{Kind: collab.KindUnavailable, Op: "analytics.query", Err: errors.New("refused")},
	}}
	exec, err := New(Config{
		Registry:   registry,
		Analytics:  analytics,
		Control:    &mockControl{},
		Monitoring: &mockMonitoring{},
		Timeout:    time.Second,
		Backoff:    time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()
	defer cancel()

	start := time.Now()
	results := exec.ExecutePlan(ctx, step("query_metadata", map[string]any{"sql": "SELECT 1"}), false)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("ExecutePlan took %v, cancellation should cut the backoff short", elapsed)
	}
	if results[0].Status != StatusError || results[0].ErrorKind != string(collab.KindUnavailable) {
		t.Fatalf("results = %+v, want the original unavailable error", results)
	}
	if analytics.queryCalls != 1 {
		t.Errorf("queryCalls = %d, want 1: no retry against a cancelled context", analytics.queryCalls)
	}
}

func TestExecuteWriteNeverRetries(t *testing.T) {
	f := setup(t)
	f.control.deleteErr = &collab.Error{Kind: collab.KindTimeout, Op: "controlplane.delete_bucket", Err: errors.New("deadline")}

	results := f.exec.ExecutePlan(context.Background(),
		step("delete_bucket", map[string]any{"bucket": "logs-2023"}), true)
	if results[0].Status != StatusError || results[0].ErrorKind != string(collab.KindTimeout) {
		t.Fatalf("results = %+v, want timeout error", results)
	}
	if f.control.deleteCalls != 1 {
		t.Errorf("deleteCalls = %d, want exactly 1: writes get at most one attempt", f.control.deleteCalls)
	}
}

func TestExecuteTwoStepPlanBindsFromFirstResult(t *testing.T) {
	f := setup(t)
	f.control.buckets = []collab.Bucket{{Name: "stale-data"}}

	plan := &router.Decision{Steps: []router.Step{
		{Tool: "list_buckets", Args: map[string]any{}},
		{Tool: "delete_bucket", Args: map[string]any{}, Pending: []string{"bucket"}},
	}}
	results := f.exec.ExecutePlan(context.Background(), plan, true)
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Tool != "list_buckets" || results[0].Status != StatusSuccess {
		t.Errorf("step 1 = %+v", results[0])
	}
	if results[1].Status != StatusSuccess || f.control.lastDeleted != "stale-data" {
		t.Errorf("step 2 = %+v lastDeleted = %q, want bound delete of stale-data",
			results[1], f.control.lastDeleted)
	}
	if f.control.listCalls != 1 {
		t.Errorf("listCalls = %d: step 1 must run before step 2 binds", f.control.listCalls)
	}
}

func TestExecuteTwoStepPlanAmbiguousBinding(t *testing.T) {
	f := setup(t)
	f.control.buckets = []collab.Bucket{{Name: "a"}, {Name: "b"}}

	plan := &router.Decision{Steps: []router.Step{
		{Tool: "list_buckets", Args: map[string]any{}},
		{Tool: "delete_bucket", Args: map[string]any{}, Pending: []string{"bucket"}},
	}}
	results := f.exec.ExecutePlan(context.Background(), plan, true)
	last := results[len(results)-1]
	if last.Status != StatusNeedsInput {
		t.Fatalf("final status = %s, want needs_input", last.Status)
	}
	if f.control.deleteCalls != 0 {
		t.Errorf("deleteCalls = %d, want 0 on ambiguous binding", f.control.deleteCalls)
	}
}

func TestExecuteTwoStepPlanEmptyFirstResult(t *testing.T) {
	f := setup(t)

	plan := &router.Decision{Steps: []router.Step{
		{Tool: "list_buckets", Args: map[string]any{}},
		{Tool: "delete_bucket", Args: map[string]any{}, Pending: []string{"bucket"}},
	}}
	results := f.exec.ExecutePlan(context.Background(), plan, true)
	last := results[len(results)-1]
	if last.Status != StatusNeedsInput {
		t.Fatalf("final status = %s, want needs_input", last.Status)
	}
	if f.control.deleteCalls != 0 {
		t.Errorf("deleteCalls = %d, want 0 when there is nothing to bind", f.control.deleteCalls)
	}
}

func TestExecuteNormalizesSeries(t *testing.T) {
	f := setup(t)

	results := f.exec.ExecutePlan(context.Background(),
		step("object_store_stats", map[string]any{"store": "oss-main"}), false)
	if results[0].Status != StatusSuccess {
		t.Fatalf("status = %s, want success", results[0].Status)
	}
	r := results[0].Result
	want := []string{"metric", "timestamp", "value"}
	for i, col := range want {
		if r.Columns[i] != col {
			t.Fatalf("columns = %v, want %v", r.Columns, want)
		}
	}
	if len(r.Rows) != 1 || r.Rows[0][0] != "iops" || r.Rows[0][2] != 42.0 {
		t.Errorf("rows = %v, want one iops sample of 42", r.Rows)
	}
	if f.monitoring.lastStore != "oss-main" {
		t.Errorf("lastStore = %q, want oss-main", f.monitoring.lastStore)
	}
}
