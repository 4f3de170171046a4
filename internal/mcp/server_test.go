package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/novaops/nova/internal/collab"
	"github.com/novaops/nova/internal/executor"
	"github.com/novaops/nova/internal/tool"
)

type fakeAnalytics struct{}

func (f *fakeAnalytics) Query(_ context.Context, _ string) (*collab.Table, error) {
	return &collab.Table{Columns: []string{"bucket"}, Rows: [][]any{{"media"}}}, nil
}

func (f *fakeAnalytics) ListTables(_ context.Context) ([]string, error) {
	return []string{"bucket_stats"}, nil
}

func (f *fakeAnalytics) DescribeTable(_ context.Context, _ string) (*collab.Table, error) {
	return &collab.Table{Columns: []string{"column_name", "data_type"}}, nil
}

func (f *fakeAnalytics) SearchLogs(_ context.Context, _ collab.LogFilter) (*collab.Table, error) {
	return &collab.Table{Columns: []string{"logged_at", "severity", "message"}, Rows: [][]any{}}, nil
}

func (f *fakeAnalytics) ErrorSummary(_ context.Context, _ int) (*collab.Table, error) {
	return &collab.Table{Columns: []string{"pod", "severity", "count"}, Rows: [][]any{}}, nil
}

func (f *fakeAnalytics) LogTrends(_ context.Context, _ int) (*collab.Table, error) {
	return &collab.Table{Columns: []string{"day", "severity", "count"}, Rows: [][]any{}}, nil
}

type fakeControl struct {
	deleteCalls int
	lastDeleted string
}

func (f *fakeControl) ListBuckets(_ context.Context) ([]collab.Bucket, error) {
	return []collab.Bucket{{Name: "media"}, {Name: "backups"}}, nil
}

func (f *fakeControl) ListObjects(_ context.Context, _, _ string, _ int) ([]collab.Object, error) {
	return nil, nil
}

func (f *fakeControl) BucketInfo(_ context.Context, bucket string) (*collab.BucketStats, error) {
	return &collab.BucketStats{Bucket: bucket, ObjectCount: 3}, nil
}

func (f *fakeControl) ListObjectStores(_ context.Context) ([]collab.ObjectStore, error) {
	return nil, nil
}

func (f *fakeControl) CreateBucket(_ context.Context, name string) (*collab.Bucket, error) {
	return &collab.Bucket{Name: name}, nil
}

func (f *fakeControl) PutObject(_ context.Context, _, key, _ string) (*collab.Object, error) {
	return &collab.Object{Key: key}, nil
}

func (f *fakeControl) DeleteObject(_ context.Context, _, _ string) error { return nil }

func (f *fakeControl) DeleteBucket(_ context.Context, bucket string) error {
	f.deleteCalls++
	f.lastDeleted = bucket
	return nil
}

type fakeMonitoring struct{}

func (f *fakeMonitoring) StoreStats(_ context.Context, _ string, _, _ time.Time, _ []string) ([]collab.Series, error) {
	return nil, nil
}

// connectServer builds an MCP server over fake collaborators and an SDK
// client joined via in-memory transports. Both sessions are cleaned up
// via t.Cleanup.
func connectServer(t *testing.T) (*mcp.ClientSession, *fakeControl) {
	t.Helper()
	discard := slog.New(slog.DiscardHandler)

	reg := tool.NewRegistry(discard)
	if err := tool.RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	reg.Freeze()

	control := &fakeControl{}
	exec, err := executor.New(executor.Config{
		Registry:   reg,
		Analytics:  &fakeAnalytics{},
		Control:    control,
		Monitoring: &fakeMonitoring{},
		Timeout:    time.Second,
		Backoff:    time.Millisecond,
		Logger:     discard,
	})
	if err != nil {
		t.Fatalf("executor.New() error = %v", err)
	}

	server, err := NewServer(Config{
		Name:     "nova",
		Version:  "test",
		Registry: reg,
		Executor: exec,
		Logger:   discard,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server.Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client.Connect() error = %v", err)
	}
	t.Cleanup(func() { _ = clientSession.Close() })

	return clientSession, control
}

func TestProtocolListTools(t *testing.T) {
	session, _ := connectServer(t)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}

	var names []string
	for _, tl := range result.Tools {
		names = append(names, tl.Name)
	}
	sort.Strings(names)

	want := []string{
		"bucket_info",
		"create_bucket",
		"delete_bucket",
		"delete_object",
		"describe_table",
		"error_summary",
		"list_buckets",
		"list_object_stores",
		"list_objects",
		"list_tables",
		"log_trends",
		"object_store_stats",
		"put_object",
		"query_metadata",
		"search_logs",
	}
	if len(names) != len(want) {
		t.Fatalf("ListTools() returned %d tools %v, want %d", len(names), names, len(want))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("tool[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestProtocolCallListBuckets(t *testing.T) {
	session, _ := connectServer(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name: "list_buckets",
	})
	if err != nil {
		t.Fatalf("CallTool(list_buckets) error = %v", err)
	}
	if result.IsError {
		t.Fatalf("CallTool(list_buckets) returned error result: %v", result.Content)
	}

	text := textContent(t, result)
	var res executor.Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		t.Fatalf("parsing result JSON: %v\ntext: %s", err, text)
	}
	if len(res.Rows) != 2 {
		t.Errorf("rows = %d, want 2 buckets", len(res.Rows))
	}
	if len(res.Columns) == 0 || res.Columns[0] != "bucket_name" {
		t.Errorf("columns = %v, want bucket_name first", res.Columns)
	}
}

func TestProtocolDestructiveRequiresConfirm(t *testing.T) {
	session, control := connectServer(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "delete_bucket",
		Arguments: map[string]any{"bucket": "logs-2023"},
	})
	if err != nil {
		t.Fatalf("CallTool(delete_bucket) error = %v", err)
	}
	if result.IsError {
		t.Fatal("unconfirmed delete reported as protocol error, want instructive text result")
	}
	if control.deleteCalls != 0 {
		t.Fatalf("delete calls = %d without confirm, want 0", control.deleteCalls)
	}
	if text := textContent(t, result); !strings.Contains(text, "confirm") {
		t.Errorf("text = %q, want it to mention confirm", text)
	}

	result, err = session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "delete_bucket",
		Arguments: map[string]any{"bucket": "logs-2023", "confirm": true},
	})
	if err != nil {
		t.Fatalf("confirmed CallTool(delete_bucket) error = %v", err)
	}
	if result.IsError {
		t.Fatalf("confirmed delete returned error result: %v", result.Content)
	}
	if control.deleteCalls != 1 || control.lastDeleted != "logs-2023" {
		t.Fatalf("delete calls = %d (last %q), want 1 call for logs-2023",
			control.deleteCalls, control.lastDeleted)
	}
}

func TestProtocolValidationFailure(t *testing.T) {
	session, _ := connectServer(t)

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "bucket_info",
		Arguments: map[string]any{},
	})
	// the SDK validates the input schema itself and rejects the call
	// before our handler runs; either way the missing required property
	// must be named
	if err != nil {
		if !strings.Contains(err.Error(), "bucket") {
			t.Errorf("CallTool(bucket_info) error = %v, want it to name the missing bucket argument", err)
		}
		return
	}
	if !result.IsError {
		t.Fatal("bucket_info without bucket succeeded, want error result")
	}
	if text := textContent(t, result); !strings.Contains(text, "bucket") {
		t.Errorf("text = %q, want it to name the missing bucket argument", text)
	}
}

func TestNewServerValidation(t *testing.T) {
	discard := slog.New(slog.DiscardHandler)
	reg := tool.NewRegistry(discard)
	if err := tool.RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}

	// unfrozen registry
	if _, err := NewServer(Config{Name: "nova", Version: "test", Registry: reg}); err == nil {
		t.Error("NewServer() with unfrozen registry, want error")
	}
	if _, err := NewServer(Config{Version: "test"}); err == nil {
		t.Error("NewServer() without name, want error")
	}
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] type = %T, want *mcp.TextContent", result.Content[0])
	}
	return tc.Text
}
