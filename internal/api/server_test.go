package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/novaops/nova/internal/assembler"
	"github.com/novaops/nova/internal/assistant"
	"github.com/novaops/nova/internal/collab"
	"github.com/novaops/nova/internal/executor"
	"github.com/novaops/nova/internal/knowledge"
	"github.com/novaops/nova/internal/router"
	"github.com/novaops/nova/internal/session"
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
	buckets     []collab.Bucket
	deleteCalls int
	lastDeleted string
}

func (f *fakeControl) ListBuckets(_ context.Context) ([]collab.Bucket, error) {
	return f.buckets, nil
}

func (f *fakeControl) ListObjects(_ context.Context, _, _ string, _ int) ([]collab.Object, error) {
	return nil, nil
}

func (f *fakeControl) BucketInfo(_ context.Context, bucket string) (*collab.BucketStats, error) {
	return &collab.BucketStats{Bucket: bucket}, nil
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

func newTestServer(t *testing.T) (*Server, *fakeControl) {
	t.Helper()
	discard := slog.New(slog.DiscardHandler)

	reg := tool.NewRegistry(discard)
	if err := tool.RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	reg.Freeze()

	rt, err := router.New(reg, discard)
	if err != nil {
		t.Fatalf("router.New() error = %v", err)
	}

	control := &fakeControl{buckets: []collab.Bucket{{Name: "media"}}}
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

	asst, err := assistant.New(assistant.Config{
		Store:     session.NewMemoryStore(discard),
		Registry:  reg,
		Router:    rt,
		Executor:  exec,
		Assembler: assembler.New("", 16384, 20, discard),
		Corpus:    knowledge.NewCorpus(),
		Logger:    discard,
	})
	if err != nil {
		t.Fatalf("assistant.New() error = %v", err)
	}

	srv, err := NewServer(ServerConfig{
		Assistant: asst,
		Logger:    discard,
		RateBurst: 1000,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv, control
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, rd)
	r.RemoteAddr = "192.0.2.1:12345"
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	return w
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	w := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("create session status = %d, body %s", w.Code, w.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.ID == "" {
		t.Fatal("create session returned empty id")
	}
	return created.ID
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	id := createSession(t, srv)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get session status = %d, body %s", w.Code, w.Body.String())
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list sessions status = %d", w.Code)
	}
	var listed struct {
		Sessions []session.Session `json:"sessions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(listed.Sessions) != 1 || listed.Sessions[0].ID != id {
		t.Fatalf("list sessions = %+v, want one session %s", listed.Sessions, id)
	}

	w = doRequest(t, srv, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete session status = %d", w.Code)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("get deleted session status = %d, want 404", w.Code)
	}
}

func TestChatTurn(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/chat", map[string]any{
		"session_id": id,
		"message":    "list my buckets",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", w.Code, w.Body.String())
	}

	var resp assistant.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if !strings.Contains(resp.Response, "media") {
		t.Errorf("response = %q, want it to mention the bucket", resp.Response)
	}
	if len(resp.Invocations) != 1 || resp.Invocations[0].Tool != "list_buckets" {
		t.Errorf("invocations = %+v, want one list_buckets call", resp.Invocations)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+id+"/turns", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("turns status = %d", w.Code)
	}
	var turns struct {
		Turns []session.Turn `json:"turns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &turns); err != nil {
		t.Fatalf("decode turns response: %v", err)
	}
	if len(turns.Turns) != 3 {
		t.Fatalf("turn count = %d, want 3 (user, tool, assistant)", len(turns.Turns))
	}
}

func TestChatConfirmationGate(t *testing.T) {
	srv, control := newTestServer(t)
	id := createSession(t, srv)

	w := doRequest(t, srv, http.MethodPost, "/api/v1/chat", map[string]any{
		"session_id": id,
		"message":    "delete bucket logs-2023",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", w.Code, w.Body.String())
	}
	var resp assistant.TurnResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode chat response: %v", err)
	}
	if !resp.NeedsConfirmation {
		t.Error("needs_confirmation = false, want true for an unconfirmed delete")
	}
	if control.deleteCalls != 0 {
		t.Fatalf("delete calls = %d before confirmation, want 0", control.deleteCalls)
	}

	w = doRequest(t, srv, http.MethodPost, "/api/v1/chat", map[string]any{
		"session_id": id,
		"message":    "yes, delete bucket logs-2023",
		"confirm":    true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("confirmed chat status = %d, body %s", w.Code, w.Body.String())
	}
	if control.deleteCalls != 1 || control.lastDeleted != "logs-2023" {
		t.Fatalf("delete calls = %d (last %q), want 1 call for logs-2023",
			control.deleteCalls, control.lastDeleted)
	}
}

func TestChatValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	tests := []struct {
		name     string
		body     any
		raw      string
		wantCode int
		wantErr  string
	}{
		{
			name:     "unknown session",
			body:     map[string]any{"session_id": "nope", "message": "list buckets"},
			wantCode: http.StatusNotFound,
			wantErr:  "session_not_found",
		},
		{
			name:     "empty message",
			body:     map[string]any{"session_id": id, "message": "   "},
			wantCode: http.StatusBadRequest,
			wantErr:  "empty_message",
		},
		{
			name:     "missing session id",
			body:     map[string]any{"message": "list buckets"},
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_session_id",
		},
		{
			name:     "malformed body",
			raw:      "{not json",
			wantCode: http.StatusBadRequest,
			wantErr:  "invalid_request",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.raw != "" {
				r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(tt.raw))
				r.RemoteAddr = "192.0.2.1:12345"
				w = httptest.NewRecorder()
				srv.Handler().ServeHTTP(w, r)
			} else {
				w = doRequest(t, srv, http.MethodPost, "/api/v1/chat", tt.body)
			}
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantCode, w.Body.String())
			}
			var er errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if er.Error != tt.wantErr {
				t.Errorf("error code = %q, want %q", er.Error, tt.wantErr)
			}
		})
	}
}

func TestToolsList(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("tools status = %d", w.Code)
	}
	var resp struct {
		CatalogVersion string     `json:"catalog_version"`
		Tools          []toolInfo `json:"tools"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode tools response: %v", err)
	}
	if resp.CatalogVersion == "" {
		t.Error("catalog_version is empty")
	}
	byName := make(map[string]toolInfo, len(resp.Tools))
	for _, ti := range resp.Tools {
		byName[ti.Name] = ti
	}
	if _, ok := byName["list_buckets"]; !ok {
		t.Error("catalog is missing list_buckets")
	}
	del, ok := byName["delete_bucket"]
	if !ok {
		t.Fatal("catalog is missing delete_bucket")
	}
	if !del.Destructive || del.Class != "WRITE" {
		t.Errorf("delete_bucket = %+v, want destructive WRITE", del)
	}
}

func TestHealthProbes(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", w.Code)
	}
	w = doRequest(t, srv, http.MethodGet, "/readyz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("readyz status = %d", w.Code)
	}
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/v1/tools", nil)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if got := w.Header().Get("X-Request-Id"); got == "" {
		t.Error("X-Request-Id header is empty")
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServerWithBurst(t, 2)

	var last int
	for i := 0; i < 5; i++ {
		w := doRequest(t, srv, http.MethodGet, "/api/v1/tools", nil)
		last = w.Code
		if last == http.StatusTooManyRequests {
			break
		}
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", last)
	}
}

func newTestServerWithBurst(t *testing.T, burst int) *Server {
	t.Helper()
	discard := slog.New(slog.DiscardHandler)
	reg := tool.NewRegistry(discard)
	if err := tool.RegisterBuiltins(reg); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	reg.Freeze()
	rt, err := router.New(reg, discard)
	if err != nil {
		t.Fatalf("router.New() error = %v", err)
	}
	exec, err := executor.New(executor.Config{
		Registry:   reg,
		Analytics:  &fakeAnalytics{},
		Control:    &fakeControl{},
		Monitoring: &fakeMonitoring{},
		Timeout:    time.Second,
		Backoff:    time.Millisecond,
		Logger:     discard,
	})
	if err != nil {
		t.Fatalf("executor.New() error = %v", err)
	}
	asst, err := assistant.New(assistant.Config{
		Store:     session.NewMemoryStore(discard),
		Registry:  reg,
		Router:    rt,
		Executor:  exec,
		Assembler: assembler.New("", 16384, 20, discard),
		Corpus:    knowledge.NewCorpus(),
		Logger:    discard,
	})
	if err != nil {
		t.Fatalf("assistant.New() error = %v", err)
	}
	out, err := NewServer(ServerConfig{Assistant: asst, Logger: discard, RateBurst: burst})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return out
}

func TestNewServerRequiresAssistant(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Fatal("NewServer() with nil assistant, want error")
	}
}

func TestRequestIDPassthrough(t *testing.T) {
	srv, _ := newTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tools", nil)
	r.RemoteAddr = "192.0.2.1:12345"
	r.Header.Set("X-Request-Id", "req-abc-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if got := w.Header().Get("X-Request-Id"); got != "req-abc-123" {
		t.Errorf("X-Request-Id = %q, want passthrough of req-abc-123", got)
	}
}

func TestConcurrentChatSameSession(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func(i int) {
			body, _ := json.Marshal(map[string]any{
				"session_id": id,
				"message":    fmt.Sprintf("list my buckets please %d", i),
			})
			r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
			r.RemoteAddr = "192.0.2.1:12345"
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, r)
			if w.Code != http.StatusOK {
				done <- fmt.Errorf("status = %d", w.Code)
				return
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent chat: %v", err)
		}
	}

	w := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+id+"/turns", nil)
	var turns struct {
		Turns []session.Turn `json:"turns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &turns); err != nil {
		t.Fatalf("decode turns: %v", err)
	}
	if len(turns.Turns) != 24 {
		t.Fatalf("turn count = %d, want 24", len(turns.Turns))
	}
	for i, turn := range turns.Turns {
		if turn.Seq != i+1 {
			t.Fatalf("turn %d has seq %d, want gapless sequence", i, turn.Seq)
		}
	}
}
