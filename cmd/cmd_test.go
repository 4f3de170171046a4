package cmd

import (
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything it printed.
func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()
	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("creating pipe: %v", err)
	}
	os.Stdout = w

	fnErr := fn()

	_ = w.Close()
	os.Stdout = oldStdout
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading captured output: %v", err)
	}
	if fnErr != nil {
		t.Fatalf("command error: %v", fnErr)
	}
	return string(out)
}

func TestToolsCommandPrintsCatalog(t *testing.T) {
	out := captureStdout(t, runTools)

	if !strings.Contains(out, "Catalog version:") {
		t.Error("output missing catalog version line")
	}
	for _, name := range []string{"list_buckets", "query_metadata", "delete_bucket", "object_store_stats", "search_logs"} {
		if !strings.Contains(out, name) {
			t.Errorf("output missing tool %s", name)
		}
	}
	if !strings.Contains(out, "destructive") {
		t.Error("output does not flag destructive tools")
	}
	if !strings.Contains(out, "requires: bucket") {
		t.Error("output does not list required arguments")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	want := map[string]bool{
		"serve":    false,
		"mcp":      false,
		"ask":      false,
		"sessions": false,
		"tools":    false,
		"version":  false,
	}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}
