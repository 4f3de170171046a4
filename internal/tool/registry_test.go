package tool

import (
	"errors"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/novaops/nova/internal/log"
)

func testDescriptor(t *testing.T, name string, class Class) *Descriptor {
	t.Helper()
	d, err := NewDescriptor(name, "test tool", class, CollabAnalytics,
		objectSchema([]string{"target"}, map[string]*jsonschema.Schema{
			"target": stringProp("target of the operation"),
		}))
	if err != nil {
		t.Fatalf("NewDescriptor(%q): %v", name, err)
	}
	return d
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(log.NewNop())
	want := testDescriptor(t, "list_buckets", ClassRead)

	if err := r.Register(want); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Lookup("list_buckets")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != want {
		t.Error("Lookup returned a different descriptor than registered")
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	r := NewRegistry(log.NewNop())
	if err := r.Register(testDescriptor(t, "dup", ClassRead)); err != nil {
		t.Fatalf("first Register: %v", err)
	}

	err := r.Register(testDescriptor(t, "dup", ClassWrite))
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Register(duplicate) = %v, want ErrDuplicateTool", err)
	}
}

func TestRegistry_UnknownTool(t *testing.T) {
	r := NewRegistry(log.NewNop())
	if _, err := r.Lookup("missing"); !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Lookup(missing) = %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_FreezeRejectsRegistration(t *testing.T) {
	r := NewRegistry(log.NewNop())
	if err := r.Register(testDescriptor(t, "a", ClassRead)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.Freeze()

	if !r.Frozen() {
		t.Error("Frozen() = false after Freeze()")
	}
	err := r.Register(testDescriptor(t, "b", ClassRead))
	if !errors.Is(err, ErrRegistryFrozen) {
		t.Errorf("Register after Freeze = %v, want ErrRegistryFrozen", err)
	}
}

func TestRegistry_ListByClassSorted(t *testing.T) {
	r := NewRegistry(log.NewNop())
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := r.Register(testDescriptor(t, name, ClassWrite)); err != nil {
			t.Fatalf("Register(%q): %v", name, err)
		}
	}
	if err := r.Register(testDescriptor(t, "reader", ClassRead)); err != nil {
		t.Fatalf("Register(reader): %v", err)
	}

	got := r.ListByClass(ClassWrite)
	wantOrder := []string{"alpha", "mid", "zeta"}
	if len(got) != len(wantOrder) {
		t.Fatalf("ListByClass returned %d tools, want %d", len(got), len(wantOrder))
	}
	for i, d := range got {
		if d.Name != wantOrder[i] {
			t.Errorf("ListByClass[%d] = %q, want %q", i, d.Name, wantOrder[i])
		}
	}
}

func TestRegistry_VersionStable(t *testing.T) {
	build := func() *Registry {
		r := NewRegistry(log.NewNop())
		if err := RegisterBuiltins(r); err != nil {
			t.Fatalf("RegisterBuiltins: %v", err)
		}
		r.Freeze()
		return r
	}

	a, b := build(), build()
	if a.Version() == "" {
		t.Fatal("Version() empty after Freeze")
	}
	if a.Version() != b.Version() {
		t.Errorf("identical catalogs produced different versions: %q vs %q", a.Version(), b.Version())
	}
}

func TestRegistry_VersionEmptyBeforeFreeze(t *testing.T) {
	r := NewRegistry(log.NewNop())
	if v := r.Version(); v != "" {
		t.Errorf("Version() before Freeze = %q, want empty", v)
	}
}

func TestDescriptor_ValidateArgs(t *testing.T) {
	d := testDescriptor(t, "check", ClassRead)

	if err := d.ValidateArgs(map[string]any{"target": "logs-2023"}); err != nil {
		t.Errorf("ValidateArgs(valid) = %v", err)
	}

	err := d.ValidateArgs(map[string]any{})
	if !errors.Is(err, ErrArgumentValidation) {
		t.Errorf("ValidateArgs(missing required) = %v, want ErrArgumentValidation", err)
	}

	err = d.ValidateArgs(map[string]any{"target": 42})
	if !errors.Is(err, ErrArgumentValidation) {
		t.Errorf("ValidateArgs(wrong type) = %v, want ErrArgumentValidation", err)
	}
}

func TestRegisterBuiltins_Catalog(t *testing.T) {
	r := NewRegistry(log.NewNop())
	if err := RegisterBuiltins(r); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}

	// Destructive tools must be WRITE class.
	for _, d := range r.All() {
		if d.Destructive && d.Class != ClassWrite {
			t.Errorf("tool %q destructive but class %s", d.Name, d.Class)
		}
	}

	// Spot-check required arguments.
	del, err := r.Lookup("delete_bucket")
	if err != nil {
		t.Fatalf("Lookup(delete_bucket): %v", err)
	}
	if !del.Destructive {
		t.Error("delete_bucket should be destructive")
	}
	req := del.RequiredArgs()
	if len(req) != 1 || req[0] != "bucket" {
		t.Errorf("delete_bucket required = %v, want [bucket]", req)
	}

	stats, err := r.Lookup("object_store_stats")
	if err != nil {
		t.Fatalf("Lookup(object_store_stats): %v", err)
	}
	if stats.Class != ClassRealtime {
		t.Errorf("object_store_stats class = %s, want REALTIME", stats.Class)
	}

	logs, err := r.Lookup("search_logs")
	if err != nil {
		t.Fatalf("Lookup(search_logs): %v", err)
	}
	if logs.Class != ClassRead || logs.Collaborator != CollabAnalytics {
		t.Errorf("search_logs = %s/%s, want READ on analytics", logs.Class, logs.Collaborator)
	}
	if req := logs.RequiredArgs(); len(req) != 0 {
		t.Errorf("search_logs required = %v, want none: every filter is optional", req)
	}
}
