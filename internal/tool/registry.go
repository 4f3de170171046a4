package tool

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Sentinel errors for registry operations. Check with errors.Is().
var (
	// ErrDuplicateTool indicates a tool with the same name is already registered.
	ErrDuplicateTool = errors.New("duplicate tool")

	// ErrUnknownTool indicates the requested tool is not in the catalog.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrRegistryFrozen indicates a registration attempt after Freeze().
	ErrRegistryFrozen = errors.New("registry is frozen")
)

// Registry is the static catalog of invocable tools.
//
// Registration happens during a startup phase; Freeze() ends that phase
// and makes the registry immutable, so concurrent readers need no lock
// afterwards and routing decisions are reproducible for a fixed catalog
// version.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]*Descriptor
	frozen  bool
	version string
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		tools:  make(map[string]*Descriptor),
		logger: logger,
	}
}

// Register adds a descriptor to the catalog.
// Fails with ErrDuplicateTool if the name is taken and ErrRegistryFrozen
// after the startup phase has completed.
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("%w: nil descriptor", ErrInvalidDescriptor)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, d.Name)
	}
	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, d.Name)
	}

	r.tools[d.Name] = d
	r.logger.Debug("registered tool", "name", d.Name, "class", d.Class, "collaborator", d.Collaborator)
	return nil
}

// Freeze ends the startup phase. Idempotent. After Freeze the catalog
// version is fixed and further registration fails.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return
	}
	r.frozen = true
	r.version = r.computeVersion()
	r.logger.Info("tool registry frozen", "tools", len(r.tools), "version", r.version)
}

// Frozen reports whether the startup phase has completed.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the descriptor registered under name.
// Fails with ErrUnknownTool if absent.
func (r *Registry) Lookup(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return d, nil
}

// ListByClass returns all descriptors of the given mutation class,
// sorted by name for deterministic iteration.
func (r *Registry) ListByClass(class Class) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, d := range r.tools {
		if d.Class == class {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// All returns every descriptor, sorted by name.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Version returns the catalog version: a stable hash of the frozen
// catalog contents. Empty until Freeze() is called.
func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// computeVersion hashes names, classes and destructive flags in sorted
// order. Caller must hold the lock.
func (r *Registry) computeVersion() string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		d := r.tools[name]
		fmt.Fprintf(h, "%s:%s:%t;", d.Name, d.Class, d.Destructive)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
