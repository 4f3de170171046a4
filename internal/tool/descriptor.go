// Package tool defines the tool catalog: descriptors for every operation
// the assistant can invoke, and the frozen registry that holds them.
//
// A descriptor declares what a tool does (name, description), how it may
// change the world (mutation class, destructive flag), which collaborator
// backs it, and the JSON schema its arguments must satisfy. Descriptors
// are immutable once registered; the registry is frozen after the startup
// phase so routing decisions are reproducible for a fixed catalog version.
package tool

import (
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Class is the mutation class of a tool.
type Class string

// Mutation classes. READ tools only query state, WRITE tools change it,
// REALTIME tools fetch live performance metrics.
const (
	ClassRead     Class = "READ"
	ClassWrite    Class = "WRITE"
	ClassRealtime Class = "REALTIME"
)

// Valid reports whether c is a known mutation class.
func (c Class) Valid() bool {
	switch c {
	case ClassRead, ClassWrite, ClassRealtime:
		return true
	}
	return false
}

// Collaborator identifies the external system a tool calls.
type Collaborator string

// Collaborator identifiers.
const (
	CollabAnalytics    Collaborator = "analytics"
	CollabControlPlane Collaborator = "control-plane"
	CollabMonitoring   Collaborator = "monitoring"
)

// Sentinel errors for descriptor construction and argument validation.
var (
	// ErrInvalidDescriptor indicates a descriptor field failed validation.
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")

	// ErrArgumentValidation indicates extracted arguments do not satisfy
	// the tool's input schema.
	ErrArgumentValidation = errors.New("argument validation failed")
)

// Descriptor describes a single invocable tool. Immutable once registered.
type Descriptor struct {
	// Name is the unique catalog key, e.g. "list_buckets".
	Name string

	// Description is shown to the caller (and to an optional LLM composer)
	// to explain what the tool does.
	Description string

	// Class is the tool's mutation class.
	Class Class

	// Destructive marks WRITE tools that remove data irrecoverably.
	// Destructive tools pass through the executor's confirmation gate.
	Destructive bool

	// Collaborator names the backing external system.
	Collaborator Collaborator

	// InputSchema is the JSON schema the tool's arguments must satisfy.
	InputSchema *jsonschema.Schema

	resolved *jsonschema.Resolved
}

// NewDescriptor validates fields and pre-resolves the input schema so
// argument validation needs no further setup.
func NewDescriptor(name, description string, class Class, collab Collaborator, schema *jsonschema.Schema) (*Descriptor, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidDescriptor)
	}
	if !class.Valid() {
		return nil, fmt.Errorf("%w: unknown class %q for %q", ErrInvalidDescriptor, class, name)
	}
	if schema == nil {
		return nil, fmt.Errorf("%w: nil input schema for %q", ErrInvalidDescriptor, name)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving schema for %q: %v", ErrInvalidDescriptor, name, err)
	}

	return &Descriptor{
		Name:         name,
		Description:  description,
		Class:        class,
		Collaborator: collab,
		InputSchema:  schema,
		resolved:     resolved,
	}, nil
}

// MarkDestructive flags the descriptor as destructive. Only meaningful
// for WRITE tools; returns the descriptor for chaining during catalog
// construction.
func (d *Descriptor) MarkDestructive() *Descriptor {
	d.Destructive = true
	return d
}

// ValidateArgs checks extracted arguments against the input schema.
// A failure wraps ErrArgumentValidation and names the tool.
func (d *Descriptor) ValidateArgs(args map[string]any) error {
	if args == nil {
		args = map[string]any{}
	}
	if err := d.resolved.Validate(args); err != nil {
		return fmt.Errorf("%w: tool %q: %v", ErrArgumentValidation, d.Name, err)
	}
	return nil
}

// RequiredArgs returns the schema's required property names.
func (d *Descriptor) RequiredArgs() []string {
	if d.InputSchema == nil {
		return nil
	}
	out := make([]string, len(d.InputSchema.Required))
	copy(out, d.InputSchema.Required)
	return out
}

// ArgNames returns all declared property names, sorted by the schema's
// iteration-independent property list.
func (d *Descriptor) ArgNames() []string {
	if d.InputSchema == nil || d.InputSchema.Properties == nil {
		return nil
	}
	names := make([]string, 0, len(d.InputSchema.Properties))
	for name := range d.InputSchema.Properties {
		names = append(names, name)
	}
	return names
}
