package tool

import (
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Argument schemas are built literally rather than derived from structs:
// the catalog is the single source of truth for what the router may
// extract and what the executor validates, and literal schemas keep the
// required-property sets explicit.

func objectSchema(required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func stringProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "string", Description: desc}
}

func intProp(desc string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer", Description: desc}
}

// RegisterBuiltins populates the registry with the full tool catalog:
// analytics (READ), storage control plane (READ/WRITE), and cluster
// monitoring (REALTIME). The registry is NOT frozen here; callers freeze
// after any extra registrations.
func RegisterBuiltins(r *Registry) error {
	builders := []func() (*Descriptor, error){
		// Analytics (metadata store, read-only)
		func() (*Descriptor, error) {
			return NewDescriptor("query_metadata",
				"Run a read-only SQL query against the object store metadata database.",
				ClassRead, CollabAnalytics,
				objectSchema([]string{"sql"}, map[string]*jsonschema.Schema{
					"sql": stringProp("SQL SELECT statement to execute"),
				}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("list_tables",
				"List the tables available in the metadata database.",
				ClassRead, CollabAnalytics,
				objectSchema(nil, map[string]*jsonschema.Schema{}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("describe_table",
				"Describe the columns of a metadata table.",
				ClassRead, CollabAnalytics,
				objectSchema([]string{"table"}, map[string]*jsonschema.Schema{
					"table": stringProp("Table name to describe"),
				}))
		},

		// Analytics — log diagnostics
		func() (*Descriptor, error) {
			return NewDescriptor("search_logs",
				"Search cluster log events with optional severity, pod, event type and bucket filters.",
				ClassRead, CollabAnalytics,
				objectSchema(nil, map[string]*jsonschema.Schema{
					"severity":   stringProp("Severity filter (ERROR, WARN, FATAL, INFO)"),
					"pod":        stringProp("Pod/component filter"),
					"event_type": stringProp("Event type filter (e.g. REPLICATION_FAIL, IO_ERROR)"),
					"bucket":     stringProp("Bucket name filter"),
					"hours":      intProp("Time range in hours (default 24)"),
					"limit":      intProp("Maximum events to return (default 50)"),
				}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("error_summary",
				"Summarize error and warning counts by pod and severity over a recent window.",
				ClassRead, CollabAnalytics,
				objectSchema(nil, map[string]*jsonschema.Schema{
					"hours": intProp("Time range in hours (default 24)"),
				}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("log_trends",
				"Show daily log volume by severity over the past days.",
				ClassRead, CollabAnalytics,
				objectSchema(nil, map[string]*jsonschema.Schema{
					"days": intProp("Number of days to analyze (default 7)"),
				}))
		},

		// Storage control plane — reads
		func() (*Descriptor, error) {
			return NewDescriptor("list_buckets",
				"List all buckets in the object store.",
				ClassRead, CollabControlPlane,
				objectSchema(nil, map[string]*jsonschema.Schema{}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("list_objects",
				"List objects in a bucket, optionally filtered by prefix.",
				ClassRead, CollabControlPlane,
				objectSchema([]string{"bucket"}, map[string]*jsonschema.Schema{
					"bucket":   stringProp("Bucket name"),
					"prefix":   stringProp("Optional key prefix filter"),
					"max_keys": intProp("Maximum number of objects to return"),
				}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("bucket_info",
				"Get object count and total size for a bucket.",
				ClassRead, CollabControlPlane,
				objectSchema([]string{"bucket"}, map[string]*jsonschema.Schema{
					"bucket": stringProp("Bucket name"),
				}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("list_object_stores",
				"List object store deployments known to the control plane.",
				ClassRead, CollabControlPlane,
				objectSchema(nil, map[string]*jsonschema.Schema{}))
		},

		// Storage control plane — writes
		func() (*Descriptor, error) {
			return NewDescriptor("create_bucket",
				"Create a bucket. A unique name is generated when none is given.",
				ClassWrite, CollabControlPlane,
				objectSchema(nil, map[string]*jsonschema.Schema{
					"bucket": stringProp("Bucket name to create (optional)"),
				}))
		},
		func() (*Descriptor, error) {
			return NewDescriptor("put_object",
				"Upload a text object to a bucket.",
				ClassWrite, CollabControlPlane,
				objectSchema([]string{"bucket", "key", "content"}, map[string]*jsonschema.Schema{
					"bucket":  stringProp("Target bucket name"),
					"key":     stringProp("Object key (filename/path)"),
					"content": stringProp("Text content to upload"),
				}))
		},
		func() (*Descriptor, error) {
			d, err := NewDescriptor("delete_object",
				"Delete an object from a bucket.",
				ClassWrite, CollabControlPlane,
				objectSchema([]string{"bucket", "key"}, map[string]*jsonschema.Schema{
					"bucket": stringProp("Bucket containing the object"),
					"key":    stringProp("Object key to delete"),
				}))
			if err != nil {
				return nil, err
			}
			return d.MarkDestructive(), nil
		},
		func() (*Descriptor, error) {
			d, err := NewDescriptor("delete_bucket",
				"Delete an empty bucket.",
				ClassWrite, CollabControlPlane,
				objectSchema([]string{"bucket"}, map[string]*jsonschema.Schema{
					"bucket": stringProp("Bucket name to delete"),
				}))
			if err != nil {
				return nil, err
			}
			return d.MarkDestructive(), nil
		},

		// Cluster monitoring (live metrics)
		func() (*Descriptor, error) {
			return NewDescriptor("object_store_stats",
				"Fetch live time-series performance metrics (IOPS, throughput) for an object store over a time range.",
				ClassRealtime, CollabMonitoring,
				objectSchema([]string{"store"}, map[string]*jsonschema.Schema{
					"store":      stringProp("Object store name or external ID"),
					"start_time": stringProp("Range start, RFC 3339 (default: one hour ago)"),
					"end_time":   stringProp("Range end, RFC 3339 (default: now)"),
					"metrics": {
						Type:        "array",
						Description: "Metric names to select (default: all)",
						Items:       stringProp("Metric name"),
					},
				}))
		},
	}

	for _, build := range builders {
		d, err := build()
		if err != nil {
			return fmt.Errorf("building catalog: %w", err)
		}
		if err := r.Register(d); err != nil {
			return fmt.Errorf("registering catalog: %w", err)
		}
	}
	return nil
}

// CatalogSummary renders a compact, name-sorted one-line-per-tool summary
// for prompt context and the tools listing surfaces.
func CatalogSummary(r *Registry) string {
	var out []byte
	for _, d := range r.All() {
		flags := string(d.Class)
		if d.Destructive {
			flags += ", destructive"
		}
		out = append(out, fmt.Sprintf("- %s [%s]: %s\n", d.Name, flags, d.Description)...)
	}
	return string(out)
}
