// Package collab defines the narrow interfaces through which the core
// calls its external collaborators — the analytics metadata store, the
// storage control plane, and the cluster monitoring API — plus the
// clients that implement them.
//
// Every collaborator failure is wrapped in *Error with a Kind so the
// executor can honor the error taxonomy (timeout vs unavailable vs
// upstream rejection) without inspecting transport details.
package collab

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrorKind classifies a collaborator failure.
type ErrorKind string

// Error kinds surfaced to the executor.
const (
	// KindTimeout: the call exceeded its deadline.
	KindTimeout ErrorKind = "timeout"
	// KindUnavailable: the collaborator could not be reached.
	KindUnavailable ErrorKind = "unavailable"
	// KindUpstream: the collaborator was reached but rejected the call.
	KindUpstream ErrorKind = "upstream"
)

// Error wraps a collaborator failure with its kind and operation name.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapErr classifies err and wraps it. Context expiry maps to
// KindTimeout, network errors to KindUnavailable; anything else keeps
// the given default kind.
func wrapErr(op string, kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindTimeout
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			if netErr.Timeout() {
				kind = KindTimeout
			} else {
				kind = KindUnavailable
			}
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the error kind of a collaborator error, or KindUpstream
// for any other non-nil error.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstream
}

// Table is the tabular result shape shared by the analytics store.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Bucket describes a bucket in the object store.
type Bucket struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Object describes an object within a bucket.
type Object struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified,omitzero"`
}

// BucketStats is the aggregate view of a single bucket.
type BucketStats struct {
	Bucket      string `json:"bucket"`
	ObjectCount int64  `json:"object_count"`
	TotalSize   int64  `json:"total_size"`
}

// ObjectStore describes an object store deployment known to the control plane.
type ObjectStore struct {
	ID            string `json:"ext_id"`
	Name          string `json:"name"`
	Domain        string `json:"domain"`
	Region        string `json:"region"`
	State         string `json:"state"`
	TotalCapacity int64  `json:"total_capacity_bytes"`
	UsedCapacity  int64  `json:"used_capacity_bytes"`
}

// LogFilter narrows a log event search. Zero-value fields are ignored;
// Hours and Limit fall back to store defaults when non-positive.
type LogFilter struct {
	Severity  string
	Pod       string
	EventType string
	Bucket    string
	Hours     int
	Limit     int
}

// Point is a single time-series sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is a named time-series of samples for one metric.
type Series struct {
	Metric string  `json:"metric"`
	Points []Point `json:"points"`
}

// Analytics is the read-only metadata store.
type Analytics interface {
	// Query executes a read-only SQL statement and returns its result set.
	Query(ctx context.Context, sql string) (*Table, error)
	// ListTables returns the table names visible to the assistant.
	ListTables(ctx context.Context) ([]string, error)
	// DescribeTable returns column name/type rows for a table.
	DescribeTable(ctx context.Context, table string) (*Table, error)
	// SearchLogs returns log events matching the filter, newest first.
	SearchLogs(ctx context.Context, filter LogFilter) (*Table, error)
	// ErrorSummary aggregates error and warning counts by pod and
	// severity over the past hours.
	ErrorSummary(ctx context.Context, hours int) (*Table, error)
	// LogTrends returns daily log counts by severity over the past days.
	LogTrends(ctx context.Context, days int) (*Table, error)
}

// ControlPlane is the storage control API for bucket and object
// management.
type ControlPlane interface {
	ListBuckets(ctx context.Context) ([]Bucket, error)
	ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]Object, error)
	BucketInfo(ctx context.Context, bucket string) (*BucketStats, error)
	ListObjectStores(ctx context.Context) ([]ObjectStore, error)
	CreateBucket(ctx context.Context, name string) (*Bucket, error)
	PutObject(ctx context.Context, bucket, key, content string) (*Object, error)
	DeleteObject(ctx context.Context, bucket, key string) error
	DeleteBucket(ctx context.Context, bucket string) error
}

// Monitoring is the cluster monitoring API serving live metrics.
type Monitoring interface {
	// StoreStats returns time-series samples for an object store over
	// [start, end]. An empty metrics slice selects all metrics.
	StoreStats(ctx context.Context, store string, start, end time.Time, metrics []string) ([]Series, error)
}
