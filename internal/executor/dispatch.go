package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/novaops/nova/internal/collab"
)

// dispatch maps a tool name to its collaborator call and normalizes the
// output. Tool names here must stay in lockstep with the registered
// catalog; an unmatched name is a programming error surfaced as upstream.
func (e *Executor) dispatch(ctx context.Context, name string, args map[string]any) (*Result, error) {
	switch name {
	case "query_metadata":
		table, err := e.analytics.Query(ctx, argString(args, "sql"))
		if err != nil {
			return nil, err
		}
		return fromTable(table, ""), nil

	case "list_tables":
		tables, err := e.analytics.ListTables(ctx)
		if err != nil {
			return nil, err
		}
		r := &Result{Columns: []string{"table_name"}, Rows: [][]any{}}
		for _, t := range tables {
			r.Rows = append(r.Rows, []any{t})
		}
		r.Summary = fmt.Sprintf("%d tables", len(tables))
		return r, nil

	case "describe_table":
		table, err := e.analytics.DescribeTable(ctx, argString(args, "table"))
		if err != nil {
			return nil, err
		}
		return fromTable(table, "schema of "+argString(args, "table")), nil

	case "search_logs":
		table, err := e.analytics.SearchLogs(ctx, collab.LogFilter{
			Severity:  argString(args, "severity"),
			Pod:       argString(args, "pod"),
			EventType: argString(args, "event_type"),
			Bucket:    argString(args, "bucket"),
			Hours:     argInt(args, "hours"),
			Limit:     argInt(args, "limit"),
		})
		if err != nil {
			return nil, err
		}
		return fromTable(table, fmt.Sprintf("%d log events", len(table.Rows))), nil

	case "error_summary":
		table, err := e.analytics.ErrorSummary(ctx, argInt(args, "hours"))
		if err != nil {
			return nil, err
		}
		return fromTable(table, "errors by pod and severity"), nil

	case "log_trends":
		table, err := e.analytics.LogTrends(ctx, argInt(args, "days"))
		if err != nil {
			return nil, err
		}
		return fromTable(table, "daily log volume by severity"), nil

	case "list_buckets":
		buckets, err := e.control.ListBuckets(ctx)
		if err != nil {
			return nil, err
		}
		r := &Result{Columns: []string{"bucket_name"}, Rows: [][]any{}}
		for _, b := range buckets {
			r.Rows = append(r.Rows, []any{b.Name})
		}
		r.Summary = fmt.Sprintf("%d buckets", len(buckets))
		return r, nil

	case "list_objects":
		objects, err := e.control.ListObjects(ctx,
			argString(args, "bucket"), argString(args, "prefix"), argInt(args, "max_keys"))
		if err != nil {
			return nil, err
		}
		r := &Result{Columns: []string{"key", "size", "last_modified"}, Rows: [][]any{}}
		for _, o := range objects {
			r.Rows = append(r.Rows, []any{o.Key, o.Size, timestamp(o.LastModified)})
		}
		r.Summary = fmt.Sprintf("%d objects in %s", len(objects), argString(args, "bucket"))
		return r, nil

	case "bucket_info":
		stats, err := e.control.BucketInfo(ctx, argString(args, "bucket"))
		if err != nil {
			return nil, err
		}
		return &Result{
			Columns: []string{"bucket", "object_count", "total_size"},
			Rows:    [][]any{{stats.Bucket, stats.ObjectCount, stats.TotalSize}},
		}, nil

	case "list_object_stores":
		stores, err := e.control.ListObjectStores(ctx)
		if err != nil {
			return nil, err
		}
		r := &Result{
			Columns: []string{"name", "domain", "region", "state", "total_capacity", "used_capacity"},
			Rows:    [][]any{},
		}
		for _, s := range stores {
			r.Rows = append(r.Rows, []any{s.Name, s.Domain, s.Region, s.State, s.TotalCapacity, s.UsedCapacity})
		}
		r.Summary = fmt.Sprintf("%d object stores", len(stores))
		return r, nil

	case "create_bucket":
		bucket, err := e.control.CreateBucket(ctx, argString(args, "bucket"))
		if err != nil {
			return nil, err
		}
		return &Result{
			Columns: []string{"bucket_name", "created_at"},
			Rows:    [][]any{{bucket.Name, timestamp(bucket.CreatedAt)}},
			Summary: fmt.Sprintf("created bucket %s", bucket.Name),
		}, nil

	case "put_object":
		object, err := e.control.PutObject(ctx,
			argString(args, "bucket"), argString(args, "key"), argString(args, "content"))
		if err != nil {
			return nil, err
		}
		return &Result{
			Columns: []string{"key", "size"},
			Rows:    [][]any{{object.Key, object.Size}},
			Summary: fmt.Sprintf("stored %s in %s", object.Key, argString(args, "bucket")),
		}, nil

	case "delete_object":
		bucket, key := argString(args, "bucket"), argString(args, "key")
		if err := e.control.DeleteObject(ctx, bucket, key); err != nil {
			return nil, err
		}
		return &Result{Columns: []string{}, Rows: [][]any{},
			Summary: fmt.Sprintf("deleted %s from %s", key, bucket)}, nil

	case "delete_bucket":
		bucket := argString(args, "bucket")
		if err := e.control.DeleteBucket(ctx, bucket); err != nil {
			return nil, err
		}
		return &Result{Columns: []string{}, Rows: [][]any{},
			Summary: fmt.Sprintf("deleted bucket %s", bucket)}, nil

	case "object_store_stats":
		series, err := e.monitoring.StoreStats(ctx,
			argString(args, "store"),
			argTime(args, "start_time"), argTime(args, "end_time"),
			argStrings(args, "metrics"))
		if err != nil {
			return nil, err
		}
		r := &Result{Columns: []string{"metric", "timestamp", "value"}, Rows: [][]any{}}
		for _, s := range series {
			for _, p := range s.Points {
				r.Rows = append(r.Rows, []any{s.Metric, timestamp(p.Timestamp), p.Value})
			}
		}
		r.Summary = fmt.Sprintf("%d series for %s", len(series), argString(args, "store"))
		return r, nil
	}

	return nil, &collab.Error{
		Kind: collab.KindUpstream,
		Op:   "executor.dispatch",
		Err:  fmt.Errorf("tool %q has no collaborator binding", name),
	}
}

func fromTable(t *collab.Table, summary string) *Result {
	if summary == "" {
		summary = fmt.Sprintf("%d rows", len(t.Rows))
	}
	return &Result{Columns: t.Columns, Rows: t.Rows, Summary: summary}
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func argString(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func argInt(args map[string]any, name string) int {
	switch v := args[name].(type) {
	case int:
		return v
	case float64: // JSON numbers decode as float64
		return int(v)
	}
	return 0
}

func argTime(args map[string]any, name string) time.Time {
	if s := argString(args, name); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func argStrings(args map[string]any, name string) []string {
	switch v := args[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
