package collab

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyBucketName is returned by bucket operations missing a bucket.
var ErrEmptyBucketName = errors.New("bucket name is empty")

// ErrEmptyObjectKey is returned by object operations missing a key.
var ErrEmptyObjectKey = errors.New("object key is empty")

// ControlPlaneClient talks to the storage control plane over its REST API.
type ControlPlaneClient struct {
	baseURL  string
	user     string
	password string
	client   *http.Client
	logger   *slog.Logger
}

// ControlPlaneOption configures a ControlPlaneClient.
type ControlPlaneOption func(*ControlPlaneClient)

// WithInsecureTLS skips certificate verification. Lab clusters often run
// with self-signed certificates.
func WithInsecureTLS() ControlPlaneOption {
	return func(c *ControlPlaneClient) {
		c.client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ControlPlaneOption {
	return func(c *ControlPlaneClient) { c.client = hc }
}

// NewControlPlaneClient creates a client for the control plane at baseURL
// using basic authentication.
func NewControlPlaneClient(baseURL, user, password string, logger *slog.Logger, opts ...ControlPlaneOption) *ControlPlaneClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &ControlPlaneClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		user:     user,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ControlPlaneClient) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUpstream, Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return &Error{Kind: KindUpstream, Op: op, Err: err}
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return wrapErr(op, KindUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{
			Kind: KindUpstream,
			Op:   op,
			Err:  fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindUpstream, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

type bucketPayload struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"creationDate"`
}

func (p bucketPayload) toBucket() Bucket {
	return Bucket{Name: p.Name, CreatedAt: p.CreatedAt}
}

// ListBuckets returns all buckets visible to the configured credentials.
func (c *ControlPlaneClient) ListBuckets(ctx context.Context) ([]Bucket, error) {
	var payload struct {
		Buckets []bucketPayload `json:"buckets"`
	}
	if err := c.do(ctx, "controlplane.list_buckets", http.MethodGet, "/api/storage/v1/buckets", nil, nil, &payload); err != nil {
		return nil, err
	}
	buckets := make([]Bucket, len(payload.Buckets))
	for i, b := range payload.Buckets {
		buckets[i] = b.toBucket()
	}
	return buckets, nil
}

// ListObjects returns up to maxKeys objects in bucket, optionally
// filtered by key prefix. maxKeys <= 0 leaves the server default.
func (c *ControlPlaneClient) ListObjects(ctx context.Context, bucket, prefix string, maxKeys int) ([]Object, error) {
	if bucket == "" {
		return nil, &Error{Kind: KindUpstream, Op: "controlplane.list_objects", Err: ErrEmptyBucketName}
	}
	query := url.Values{}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	if maxKeys > 0 {
		query.Set("maxKeys", strconv.Itoa(maxKeys))
	}
	var payload struct {
		Objects []struct {
			Key          string    `json:"key"`
			Size         int64     `json:"size"`
			LastModified time.Time `json:"lastModified"`
		} `json:"objects"`
	}
	path := "/api/storage/v1/buckets/" + url.PathEscape(bucket) + "/objects"
	if err := c.do(ctx, "controlplane.list_objects", http.MethodGet, path, query, nil, &payload); err != nil {
		return nil, err
	}
	objects := make([]Object, len(payload.Objects))
	for i, o := range payload.Objects {
		objects[i] = Object{Key: o.Key, Size: o.Size, LastModified: o.LastModified}
	}
	return objects, nil
}

// BucketInfo returns the object count and total size of bucket.
func (c *ControlPlaneClient) BucketInfo(ctx context.Context, bucket string) (*BucketStats, error) {
	if bucket == "" {
		return nil, &Error{Kind: KindUpstream, Op: "controlplane.bucket_info", Err: ErrEmptyBucketName}
	}
	var payload struct {
		Name        string `json:"name"`
		ObjectCount int64  `json:"objectCount"`
		TotalSize   int64  `json:"totalSizeBytes"`
	}
	path := "/api/storage/v1/buckets/" + url.PathEscape(bucket)
	if err := c.do(ctx, "controlplane.bucket_info", http.MethodGet, path, nil, nil, &payload); err != nil {
		return nil, err
	}
	return &BucketStats{Bucket: payload.Name, ObjectCount: payload.ObjectCount, TotalSize: payload.TotalSize}, nil
}

// ListObjectStores returns the object store deployments registered with
// the control plane.
func (c *ControlPlaneClient) ListObjectStores(ctx context.Context) ([]ObjectStore, error) {
	var payload struct {
		Data []struct {
			ExtID         string `json:"extId"`
			Name          string `json:"name"`
			Domain        string `json:"domain"`
			Region        string `json:"region"`
			State         string `json:"state"`
			TotalCapacity int64  `json:"totalCapacityInBytes"`
			UsedCapacity  int64  `json:"usedCapacityInBytes"`
		} `json:"data"`
	}
	if err := c.do(ctx, "controlplane.list_object_stores", http.MethodGet, "/api/storage/v1/object-stores", nil, nil, &payload); err != nil {
		return nil, err
	}
	stores := make([]ObjectStore, len(payload.Data))
	for i, s := range payload.Data {
		stores[i] = ObjectStore{
			ID:            s.ExtID,
			Name:          s.Name,
			Domain:        s.Domain,
			Region:        s.Region,
			State:         s.State,
			TotalCapacity: s.TotalCapacity,
			UsedCapacity:  s.UsedCapacity,
		}
	}
	return stores, nil
}

// CreateBucket creates a bucket. An empty name lets the server generate
// a unique one.
func (c *ControlPlaneClient) CreateBucket(ctx context.Context, name string) (*Bucket, error) {
	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	var payload bucketPayload
	if err := c.do(ctx, "controlplane.create_bucket", http.MethodPost, "/api/storage/v1/buckets", nil, body, &payload); err != nil {
		return nil, err
	}
	b := payload.toBucket()
	c.logger.Info("bucket created", slog.String("bucket", b.Name))
	return &b, nil
}

// PutObject writes content under bucket/key and returns the stored object.
func (c *ControlPlaneClient) PutObject(ctx context.Context, bucket, key, content string) (*Object, error) {
	if bucket == "" {
		return nil, &Error{Kind: KindUpstream, Op: "controlplane.put_object", Err: ErrEmptyBucketName}
	}
	if key == "" {
		return nil, &Error{Kind: KindUpstream, Op: "controlplane.put_object", Err: ErrEmptyObjectKey}
	}
	body := map[string]string{"key": key, "content": content}
	var payload struct {
		Key          string    `json:"key"`
		Size         int64     `json:"size"`
		LastModified time.Time `json:"lastModified"`
	}
	path := "/api/storage/v1/buckets/" + url.PathEscape(bucket) + "/objects"
	if err := c.do(ctx, "controlplane.put_object", http.MethodPost, path, nil, body, &payload); err != nil {
		return nil, err
	}
	return &Object{Key: payload.Key, Size: payload.Size, LastModified: payload.LastModified}, nil
}

// DeleteObject removes a single object.
func (c *ControlPlaneClient) DeleteObject(ctx context.Context, bucket, key string) error {
	if bucket == "" {
		return &Error{Kind: KindUpstream, Op: "controlplane.delete_object", Err: ErrEmptyBucketName}
	}
	if key == "" {
		return &Error{Kind: KindUpstream, Op: "controlplane.delete_object", Err: ErrEmptyObjectKey}
	}
	path := "/api/storage/v1/buckets/" + url.PathEscape(bucket) + "/objects/" + url.PathEscape(key)
	return c.do(ctx, "controlplane.delete_object", http.MethodDelete, path, nil, nil, nil)
}

// DeleteBucket removes a bucket. The control plane rejects non-empty
// buckets, which surfaces as an upstream error.
func (c *ControlPlaneClient) DeleteBucket(ctx context.Context, bucket string) error {
	if bucket == "" {
		return &Error{Kind: KindUpstream, Op: "controlplane.delete_bucket", Err: ErrEmptyBucketName}
	}
	path := "/api/storage/v1/buckets/" + url.PathEscape(bucket)
	if err := c.do(ctx, "controlplane.delete_bucket", http.MethodDelete, path, nil, nil, nil); err != nil {
		return err
	}
	c.logger.Info("bucket deleted", slog.String("bucket", bucket))
	return nil
}
