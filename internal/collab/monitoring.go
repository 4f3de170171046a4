package collab

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrEmptyStoreName is returned when StoreStats is called without a store.
var ErrEmptyStoreName = errors.New("object store name is empty")

// MonitoringClient reads live time-series metrics from the monitoring API.
// It reuses the control plane's credentials and transport; on most
// clusters the two share an endpoint.
type MonitoringClient struct {
	cp *ControlPlaneClient
}

// NewMonitoringClient creates a monitoring client for the API at baseURL.
func NewMonitoringClient(baseURL, user, password string, logger *slog.Logger, opts ...ControlPlaneOption) *MonitoringClient {
	return &MonitoringClient{cp: NewControlPlaneClient(baseURL, user, password, logger, opts...)}
}

// StoreStats returns per-metric sample series for an object store over
// [start, end]. A zero end means now; a zero start means one hour before
// end. Timestamps go on the wire in RFC 3339 UTC.
func (m *MonitoringClient) StoreStats(ctx context.Context, store string, start, end time.Time, metrics []string) ([]Series, error) {
	if strings.TrimSpace(store) == "" {
		return nil, &Error{Kind: KindUpstream, Op: "monitoring.store_stats", Err: ErrEmptyStoreName}
	}
	if end.IsZero() {
		end = time.Now()
	}
	if start.IsZero() {
		start = end.Add(-time.Hour)
	}

	query := url.Values{}
	query.Set("$startTime", start.UTC().Format(time.RFC3339))
	query.Set("$endTime", end.UTC().Format(time.RFC3339))
	if len(metrics) > 0 {
		query.Set("$select", strings.Join(metrics, ","))
	}

	var payload struct {
		Data []struct {
			Metric string `json:"metric"`
			Values []struct {
				Timestamp time.Time `json:"timestamp"`
				Value     float64   `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	path := "/api/storage/v1/object-stores/" + url.PathEscape(store) + "/stats"
	if err := m.cp.do(ctx, "monitoring.store_stats", http.MethodGet, path, query, nil, &payload); err != nil {
		return nil, err
	}

	series := make([]Series, len(payload.Data))
	for i, d := range payload.Data {
		points := make([]Point, len(d.Values))
		for j, v := range d.Values {
			points[j] = Point{Timestamp: v.Timestamp, Value: v.Value}
		}
		series[i] = Series{Metric: d.Metric, Points: points}
	}
	return series, nil
}
