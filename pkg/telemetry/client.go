package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
	"go.uber.org/zap"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 256
)

// HTTPClient talks to the Telemetry, Alarm and Job REST APIs.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(h *HTTPClient) {
		h.httpClient = c
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(h *HTTPClient) {
		if d > 0 {
			h.httpClient.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) ClientOption {
	return func(h *HTTPClient) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHTTPClient creates a client rooted at baseURL, e.g. "http://telemetry:8080/api".
func NewHTTPClient(baseURL string, opts ...ClientOption) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, ErrMissingBaseURL
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid telemetry base URL: %w", err)
	}

	h := &HTTPClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h, nil
}

// FetchSamples calls GET /metrics/{system}/{category}. A body whose data does
// not match either known shape returns an empty slice with an error wrapping
// ErrUnexpectedShape.
func (h *HTTPClient) FetchSamples(ctx context.Context, q SampleQuery) ([]models.Sample, error) {
	params := url.Values{}
	if q.AgentID != "" {
		params.Set("agent_id", q.AgentID)
	}

	if q.Range != "" {
		params.Set("range", q.Range)
	}

	path := "/metrics/" + url.PathEscape(q.System) + "/" + url.PathEscape(q.Category)

	var env envelope
	if err := h.get(ctx, path, params, &env); err != nil {
		return nil, err
	}

	if err := env.ok(true); err != nil {
		return nil, err
	}

	return decodeSamples(env.Data)
}

// RecentAlarms calls GET /status/alarms/recent for unacknowledged alarms.
func (h *HTTPClient) RecentAlarms(ctx context.Context, limit int) ([]models.AlarmEvent, error) {
	params := url.Values{}
	params.Set("unacknowledged", "true")

	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var env envelope
	if err := h.get(ctx, "/status/alarms/recent", params, &env); err != nil {
		return nil, err
	}

	if err := env.ok(false); err != nil {
		return nil, err
	}

	var data wireAlarms
	if len(bytes.TrimSpace(env.Data)) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return []models.AlarmEvent{}, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
		}
	}

	out := make([]models.AlarmEvent, 0, len(data.Alarms))

	for _, a := range data.Alarms {
		out = append(out, models.AlarmEvent{
			ID:        string(a.ID),
			Severity:  models.Severity(strings.ToLower(a.Severity)),
			Message:   a.Message,
			Timestamp: a.Timestamp.t,
		})
	}

	return out, nil
}

// ListJobs calls GET /jobs. The list may be a bare array or wrapped in a
// "jobs" or "data" key.
func (h *HTTPClient) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	var raw json.RawMessage
	if err := h.get(ctx, "/jobs", nil, &raw); err != nil {
		return nil, err
	}

	jobs, err := decodeJobs(raw)
	if err != nil {
		return []models.JobSummary{}, err
	}

	out := make([]models.JobSummary, 0, len(jobs))

	for _, j := range jobs {
		if j.ID == "" {
			continue
		}

		out = append(out, models.JobSummary{ID: string(j.ID), Name: j.Name, Status: j.Status})
	}

	return out, nil
}

func decodeJobs(raw json.RawMessage) ([]wireJob, error) {
	raw = bytes.TrimSpace(raw)

	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	if raw[0] == '[' {
		var jobs []wireJob
		if err := json.Unmarshal(raw, &jobs); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
		}

		return jobs, nil
	}

	var wrapped struct {
		Status string          `json:"status"`
		Jobs   json.RawMessage `json:"jobs"`
		Data   json.RawMessage `json:"data"`
	}

	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnexpectedShape, err)
	}

	if wrapped.Status != "" && !strings.EqualFold(wrapped.Status, statusSuccess) {
		return nil, fmt.Errorf("%w: status=%q", ErrUnsuccessfulStatus, wrapped.Status)
	}

	inner := wrapped.Jobs
	if len(inner) == 0 {
		inner = wrapped.Data
	}

	if len(inner) == 0 {
		return nil, fmt.Errorf("%w: no jobs or data key", ErrUnexpectedShape)
	}

	return decodeJobs(inner)
}

// ProcessLog calls GET /process-logs for one job.
func (h *HTTPClient) ProcessLog(ctx context.Context, jobID string) (models.ProcessLog, error) {
	params := url.Values{}
	params.Set("process_id", jobID)

	var w wireProcessLog
	if err := h.get(ctx, "/process-logs", params, &w); err != nil {
		return models.ProcessLog{}, err
	}

	env := envelope{Status: w.Status}
	if err := env.ok(false); err != nil {
		return models.ProcessLog{}, err
	}

	return models.ProcessLog{
		Status:        w.Status,
		Logs:          w.Logs,
		FinalStatus:   w.Metadata.FinalStatus,
		ProcessStatus: w.ProcessStatus,
	}, nil
}

// get performs a GET request and unmarshals the JSON response.
func (h *HTTPClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	target := h.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	start := time.Now()

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			h.logger.Debug("Failed to close response body", zap.Error(err))
		}
	}(resp.Body)

	h.logger.Debug("Telemetry request",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return fmt.Errorf("%w: GET %s: HTTP %d: %s", ErrHTTPStatus, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}

	return nil
}
