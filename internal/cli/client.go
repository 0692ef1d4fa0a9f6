package cli

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

	"github.com/hamed0406/pingstatus/internal/config"
	"github.com/hamed0406/pingstatus/internal/domain"
	"github.com/hamed0406/pingstatus/internal/scheduler"
)

// APIError is a non-2xx answer from the control API.
type APIError struct {
	Status  int
	Message string
	Field   string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Message)
}

// Client talks to a running pingstatus server.
type Client struct {
	Base string
	Key  string
	HTTP *http.Client
}

func NewClient(base, key string) *Client {
	return &Client{
		Base: strings.TrimRight(base, "/"),
		Key:  key,
		HTTP: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Key != "" {
		req.Header.Set("X-API-Key", c.Key)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("contacting api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb struct {
			Error string `json:"error"`
			Field string `json:"field"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&eb)
		return &APIError{Status: resp.StatusCode, Message: eb.Error, Field: eb.Field}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func jobPath(name string, rest ...string) string {
	return "/api/jobs/" + strings.Join(append([]string{url.PathEscape(name)}, rest...), "/")
}

func (c *Client) ListJobs(ctx context.Context) ([]scheduler.JobStatus, error) {
	var out []scheduler.JobStatus
	return out, c.do(ctx, http.MethodGet, "/api/jobs", nil, &out)
}

func (c *Client) GetJob(ctx context.Context, name string) (domain.Job, error) {
	var out domain.Job
	return out, c.do(ctx, http.MethodGet, jobPath(name), nil, &out)
}

// JobSpec is the body of an upsert; zero interval or count takes the
// server's defaults.
type JobSpec struct {
	Target          string  `json:"target"`
	IntervalSec     float64 `json:"interval_sec,omitempty"`
	Count           int     `json:"count,omitempty"`
	ScheduleMinutes int     `json:"schedule_minutes"`
}

func (c *Client) UpsertJob(ctx context.Context, name string, spec JobSpec) (domain.Job, error) {
	var out domain.Job
	return out, c.do(ctx, http.MethodPut, jobPath(name), spec, &out)
}

func (c *Client) DeleteJob(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, jobPath(name), nil, nil)
}

func (c *Client) RenameJob(ctx context.Context, oldName, newName string) (domain.Job, error) {
	var out domain.Job
	return out, c.do(ctx, http.MethodPost, jobPath(oldName, "rename"), map[string]string{"new_name": newName}, &out)
}

func (c *Client) RunJob(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, jobPath(name, "run"), nil, nil)
}

func (c *Client) History(ctx context.Context, name string, limit int) ([]domain.RunRecord, error) {
	var out []domain.RunRecord
	return out, c.do(ctx, http.MethodGet, jobPath(name, "results")+"?limit="+strconv.Itoa(limit), nil, &out)
}

func (c *Client) Latest(ctx context.Context) ([]domain.RunRecord, error) {
	var out []domain.RunRecord
	return out, c.do(ctx, http.MethodGet, "/api/results/latest", nil, &out)
}

type ConfigView struct {
	Defaults config.Defaults `json:"defaults"`
	AdminID  int64           `json:"admin_id"`
}

func (c *Client) Config(ctx context.Context) (ConfigView, error) {
	var out ConfigView
	return out, c.do(ctx, http.MethodGet, "/api/config", nil, &out)
}

func (c *Client) SetDefaults(ctx context.Context, d config.Defaults) (ConfigView, error) {
	var out ConfigView
	return out, c.do(ctx, http.MethodPut, "/api/config", d, &out)
}
