package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method, path, key, body string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) get() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

// fakeAPI records calls and answers with canned bodies keyed by "METHOD path".
func fakeAPI(t *testing.T, answers map[string]string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, call{r.Method, r.URL.RequestURI(), r.Header.Get("X-API-Key"), string(b)})
		rec.mu.Unlock()
		body, ok := answers[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"job not found"}`))
			return
		}
		if body == "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)
	return ts, rec
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := BuildCLI()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestJobsAdd_SendsUpsert(t *testing.T) {
	ts, rec := fakeAPI(t, map[string]string{
		"PUT /api/jobs/web": `{"name":"web","target":"example.org","interval_sec":0.2,"count":10,"schedule_minutes":5}`,
	})

	out, err := execute(t, "--api", ts.URL, "--key", "adm", "jobs", "add", "web", "example.org", "--every", "5")
	require.NoError(t, err)

	calls := rec.get()
	require.Len(t, calls, 1)
	c := calls[0]
	assert.Equal(t, "adm", c.key)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(c.body), &body))
	assert.Equal(t, "example.org", body["target"])
	assert.Equal(t, float64(5), body["schedule_minutes"])
	assert.NotContains(t, body, "interval_sec", "unset interval must be left to the server")
	assert.Contains(t, out, "every:     5m")
}

func TestJobsAdd_RequiresEvery(t *testing.T) {
	_, err := execute(t, "--api", "http://127.0.0.1:1", "jobs", "add", "web", "example.org")
	require.Error(t, err)
}

func TestJobsList_PrintsTable(t *testing.T) {
	ts, _ := fakeAPI(t, map[string]string{
		"GET /api/jobs": `[{"name":"a","target":"a.example","interval_sec":0.2,"count":10,"schedule_minutes":1,"running":true,"next_run_at":"2025-01-01T00:00:00Z"},
			{"name":"b","target":"b.example","interval_sec":1,"count":3,"schedule_minutes":60,"last_run_at":"2025-01-01T10:00:00Z","running":false,"next_run_at":"2025-01-01T11:00:00Z"}]`,
	})

	out, err := execute(t, "--api", ts.URL, "jobs", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "running")
	assert.Contains(t, lines[1], "never")
	assert.Contains(t, lines[2], "2025-01-01 11:00:00")
}

func TestJobsRenameRunDelete(t *testing.T) {
	ts, rec := fakeAPI(t, map[string]string{
		"POST /api/jobs/a/rename": `{"name":"b","target":"a.example","interval_sec":0.2,"count":10,"schedule_minutes":1}`,
		"POST /api/jobs/b/run":    `{"job":"b","status":"started"}`,
		"DELETE /api/jobs/b":      "",
	})

	_, err := execute(t, "--api", ts.URL, "jobs", "rename", "a", "b")
	require.NoError(t, err)
	_, err = execute(t, "--api", ts.URL, "jobs", "run", "b")
	require.NoError(t, err)
	out, err := execute(t, "--api", ts.URL, "jobs", "delete", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted b")

	calls := rec.get()
	require.Len(t, calls, 3)
	assert.JSONEq(t, `{"new_name":"b"}`, calls[0].body)
}

func TestAPIErrorSurfaces(t *testing.T) {
	ts, _ := fakeAPI(t, nil)

	_, err := execute(t, "--api", ts.URL, "jobs", "get", "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Contains(t, err.Error(), "job not found")
}

func TestConfigSet_KeepsUnchangedField(t *testing.T) {
	ts, rec := fakeAPI(t, map[string]string{
		"GET /api/config": `{"defaults":{"interval_sec":0.2,"count":10},"admin_id":1}`,
		"PUT /api/config": `{"defaults":{"interval_sec":0.2,"count":4},"admin_id":1}`,
	})

	out, err := execute(t, "--api", ts.URL, "config", "set", "--count", "4")
	require.NoError(t, err)

	calls := rec.get()
	require.Len(t, calls, 2)
	assert.JSONEq(t, `{"interval_sec":0.2,"count":4}`, calls[1].body)
	assert.Contains(t, out, "default count:    4")
}

func TestHistory_PassesLimit(t *testing.T) {
	ts, rec := fakeAPI(t, map[string]string{
		"GET /api/jobs/web/results": `[{"job_name":"web","outcome":"error","error_kind":"Timeout","detail":"killed after 12s","started_at":"2025-01-01T00:00:00Z"}]`,
	})

	out, err := execute(t, "--api", ts.URL, "jobs", "history", "web", "--limit", "3")
	require.NoError(t, err)
	assert.Equal(t, "/api/jobs/web/results?limit=3", rec.get()[0].path)
	assert.Contains(t, out, "error(Timeout)")
	assert.Contains(t, out, "killed after 12s")
}

func TestProbe_UsesLocalPing(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	bin := filepath.Join(t.TempDir(), "ping")
	script := "#!/bin/sh\necho '2 packets transmitted, 2 received, 0% packet loss'\necho 'rtt min/avg/max/mdev = 1.000/2.000/3.000/0.500 ms'\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))

	out, err := execute(t, "probe", "192.0.2.1", "--ping", bin, "--count", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Reachable")
	assert.Contains(t, out, "192.0.2.1")
}

func TestProbe_RejectsFlagLikeTarget(t *testing.T) {
	_, err := execute(t, "probe", "--", "-f")
	require.Error(t, err)
}
