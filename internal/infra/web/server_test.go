package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"asset-studio/internal/domain/model"
	"asset-studio/internal/domain/ports/adapter"
	"asset-studio/internal/scheduler"
	"asset-studio/internal/store"
)

func newLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

// stubClient completes every call immediately.
type stubClient struct{}

func (stubClient) Provider() string { return "stub" }

func (stubClient) Generate(_ context.Context, req adapter.GenerateRequest) (*model.Asset, error) {
	return &model.Asset{Data: []byte(req.Prompt), MIME: "image/png", Width: req.Width, Height: req.Height}, nil
}

func (stubClient) Transform(_ context.Context, req adapter.TransformRequest) (*model.Asset, error) {
	return &model.Asset{Data: req.Source.Data, MIME: req.Source.MIME, Width: req.Width, Height: req.Height}, nil
}

type testServer struct {
	srv    *Server
	router http.Handler
	sched  *scheduler.Scheduler
}

func newTestServer(t *testing.T, auth *AuthManager, dashboardKey string) *testServer {
	t.Helper()
	st := store.New(newLogger())
	sched := scheduler.New(st, stubClient{}, newLogger())
	t.Cleanup(sched.Close)
	srv := NewServer(sched, auth, nil, 60, dashboardKey, newLogger())
	return &testServer{srv: srv, router: srv.Router(), sched: sched}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil, "")
	rec := ts.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSubmitJob(t *testing.T) {
	ts := newTestServer(t, nil, "")

	t.Run("created", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
			Kind: "generate", Prompt: "a lighthouse", Width: 512, Height: 512,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		job := decode[model.Job](t, rec)
		if job.ID == "" {
			t.Fatal("job id missing")
		}
	})

	t.Run("missing prompt", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
			Kind: "generate", Width: 512, Height: 512,
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader("{nope"))
		rec := httptest.NewRecorder()
		ts.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestSubmitBatch(t *testing.T) {
	ts := newTestServer(t, nil, "")

	t.Run("zero count", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs/batch", map[string]any{"count": 0})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("shared batch id", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs/batch", map[string]any{
			"count": 3, "kind": "generate", "prompt": "tiles", "width": 64, "height": 64,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		resp := decode[struct {
			BatchID string       `json:"batch_id"`
			Jobs    []*model.Job `json:"jobs"`
		}](t, rec)
		if resp.BatchID == "" || len(resp.Jobs) != 3 {
			t.Fatalf("batch response = %+v", resp)
		}
	})
}

func TestTransformSourceResolution(t *testing.T) {
	ts := newTestServer(t, nil, "")

	t.Run("unknown source", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
			Kind: "transform", SourceJobID: "ghost", Direction: "east", Width: 64, Height: 64,
		})
		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("resolved source", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
			Kind: "generate", Prompt: "base sprite", Width: 64, Height: 64,
		})
		base := decode[model.Job](t, rec)
		waitFor(t, "base job done", func() bool {
			j, ok := ts.sched.Store().Job(base.ID)
			return ok && j.Status == model.JobStatusSuccess
		})

		rec = ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
			Kind: "transform", SourceJobID: base.ID, Direction: "east", Width: 64, Height: 64,
		})
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestGetJob(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}

	created := decode[model.Job](t, ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
		Kind: "generate", Prompt: "p", Width: 64, Height: 64,
	}))
	rec = ts.do(t, http.MethodGet, "/api/v1/jobs/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestListJobs(t *testing.T) {
	ts := newTestServer(t, nil, "")
	created := decode[model.Job](t, ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
		Kind: "generate", Prompt: "p", Width: 64, Height: 64,
	}))
	waitFor(t, "job done", func() bool {
		j, _ := ts.sched.Store().Job(created.ID)
		return j != nil && j.Status.IsTerminal()
	})

	t.Run("full snapshot", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/jobs", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		snap := decode[store.State](t, rec)
		if snap.Stats.Total != 1 || len(snap.Jobs) != 1 {
			t.Fatalf("snapshot = %+v", snap)
		}
	})

	t.Run("status filter", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/jobs?status=success", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("bad filter", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/jobs?status=exploded", nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestRetryEndpoint(t *testing.T) {
	ts := newTestServer(t, nil, "")

	t.Run("unknown job", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs/nope/retry", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("not terminal", func(t *testing.T) {
		// With a zero bound the job stays idle, which is not retryable.
		if err := ts.sched.Store().SetMaxConcurrent(0); err != nil {
			t.Fatal(err)
		}
		created := decode[model.Job](t, ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
			Kind: "generate", Prompt: "parked", Width: 64, Height: 64,
		}))
		rec := ts.do(t, http.MethodPost, "/api/v1/jobs/"+created.ID+"/retry", nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d", rec.Code)
		}
	})
}

func TestRemoveAndClear(t *testing.T) {
	ts := newTestServer(t, nil, "")
	created := decode[model.Job](t, ts.do(t, http.MethodPost, "/api/v1/jobs", submitRequest{
		Kind: "generate", Prompt: "p", Width: 64, Height: 64,
	}))

	if rec := ts.do(t, http.MethodDelete, "/api/v1/jobs/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodDelete, "/api/v1/jobs", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if ts.sched.Store().Stats().Total != 0 {
		t.Fatal("jobs remain after clear")
	}
}

func TestConfigEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, "")

	rec := ts.do(t, http.MethodGet, "/api/v1/config", nil)
	cfg := decode[map[string]int](t, rec)
	if cfg["max_concurrent_jobs"] != store.DefaultMaxConcurrent {
		t.Fatalf("default config = %v", cfg)
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/config", map[string]int{"max_concurrent_jobs": 5})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}
	if ts.sched.Store().MaxConcurrent() != 5 {
		t.Fatalf("bound = %d", ts.sched.Store().MaxConcurrent())
	}

	rec = ts.do(t, http.MethodPut, "/api/v1/config", map[string]int{"max_concurrent_jobs": -1})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("negative bound status = %d", rec.Code)
	}
}

func TestStatsAndMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil, "")
	if rec := ts.do(t, http.MethodGet, "/api/v1/stats", nil); rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodGet, "/api/v1/metrics", nil); rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestAuth(t *testing.T) {
	auth := NewAuthManager("test-secret", false, time.Minute)
	ts := newTestServer(t, auth, "open-sesame")

	t.Run("rejects missing token", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/stats", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("rejects wrong key", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/auth/login", map[string]string{"key": "wrong"})
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("bearer token grants access", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/auth/login", map[string]string{"key": "open-sesame"})
		if rec.Code != http.StatusOK {
			t.Fatalf("login status = %d", rec.Code)
		}
		token := decode[map[string]string](t, rec)["token"]
		if token == "" {
			t.Fatal("no token in login response")
		}

		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		out := httptest.NewRecorder()
		ts.router.ServeHTTP(out, req)
		if out.Code != http.StatusOK {
			t.Fatalf("authorized status = %d", out.Code)
		}
	})

	t.Run("logout clears the session cookie", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/auth/logout", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("status = %d", rec.Code)
		}
		cleared := false
		for _, c := range rec.Result().Cookies() {
			if c.Name == "studio_session" && c.MaxAge < 0 {
				cleared = true
			}
		}
		if !cleared {
			t.Fatal("logout did not expire the session cookie")
		}
	})

	t.Run("rejects forged token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
		req.Header.Set("Authorization", "Bearer not.a.jwt")
		out := httptest.NewRecorder()
		ts.router.ServeHTTP(out, req)
		if out.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", out.Code)
		}
	})
}

func TestEventsStream(t *testing.T) {
	ts := newTestServer(t, nil, "")
	server := httptest.NewServer(ts.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type = %q", got)
	}

	// The first frame is always the snapshot.
	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(buf[:n]), "event: snapshot\n") {
		t.Fatalf("first frame = %q", string(buf[:n]))
	}
}
