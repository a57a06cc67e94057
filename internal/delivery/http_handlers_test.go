package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeRunner struct {
	result     *domain.RunResult
	err        error
	dailyOpts  []domain.RunOptions
	backfills  [][2]string
	hadTimeout bool
}

func (f *fakeRunner) RunDaily(ctx context.Context, opts domain.RunOptions) (*domain.RunResult, error) {
	f.dailyOpts = append(f.dailyOpts, opts)
	_, f.hadTimeout = ctx.Deadline()
	return f.result, f.err
}

func (f *fakeRunner) RunBackfill(_ context.Context, start, end string, opts domain.RunOptions) (*domain.RunResult, error) {
	f.backfills = append(f.backfills, [2]string{start, end})
	f.dailyOpts = append(f.dailyOpts, opts)
	return f.result, f.err
}

type fakeHistory struct {
	runs   []domain.RunResult
	filter domain.RunFilter
}

func (f *fakeHistory) GetRuns(_ context.Context, filter domain.RunFilter) (*domain.RunsResponse, error) {
	f.filter = filter
	return &domain.RunsResponse{Data: f.runs, Total: len(f.runs), Limit: filter.Limit}, nil
}

func (f *fakeHistory) GetRun(_ context.Context, id string) (*domain.RunResult, error) {
	for i := range f.runs {
		if f.runs[i].RunID == id {
			return &f.runs[i], nil
		}
	}
	return nil, domain.ErrRunNotFound
}

func newTestRouter(runner PipelineRunner, history RunHistory) http.Handler {
	log := logger.Discard()
	reg := prometheus.NewRegistry()
	handlers := NewHTTPHandlers(runner, history, false, log)
	return NewHTTPRouter(handlers, log, metrics.New(reg), reg, time.Minute).SetupRoutes()
}

func serve(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode response error: %v", err)
		}
	}
	return rec, body
}

func TestIngestRun(t *testing.T) {
	runner := &fakeRunner{result: &domain.RunResult{RunID: "r1", Status: domain.StatusSuccess, RowsLoaded: 2}}
	router := newTestRouter(runner, &fakeHistory{})

	rec, body := serve(t, router, http.MethodPost, "/api/v1/ingest/run?dry_run=true")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(runner.dailyOpts) != 1 || !runner.dailyOpts[0].DryRun {
		t.Errorf("expected one dry run, got %+v", runner.dailyOpts)
	}
	if !runner.hadTimeout {
		t.Errorf("expected the run context to carry a deadline")
	}
	run, _ := body["run"].(map[string]any)
	if run["run_id"] != "r1" || run["status"] != "success" {
		t.Errorf("unexpected run payload %v", body["run"])
	}
	if rec.Header().Get("X-Request-ID") == "" || body["request_id"] == "" {
		t.Errorf("expected a request id")
	}
}

func TestIngestRunStatusCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "in progress", err: domain.ErrRunInProgress, want: http.StatusConflict},
		{name: "fatal", err: domain.ErrAllAccountsFailed, want: http.StatusInternalServerError},
		{name: "load failure", err: &domain.LoadError{Table: "t", Err: domain.ErrAllAccountsFailed}, want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: &domain.RunResult{Status: domain.StatusFailed}, err: tt.err}
			rec, _ := serve(t, newTestRouter(runner, &fakeHistory{}), http.MethodPost, "/api/v1/ingest/run")
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestIngestRunInvalidDryRun(t *testing.T) {
	runner := &fakeRunner{}
	rec, _ := serve(t, newTestRouter(runner, &fakeHistory{}), http.MethodPost, "/api/v1/ingest/run?dry_run=maybe")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if len(runner.dailyOpts) != 0 {
		t.Errorf("invalid input must not start a run")
	}
}

func TestBackfillRun(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		want   int
		called bool
	}{
		{name: "valid", query: "?start_date=2025-12-01&end_date=2025-12-07", want: http.StatusOK, called: true},
		{name: "missing end", query: "?start_date=2025-12-01", want: http.StatusBadRequest},
		{name: "reversed", query: "?start_date=2025-12-07&end_date=2025-12-01", want: http.StatusBadRequest},
		{name: "bad format", query: "?start_date=12/01/2025&end_date=2025-12-07", want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: &domain.RunResult{Status: domain.StatusSuccess}}
			rec, _ := serve(t, newTestRouter(runner, &fakeHistory{}), http.MethodPost, "/api/v1/backfill/run"+tt.query)
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if called := len(runner.backfills) == 1; called != tt.called {
				t.Errorf("expected runner called=%v, got %v", tt.called, called)
			}
			if tt.called && runner.backfills[0] != [2]string{"2025-12-01", "2025-12-07"} {
				t.Errorf("unexpected range %v", runner.backfills[0])
			}
		})
	}
}

func TestGetRuns(t *testing.T) {
	history := &fakeHistory{runs: []domain.RunResult{{RunID: "r1", Status: domain.StatusSuccess}}}
	router := newTestRouter(&fakeRunner{}, history)

	rec, body := serve(t, router, http.MethodGet, "/api/v1/runs?status=success&mode=daily&limit=5&offset=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	want := domain.RunFilter{Status: domain.StatusSuccess, Mode: domain.ModeDaily, Limit: 5, Offset: 1}
	if history.filter != want {
		t.Errorf("expected filter %+v, got %+v", want, history.filter)
	}
	if body["total"] != float64(1) {
		t.Errorf("expected total 1, got %v", body["total"])
	}

	rec, _ = serve(t, router, http.MethodGet, "/api/v1/runs?limit=-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a negative limit, got %d", rec.Code)
	}
}

func TestGetRun(t *testing.T) {
	router := newTestRouter(&fakeRunner{}, &fakeHistory{runs: []domain.RunResult{{RunID: "r1"}}})

	rec, _ := serve(t, router, http.MethodGet, "/api/v1/runs/r1")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec, _ = serve(t, router, http.MethodGet, "/api/v1/runs/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	router := newTestRouter(&fakeRunner{}, &fakeHistory{})

	rec, body := serve(t, router, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("unexpected health response %d %v", rec.Code, body)
	}

	rec, _ = serve(t, router, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200 from /metrics, got %d", rec.Code)
	}
}
