package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"adsetl/internal/domain"
	"adsetl/pkg/config"
	"adsetl/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
)

const insightsPage = `{"data": [
	{"campaign_name": "Winter", "ad_name": "A", "publisher_platform": "facebook",
	 "impressions": "100", "clicks": "4", "spend": "1.5", "date_start": "2025-12-01", "date_stop": "2025-12-01",
	 "actions": [{"action_type": "link_click", "value": "3"}]},
	{"campaign_name": "Winter", "ad_name": "A", "publisher_platform": "instagram",
	 "impressions": "50", "clicks": "1", "spend": "0.5", "date_start": "2025-12-01", "date_stop": "2025-12-01"}
], "paging": {}}`

func testConfig(t *testing.T, graphURL string) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		ETL: config.ETLConfig{
			MaxRetries: 1,
			CSVDir:     filepath.Join(dir, "csv"),
		},
		Facebook: config.FacebookConfig{
			GraphAPIURL:   graphURL,
			AccountIDs:    []string{"123"},
			TokenOverride: "tok",
		},
		Secrets: config.SecretsConfig{
			Backend:   config.SecretBackendLocal,
			LocalPath: filepath.Join(dir, "secrets"),
		},
		Warehouse: config.WarehouseConfig{
			Backend:    config.WarehouseDuckDB,
			Table:      "ads.insights",
			DuckDBPath: filepath.Join(dir, "ads.duckdb"),
		},
	}
}

func TestBackfillThenReloadCSV(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("time_range"), "2025-12-01") {
			t.Errorf("unexpected time_range %s", r.URL.Query().Get("time_range"))
		}
		fmt.Fprint(w, insightsPage)
	}))
	defer server.Close()

	ctx := context.Background()
	app, err := New(ctx, testConfig(t, server.URL), logger.Discard(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer app.Close()

	run, err := app.ETL.RunBackfill(ctx, "2025-12-01", "2025-12-01", domain.RunOptions{})
	if err != nil {
		t.Fatalf("RunBackfill error: %v", err)
	}
	if run.Status != domain.StatusSuccess || run.RowsLoaded != 2 {
		t.Fatalf("expected 2 rows loaded, got %+v", run)
	}
	if filepath.Base(run.CSVPath) != "backfill_2025-12-01_to_2025-12-01.csv" {
		t.Errorf("unexpected export path %s", run.CSVPath)
	}

	reload, err := app.Loads.LoadCSV(ctx, run.CSVPath)
	if err != nil {
		t.Fatalf("LoadCSV error: %v", err)
	}
	if reload.RowsLoaded != 2 || len(reload.ColumnsAdded) != 0 {
		t.Errorf("expected a plain reload of 2 rows, got %+v", reload)
	}

	history, err := app.History.GetRuns(ctx, domain.RunFilter{})
	if err != nil {
		t.Fatalf("GetRuns error: %v", err)
	}
	if history.Total != 2 || history.Data[0].Mode != domain.ModeCSVLoad {
		t.Errorf("expected csv load first in history, got %+v", history.Data)
	}
}

func TestNewRejectsUnknownBackends(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "secret backend", mutate: func(c *config.Config) { c.Secrets.Backend = "vault" }},
		{name: "warehouse backend", mutate: func(c *config.Config) { c.Warehouse.Backend = "redshift" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://127.0.0.1:0")
			tt.mutate(cfg)
			if _, err := New(context.Background(), cfg, logger.Discard(), prometheus.NewRegistry()); err == nil {
				t.Errorf("expected an error for an unknown backend")
			}
		})
	}
}

func TestNewWithOverrideSkipsSecretStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "tok" {
			t.Errorf("expected the override token, got %q", r.URL.Query().Get("access_token"))
		}
		fmt.Fprint(w, insightsPage)
	}))
	defer server.Close()

	cfg := testConfig(t, server.URL)
	cfg.Secrets = config.SecretsConfig{Backend: config.SecretBackendGCP}

	ctx := context.Background()
	app, err := New(ctx, cfg, logger.Discard(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer app.Close()

	run, err := app.ETL.RunDaily(ctx, domain.RunOptions{DryRun: true})
	if err != nil {
		t.Fatalf("RunDaily error: %v", err)
	}
	if run.TokenState != domain.TokenOverride || run.RecordsFetched != 2 {
		t.Errorf("unexpected run %+v", run)
	}
}

func TestNewWithoutOverrideReadsSecretStore(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.Facebook.TokenOverride = ""

	ctx := context.Background()
	app, err := New(ctx, cfg, logger.Discard(), prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	defer app.Close()

	_, err = app.ETL.RunDaily(ctx, domain.RunOptions{DryRun: true})
	var storeErr *domain.CredentialStoreError
	if !errors.As(err, &storeErr) || !errors.Is(err, domain.ErrSecretNotFound) {
		t.Fatalf("expected a missing secret from the local store, got %v", err)
	}
}
