package infrastructure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
)

func sampleRows() []*domain.FlatRow {
	order := []string{domain.ColCampaignName, domain.ColAdName, domain.ColPublisherPlatform, domain.ColImpressions, domain.ColSpend, domain.ColDateStart, "link_click"}
	return []*domain.FlatRow{
		flatRow(map[string]any{
			domain.ColCampaignName:      "Winter, Sale",
			domain.ColAdName:            "A",
			domain.ColPublisherPlatform: "facebook",
			domain.ColImpressions:       int64(1200),
			domain.ColSpend:             56.78,
			domain.ColDateStart:         "2025-12-01",
			"link_click":                int64(3),
		}, order...),
		flatRow(map[string]any{
			domain.ColCampaignName: "Winter, Sale",
			domain.ColAdName:       "B",
			domain.ColImpressions:  int64(5),
			domain.ColSpend:        float64(2),
			domain.ColDateStart:    "2025-12-01",
			"link_click":           int64(0),
		}, order...),
	}
}

func TestCSVStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewCSVStore(filepath.Join(t.TempDir(), "out"), logger.Discard())

	path, err := store.Export(ctx, "ads_output.csv", sampleRows())
	if err != nil {
		t.Fatalf("Export error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "campaign_name,ad_name,publisher_platform,impressions,spend,date_start,link_click" {
		t.Errorf("unexpected header %s", lines[0])
	}
	if lines[1] != `"Winter, Sale",A,facebook,1200,56.78,2025-12-01,3` {
		t.Errorf("unexpected first line %s", lines[1])
	}

	rows, err := store.Read(ctx, path)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	checks := []struct {
		row  int
		col  string
		want any
	}{
		{0, domain.ColCampaignName, "Winter, Sale"},
		{0, domain.ColImpressions, int64(1200)},
		{0, domain.ColSpend, 56.78},
		{0, "link_click", int64(3)},
		{1, domain.ColPublisherPlatform, nil},
		{1, domain.ColSpend, float64(2)},
	}
	for _, c := range checks {
		if got, _ := rows[c.row].Get(c.col); got != c.want {
			t.Errorf("row %d column %s = %#v, want %#v", c.row, c.col, got, c.want)
		}
	}
}

func TestCSVStoreRejectsMixedColumns(t *testing.T) {
	rows := sampleRows()
	rows[1].Set("extra", int64(1))

	_, err := NewCSVStore(t.TempDir(), logger.Discard()).Export(context.Background(), "x.csv", rows)
	if err == nil {
		t.Fatalf("expected error for rows with different columns")
	}
}

func TestReadRowsEmpty(t *testing.T) {
	rows, err := readRows(strings.NewReader(""))
	if err != nil || len(rows) != 0 {
		t.Errorf("expected no rows and no error, got %d rows (%v)", len(rows), err)
	}
}

func TestReadRowsMalformed(t *testing.T) {
	_, err := readRows(strings.NewReader("a,b\n1,2,3\n"))
	if err == nil {
		t.Fatalf("expected error for a wrong field count")
	}
}

func TestLatestBackfillFile(t *testing.T) {
	dir := t.TempDir()

	if _, err := LatestBackfillFile(dir); !errors.Is(err, ErrNoBackfillFile) {
		t.Fatalf("expected ErrNoBackfillFile, got %v", err)
	}

	for _, name := range []string{
		"backfill_2025-11-01_to_2025-11-30.csv",
		"backfill_2025-12-01_to_2025-12-07.csv",
		"ads_output.csv",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("a\n"), 0o644); err != nil {
			t.Fatalf("write error: %v", err)
		}
	}

	got, err := LatestBackfillFile(dir)
	if err != nil {
		t.Fatalf("LatestBackfillFile error: %v", err)
	}
	if filepath.Base(got) != "backfill_2025-12-01_to_2025-12-07.csv" {
		t.Errorf("unexpected latest file %s", got)
	}
}
