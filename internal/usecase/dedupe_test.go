package usecase

import (
	"testing"

	"adsetl/internal/domain"
)

func insight(campaign, ad, date, platform string, impressions string) domain.RawRecord {
	return domain.RawRecord{
		CampaignName:      strPtr(campaign),
		AdName:            strPtr(ad),
		DateStart:         strPtr(date),
		DateStop:          strPtr(date),
		PublisherPlatform: strPtr(platform),
		Metrics: map[string]domain.MetricValue{
			domain.ColImpressions: domain.ScalarMetric(impressions),
		},
	}
}

func TestDeduplicateKeepsFirstOccurrence(t *testing.T) {
	r1 := insight("C", "A", "2025-12-01", "facebook", "100")
	r2 := insight("C", "A", "2025-12-01", "facebook", "999")

	unique, removed := Deduplicate([]domain.RawRecord{r1, r2})
	if removed != 1 {
		t.Fatalf("expected 1 duplicate removed, got %d", removed)
	}
	if len(unique) != 1 {
		t.Fatalf("expected 1 record, got %d", len(unique))
	}
	if got := unique[0].Metric(domain.ColImpressions).Int(); got != 100 {
		t.Errorf("expected first record kept (impressions 100), got %d", got)
	}
}

func TestDeduplicatePreservesOrder(t *testing.T) {
	records := []domain.RawRecord{
		insight("C", "A", "2025-12-01", "facebook", "1"),
		insight("C", "B", "2025-12-01", "facebook", "2"),
		insight("C", "A", "2025-12-01", "facebook", "3"),
		insight("C", "A", "2025-12-01", "instagram", "4"),
		insight("C", "A", "2025-12-02", "facebook", "5"),
		insight("C", "B", "2025-12-01", "facebook", "6"),
	}

	unique, removed := Deduplicate(records)
	if len(unique)+removed != len(records) {
		t.Fatalf("expected kept+removed == %d, got %d+%d", len(records), len(unique), removed)
	}

	want := []int64{1, 2, 4, 5}
	if len(unique) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(unique))
	}
	for i, w := range want {
		if got := unique[i].Metric(domain.ColImpressions).Int(); got != w {
			t.Errorf("position %d: expected impressions %d, got %d", i, w, got)
		}
	}
}

func TestDedupeKeyDistinguishesNullFromEmpty(t *testing.T) {
	withNull := insight("C", "A", "2025-12-01", "", "1")
	withNull.PublisherPlatform = nil
	withEmpty := insight("C", "A", "2025-12-01", "", "1")

	if DedupeKey(withNull) == DedupeKey(withEmpty) {
		t.Errorf("missing platform and empty platform must produce different keys")
	}

	unique, removed := Deduplicate([]domain.RawRecord{withNull, withNull, withEmpty})
	if len(unique) != 2 || removed != 1 {
		t.Errorf("expected 2 kept and 1 removed, got %d kept and %d removed", len(unique), removed)
	}
}

func TestDedupeKeyNoDelimiterCollisions(t *testing.T) {
	a := insight("C|A", "B", "2025-12-01", "facebook", "1")
	b := insight("C", "A|B", "2025-12-01", "facebook", "1")

	if DedupeKey(a) == DedupeKey(b) {
		t.Errorf("expected names containing '|' to produce distinct keys")
	}
}

func TestDeduplicateEmpty(t *testing.T) {
	unique, removed := Deduplicate(nil)
	if len(unique) != 0 || removed != 0 {
		t.Errorf("expected empty result, got %d records and %d removed", len(unique), removed)
	}
}
