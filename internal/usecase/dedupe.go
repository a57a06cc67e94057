package usecase

import (
	"strings"

	"adsetl/internal/domain"
)

// keyDelimiter never appears in campaign, ad, date or platform names.
const keyDelimiter = "\x1f"

// nil text fields render distinctly from empty strings
const nullKeyPart = "\x00"

// DedupeKey is campaign_name|ad_name|date_start|publisher_platform.
func DedupeKey(rec domain.RawRecord) string {
	return strings.Join([]string{
		keyPart(rec.CampaignName),
		keyPart(rec.AdName),
		keyPart(rec.DateStart),
		keyPart(rec.PublisherPlatform),
	}, keyDelimiter)
}

// Deduplicate keeps the first record seen for every key, preserving order,
// and reports how many later records were dropped. Later duplicates are
// discarded even when their metrics differ.
func Deduplicate(records []domain.RawRecord) ([]domain.RawRecord, int) {
	seen := make(map[string]struct{}, len(records))
	unique := make([]domain.RawRecord, 0, len(records))

	for _, rec := range records {
		key := DedupeKey(rec)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, rec)
	}

	return unique, len(records) - len(unique)
}

func keyPart(s *string) string {
	if s == nil {
		return nullKeyPart
	}
	return *s
}
