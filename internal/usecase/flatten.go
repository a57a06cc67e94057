package usecase

import (
	"adsetl/internal/domain"
)

// ExtractMetric reads one numeric field from a raw record.
// Missing fields, empty wrapped lists and unparseable values all yield zero;
// the result is float64 when asFloat is set, int64 otherwise.
func ExtractMetric(rec domain.RawRecord, key string, asFloat bool) any {
	mv := rec.Metric(key)
	if asFloat {
		return mv.Float()
	}
	return mv.Int()
}

// CollectActionTypes returns the union of action types across records.
func CollectActionTypes(records []domain.RawRecord) domain.ActionTypeSet {
	set := make(domain.ActionTypeSet)
	for _, rec := range records {
		for _, act := range rec.Actions {
			if act.ActionType != "" {
				set.Add(act.ActionType)
			}
		}
	}
	return set
}

// FlattenRecord produces one row carrying every static column plus one
// zero-initialized column per action type in the set. Action values are
// written in list order, so a repeated action type keeps its last value.
// Actions outside the set are ignored so every row of a run shares one
// column set.
func FlattenRecord(rec domain.RawRecord, actionTypes domain.ActionTypeSet) *domain.FlatRow {
	actionCols := actionTypes.Columns()
	row := domain.NewFlatRow(len(domain.StaticColumns) + len(actionCols))

	row.Set(domain.ColCampaignName, textValue(rec.CampaignName))
	row.Set(domain.ColAdName, textValue(rec.AdName))
	row.Set(domain.ColPublisherPlatform, textValue(rec.PublisherPlatform))
	row.Set(domain.ColImpressions, rec.Metric(domain.ColImpressions).Int())
	row.Set(domain.ColClicks, rec.Metric(domain.ColClicks).Int())
	row.Set(domain.ColSpend, rec.Metric(domain.ColSpend).Float())
	row.Set(domain.ColDateStart, textValue(rec.DateStart))
	row.Set(domain.ColDateStop, textValue(rec.DateStop))

	for _, col := range domain.VideoColumns {
		row.Set(col, ExtractMetric(rec, col, domain.IsFloatColumn(col)))
	}

	for _, col := range actionCols {
		if !row.Has(col) {
			row.Set(col, int64(0))
		}
	}

	for _, act := range rec.Actions {
		if !actionTypes.Contains(act.ActionType) {
			continue
		}
		row.Set(domain.ActionColumn(act.ActionType), act.Value.Int())
	}

	return row
}

// FlattenAll flattens records against the action types they carry.
func FlattenAll(records []domain.RawRecord) []*domain.FlatRow {
	actionTypes := CollectActionTypes(records)
	rows := make([]*domain.FlatRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, FlattenRecord(rec, actionTypes))
	}
	return rows
}

func textValue(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
