package domain

import (
	"sort"
	"strings"
)

// Static column names carried by every flattened row.
const (
	ColCampaignName      = "campaign_name"
	ColAdName            = "ad_name"
	ColPublisherPlatform = "publisher_platform"
	ColDateStart         = "date_start"
	ColDateStop          = "date_stop"
	ColImpressions       = "impressions"
	ColClicks            = "clicks"
	ColSpend             = "spend"

	ColVideoContinuous2Sec = "video_continuous_2_sec_watched_actions"
	ColVideo30Sec          = "video_30_sec_watched_actions"
	ColVideoAvgTime        = "video_avg_time_watched_actions"
	ColVideoP25            = "video_p25_watched_actions"
	ColVideoP50            = "video_p50_watched_actions"
	ColVideoP75            = "video_p75_watched_actions"
	ColVideoP100           = "video_p100_watched_actions"
)

// StaticColumns in the order they appear in a flattened row.
var StaticColumns = []string{
	ColCampaignName,
	ColAdName,
	ColPublisherPlatform,
	ColImpressions,
	ColClicks,
	ColSpend,
	ColDateStart,
	ColDateStop,
	ColVideoContinuous2Sec,
	ColVideo30Sec,
	ColVideoAvgTime,
	ColVideoP25,
	ColVideoP50,
	ColVideoP75,
	ColVideoP100,
}

// VideoColumns are extracted through the metric extractor.
var VideoColumns = []string{
	ColVideoContinuous2Sec,
	ColVideo30Sec,
	ColVideoAvgTime,
	ColVideoP25,
	ColVideoP50,
	ColVideoP75,
	ColVideoP100,
}

// TextColumns are the only columns typed STRING in the warehouse.
var TextColumns = map[string]bool{
	ColAdName:            true,
	ColCampaignName:      true,
	ColPublisherPlatform: true,
	ColDateStart:         true,
	ColDateStop:          true,
}

// IsFloatColumn reports whether a static column holds a float.
func IsFloatColumn(name string) bool {
	return name == ColSpend || name == ColVideoAvgTime
}

// ActionColumn turns an action type into a column identifier.
func ActionColumn(actionType string) string {
	return strings.ReplaceAll(actionType, ".", "_")
}

// ActionTypeSet is the union of action types seen during one run.
type ActionTypeSet map[string]struct{}

func (s ActionTypeSet) Add(actionType string) {
	s[actionType] = struct{}{}
}

func (s ActionTypeSet) Contains(actionType string) bool {
	_, ok := s[actionType]
	return ok
}

// Columns returns the distinct normalized column names, sorted.
func (s ActionTypeSet) Columns() []string {
	seen := make(map[string]struct{}, len(s))
	cols := make([]string, 0, len(s))
	for at := range s {
		col := ActionColumn(at)
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return cols
}

// FlatRow is an insertion-ordered column -> scalar mapping.
// Values are string, int64, float64 or nil (NULL).
type FlatRow struct {
	columns []string
	values  map[string]any
}

func NewFlatRow(capacity int) *FlatRow {
	return &FlatRow{
		columns: make([]string, 0, capacity),
		values:  make(map[string]any, capacity),
	}
}

// Set assigns a value, appending the column on first use.
func (r *FlatRow) Set(column string, value any) {
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = value
}

func (r *FlatRow) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

func (r *FlatRow) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

func (r *FlatRow) Len() int {
	return len(r.columns)
}

// Columns returns a copy of the column names in insertion order.
func (r *FlatRow) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Map returns a copy of the row's values.
func (r *FlatRow) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// SameColumns reports whether both rows carry the identical column set.
func (r *FlatRow) SameColumns(other *FlatRow) bool {
	if len(r.values) != len(other.values) {
		return false
	}
	for col := range r.values {
		if _, ok := other.values[col]; !ok {
			return false
		}
	}
	return true
}

// DateStart returns the row's date_start as text, empty when NULL.
func (r *FlatRow) DateStart() string {
	if v, ok := r.values[ColDateStart].(string); ok {
		return v
	}
	return ""
}
