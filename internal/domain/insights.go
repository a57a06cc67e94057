package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// MetricKind tags how a metric field was represented upstream.
type MetricKind int

const (
	MetricAbsent MetricKind = iota
	MetricScalar
	MetricWrapped
)

// MetricValue is a numeric insight field decoded at the boundary.
// The API reports the same metric either as a bare value ("123", 4.5)
// or wrapped in a list of {action_type, value} objects.
type MetricValue struct {
	Kind    MetricKind
	scalar  string
	wrapped []string
}

func ScalarMetric(v string) MetricValue {
	return MetricValue{Kind: MetricScalar, scalar: v}
}

func (m *MetricValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*m = MetricValue{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '[':
		var entries []map[string]json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			// malformed lists degrade to an absent metric
			return nil
		}
		m.Kind = MetricWrapped
		m.wrapped = make([]string, 0, len(entries))
		for _, entry := range entries {
			m.wrapped = append(m.wrapped, rawText(entry["value"]))
		}
	case '{':
		return nil
	default:
		m.Kind = MetricScalar
		m.scalar = rawText(data)
	}

	return nil
}

// text returns the textual value used for casting.
// Wrapped lists use their first element; an empty list has none.
func (m MetricValue) text() (string, bool) {
	switch m.Kind {
	case MetricScalar:
		return m.scalar, true
	case MetricWrapped:
		if len(m.wrapped) == 0 {
			return "", false
		}
		return m.wrapped[0], true
	}
	return "", false
}

// Int casts the metric to an integer; anything unparseable is 0.
func (m MetricValue) Int() int64 {
	s, ok := m.text()
	if !ok || s == "" {
		return 0
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	f := parseFinite(s)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0
	}
	return int64(f)
}

// Float casts the metric to a float; anything unparseable is 0.
func (m MetricValue) Float() float64 {
	s, ok := m.text()
	if !ok || s == "" {
		return 0
	}
	return parseFinite(s)
}

// parseFinite rejects NaN and the infinities along with unparseable text.
func parseFinite(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	}
	return string(raw)
}

// Action is one entry of an insight's "actions" list.
type Action struct {
	ActionType string      `json:"action_type"`
	Value      MetricValue `json:"value"`
}

// RawRecord is one insight row as returned by the insights endpoint.
// Text fields are nil when the API omitted them or sent null.
type RawRecord struct {
	CampaignName      *string
	AdName            *string
	PublisherPlatform *string
	DateStart         *string
	DateStop          *string
	Actions           []Action
	Results           json.RawMessage

	// Metrics holds every other field keyed by its API name
	// (impressions, clicks, spend, video_*_watched_actions, ...).
	Metrics map[string]MetricValue
}

func (r *RawRecord) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*r = RawRecord{Metrics: make(map[string]MetricValue)}

	for key, raw := range fields {
		switch key {
		case ColCampaignName:
			r.CampaignName = textField(raw)
		case ColAdName:
			r.AdName = textField(raw)
		case ColPublisherPlatform:
			r.PublisherPlatform = textField(raw)
		case ColDateStart:
			r.DateStart = textField(raw)
		case ColDateStop:
			r.DateStop = textField(raw)
		case "actions":
			r.Actions = decodeActions(raw)
		case "results":
			r.Results = append(json.RawMessage(nil), raw...)
		default:
			var mv MetricValue
			if err := json.Unmarshal(raw, &mv); err == nil && mv.Kind != MetricAbsent {
				r.Metrics[key] = mv
			}
		}
	}

	return nil
}

// decodeActions skips malformed entries instead of dropping the list.
func decodeActions(raw json.RawMessage) []Action {
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil
	}

	actions := make([]Action, 0, len(entries))
	for _, entry := range entries {
		var action Action
		if err := json.Unmarshal(entry, &action); err != nil || action.ActionType == "" {
			continue
		}
		actions = append(actions, action)
	}
	return actions
}

// Metric returns the named metric, or an absent value.
func (r RawRecord) Metric(key string) MetricValue {
	if r.Metrics == nil {
		return MetricValue{}
	}
	return r.Metrics[key]
}

func textField(raw json.RawMessage) *string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	s := rawText(raw)
	return &s
}

// DateRange selects which days the insights endpoint reports.
// Preset wins over Since/Until when set.
type DateRange struct {
	Preset string
	Since  string
	Until  string
}

// Yesterday is the daily run's range.
func Yesterday() DateRange {
	return DateRange{Preset: "yesterday"}
}

// SingleDay covers exactly one YYYY-MM-DD date.
func SingleDay(date string) DateRange {
	return DateRange{Since: date, Until: date}
}

func (d DateRange) String() string {
	if d.Preset != "" {
		return d.Preset
	}
	if d.Since == d.Until {
		return d.Since
	}
	return d.Since + ".." + d.Until
}
