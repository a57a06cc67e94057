package domain

import (
	"encoding/json"
	"testing"
)

func TestMetricValueUnmarshal(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantKind  MetricKind
		wantInt   int64
		wantFloat float64
	}{
		{name: "quoted int", payload: `"42"`, wantKind: MetricScalar, wantInt: 42, wantFloat: 42},
		{name: "bare float", payload: `3.5`, wantKind: MetricScalar, wantInt: 3, wantFloat: 3.5},
		{name: "wrapped", payload: `[{"action_type": "video_view", "value": "17"}]`, wantKind: MetricWrapped, wantInt: 17, wantFloat: 17},
		{name: "wrapped numeric value", payload: `[{"value": 2.25}]`, wantKind: MetricWrapped, wantInt: 2, wantFloat: 2.25},
		{name: "empty list", payload: `[]`, wantKind: MetricWrapped},
		{name: "null", payload: `null`, wantKind: MetricAbsent},
		{name: "object", payload: `{"value": "1"}`, wantKind: MetricAbsent},
		{name: "malformed list", payload: `[1, 2]`, wantKind: MetricAbsent},
		{name: "text", payload: `"abc"`, wantKind: MetricScalar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mv MetricValue
			if err := json.Unmarshal([]byte(tt.payload), &mv); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if mv.Kind != tt.wantKind {
				t.Errorf("expected kind %d, got %d", tt.wantKind, mv.Kind)
			}
			if got := mv.Int(); got != tt.wantInt {
				t.Errorf("Int() = %d, want %d", got, tt.wantInt)
			}
			if got := mv.Float(); got != tt.wantFloat {
				t.Errorf("Float() = %v, want %v", got, tt.wantFloat)
			}
		})
	}
}

func TestRawRecordUnmarshal(t *testing.T) {
	payload := `{
		"campaign_name": "Winter Sale",
		"ad_name": null,
		"date_start": "2025-12-01",
		"impressions": "1200",
		"spend": "1.5",
		"video_p50_watched_actions": [{"action_type": "video_view", "value": "9"}],
		"actions": [{"action_type": "link_click", "value": "4"}],
		"results": [{"indicator": "reach"}]
	}`

	var rec RawRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if rec.CampaignName == nil || *rec.CampaignName != "Winter Sale" {
		t.Errorf("unexpected campaign name %v", rec.CampaignName)
	}
	if rec.AdName != nil {
		t.Errorf("expected nil ad name, got %q", *rec.AdName)
	}
	if rec.PublisherPlatform != nil {
		t.Errorf("expected nil platform for an omitted field")
	}
	if got := rec.Metric(ColImpressions).Int(); got != 1200 {
		t.Errorf("expected impressions 1200, got %d", got)
	}
	if got := rec.Metric(ColVideoP50).Int(); got != 9 {
		t.Errorf("expected video p50 9, got %d", got)
	}
	if got := rec.Metric(ColClicks).Kind; got != MetricAbsent {
		t.Errorf("expected absent clicks, got kind %d", got)
	}
	if len(rec.Actions) != 1 || rec.Actions[0].ActionType != "link_click" || rec.Actions[0].Value.Int() != 4 {
		t.Errorf("unexpected actions %+v", rec.Actions)
	}
	if len(rec.Results) == 0 {
		t.Errorf("expected results to be kept verbatim")
	}
}

func TestActionTypeSetColumns(t *testing.T) {
	set := ActionTypeSet{}
	for _, at := range []string{"onsite_conversion.lead", "link_click", "onsite_conversion_lead", "app.install.x"} {
		set.Add(at)
	}

	got := set.Columns()
	want := []string{"app_install_x", "link_click", "onsite_conversion_lead"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestFlatRowInsertionOrder(t *testing.T) {
	row := NewFlatRow(3)
	row.Set("b", int64(1))
	row.Set("a", "x")
	row.Set("b", int64(2))

	cols := row.Columns()
	if len(cols) != 2 || cols[0] != "b" || cols[1] != "a" {
		t.Errorf("expected [b a], got %v", cols)
	}
	if v, _ := row.Get("b"); v != int64(2) {
		t.Errorf("expected overwrite to keep position and update value, got %v", v)
	}

	cols[0] = "mutated"
	if row.Columns()[0] != "b" {
		t.Errorf("Columns must return a copy")
	}
}

func TestUpstreamAPIErrorIsTokenError(t *testing.T) {
	tests := []struct {
		err  UpstreamAPIError
		want bool
	}{
		{UpstreamAPIError{Code: CodeInvalidToken}, true},
		{UpstreamAPIError{Code: CodeAccessDeclined}, true},
		{UpstreamAPIError{Code: 100, HTTPStatus: 401}, true},
		{UpstreamAPIError{Code: 100, HTTPStatus: 400}, false},
	}
	for _, tt := range tests {
		if got := tt.err.IsTokenError(); got != tt.want {
			t.Errorf("IsTokenError(%+v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRawRecordSkipsMalformedActions(t *testing.T) {
	payload := `{
		"ad_name": "A",
		"actions": [
			{"action_type": "link_click", "value": "4"},
			{"action_type": 17, "value": "9"},
			"oops",
			{"value": "2"},
			{"action_type": "landing_page_view", "value": [{"value": "6"}]}
		]
	}`

	var rec RawRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if len(rec.Actions) != 2 {
		t.Fatalf("expected the 2 well-formed actions, got %+v", rec.Actions)
	}
	if rec.Actions[0].ActionType != "link_click" || rec.Actions[0].Value.Int() != 4 {
		t.Errorf("unexpected first action %+v", rec.Actions[0])
	}
	if rec.Actions[1].ActionType != "landing_page_view" || rec.Actions[1].Value.Int() != 6 {
		t.Errorf("unexpected second action %+v", rec.Actions[1])
	}
}

func TestMetricValueNonFinite(t *testing.T) {
	for _, payload := range []string{`"NaN"`, `"+Inf"`, `"-Infinity"`, `[{"value": "nan"}]`} {
		var mv MetricValue
		if err := json.Unmarshal([]byte(payload), &mv); err != nil {
			t.Fatalf("unmarshal %s error: %v", payload, err)
		}
		if mv.Int() != 0 || mv.Float() != 0 {
			t.Errorf("%s: expected 0, got int=%d float=%v", payload, mv.Int(), mv.Float())
		}
	}
}

func TestCredentialRedacted(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{token: "EAABsbCS1234abcd", want: "EAAB****abcd"},
		{token: "short", want: "****"},
		{token: "", want: "****"},
	}
	for _, tt := range tests {
		if got := (Credential{Token: tt.token}).Redacted(); got != tt.want {
			t.Errorf("Redacted(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}
