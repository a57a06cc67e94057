package domain

import "time"

type RunMode string

const (
	ModeDaily    RunMode = "daily"
	ModeBackfill RunMode = "backfill"
	ModeCSVLoad  RunMode = "csv_load"
)

type RunStatus string

const (
	StatusSuccess        RunStatus = "success"
	StatusPartialSuccess RunStatus = "partial_success"
	StatusLoadFailed     RunStatus = "load_failed"
	StatusFailed         RunStatus = "failed"
)

// AccountFailure records one failed fetch for one account and range.
type AccountFailure struct {
	AccountID string `json:"account_id"`
	Date      string `json:"date"`
	Code      int    `json:"code,omitempty"`
	Error     string `json:"error"`
}

// RunOptions tweak a single run.
type RunOptions struct {
	DryRun bool
}

// RunResult is the explicit outcome of one pipeline run.
type RunResult struct {
	RunID      string     `json:"run_id"`
	Mode       RunMode    `json:"mode"`
	Status     RunStatus  `json:"status"`
	StartDate  string     `json:"start_date,omitempty"`
	EndDate    string     `json:"end_date,omitempty"`
	DryRun     bool       `json:"dry_run"`
	TokenState TokenState `json:"token_state,omitempty"`

	Accounts       []string         `json:"accounts"`
	FailedAccounts []AccountFailure `json:"failed_accounts,omitempty"`

	RecordsFetched    int      `json:"records_fetched"`
	DuplicatesRemoved int      `json:"duplicates_removed"`
	RowsFiltered      int      `json:"rows_filtered"`
	RowsProduced      int      `json:"rows_produced"`
	RowsLoaded        int      `json:"rows_loaded"`
	ColumnsAdded      []string `json:"columns_added,omitempty"`
	CSVPath           string   `json:"csv_path,omitempty"`

	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunFilter selects stored run results.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Mode   RunMode   `json:"mode,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// RunsResponse is the API response for run history queries.
type RunsResponse struct {
	Data    []RunResult `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}
