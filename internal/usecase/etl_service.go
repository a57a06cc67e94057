package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// CredentialProvider hands out a usable access token for one run.
type CredentialProvider interface {
	ValidToken(ctx context.Context) (domain.Credential, error)
}

// ETLDependencies are the collaborators an ETLService is built from.
// Exporter and Runs are optional.
type ETLDependencies struct {
	Tokens   CredentialProvider
	Fetcher  domain.InsightsFetcher
	Loader   *Loader
	Exporter domain.RowExporter
	Runs     domain.RunRepository
	Accounts []string
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

type ETLService struct {
	tokens   CredentialProvider
	fetcher  domain.InsightsFetcher
	loader   *Loader
	exporter domain.RowExporter
	runs     domain.RunRepository
	accounts []string
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	// one run at a time; run state itself is local to execute
	running sync.Mutex
}

func NewETLService(deps ETLDependencies) *ETLService {
	return &ETLService{
		tokens:   deps.Tokens,
		fetcher:  deps.Fetcher,
		loader:   deps.Loader,
		exporter: deps.Exporter,
		runs:     deps.Runs,
		accounts: deps.Accounts,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		now:      time.Now,
	}
}

type runPlan struct {
	mode       domain.RunMode
	ranges     []domain.DateRange
	startDate  string
	endDate    string
	exportName string
}

// RunDaily fetches yesterday's insights for every account and loads them.
func (s *ETLService) RunDaily(ctx context.Context, opts domain.RunOptions) (*domain.RunResult, error) {
	return s.execute(ctx, runPlan{
		mode:       domain.ModeDaily,
		ranges:     []domain.DateRange{domain.Yesterday()},
		exportName: "ads_output.csv",
	}, opts)
}

// RunBackfill re-fetches an inclusive YYYY-MM-DD range day by day.
func (s *ETLService) RunBackfill(ctx context.Context, startDate, endDate string, opts domain.RunOptions) (*domain.RunResult, error) {
	dates, err := ExpandDates(startDate, endDate)
	if err != nil {
		return nil, err
	}

	ranges := make([]domain.DateRange, 0, len(dates))
	for _, d := range dates {
		ranges = append(ranges, domain.SingleDay(d))
	}

	return s.execute(ctx, runPlan{
		mode:       domain.ModeBackfill,
		ranges:     ranges,
		startDate:  startDate,
		endDate:    endDate,
		exportName: fmt.Sprintf("backfill_%s_to_%s.csv", startDate, endDate),
	}, opts)
}

func (s *ETLService) execute(ctx context.Context, plan runPlan, opts domain.RunOptions) (*domain.RunResult, error) {
	if !s.running.TryLock() {
		return nil, domain.ErrRunInProgress
	}
	defer s.running.Unlock()

	runID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	log := s.logger.WithContext(ctx)

	result := &domain.RunResult{
		RunID:     runID,
		Mode:      plan.mode,
		StartDate: plan.startDate,
		EndDate:   plan.endDate,
		DryRun:    opts.DryRun,
		Accounts:  append([]string(nil), s.accounts...),
		StartedAt: s.now(),
	}

	s.metrics.IncETLJobsInProgress()
	defer s.metrics.DecETLJobsInProgress()
	defer s.finish(ctx, result)

	log.WithFields(map[string]any{
		"mode":     plan.mode,
		"accounts": len(s.accounts),
		"days":     len(plan.ranges),
		"dry_run":  opts.DryRun,
	}).Info("Starting pipeline run")

	cred, err := s.tokens.ValidToken(ctx)
	result.TokenState = cred.State
	if err != nil {
		return s.fail(result, fmt.Errorf("failed to resolve access token: %w", err))
	}
	log.WithFields(map[string]any{
		"token":       cred.Redacted(),
		"token_state": cred.State,
	}).Info("Resolved access token")

	raw, err := s.extract(ctx, cred, plan, result)
	if err != nil {
		return s.fail(result, err)
	}

	rows := s.transform(ctx, raw, plan, result)

	if s.exporter != nil && len(rows) > 0 {
		path, err := s.exporter.Export(ctx, plan.exportName, rows)
		if err != nil {
			log.WithError(err).Error("Failed to export rows to CSV")
		} else {
			result.CSVPath = path
			log.WithFields(map[string]any{"file": path, "rows": len(rows)}).Info("Exported rows to CSV")
		}
	}

	switch {
	case opts.DryRun:
		log.WithFields(map[string]any{
			"rows":  len(rows),
			"table": s.loader.Table(),
		}).Info("Dry run: skipping warehouse load")
	case len(rows) == 0:
		log.Info("No rows to load")
	default:
		report, err := s.loader.Load(ctx, rows)
		result.ColumnsAdded = report.ColumnsAdded
		result.RowsLoaded = report.RowsLoaded
		if err != nil {
			result.Status = domain.StatusLoadFailed
			result.Error = err.Error()
			log.WithError(err).Error("Rows were fetched and flattened but not loaded")
			return result, err
		}
	}

	result.Status = domain.StatusSuccess
	if len(result.FailedAccounts) > 0 {
		result.Status = domain.StatusPartialSuccess
	}

	return result, nil
}

// extract fetches every (date, account) pair into one run-scoped slice.
// A failed fetch is recorded and skipped; the run only fails when no
// account produced a single successful fetch.
func (s *ETLService) extract(ctx context.Context, cred domain.Credential, plan runPlan, result *domain.RunResult) ([]domain.RawRecord, error) {
	log := s.logger.WithContext(ctx)

	var all []domain.RawRecord
	succeeded := make(map[string]bool, len(s.accounts))

	for _, dates := range plan.ranges {
		for _, accountID := range s.accounts {
			entry := log.WithFields(map[string]any{
				"account_id": accountID,
				"date":       dates.String(),
			})

			records, err := s.fetcher.FetchInsights(ctx, cred.Token, accountID, dates)
			if err != nil {
				failure := domain.AccountFailure{AccountID: accountID, Date: dates.String(), Error: err.Error()}
				errorType := "transport"

				var apiErr *domain.UpstreamAPIError
				if errors.As(err, &apiErr) {
					failure.Code = apiErr.Code
					errorType = "upstream"
					if apiErr.IsTokenError() {
						errorType = "token"
						entry = entry.WithField("hint", "access token may be expired or lack access to this account")
					}
				}

				result.FailedAccounts = append(result.FailedAccounts, failure)
				s.metrics.RecordAccountFailure(accountID, errorType)
				entry.WithError(err).Error("Failed to fetch insights")
				continue
			}

			succeeded[accountID] = true
			all = append(all, records...)
			entry.WithField("records", len(records)).Info("Fetched insights")
		}
	}

	result.RecordsFetched = len(all)
	s.metrics.RecordETLRecords("fetched", len(all))

	if len(result.FailedAccounts) > 0 {
		log.WithField("failures", summarizeFailures(result.FailedAccounts)).
			Warn("Some account fetches failed")
	}

	if len(s.accounts) > 0 && len(succeeded) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrAllAccountsFailed, summarizeFailures(result.FailedAccounts))
	}

	return all, nil
}

// transform dedupes across the whole run, flattens against the run's
// action types and, for backfills, drops rows outside the requested range.
func (s *ETLService) transform(ctx context.Context, raw []domain.RawRecord, plan runPlan, result *domain.RunResult) []*domain.FlatRow {
	log := s.logger.WithContext(ctx)

	unique, removed := Deduplicate(raw)
	result.DuplicatesRemoved = removed
	s.metrics.RecordETLRecords("duplicate", removed)

	rows := FlattenAll(unique)

	if plan.mode == domain.ModeBackfill {
		var filtered int
		rows, filtered = FilterDateRange(rows, plan.startDate, plan.endDate)
		result.RowsFiltered = filtered
		s.metrics.RecordETLRecords("filtered", filtered)
	}

	result.RowsProduced = len(rows)
	s.metrics.RecordETLRecords("flattened", len(rows))

	log.WithFields(map[string]any{
		"fetched":            len(raw),
		"duplicates_removed": removed,
		"rows_filtered":      result.RowsFiltered,
		"rows":               len(rows),
	}).Info("Transformed insights")

	return rows
}

func (s *ETLService) fail(result *domain.RunResult, err error) (*domain.RunResult, error) {
	result.Status = domain.StatusFailed
	result.Error = err.Error()
	return result, err
}

func (s *ETLService) finish(ctx context.Context, result *domain.RunResult) {
	result.FinishedAt = s.now()
	s.metrics.RecordETLJob(string(result.Status), string(result.Mode), result.Duration())

	entry := s.logger.WithContext(ctx).WithFields(map[string]any{
		"status":          result.Status,
		"duration":        result.Duration(),
		"rows_produced":   result.RowsProduced,
		"rows_loaded":     result.RowsLoaded,
		"failed_accounts": len(result.FailedAccounts),
	})
	switch result.Status {
	case domain.StatusSuccess:
		entry.Info("Pipeline run completed")
	case domain.StatusPartialSuccess:
		entry.Warn("Pipeline run completed with failed accounts")
	default:
		entry.Error("Pipeline run failed")
	}

	if s.runs != nil {
		if err := s.runs.Store(ctx, *result); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to store run result")
		}
	}
}

// FilterDateRange keeps rows whose date_start lies in [start, end].
func FilterDateRange(rows []*domain.FlatRow, start, end string) ([]*domain.FlatRow, int) {
	kept := make([]*domain.FlatRow, 0, len(rows))
	for _, row := range rows {
		d := row.DateStart()
		if d != "" && d >= start && d <= end {
			kept = append(kept, row)
		}
	}
	return kept, len(rows) - len(kept)
}

// ExpandDates lists every day from start to end inclusive.
func ExpandDates(start, end string) ([]string, error) {
	from, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: expected YYYY-MM-DD", start)
	}
	to, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: expected YYYY-MM-DD", end)
	}
	if from.After(to) {
		return nil, fmt.Errorf("start date %s must not be after end date %s", start, end)
	}

	var dates []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates, nil
}

func summarizeFailures(failures []domain.AccountFailure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s@%s: %s", f.AccountID, f.Date, f.Error))
	}
	return strings.Join(parts, "; ")
}
