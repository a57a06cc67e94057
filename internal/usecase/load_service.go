package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	"github.com/google/uuid"
)

// LoadReport summarizes one batch load.
type LoadReport struct {
	ColumnsAdded []string
	RowsLoaded   int
}

// Loader reconciles the target schema and appends one batch of rows.
type Loader struct {
	warehouse domain.Warehouse
	table     string
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewLoader(warehouse domain.Warehouse, table string, logger *logger.Logger, metrics *metrics.Metrics) *Loader {
	return &Loader{
		warehouse: warehouse,
		table:     table,
		logger:    logger,
		metrics:   metrics,
	}
}

func (l *Loader) Table() string {
	return l.table
}

// Load adds missing columns (only when there are any) and inserts rows as
// a single all-or-nothing batch.
func (l *Loader) Load(ctx context.Context, rows []*domain.FlatRow) (LoadReport, error) {
	var report LoadReport
	if len(rows) == 0 {
		return report, nil
	}

	log := l.logger.WithContext(ctx).WithField("table", l.table)

	existing, err := l.warehouse.TableColumns(ctx, l.table)
	if err != nil {
		l.metrics.RecordWarehouseLoad(l.table, "schema_error")
		return report, &domain.SchemaReconcileError{Table: l.table, Err: err}
	}

	change := ReconcileSchema(l.table, existing, rows)
	if !change.Empty() {
		if err := l.warehouse.AddColumns(ctx, l.table, change.ToAdd); err != nil {
			l.metrics.RecordWarehouseLoad(l.table, "schema_error")
			return report, &domain.SchemaReconcileError{Table: l.table, Err: err}
		}
		report.ColumnsAdded = change.Names()
		l.metrics.RecordSchemaColumnsAdded(l.table, len(change.ToAdd))
		log.WithField("columns", report.ColumnsAdded).Info("Added new columns to table")
	}

	inserted, err := l.warehouse.Insert(ctx, l.table, rows)
	if err != nil {
		l.metrics.RecordWarehouseLoad(l.table, "failed")
		var loadErr *domain.LoadError
		if errors.As(err, &loadErr) {
			return report, err
		}
		return report, &domain.LoadError{Table: l.table, Err: err}
	}

	report.RowsLoaded = inserted
	l.metrics.RecordWarehouseLoad(l.table, "success")
	l.metrics.RecordETLRecords("loaded", inserted)
	log.WithField("rows", inserted).Info("Inserted rows into table")

	return report, nil
}

// LoadService loads a previously exported CSV file into the warehouse.
type LoadService struct {
	reader domain.RowReader
	loader *Loader
	runs   domain.RunRepository
	logger *logger.Logger
}

func NewLoadService(reader domain.RowReader, loader *Loader, runs domain.RunRepository, logger *logger.Logger) *LoadService {
	return &LoadService{
		reader: reader,
		loader: loader,
		runs:   runs,
		logger: logger,
	}
}

// LoadCSV appends every row of the file to the target table.
func (s *LoadService) LoadCSV(ctx context.Context, path string) (*domain.RunResult, error) {
	runID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"file":  path,
		"table": s.loader.Table(),
	})

	result := &domain.RunResult{
		RunID:     runID,
		Mode:      domain.ModeCSVLoad,
		CSVPath:   path,
		StartedAt: time.Now(),
	}
	defer func() {
		result.FinishedAt = time.Now()
		if s.runs != nil {
			_ = s.runs.Store(ctx, *result)
		}
	}()

	log.Info("Loading CSV into warehouse")

	rows, err := s.reader.Read(ctx, path)
	if err != nil {
		result.Status = domain.StatusFailed
		result.Error = err.Error()
		return result, fmt.Errorf("failed to read %s: %w", path, err)
	}
	result.RowsProduced = len(rows)

	if len(rows) == 0 {
		result.Status = domain.StatusSuccess
		log.Warn("CSV file has no rows")
		return result, nil
	}

	report, err := s.loader.Load(ctx, rows)
	result.ColumnsAdded = report.ColumnsAdded
	if err != nil {
		result.Status = domain.StatusLoadFailed
		result.Error = err.Error()
		return result, err
	}

	result.RowsLoaded = report.RowsLoaded
	result.Status = domain.StatusSuccess
	log.WithField("rows", report.RowsLoaded).Info("CSV load completed")

	return result, nil
}
