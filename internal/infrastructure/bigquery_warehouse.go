package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

// TableID is a fully qualified BigQuery table.
type TableID struct {
	Project string
	Dataset string
	Table   string
}

// ParseTableID accepts project.dataset.table or dataset.table; the latter
// resolves against defaultProject.
func ParseTableID(id, defaultProject string) (TableID, error) {
	parts := strings.Split(strings.TrimSpace(id), ".")
	for _, p := range parts {
		if p == "" {
			return TableID{}, fmt.Errorf("invalid table id %q", id)
		}
	}

	switch len(parts) {
	case 3:
		return TableID{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
	case 2:
		if defaultProject == "" {
			return TableID{}, fmt.Errorf("table id %q has no project and none is configured", id)
		}
		return TableID{Project: defaultProject, Dataset: parts[0], Table: parts[1]}, nil
	default:
		return TableID{}, fmt.Errorf("invalid table id %q: expected dataset.table or project.dataset.table", id)
	}
}

func (t TableID) String() string {
	return t.Project + "." + t.Dataset + "." + t.Table
}

// BigQueryWarehouse implements domain.Warehouse on BigQuery streaming inserts.
type BigQueryWarehouse struct {
	client  *bigquery.Client
	project string
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewBigQueryWarehouse(ctx context.Context, project string, logger *logger.Logger, metrics *metrics.Metrics) (*BigQueryWarehouse, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("failed to create bigquery client: %w", err)
	}
	return &BigQueryWarehouse{
		client:  client,
		project: project,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (w *BigQueryWarehouse) Close() error {
	return w.client.Close()
}

func (w *BigQueryWarehouse) table(name string) (*bigquery.Table, error) {
	id, err := ParseTableID(name, w.project)
	if err != nil {
		return nil, err
	}
	return w.client.DatasetInProject(id.Project, id.Dataset).Table(id.Table), nil
}

func (w *BigQueryWarehouse) TableColumns(ctx context.Context, table string) ([]string, error) {
	tbl, err := w.table(table)
	if err != nil {
		return nil, err
	}

	md, err := tbl.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get table metadata: %w", err)
	}

	cols := make([]string, 0, len(md.Schema))
	for _, field := range md.Schema {
		cols = append(cols, field.Name)
	}
	return cols, nil
}

// AddColumns appends NULLABLE fields. The update is conditional on the
// metadata ETag so a concurrent schema change fails instead of being lost.
func (w *BigQueryWarehouse) AddColumns(ctx context.Context, table string, columns []domain.ColumnSpec) error {
	if len(columns) == 0 {
		return nil
	}

	tbl, err := w.table(table)
	if err != nil {
		return err
	}

	md, err := tbl.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("failed to get table metadata: %w", err)
	}

	schema := append(bigquery.Schema(nil), md.Schema...)
	schema = append(schema, fieldSchemas(columns)...)

	if _, err := tbl.Update(ctx, bigquery.TableMetadataToUpdate{Schema: schema}, md.ETag); err != nil {
		return fmt.Errorf("failed to update table schema: %w", err)
	}
	return nil
}

// Insert streams all rows in one request.
func (w *BigQueryWarehouse) Insert(ctx context.Context, table string, rows []*domain.FlatRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tbl, err := w.table(table)
	if err != nil {
		return 0, err
	}

	savers := make([]bigquery.ValueSaver, 0, len(rows))
	for _, row := range rows {
		savers = append(savers, newRowSaver(row))
	}

	if err := tbl.Inserter().Put(ctx, savers); err != nil {
		var multi bigquery.PutMultiError
		if errors.As(err, &multi) {
			w.logger.WithContext(ctx).WithFields(map[string]any{
				"table":         table,
				"rejected_rows": len(multi),
			}).Error("BigQuery rejected rows")
			return 0, &domain.LoadError{Table: table, Err: fmt.Errorf("%d row(s) rejected: %w", len(multi), firstRowError(multi))}
		}
		return 0, &domain.LoadError{Table: table, Err: err}
	}

	return len(rows), nil
}

func fieldSchemas(columns []domain.ColumnSpec) bigquery.Schema {
	fields := make(bigquery.Schema, 0, len(columns))
	for _, col := range columns {
		fieldType := bigquery.FloatFieldType
		if col.Type == domain.ColumnString {
			fieldType = bigquery.StringFieldType
		}
		fields = append(fields, &bigquery.FieldSchema{
			Name:     col.Name,
			Type:     fieldType,
			Required: false,
		})
	}
	return fields
}

func firstRowError(multi bigquery.PutMultiError) error {
	for _, rowErr := range multi {
		if len(rowErr.Errors) > 0 {
			return fmt.Errorf("row %d: %w", rowErr.RowIndex, rowErr.Errors[0])
		}
	}
	return errors.New("unknown insert error")
}

// rowSaver adapts a FlatRow to bigquery.ValueSaver.
type rowSaver struct {
	row      *domain.FlatRow
	insertID string
}

func newRowSaver(row *domain.FlatRow) *rowSaver {
	return &rowSaver{row: row, insertID: uuid.New().String()}
}

func (s *rowSaver) Save() (map[string]bigquery.Value, string, error) {
	values := make(map[string]bigquery.Value, s.row.Len())
	for col, v := range s.row.Map() {
		values[col] = v
	}
	return values, s.insertID, nil
}
