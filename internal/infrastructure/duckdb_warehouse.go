package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	"github.com/marcboeker/go-duckdb/v2"
)

// DuckDBWarehouse implements domain.Warehouse on a local DuckDB file.
// It mirrors the BigQuery behavior for local runs and tests.
type DuckDBWarehouse struct {
	db      *sql.DB
	mu      sync.Mutex
	logger  *logger.Logger
	metrics *metrics.Metrics
}

// NewDuckDBWarehouse opens (or creates) the database at path.
// An empty path keeps everything in memory.
func NewDuckDBWarehouse(path string, logger *logger.Logger, metrics *metrics.Metrics) (*DuckDBWarehouse, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?access_mode=read_write"
	}

	connector, err := duckdb.NewConnector(dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	return &DuckDBWarehouse{
		db:      sql.OpenDB(connector),
		logger:  logger,
		metrics: metrics,
	}, nil
}

func (w *DuckDBWarehouse) Close() error {
	return w.db.Close()
}

func (w *DuckDBWarehouse) TableColumns(ctx context.Context, table string) ([]string, error) {
	schema, name := duckTableRef(table)

	rows, err := w.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = ? AND table_name = ?
		 ORDER BY ordinal_position`, schema, name)
	if err != nil {
		return nil, fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// AddColumns creates the table on first use and appends missing columns.
func (w *DuckDBWarehouse) AddColumns(ctx context.Context, table string, columns []domain.ColumnSpec) error {
	if len(columns) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements(table, columns) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply %q: %w", stmt, err)
		}
	}

	return tx.Commit()
}

// Insert writes every row in one transaction.
func (w *DuckDBWarehouse) Insert(ctx context.Context, table string, rows []*domain.FlatRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	columns := rows[0].Columns()
	for i, row := range rows[1:] {
		if !rows[0].SameColumns(row) {
			return 0, &domain.LoadError{Table: table, Err: fmt.Errorf("row %d has a different column set", i+1)}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &domain.LoadError{Table: table, Err: err}
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertQuery(table, columns))
	if err != nil {
		return 0, &domain.LoadError{Table: table, Err: err}
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for i, row := range rows {
		for j, col := range columns {
			args[j], _ = row.Get(col)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, &domain.LoadError{Table: table, Err: fmt.Errorf("row %d: %w", i, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &domain.LoadError{Table: table, Err: err}
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"table": table,
		"rows":  len(rows),
	}).Debug("Inserted rows into DuckDB")

	return len(rows), nil
}

// duckTableRef maps dataset.table (or project.dataset.table) onto a
// DuckDB schema and table; a bare name lives in main.
func duckTableRef(table string) (string, string) {
	parts := strings.Split(table, ".")
	if len(parts) == 1 {
		return "main", parts[0]
	}
	return parts[len(parts)-2], parts[len(parts)-1]
}

func qualifiedName(table string) string {
	schema, name := duckTableRef(table)
	return quoteIdentifier(schema) + "." + quoteIdentifier(name)
}

func quoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func duckType(t domain.ColumnType) string {
	if t == domain.ColumnString {
		return "VARCHAR"
	}
	return "DOUBLE"
}

func schemaStatements(table string, columns []domain.ColumnSpec) []string {
	schema, _ := duckTableRef(table)
	target := qualifiedName(table)

	stmts := []string{
		"CREATE SCHEMA IF NOT EXISTS " + quoteIdentifier(schema),
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s %s)", target, quoteIdentifier(columns[0].Name), duckType(columns[0].Type)),
	}
	for _, col := range columns {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", target, quoteIdentifier(col.Name), duckType(col.Type)))
	}
	return stmts
}

func insertQuery(table string, columns []string) string {
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdentifier(col)
		placeholders[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedName(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
}
