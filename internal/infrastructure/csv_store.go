package infrastructure

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
)

var ErrNoBackfillFile = errors.New("no backfill_*.csv file found")

// CSVStore writes flattened rows to CSV files and reads them back.
// It implements domain.RowExporter and domain.RowReader.
type CSVStore struct {
	dir    string
	logger *logger.Logger
}

func NewCSVStore(dir string, logger *logger.Logger) *CSVStore {
	return &CSVStore{dir: dir, logger: logger}
}

// Export writes rows to name inside the store directory. The header is the
// first row's column order; every row must carry the same columns.
func (s *CSVStore) Export(ctx context.Context, name string, rows []*domain.FlatRow) (string, error) {
	if len(rows) == 0 {
		return "", errors.New("no rows to export")
	}

	header := rows[0].Columns()
	for i, row := range rows[1:] {
		if !rows[0].SameColumns(row) {
			return "", fmt.Errorf("row %d has a different column set", i+1)
		}
	}

	if s.dir != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := writeRows(f, header, rows); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"file":    path,
		"rows":    len(rows),
		"columns": len(header),
	}).Debug("Wrote CSV file")

	return path, nil
}

func writeRows(w io.Writer, header []string, rows []*domain.FlatRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			v, _ := row.Get(col)
			record[i] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Read parses a CSV written by Export. Text columns come back as strings,
// numeric columns as int64 or float64; empty cells are NULL.
func (s *CSVStore) Read(_ context.Context, path string) ([]*domain.FlatRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return readRows(f)
}

func readRows(r io.Reader) ([]*domain.FlatRow, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []*domain.FlatRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := domain.NewFlatRow(len(header))
		for i, col := range header {
			row.Set(col, parseCell(col, record[i]))
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func parseCell(column, cell string) any {
	if cell == "" {
		return nil
	}
	if domain.TextColumns[column] {
		return cell
	}
	if !domain.IsFloatColumn(column) {
		if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return i
		}
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}

// LatestBackfillFile returns the newest backfill_*.csv in dir by name,
// which sorts by start date.
func LatestBackfillFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "backfill_*.csv"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", ErrNoBackfillFile
	}
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches[0], nil
}
