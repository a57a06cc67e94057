package usecase

import (
	"sort"

	"adsetl/internal/domain"
)

// ReconcileSchema computes the columns the target table lacks before rows
// can be inserted: missing static columns plus any other column the rows
// carry. Text columns are STRING; everything else, integer action counts
// included, is FLOAT. The change only ever adds columns.
func ReconcileSchema(table string, existing []string, rows []*domain.FlatRow) domain.SchemaChange {
	known := make(map[string]struct{}, len(existing))
	for _, col := range existing {
		known[col] = struct{}{}
	}

	missing := make(map[string]struct{})
	for _, col := range domain.StaticColumns {
		if _, ok := known[col]; !ok {
			missing[col] = struct{}{}
		}
	}
	for _, row := range rows {
		for _, col := range row.Columns() {
			if _, ok := known[col]; !ok {
				missing[col] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(missing))
	for col := range missing {
		names = append(names, col)
	}
	sort.Strings(names)

	change := domain.SchemaChange{Table: table, ToAdd: make([]domain.ColumnSpec, 0, len(names))}
	for _, name := range names {
		change.ToAdd = append(change.ToAdd, domain.ColumnSpec{Name: name, Type: ColumnTypeFor(name)})
	}
	return change
}

// ColumnTypeFor is the warehouse type of a newly added column.
func ColumnTypeFor(name string) domain.ColumnType {
	if domain.TextColumns[name] {
		return domain.ColumnString
	}
	return domain.ColumnFloat
}
