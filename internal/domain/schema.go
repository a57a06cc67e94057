package domain

// ColumnType is the warehouse type proposed for a new column.
type ColumnType string

const (
	ColumnString ColumnType = "STRING"
	ColumnFloat  ColumnType = "FLOAT"
)

// ColumnSpec describes one column to append to the target table.
// New columns are always NULLABLE.
type ColumnSpec struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// SchemaChange is the append-only migration for one load.
type SchemaChange struct {
	Table string       `json:"table"`
	ToAdd []ColumnSpec `json:"to_add"`
}

func (c SchemaChange) Empty() bool {
	return len(c.ToAdd) == 0
}

func (c SchemaChange) Names() []string {
	names := make([]string, len(c.ToAdd))
	for i, col := range c.ToAdd {
		names[i] = col.Name
	}
	return names
}
