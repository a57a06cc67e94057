package domain

import (
	"context"
)

// fetches insight records for one ad account
type InsightsFetcher interface {
	FetchInsights(ctx context.Context, token, accountID string, dates DateRange) ([]RawRecord, error)
}

// the upstream authority that introspects and exchanges tokens
type TokenAuthority interface {
	InspectToken(ctx context.Context, token string, app AppCredentials) (TokenInfo, error)
	ExchangeToken(ctx context.Context, token string, app AppCredentials) (ExchangedToken, error)
}

// key-value credential storage; Get returns ErrSecretNotFound for unknown keys
type SecretStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// the analytical table rows are appended to
type Warehouse interface {
	TableColumns(ctx context.Context, table string) ([]string, error)
	AddColumns(ctx context.Context, table string, columns []ColumnSpec) error
	Insert(ctx context.Context, table string, rows []*FlatRow) (int, error)
}

// writes rows to a tabular file and returns its path
type RowExporter interface {
	Export(ctx context.Context, name string, rows []*FlatRow) (string, error)
}

// reads previously exported rows back
type RowReader interface {
	Read(ctx context.Context, path string) ([]*FlatRow, error)
}

// interface for run history operations
type RunRepository interface {
	Store(ctx context.Context, result RunResult) error
	GetByID(ctx context.Context, runID string) (*RunResult, error)
	GetByFilter(ctx context.Context, filter RunFilter) (*RunsResponse, error)
}
