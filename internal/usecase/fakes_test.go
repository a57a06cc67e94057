package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"
)

func testDeps() (*logger.Logger, *metrics.Metrics) {
	return logger.Discard(), metrics.NewUnregistered()
}

func testLogger() *logger.Logger {
	return logger.Discard()
}

func decodeRecords(t *testing.T, payload string) []domain.RawRecord {
	t.Helper()
	var records []domain.RawRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	return records
}

func strPtr(s string) *string { return &s }

type memorySecretStore struct {
	mu      sync.Mutex
	values  map[string]string
	setErrs map[string]error
	sets    []string
}

func newMemorySecretStore(values map[string]string) *memorySecretStore {
	return &memorySecretStore{values: values, setErrs: map[string]error{}}
}

func (s *memorySecretStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", domain.ErrSecretNotFound
	}
	return v, nil
}

func (s *memorySecretStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = append(s.sets, key)
	if err := s.setErrs[key]; err != nil {
		return err
	}
	s.values[key] = value
	return nil
}

type fakeAuthority struct {
	infos         map[string]domain.TokenInfo
	inspectErr    error
	exchanged     domain.ExchangedToken
	exchangeErr   error
	inspectCalls  int
	exchangeCalls int
}

func (a *fakeAuthority) InspectToken(_ context.Context, token string, _ domain.AppCredentials) (domain.TokenInfo, error) {
	a.inspectCalls++
	if a.inspectErr != nil {
		return domain.TokenInfo{}, a.inspectErr
	}
	info, ok := a.infos[token]
	if !ok {
		return domain.TokenInfo{Valid: false, Error: "unknown token"}, nil
	}
	return info, nil
}

func (a *fakeAuthority) ExchangeToken(_ context.Context, _ string, _ domain.AppCredentials) (domain.ExchangedToken, error) {
	a.exchangeCalls++
	if a.exchangeErr != nil {
		return domain.ExchangedToken{}, a.exchangeErr
	}
	return a.exchanged, nil
}

type staticTokens struct {
	cred domain.Credential
	err  error
}

func (s staticTokens) ValidToken(context.Context) (domain.Credential, error) {
	return s.cred, s.err
}

type fetchCall struct {
	token     string
	accountID string
	dates     domain.DateRange
}

// fakeFetcher answers by account id, optionally per date.
type fakeFetcher struct {
	byAccount map[string][]domain.RawRecord
	byDay     map[string]map[string][]domain.RawRecord
	errs      map[string]error
	calls     []fetchCall
}

func (f *fakeFetcher) FetchInsights(_ context.Context, token, accountID string, dates domain.DateRange) ([]domain.RawRecord, error) {
	f.calls = append(f.calls, fetchCall{token: token, accountID: accountID, dates: dates})
	if err := f.errs[accountID]; err != nil {
		return nil, err
	}
	if days, ok := f.byDay[accountID]; ok {
		return days[dates.Since], nil
	}
	return f.byAccount[accountID], nil
}

type fakeWarehouse struct {
	columns        []string
	columnsErr     error
	addErr         error
	insertErr      error
	addCalls       [][]domain.ColumnSpec
	insertedTables []string
	inserted       []*domain.FlatRow
}

func (w *fakeWarehouse) TableColumns(context.Context, string) ([]string, error) {
	return w.columns, w.columnsErr
}

func (w *fakeWarehouse) AddColumns(_ context.Context, _ string, cols []domain.ColumnSpec) error {
	w.addCalls = append(w.addCalls, cols)
	if w.addErr != nil {
		return w.addErr
	}
	for _, c := range cols {
		w.columns = append(w.columns, c.Name)
	}
	return nil
}

func (w *fakeWarehouse) Insert(_ context.Context, table string, rows []*domain.FlatRow) (int, error) {
	if w.insertErr != nil {
		return 0, w.insertErr
	}
	w.insertedTables = append(w.insertedTables, table)
	w.inserted = append(w.inserted, rows...)
	return len(rows), nil
}

type fakeExporter struct {
	name string
	rows []*domain.FlatRow
	err  error
}

func (e *fakeExporter) Export(_ context.Context, name string, rows []*domain.FlatRow) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.name = name
	e.rows = rows
	return "/tmp/" + name, nil
}

type fakeRunRepository struct {
	stored []domain.RunResult
}

func (r *fakeRunRepository) Store(_ context.Context, result domain.RunResult) error {
	r.stored = append(r.stored, result)
	return nil
}

func (r *fakeRunRepository) GetByID(_ context.Context, id string) (*domain.RunResult, error) {
	for i := range r.stored {
		if r.stored[i].RunID == id {
			return &r.stored[i], nil
		}
	}
	return nil, domain.ErrRunNotFound
}

func (r *fakeRunRepository) GetByFilter(context.Context, domain.RunFilter) (*domain.RunsResponse, error) {
	return &domain.RunsResponse{Data: r.stored, Total: len(r.stored)}, nil
}

var errBoom = errors.New("boom")
