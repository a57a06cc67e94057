package infrastructure

import (
	"context"
	"sort"
	"sync"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
)

const (
	defaultRunLimit = 20
	maxStoredRuns   = 500
)

// RunRepository keeps recent run results in memory.
// It implements domain.RunRepository.
type RunRepository struct {
	runs   []domain.RunResult
	byID   map[string]int
	mutex  sync.RWMutex
	logger *logger.Logger
}

func NewRunRepository(logger *logger.Logger) *RunRepository {
	return &RunRepository{
		byID:   make(map[string]int),
		logger: logger,
	}
}

// Store records a finished run, evicting the oldest beyond maxStoredRuns.
func (r *RunRepository) Store(ctx context.Context, result domain.RunResult) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if idx, exists := r.byID[result.RunID]; exists {
		r.runs[idx] = result
	} else {
		r.runs = append(r.runs, result)
	}

	if len(r.runs) > maxStoredRuns {
		r.runs = append([]domain.RunResult(nil), r.runs[len(r.runs)-maxStoredRuns:]...)
	}
	r.reindex()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id": result.RunID,
		"status": result.Status,
		"stored": len(r.runs),
	}).Debug("Stored run result")

	return nil
}

func (r *RunRepository) GetByID(_ context.Context, runID string) (*domain.RunResult, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	idx, exists := r.byID[runID]
	if !exists {
		return nil, domain.ErrRunNotFound
	}
	run := r.runs[idx]
	return &run, nil
}

// GetByFilter returns matching runs, newest first, paginated.
func (r *RunRepository) GetByFilter(ctx context.Context, filter domain.RunFilter) (*domain.RunsResponse, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var filtered []domain.RunResult
	for _, run := range r.runs {
		if matchesFilter(run, filter) {
			filtered = append(filtered, run)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	// Apply pagination
	limit := defaultRunLimit
	offset := 0

	if filter.Limit > 0 {
		limit = filter.Limit
	}
	if filter.Offset > 0 {
		offset = filter.Offset
	}

	total := len(filtered)
	start := min(offset, total)
	end := min(offset+limit, total)

	page := []domain.RunResult{}
	if start < end {
		page = filtered[start:end]
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"total":  total,
		"limit":  limit,
		"offset": offset,
	}).Debug("Returning run history")

	return &domain.RunsResponse{
		Data:    page,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: end < total,
	}, nil
}

func (r *RunRepository) reindex() {
	r.byID = make(map[string]int, len(r.runs))
	for i, run := range r.runs {
		r.byID[run.RunID] = i
	}
}

func matchesFilter(run domain.RunResult, filter domain.RunFilter) bool {
	if filter.Status != "" && run.Status != filter.Status {
		return false
	}
	if filter.Mode != "" && run.Mode != filter.Mode {
		return false
	}
	return true
}
