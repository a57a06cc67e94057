package usecase

import (
	"context"
	"fmt"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
)

// HistoryService answers queries about past pipeline runs
type HistoryService struct {
	runs   domain.RunRepository
	logger *logger.Logger
}

// NewHistoryService creates a new history service
func NewHistoryService(runs domain.RunRepository, logger *logger.Logger) *HistoryService {
	return &HistoryService{
		runs:   runs,
		logger: logger,
	}
}

// GetRuns retrieves runs matching the filter, newest first
func (s *HistoryService) GetRuns(ctx context.Context, filter domain.RunFilter) (*domain.RunsResponse, error) {
	log := s.logger.WithContext(ctx)
	log.WithFields(map[string]interface{}{
		"status": filter.Status,
		"mode":   filter.Mode,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	}).Debug("Getting runs by filter")

	response, err := s.runs.GetByFilter(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to get runs")
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}

	return response, nil
}

// GetRun retrieves a single run by id
func (s *HistoryService) GetRun(ctx context.Context, runID string) (*domain.RunResult, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", runID, err)
	}
	return run, nil
}
