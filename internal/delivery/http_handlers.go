package delivery

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"adsetl/internal/domain"
	"adsetl/internal/usecase"
	"adsetl/pkg/logger"

	"github.com/gin-gonic/gin"
)

// PipelineRunner starts pipeline runs.
type PipelineRunner interface {
	RunDaily(ctx context.Context, opts domain.RunOptions) (*domain.RunResult, error)
	RunBackfill(ctx context.Context, startDate, endDate string, opts domain.RunOptions) (*domain.RunResult, error)
}

// RunHistory answers run history queries.
type RunHistory interface {
	GetRuns(ctx context.Context, filter domain.RunFilter) (*domain.RunsResponse, error)
	GetRun(ctx context.Context, runID string) (*domain.RunResult, error)
}

// handles HTTP requests
type HTTPHandlers struct {
	runner        PipelineRunner
	history       RunHistory
	defaultDryRun bool
	logger        *logger.Logger
}

// creates new HTTP handlers
func NewHTTPHandlers(runner PipelineRunner, history RunHistory, defaultDryRun bool, logger *logger.Logger) *HTTPHandlers {
	return &HTTPHandlers{
		runner:        runner,
		history:       history,
		defaultDryRun: defaultDryRun,
		logger:        logger,
	}
}

// IngestRun runs the daily pipeline for yesterday
func (h *HTTPHandlers) IngestRun(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	opts, err := h.parseRunOptions(c)
	if err != nil {
		badRequest(c, "Invalid parameters", err.Error())
		return
	}

	h.logger.WithContext(ctx).WithField("dry_run", opts.DryRun).Info("Starting daily ingestion")

	result, err := h.runner.RunDaily(ctx, opts)
	h.respondRun(c, requestID, result, err)
}

// BackfillRun re-fetches an inclusive date range
func (h *HTTPHandlers) BackfillRun(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	startDate := c.Query("start_date")
	endDate := c.Query("end_date")
	if startDate == "" || endDate == "" {
		badRequest(c, "Missing required parameter", "start_date and end_date are required (YYYY-MM-DD)")
		return
	}
	if _, err := usecase.ExpandDates(startDate, endDate); err != nil {
		badRequest(c, "Invalid date range", err.Error())
		return
	}

	opts, err := h.parseRunOptions(c)
	if err != nil {
		badRequest(c, "Invalid parameters", err.Error())
		return
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"start_date": startDate,
		"end_date":   endDate,
		"dry_run":    opts.DryRun,
	}).Info("Starting backfill")

	result, err := h.runner.RunBackfill(ctx, startDate, endDate, opts)
	h.respondRun(c, requestID, result, err)
}

// GetRuns lists recent runs, newest first
func (h *HTTPHandlers) GetRuns(c *gin.Context) {
	ctx := c.Request.Context()
	requestID := c.GetString("request_id")

	limit, offset, err := parsePagination(c)
	if err != nil {
		badRequest(c, "Invalid parameters", err.Error())
		return
	}

	response, err := h.history.GetRuns(ctx, domain.RunFilter{
		Status: domain.RunStatus(c.Query("status")),
		Mode:   domain.RunMode(c.Query("mode")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to get runs")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to retrieve runs",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       response.Data,
		"total":      response.Total,
		"limit":      response.Limit,
		"offset":     response.Offset,
		"has_more":   response.HasMore,
		"request_id": requestID,
	})
}

// GetRun returns a single run by id
func (h *HTTPHandlers) GetRun(c *gin.Context) {
	requestID := c.GetString("request_id")

	run, err := h.history.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":      "Run not found",
			"request_id": requestID,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to retrieve run",
			"message":    err.Error(),
			"request_id": requestID,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":        run,
		"request_id": requestID,
	})
}

// GetAPIInfo returns API v1 information and available endpoints
func (h *HTTPHandlers) GetAPIInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"api_version": "v1",
		"service":     "adsetl",
		"description": "Loads ad-level marketing insights into the warehouse",
		"endpoints": gin.H{
			"ingest": gin.H{
				"path":        "/api/v1/ingest/run",
				"method":      "POST",
				"description": "Fetch yesterday's insights for every account and load them",
				"parameters": gin.H{
					"dry_run": "Optional: fetch and flatten without loading (true/false)",
				},
			},
			"backfill": gin.H{
				"path":        "/api/v1/backfill/run",
				"method":      "POST",
				"description": "Re-fetch an inclusive date range day by day",
				"parameters": gin.H{
					"start_date": "Required: first day (YYYY-MM-DD)",
					"end_date":   "Required: last day (YYYY-MM-DD)",
					"dry_run":    "Optional: fetch and flatten without loading (true/false)",
				},
				"example": "/api/v1/backfill/run?start_date=2025-12-01&end_date=2025-12-07",
			},
			"runs": gin.H{
				"path":        "/api/v1/runs",
				"method":      "GET",
				"description": "Recent run results, newest first",
				"parameters": gin.H{
					"status": "Optional: success, partial_success, load_failed or failed",
					"mode":   "Optional: daily, backfill or csv_load",
					"limit":  "Optional: number of results (default: 20)",
					"offset": "Optional: pagination offset (default: 0)",
				},
			},
		},
		"request_id": c.GetString("request_id"),
	})
}

// HealthCheck returns the health status of the service
func (h *HTTPHandlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"service":    "adsetl",
		"request_id": c.GetString("request_id"),
	})
}

func (h *HTTPHandlers) respondRun(c *gin.Context, requestID string, result *domain.RunResult, err error) {
	log := h.logger.WithContext(c.Request.Context())

	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{
			"error":      "Run in progress",
			"message":    err.Error(),
			"request_id": requestID,
		})
	case err != nil:
		log.WithError(err).Error("Pipeline run failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Pipeline run failed",
			"message":    err.Error(),
			"run":        result,
			"request_id": requestID,
		})
	default:
		c.JSON(http.StatusOK, gin.H{
			"message":    "Pipeline run completed",
			"run":        result,
			"request_id": requestID,
		})
	}
}

func (h *HTTPHandlers) parseRunOptions(c *gin.Context) (domain.RunOptions, error) {
	opts := domain.RunOptions{DryRun: h.defaultDryRun}
	if v := c.Query("dry_run"); v != "" {
		dryRun, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("dry_run must be true or false")
		}
		opts.DryRun = dryRun
	}
	return opts, nil
}

// parsePagination parses limit and offset query parameters
func parsePagination(c *gin.Context) (limit, offset int, err error) {
	if s := c.Query("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 0 {
			return 0, 0, errors.New("limit must be a non-negative integer")
		}
	}
	if s := c.Query("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func badRequest(c *gin.Context, title, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":      title,
		"message":    message,
		"request_id": c.GetString("request_id"),
	})
}
