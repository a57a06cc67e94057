package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// defaultTokenLifetime applies when the exchange response omits expires_in.
const defaultTokenLifetime = 60 * 24 * time.Hour

var insightFields = []string{
	domain.ColCampaignName,
	domain.ColAdName,
	domain.ColImpressions,
	domain.ColClicks,
	domain.ColSpend,
	domain.ColVideoContinuous2Sec,
	domain.ColVideo30Sec,
	domain.ColVideoAvgTime,
	domain.ColVideoP25,
	domain.ColVideoP50,
	domain.ColVideoP75,
	domain.ColVideoP100,
	"actions",
	"results",
	domain.ColDateStart,
	domain.ColDateStop,
}

type GraphClientConfig struct {
	BaseURL            string
	RequestTimeout     time.Duration
	TokenTimeout       time.Duration
	MaxRetries         int
	RateLimitPerSecond int
}

// GraphClient talks to the marketing Graph API.
// It implements domain.InsightsFetcher and domain.TokenAuthority.
type GraphClient struct {
	client         *http.Client
	baseURL        string
	requestTimeout time.Duration
	tokenTimeout   time.Duration
	maxRetries     int
	logger         *logger.Logger
	metrics        *metrics.Metrics
	rateLimiter    *rate.Limiter
	now            func() time.Time
}

func NewGraphClient(cfg GraphClientConfig, logger *logger.Logger, metrics *metrics.Metrics) *GraphClient {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimitPerSecond > 0 {
		limit = rate.Limit(cfg.RateLimitPerSecond)
		burst = cfg.RateLimitPerSecond
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	return &GraphClient{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		requestTimeout: cfg.RequestTimeout,
		tokenTimeout:   cfg.TokenTimeout,
		maxRetries:     maxRetries,
		logger:         logger,
		metrics:        metrics,
		rateLimiter:    rate.NewLimiter(limit, burst),
		now:            time.Now,
	}
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type insightsPage struct {
	Data   []domain.RawRecord `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

type debugTokenResponse struct {
	Data struct {
		IsValid   bool     `json:"is_valid"`
		ExpiresAt int64    `json:"expires_at"`
		Scopes    []string `json:"scopes"`
		AppID     string   `json:"app_id"`
		UserID    string   `json:"user_id"`
		Type      string   `json:"type"`
		Error     *struct {
			Message string `json:"message"`
			Code    int    `json:"code"`
		} `json:"error"`
	} `json:"data"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// FetchInsights returns every ad-level insight row for the account and
// range, broken down by publisher platform, following paging links.
func (c *GraphClient) FetchInsights(ctx context.Context, token, accountID string, dates domain.DateRange) ([]domain.RawRecord, error) {
	start := time.Now()

	params := url.Values{}
	params.Set("access_token", token)
	params.Set("fields", strings.Join(insightFields, ","))
	params.Set("level", "ad")
	params.Set("breakdowns", `["publisher_platform"]`)
	params.Set("time_increment", "1")
	if dates.Preset != "" {
		params.Set("date_preset", dates.Preset)
	} else {
		params.Set("time_range", fmt.Sprintf(`{"since":%q,"until":%q}`, dates.Since, dates.Until))
	}

	next := fmt.Sprintf("%s/%s/insights?%s", c.baseURL, accountPath(accountID), params.Encode())

	var records []domain.RawRecord
	pages := 0
	for next != "" {
		var page insightsPage
		if err := c.getJSON(ctx, "insights", next, c.requestTimeout, &page); err != nil {
			return nil, err
		}
		pages++
		if len(page.Data) == 0 {
			break
		}
		records = append(records, page.Data...)
		next = page.Paging.Next
	}

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"account_id": accountID,
		"date":       dates.String(),
		"pages":      pages,
		"records":    len(records),
		"duration":   time.Since(start),
	}).Debug("Fetched insights")

	return records, nil
}

// InspectToken calls debug_token with the app access token.
func (c *GraphClient) InspectToken(ctx context.Context, token string, app domain.AppCredentials) (domain.TokenInfo, error) {
	params := url.Values{}
	params.Set("input_token", token)
	params.Set("access_token", app.AccessToken())

	var resp debugTokenResponse
	if err := c.getJSON(ctx, "debug_token", c.baseURL+"/debug_token?"+params.Encode(), c.tokenTimeout, &resp); err != nil {
		return domain.TokenInfo{}, err
	}

	info := domain.TokenInfo{
		Valid:     resp.Data.IsValid,
		ExpiresAt: resp.Data.ExpiresAt,
		Scopes:    resp.Data.Scopes,
		AppID:     resp.Data.AppID,
		UserID:    resp.Data.UserID,
		Type:      resp.Data.Type,
	}
	if resp.Data.Error != nil {
		info.Error = resp.Data.Error.Message
	}
	return info, nil
}

// ExchangeToken trades a long-lived token for a fresh one.
func (c *GraphClient) ExchangeToken(ctx context.Context, token string, app domain.AppCredentials) (domain.ExchangedToken, error) {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", app.ID)
	params.Set("client_secret", app.Secret)
	params.Set("fb_exchange_token", token)

	var resp exchangeResponse
	if err := c.getJSON(ctx, "exchange_token", c.baseURL+"/oauth/access_token?"+params.Encode(), c.requestTimeout, &resp); err != nil {
		return domain.ExchangedToken{}, err
	}
	if resp.AccessToken == "" {
		return domain.ExchangedToken{}, errors.New("exchange response did not include an access token")
	}

	lifetime := defaultTokenLifetime
	if resp.ExpiresIn > 0 {
		lifetime = time.Duration(resp.ExpiresIn) * time.Second
	}

	return domain.ExchangedToken{
		Token:     resp.AccessToken,
		ExpiresAt: c.now().Add(lifetime),
	}, nil
}

// getJSON performs a rate-limited GET and decodes the body into out.
// Transport failures and bare 5xx responses are retried immediately up to
// maxRetries attempts; API error bodies are returned at once.
func (c *GraphClient) getJSON(ctx context.Context, api, rawURL string, timeout time.Duration, out any) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		// Apply rate limiting
		if err := c.rateLimiter.Wait(ctx); err != nil {
			c.metrics.RecordExternalAPIFailure(api, "rate_limit")
			return fmt.Errorf("rate limit wait: %w", err)
		}

		retryable, err := c.get(ctx, api, rawURL, timeout, out)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}

		lastErr = err
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"api":     api,
			"attempt": attempt,
			"max":     c.maxRetries,
		}).WithError(err).Warn("Request failed, retrying")
	}

	c.metrics.RecordExternalAPIFailure(api, "transport")
	return &domain.TransportError{Op: api, Attempts: c.maxRetries, Err: lastErr}
}

func (c *GraphClient) get(ctx context.Context, api, rawURL string, timeout time.Duration, out any) (bool, error) {
	start := time.Now()

	reqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(api, "request_creation")
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(api, "network_error")
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, redactURL(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(api, "read_body")
		return true, fmt.Errorf("failed to read response body: %w", err)
	}

	duration := time.Since(start)

	var envelope struct {
		Error *graphError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil {
		c.metrics.RecordExternalAPICall(api, "error_"+strconv.Itoa(envelope.Error.Code), duration)
		return false, &domain.UpstreamAPIError{
			Code:       envelope.Error.Code,
			Type:       envelope.Error.Type,
			Message:    envelope.Error.Message,
			HTTPStatus: resp.StatusCode,
		}
	}

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		c.metrics.RecordExternalAPICall(api, fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return true, fmt.Errorf("%s returned status %d", api, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordExternalAPICall(api, fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return false, &domain.UpstreamAPIError{
			Message:    http.StatusText(resp.StatusCode),
			HTTPStatus: resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordExternalAPIFailure(api, "json_parse")
		return false, fmt.Errorf("failed to parse %s response: %w", api, err)
	}

	c.metrics.RecordExternalAPICall(api, "success", duration)
	return false, nil
}

// redactURL drops the request URL, which carries the access token.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s request failed: %w", urlErr.Op, urlErr.Err)
	}
	return err
}

func accountPath(accountID string) string {
	if strings.HasPrefix(accountID, "act_") {
		return accountID
	}
	return "act_" + accountID
}
