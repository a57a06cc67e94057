package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"adsetl/internal/domain"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"
)

// DefaultRefreshThresholdDays is how close to expiry a refresh is attempted.
// The upstream authority rejects exchanges for tokens that are too young.
const DefaultRefreshThresholdDays = 7

// TokenSecretKeys names the secret store entries the token lifecycle uses.
type TokenSecretKeys struct {
	Token     string
	Metadata  string
	AppID     string
	AppSecret string
}

// TokenService resolves a usable access token once per run.
type TokenService struct {
	store         domain.SecretStore
	authority     domain.TokenAuthority
	keys          TokenSecretKeys
	override      string
	thresholdDays int
	now           func() time.Time
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewTokenService(
	store domain.SecretStore,
	authority domain.TokenAuthority,
	keys TokenSecretKeys,
	override string,
	thresholdDays int,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *TokenService {
	if thresholdDays <= 0 {
		thresholdDays = DefaultRefreshThresholdDays
	}
	return &TokenService{
		store:         store,
		authority:     authority,
		keys:          keys,
		override:      override,
		thresholdDays: thresholdDays,
		now:           time.Now,
		logger:        logger,
		metrics:       metrics,
	}
}

// WithClock replaces the time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// ValidToken walks the token lifecycle: override, load, introspect,
// then pass through, refresh, or fail.
func (s *TokenService) ValidToken(ctx context.Context) (domain.Credential, error) {
	log := s.logger.WithContext(ctx)

	if s.override != "" {
		log.Info("Using access token override from environment")
		s.metrics.RecordTokenState(string(domain.TokenOverride))
		return domain.Credential{Token: s.override, State: domain.TokenOverride}, nil
	}

	app, current, err := s.loadCredentials(ctx)
	if err != nil {
		s.metrics.RecordTokenState(string(domain.TokenNoCredential))
		return domain.Credential{State: domain.TokenNoCredential}, err
	}

	info, err := s.authority.InspectToken(ctx, current, app)
	if err != nil {
		s.metrics.RecordTokenState(string(domain.TokenInvalid))
		return domain.Credential{State: domain.TokenInvalid}, &domain.TokenInvalidError{Reason: "token introspection failed", Err: err}
	}
	if !info.Valid {
		reason := info.Error
		if reason == "" {
			reason = "token reported invalid"
		}
		s.metrics.RecordTokenState(string(domain.TokenInvalid))
		return domain.Credential{State: domain.TokenInvalid}, &domain.TokenInvalidError{Reason: reason}
	}

	if info.NeverExpires() {
		log.Info("Access token never expires")
		s.metrics.RecordTokenState(string(domain.TokenValidLongLived))
		return domain.Credential{Token: current, State: domain.TokenValidLongLived, Scopes: info.Scopes}, nil
	}

	now := s.now()
	expiry := info.Expiry()
	days := daysUntil(expiry, now)
	currentCred := domain.Credential{Token: current, State: domain.TokenValidExpiring, ExpiresAt: expiry, Scopes: info.Scopes}

	log.WithFields(map[string]any{
		"expires_at":     expiry.UTC().Format(time.RFC3339),
		"days_remaining": days,
	}).Info("Access token expiry checked")

	if days > s.thresholdDays {
		s.metrics.RecordTokenState(string(domain.TokenValidExpiring))
		return currentCred, nil
	}

	log.WithField("threshold_days", s.thresholdDays).Warn("Access token expiring soon, attempting refresh")

	refreshed, refreshErr := s.refresh(ctx, current, app, now)
	if refreshErr == nil {
		s.metrics.RecordTokenRefresh("success")
		s.metrics.RecordTokenState(string(domain.TokenRefreshed))
		log.WithFields(map[string]any{
			"new_expires_at": refreshed.ExpiresAt.UTC().Format(time.RFC3339),
			"days_remaining": daysUntil(refreshed.ExpiresAt, now),
		}).Info("Access token refreshed")
		return refreshed, nil
	}

	if days > 0 {
		s.metrics.RecordTokenRefresh("fallback")
		s.metrics.RecordTokenState(string(domain.TokenValidExpiring))
		log.WithError(refreshErr).WithField("days_remaining", days).
			Warn("Token refresh failed, continuing with current token")
		return currentCred, nil
	}

	s.metrics.RecordTokenRefresh("failed")
	s.metrics.RecordTokenState(string(domain.TokenExpired))
	return domain.Credential{State: domain.TokenExpired, ExpiresAt: expiry},
		&domain.TokenInvalidError{Reason: "refresh failed and current token is expired", Err: refreshErr}
}

func (s *TokenService) loadCredentials(ctx context.Context) (domain.AppCredentials, string, error) {
	var app domain.AppCredentials
	var err error

	if app.ID, err = s.get(ctx, s.keys.AppID); err != nil {
		return app, "", err
	}
	if app.Secret, err = s.get(ctx, s.keys.AppSecret); err != nil {
		return app, "", err
	}

	token, err := s.get(ctx, s.keys.Token)
	if err != nil {
		return app, "", err
	}
	return app, token, nil
}

func (s *TokenService) get(ctx context.Context, key string) (string, error) {
	value, err := s.store.Get(ctx, key)
	if err != nil {
		return "", &domain.CredentialStoreError{Key: key, Err: err}
	}
	if value == "" {
		return "", &domain.CredentialStoreError{Key: key, Err: domain.ErrSecretNotFound}
	}
	return value, nil
}

// refresh exchanges, validates and persists a new token.
// The token itself must be stored; the metadata write is best-effort.
func (s *TokenService) refresh(ctx context.Context, current string, app domain.AppCredentials, now time.Time) (domain.Credential, error) {
	exchanged, err := s.authority.ExchangeToken(ctx, current, app)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("token exchange failed: %w", err)
	}
	if exchanged.Token == "" {
		return domain.Credential{}, errors.New("token exchange returned an empty token")
	}

	info, err := s.authority.InspectToken(ctx, exchanged.Token, app)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("failed to validate refreshed token: %w", err)
	}
	if !info.Valid {
		return domain.Credential{}, errors.New("refreshed token is not valid")
	}

	if err := s.store.Set(ctx, s.keys.Token, exchanged.Token); err != nil {
		return domain.Credential{}, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	expiresAt := exchanged.ExpiresAt
	if !info.NeverExpires() {
		expiresAt = info.Expiry()
	}

	s.storeMetadata(ctx, now, exchanged.ExpiresAt)

	return domain.Credential{
		Token:     exchanged.Token,
		State:     domain.TokenRefreshed,
		ExpiresAt: expiresAt,
		Scopes:    info.Scopes,
		Refreshed: true,
	}, nil
}

func (s *TokenService) storeMetadata(ctx context.Context, now, expiresAt time.Time) {
	if s.keys.Metadata == "" {
		return
	}

	payload, err := json.Marshal(domain.TokenMetadata{
		RefreshedAt:    now.Format(time.RFC3339),
		ExpiresAt:      expiresAt.Unix(),
		ExpiresAtHuman: expiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	if err := s.store.Set(ctx, s.keys.Metadata, string(payload)); err != nil {
		s.logger.WithContext(ctx).WithError(err).Debug("Failed to store token metadata")
	}
}

// daysUntil counts whole days, flooring partial days toward the past.
func daysUntil(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}
