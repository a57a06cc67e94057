package domain

import "time"

// TokenState is where the token lifecycle ended up for a run.
type TokenState string

const (
	TokenNoCredential   TokenState = "no_credential"
	TokenValidLongLived TokenState = "valid_long_lived"
	TokenValidExpiring  TokenState = "valid_expiring"
	TokenRefreshed      TokenState = "refreshed"
	TokenExpired        TokenState = "expired"
	TokenInvalid        TokenState = "invalid"
	TokenOverride       TokenState = "override"
)

// AppCredentials identify the app that owns the marketing token.
type AppCredentials struct {
	ID     string
	Secret string
}

// AccessToken is the app token used for introspection calls.
func (a AppCredentials) AccessToken() string {
	return a.ID + "|" + a.Secret
}

// TokenInfo is the introspection result for a token.
// ExpiresAt is a unix timestamp; 0 means the token never expires.
type TokenInfo struct {
	Valid     bool
	ExpiresAt int64
	Scopes    []string
	AppID     string
	UserID    string
	Type      string
	Error     string
}

func (t TokenInfo) NeverExpires() bool {
	return t.ExpiresAt == 0
}

func (t TokenInfo) Expiry() time.Time {
	return time.Unix(t.ExpiresAt, 0)
}

// ExchangedToken is the result of a long-lived token refresh.
type ExchangedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenMetadata is stored next to a refreshed token for operators.
type TokenMetadata struct {
	RefreshedAt    string `json:"refreshed_at"`
	ExpiresAt      int64  `json:"expires_at"`
	ExpiresAtHuman string `json:"expires_at_human"`
}

// Credential is the bearer token handed to the insights fetcher.
// It is never mutated; a refresh produces a new value.
type Credential struct {
	Token     string
	State     TokenState
	ExpiresAt time.Time
	Scopes    []string
	Refreshed bool
}

// Redacted is safe to log.
func (c Credential) Redacted() string {
	if len(c.Token) <= 8 {
		return "****"
	}
	return c.Token[:4] + "****" + c.Token[len(c.Token)-4:]
}
