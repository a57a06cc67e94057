package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSecretNotFound    = errors.New("secret not found")
	ErrAllAccountsFailed = errors.New("all accounts failed")
	ErrRunInProgress     = errors.New("a pipeline run is already in progress")
	ErrRunNotFound       = errors.New("run not found")
)

// Upstream error codes that point at the access token itself.
const (
	CodeInvalidToken   = 190
	CodeAccessDeclined = 104
)

// TransportError is a transient network failure that survived every retry.
type TransportError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UpstreamAPIError is a semantic rejection from the marketing API.
// It is never retried.
type UpstreamAPIError struct {
	Code       int
	Type       string
	Message    string
	HTTPStatus int
}

func (e *UpstreamAPIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("upstream API error [%d] (%s): %s", e.Code, e.Type, e.Message)
	}
	return fmt.Sprintf("upstream API error [%d]: %s", e.Code, e.Message)
}

// IsTokenError reports whether the token is expired, revoked or lacks access.
func (e *UpstreamAPIError) IsTokenError() bool {
	return e.Code == CodeInvalidToken || e.Code == CodeAccessDeclined || e.HTTPStatus == http.StatusUnauthorized
}

// CredentialStoreError means credential material could not be read.
type CredentialStoreError struct {
	Key string
	Err error
}

func (e *CredentialStoreError) Error() string {
	return fmt.Sprintf("failed to load %q from secret store: %v", e.Key, e.Err)
}

func (e *CredentialStoreError) Unwrap() error { return e.Err }

// TokenInvalidError requires an operator to issue a new token by hand.
type TokenInvalidError struct {
	Reason string
	Err    error
}

func (e *TokenInvalidError) Error() string {
	msg := "access token is unusable: " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg + "; generate a new token and update the secret store"
}

func (e *TokenInvalidError) Unwrap() error { return e.Err }

// SchemaReconcileError wraps a failed schema lookup or migration.
type SchemaReconcileError struct {
	Table string
	Err   error
}

func (e *SchemaReconcileError) Error() string {
	return fmt.Sprintf("schema reconcile for %s failed: %v", e.Table, e.Err)
}

func (e *SchemaReconcileError) Unwrap() error { return e.Err }

// LoadError means the batch was rejected; nothing was inserted.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load into %s failed: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
