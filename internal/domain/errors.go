package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals a malformed search request (4xx-equivalent).
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrUnknownModule signals a module name outside the supported set.
	ErrUnknownModule = errors.New("unknown module")
	// ErrTenantRequired signals a tenant-scoped call made without a tenant.
	ErrTenantRequired = errors.New("tenant id required for tenant-scoped module")
	// ErrAdapterFailure signals that one module's data source could not be read.
	ErrAdapterFailure = errors.New("module adapter failure")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrCacheFailure signals a result cache failure. Never surfaced to callers.
	ErrCacheFailure = errors.New("cache failure")
	// ErrPersistenceFailure signals that an index artifact or manifest could not be written.
	ErrPersistenceFailure = errors.New("index persistence failure")
	// ErrIndexNotReady signals that no live index exists for a scope yet.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrRebuildInProgress signals that another writer holds the scope lock.
	ErrRebuildInProgress = errors.New("index rebuild already in progress")
)

// Validation codes returned to callers.
const (
	CodeEmptyQuery    = "empty_query"
	CodeInvalidModule = "invalid_module"
	CodeInvalidLimit  = "invalid_limit"
	CodeInvalidTenant = "invalid_tenant"
	CodeInvalidFilter = "invalid_filter"
	CodeQueryTooLong  = "query_too_long"
	CodeInvalidPrefix = "invalid_prefix"
	CodeInvalidClick  = "invalid_click"
	CodeInvalidScope  = "invalid_scope"
)

// ValidationError is the typed failure for a malformed query. Unwraps to ErrInvalidQuery.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidQuery.Error(), e.Code, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidQuery }

// NewValidationError creates a validation error with the given code.
func NewValidationError(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationCode extracts the code from a ValidationError, or "" if err is not one.
func ValidationCode(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return ""
}
