package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Subsystems wrap these with NewDomainError or WrapOp.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the routing and collaboration core.
var (
	ErrUnknownAgent      = fmt.Errorf("unknown agent")
	ErrNoDefaultAgent    = fmt.Errorf("default agent not registered")
	ErrClassification    = fmt.Errorf("classification failed")
	ErrNoProvider        = fmt.Errorf("no reasoning provider configured")
	ErrProviderNotFound  = fmt.Errorf("llm provider not found")
	ErrResponderFailed   = fmt.Errorf("responder failed")
	ErrCancelled         = fmt.Errorf("cancelled")
	ErrSessionClosed     = fmt.Errorf("session is no longer active")
	ErrSessionNotFound   = fmt.Errorf("session not found")
	ErrKnowledgeNotFound = fmt.Errorf("knowledge base unavailable")
	ErrEmbeddingFailed   = fmt.Errorf("embedding failed")
	ErrConfigLoad        = fmt.Errorf("failed to load configuration")
	ErrEncryption        = fmt.Errorf("encryption operation failed")
	ErrDecryption        = fmt.Errorf("decryption failed")

	// Provider errors mapped from HTTP status codes.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Registry.Register")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient provider error.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderError) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category returned by the outer surfaces.
type ErrorCode string

const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
	CodeUnknownAgent     ErrorCode = "UNKNOWN_AGENT"
	CodeClassification   ErrorCode = "CLASSIFICATION_FAILED"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeCancelled        ErrorCode = "CANCELLED"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
)

// errorCodeMap maps sentinel errors to their codes. Specific sentinels come
// before the category ones they may wrap.
var errorCodeMap = []struct {
	err  error
	code ErrorCode
}{
	{ErrUnknownAgent, CodeUnknownAgent},
	{ErrClassification, CodeClassification},
	{ErrProviderNotFound, CodeProviderNotFound},
	{ErrCancelled, CodeCancelled},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrConfigLoad, CodeConfigLoad},
	{ErrContextOverflow, CodeContextOverflow},
	{ErrRateLimit, CodeRateLimit},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrNotFound, CodeNotFound},
	{ErrDuplicate, CodeDuplicate},
	{ErrTimeout, CodeTimeout},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrProviderError, CodeProviderError},
}

// ErrorCodeOf returns the error code for err by walking its chain.
// Returns CodeUnknown if no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, m := range errorCodeMap {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
