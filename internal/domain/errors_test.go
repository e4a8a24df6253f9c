package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Registry.Register", ErrDuplicate, "agent 'sql'")
	want := "Registry.Register: agent 'sql': duplicate"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Classifier.Route", ErrNoProvider, "")
	want := "Classifier.Route: no reasoning provider configured"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Executor.Run", ErrUnknownAgent, "ghost")
	if !errors.Is(err, ErrUnknownAgent) {
		t.Error("errors.Is should match ErrUnknownAgent")
	}
}

func TestDomainErrorAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewDomainError("LLM.Chat", ErrProviderNotFound, "groq"))
	var de *DomainError
	if !errors.As(err, &de) {
		t.Fatal("errors.As should match *DomainError")
	}
	if de.Op != "LLM.Chat" {
		t.Errorf("Op = %q, want %q", de.Op, "LLM.Chat")
	}
}

func TestWrapOpNil(t *testing.T) {
	assert.NoError(t, WrapOp("op", nil))
}

func TestWrapOp(t *testing.T) {
	err := WrapOp("Store.Save", ErrSessionClosed)
	assert.EqualError(t, err, "Store.Save: session is no longer active")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"direct", ErrRateLimit, CodeRateLimit},
		{"wrapped", fmt.Errorf("chat: %w", ErrAuthInvalid), CodeAuthInvalid},
		{"domain error", NewDomainError("Registry.Get", ErrUnknownAgent, "x"), CodeUnknownAgent},
		{"category", NewDomainError("Store.Get", ErrNotFound, "id"), CodeNotFound},
		{"unknown", fmt.Errorf("some random error"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestDomainErrorCode(t *testing.T) {
	err := NewDomainError("Store.Get", ErrSessionNotFound, "01H")
	assert.Equal(t, CodeSessionNotFound, err.Code())
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(fmt.Errorf("x: %w", ErrRateLimit)))
	assert.True(t, IsRetryableError(ErrProviderError))
	assert.False(t, IsRetryableError(ErrAuthInvalid))
}
