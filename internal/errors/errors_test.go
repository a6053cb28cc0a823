package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Message(t *testing.T) {
	err := New(ErrNotFound, "skill not found")
	assert.Equal(t, "skill not found", err.Error())

	wrapped := Wrap(fmt.Errorf("boom"), ErrFetchFailed, "fetching index")
	assert.Equal(t, "fetching index: boom", wrapped.Error())
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternal, "nothing"))
}

func TestIs_MatchesByCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", Newf(ErrUnsafePath, "path %s escapes", "../x"))

	assert.True(t, errors.Is(err, New(ErrUnsafePath, "")))
	assert.False(t, errors.Is(err, New(ErrNotFound, "")))
	assert.True(t, IsErrorCode(err, ErrUnsafePath))
	assert.Equal(t, ErrUnsafePath, GetCode(err))
}

func TestGetCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrUnknown, GetCode(errors.New("plain")))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrInvalidInput, "bad").WithDetail("input", "x")
	assert.Equal(t, "x", err.Details["input"])
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("x")))
	assert.Equal(t, 1, ExitCode(New(ErrNotFound, "x")))
	assert.Equal(t, 130, ExitCode(fmt.Errorf("wrapped: %w", New(ErrCancelled, "interrupted"))))
}
