package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToolkitErrorBasics(t *testing.T) {
	err := errors.New("base error")
	te := &ToolkitError{
		Op:      "Acquire",
		Key:     "conn-1",
		Err:     err,
		ErrType: ErrorTypePool,
	}
	require.Contains(t, te.Error(), "Acquire")
	require.Contains(t, te.Error(), "conn-1")
	require.Contains(t, te.Error(), "base error")
	require.Equal(t, err, te.Unwrap())

	te2 := &ToolkitError{
		Op:      "Acquire",
		Key:     "other",
		Err:     err,
		ErrType: ErrorTypePool,
	}
	require.True(t, te.Is(te2))

	noKey := &ToolkitError{Op: "Flush", Err: err, ErrType: ErrorTypeBatch}
	require.Equal(t, "batch: Flush: base error", noKey.Error())
}

func TestWrapErrorAndTypeChecks(t *testing.T) {
	ResetErrorMetrics()

	t.Run("nil passes through", func(t *testing.T) {
		require.NoError(t, WrapError("Get", "k", nil))
	})

	t.Run("sentinel categories", func(t *testing.T) {
		cases := map[error]ErrorType{
			ErrCacheClosed:     ErrorTypeCache,
			ErrPoolClosed:      ErrorTypePool,
			ErrProcessorClosed: ErrorTypeBatch,
			ErrSerialization:   ErrorTypeStore,
			ErrInvalidSize:     ErrorTypeValidation,
			errors.New("x"):    ErrorTypeOperation,
		}
		for base, want := range cases {
			wrapped := WrapError("Op", nil, base)
			require.True(t, IsErrorType(wrapped, want), base.Error())
			require.True(t, errors.Is(wrapped, base))
		}
	})

	t.Run("wrapped caller errors stay reachable", func(t *testing.T) {
		base := fmt.Errorf("dial: %w", ErrFactoryFailed)
		wrapped := WrapError("Acquire", nil, base)
		require.True(t, IsToolkitError(wrapped))
		require.True(t, Is(wrapped, ErrFactoryFailed))
		require.True(t, IsErrorType(wrapped, ErrorTypePool))

		var te *ToolkitError
		require.True(t, As(fmt.Errorf("outer: %w", wrapped), &te))
		require.Equal(t, "Acquire", te.Op)
	})

	t.Run("closed helper", func(t *testing.T) {
		require.True(t, IsClosed(WrapError("Add", nil, ErrProcessorClosed)))
		require.False(t, IsClosed(ErrKeyNotFound))
	})
}

func TestErrorMetrics(t *testing.T) {
	ResetErrorMetrics()
	_ = WrapError("Put", "k", ErrStoreError)
	_ = WrapError("New", nil, ErrInvalidTimeout)
	_ = WrapError("Acquire", nil, ErrPoolClosed)

	m := GetErrorMetrics()
	require.Equal(t, int64(1), m.StoreErrors.Load())
	require.Equal(t, int64(1), m.ValidationErrors.Load())
	require.Equal(t, int64(1), m.PoolErrors.Load())

	ResetErrorMetrics()
	require.Equal(t, int64(0), m.StoreErrors.Load())
	require.Equal(t, int64(0), m.PoolErrors.Load())
}
