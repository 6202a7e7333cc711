// Package errors provides error types and utilities for the perfkit packages.
package errors

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeCache represents memory cache errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePool represents connection pool errors
	ErrorTypePool ErrorType = "pool"
	// ErrorTypeBatch represents batch processor errors
	ErrorTypeBatch ErrorType = "batch"
	// ErrorTypeStore represents second-tier store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeValidation represents configuration and argument validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeOperation represents everything else, including wrapped caller errors
	ErrorTypeOperation ErrorType = "operation"
)

// Common error types
var (
	// Cache errors
	ErrCacheClosed = errors.New("cache is closed")
	ErrKeyNotFound = errors.New("key not found")

	// Pool errors
	ErrPoolClosed      = errors.New("pool is closed")
	ErrFactoryFailed   = errors.New("connection factory failed")
	ErrUnknownResource = errors.New("resource is not managed by this pool")

	// Batch errors
	ErrProcessorClosed = errors.New("batch processor is closed")
	ErrHandlerFailed   = errors.New("batch handler failed")

	// Validation errors
	ErrInvalidSize    = errors.New("size must not be negative")
	ErrInvalidTTL     = errors.New("invalid TTL value")
	ErrInvalidTimeout = errors.New("timeout must be positive")
	ErrNilFunc        = errors.New("function must not be nil")
	ErrInvalidConfig  = errors.New("invalid configuration")

	// Store errors
	ErrStoreError      = errors.New("store operation failed")
	ErrSerialization   = errors.New("serialization error")
	ErrDeserialization = errors.New("deserialization error")
)

// ToolkitError represents a failed toolkit operation
type ToolkitError struct {
	Op      string
	Key     any
	Err     error
	ErrType ErrorType
}

// determineErrorType determines the error type based on the error
func determineErrorType(err error) ErrorType {
	switch {
	case errors.Is(err, ErrCacheClosed) || errors.Is(err, ErrKeyNotFound):
		return ErrorTypeCache
	case errors.Is(err, ErrPoolClosed) || errors.Is(err, ErrFactoryFailed) ||
		errors.Is(err, ErrUnknownResource):
		return ErrorTypePool
	case errors.Is(err, ErrProcessorClosed) || errors.Is(err, ErrHandlerFailed):
		return ErrorTypeBatch
	case errors.Is(err, ErrStoreError) || errors.Is(err, ErrSerialization) ||
		errors.Is(err, ErrDeserialization):
		return ErrorTypeStore
	case errors.Is(err, ErrInvalidSize) || errors.Is(err, ErrInvalidTTL) ||
		errors.Is(err, ErrInvalidTimeout) || errors.Is(err, ErrNilFunc) ||
		errors.Is(err, ErrInvalidConfig):
		return ErrorTypeValidation
	default:
		return ErrorTypeOperation
	}
}

// Error implements the error interface
func (e *ToolkitError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("%s: %s: key=%v: %v", e.ErrType, e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.ErrType, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *ToolkitError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error is of the same type as the receiver
func (e *ToolkitError) Is(target error) bool {
	t, ok := target.(*ToolkitError)
	if !ok {
		return false
	}
	return e.ErrType == t.ErrType && e.Op == t.Op && errors.Is(e.Err, t.Err)
}

// NewToolkitError creates a new ToolkitError
func NewToolkitError(errType ErrorType, op string, key any, err error) error {
	return &ToolkitError{
		ErrType: errType,
		Op:      op,
		Key:     key,
		Err:     err,
	}
}

// ErrorMetrics tracks error statistics
type ErrorMetrics struct {
	CacheErrors      atomic.Int64
	PoolErrors       atomic.Int64
	BatchErrors      atomic.Int64
	StoreErrors      atomic.Int64
	ValidationErrors atomic.Int64
	OperationErrors  atomic.Int64

	LastError atomic.Value // time.Time
}

var metrics = &ErrorMetrics{}

// GetErrorMetrics returns the current error metrics
func GetErrorMetrics() *ErrorMetrics {
	return metrics
}

// ResetErrorMetrics resets all error metrics
func ResetErrorMetrics() {
	metrics.CacheErrors.Store(0)
	metrics.PoolErrors.Store(0)
	metrics.BatchErrors.Store(0)
	metrics.StoreErrors.Store(0)
	metrics.ValidationErrors.Store(0)
	metrics.OperationErrors.Store(0)
	metrics.LastError.Store(time.Time{})
}

func updateErrorMetrics(errType ErrorType) {
	switch errType {
	case ErrorTypeCache:
		metrics.CacheErrors.Add(1)
	case ErrorTypePool:
		metrics.PoolErrors.Add(1)
	case ErrorTypeBatch:
		metrics.BatchErrors.Add(1)
	case ErrorTypeStore:
		metrics.StoreErrors.Add(1)
	case ErrorTypeValidation:
		metrics.ValidationErrors.Add(1)
	default:
		metrics.OperationErrors.Add(1)
	}
	metrics.LastError.Store(time.Now())
}

// WrapError wraps an error with context and updates metrics.
// The original error stays reachable through errors.Is and errors.As.
func WrapError(op string, key any, err error) error {
	if err == nil {
		return nil
	}

	errType := determineErrorType(err)
	updateErrorMetrics(errType)

	return NewToolkitError(errType, op, key, err)
}

// Is is a convenience re-export of the standard library errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience re-export of the standard library errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

// IsToolkitError checks if an error is a ToolkitError
func IsToolkitError(err error) bool {
	var te *ToolkitError
	return errors.As(err, &te)
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	var te *ToolkitError
	if errors.As(err, &te) {
		return te.ErrType == errType
	}
	return false
}

// IsClosed reports whether err signals use of a closed component
func IsClosed(err error) bool {
	return errors.Is(err, ErrCacheClosed) || errors.Is(err, ErrPoolClosed) ||
		errors.Is(err, ErrProcessorClosed)
}
