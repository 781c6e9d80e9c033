package storage

import "errors"

var (
	ErrQdrantUnreachable = errors.New("qdrant server unreachable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrReadLag means a count did not reflect a completed write within the polling budget.
	ErrReadLag = errors.New("qdrant read lags behind write")
)
