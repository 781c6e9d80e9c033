package embedding

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrEmbeddingFailure matches every error returned by an embedding call.
var ErrEmbeddingFailure = errors.New("embedding failure")

// Error describes a failed embedding call. StatusCode is zero for
// transport or decoding failures.
type Error struct {
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding failure (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("embedding failure: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEmbeddingFailure) hold for every *Error.
func (e *Error) Is(target error) bool { return target == ErrEmbeddingFailure }

// RateLimited reports whether the provider rejected the call with HTTP 429.
func (e *Error) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }
