package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a completion failure. The caller can branch on it without
// string matching, and a failure is never folded into assistant text.
type Kind string

const (
	// KindNetwork covers transport failures and unexpected service errors.
	KindNetwork Kind = "network"
	// KindTimeout means the bounded completion deadline elapsed.
	KindTimeout Kind = "timeout"
	// KindMalformedResponse means the service answered but the body carried
	// no usable assistant text.
	KindMalformedResponse Kind = "malformed_response"
	// KindRateLimited means the service rejected the call with a rate limit,
	// and the single bounded retry was also rejected.
	KindRateLimited Kind = "rate_limited"
)

// Error is a typed completion failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("completion %s error", e.Kind)
	}
	return fmt.Sprintf("completion %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the completion error kind, or "" if err is not a
// completion error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
