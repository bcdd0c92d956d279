package fetcher

import (
	"errors"
	"fmt"
)

// ErrorKind classifies cart fetch failures.
type ErrorKind string

const (
	KindNoVariant        ErrorKind = "NoVariant"
	KindTooManyRedirects ErrorKind = "TooManyRedirects"
	KindBadRedirect      ErrorKind = "BadRedirect"
	KindNetworkFailure   ErrorKind = "NetworkFailure"
)

// FetchError is a typed cart fetch failure. The message is what the user
// sees; callers branch on Kind.
type FetchError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the fetch error kind, or "" when err is not a FetchError.
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
