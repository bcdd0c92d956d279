package llm

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"

	sdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/shoplens/cartdetect/pkg/gemini"
	"github.com/shoplens/cartdetect/pkg/openai"
)

// FailureKind classifies provider call failures so callers can decide
// between surfacing, retrying and giving up.
type FailureKind string

const (
	KindQuotaExhausted FailureKind = "QuotaExhausted"
	KindRateLimited    FailureKind = "RateLimited"
	KindTransient      FailureKind = "Transient"
	KindFatal          FailureKind = "Fatal"
	KindUnknown        FailureKind = "Unknown"
)

// ProviderError is a classified failure from a model back-end.
type ProviderError struct {
	Kind       FailureKind
	StatusCode int
	Code       string // provider error code or canonical status string
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm: %s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UserMessage renders the failure for end-user display.
func (e *ProviderError) UserMessage() string {
	if e.Kind == KindQuotaExhausted {
		return fmt.Sprintf("資源配額已耗盡 (RESOURCE_EXHAUSTED): %s", e.Message)
	}
	return e.Message
}

// KindOf returns the failure kind, or KindUnknown when err carries none.
func KindOf(err error) FailureKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Classify maps a raw provider client error onto a ProviderError. Errors
// already classified pass through untouched.
func Classify(err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}

	var oaErr *openai.APIError
	if errors.As(err, &oaErr) {
		out := classifyStatus(oaErr.StatusCode, oaErr.Code, oaErr.Message)
		out.Err = err
		return out
	}

	var gemErr *gemini.APIError
	if errors.As(err, &gemErr) {
		out := classifyStatus(gemErr.StatusCode, gemErr.Status, gemErr.Message)
		out.Err = err
		return out
	}

	var apierr *sdk.Error
	if errors.As(err, &apierr) {
		out := classifyStatus(apierr.StatusCode, "", apierr.Error())
		out.Err = err
		return out
	}

	if isNetworkError(err) {
		return &ProviderError{Kind: KindTransient, Message: err.Error(), Err: err}
	}
	return &ProviderError{Kind: KindUnknown, Message: err.Error(), Err: err}
}

func classifyStatus(status int, code, message string) *ProviderError {
	out := &ProviderError{StatusCode: status, Code: code, Message: message}
	switch {
	case status == http.StatusTooManyRequests && isQuotaCode(code, message):
		out.Kind = KindQuotaExhausted
	case status == http.StatusTooManyRequests:
		out.Kind = KindRateLimited
	case status == http.StatusRequestTimeout || status >= 500:
		out.Kind = KindTransient
	case status >= 400 && status < 500:
		out.Kind = KindFatal
	default:
		out.Kind = KindUnknown
	}
	return out
}

// isQuotaCode distinguishes burned-through quota from momentary rate
// limiting. Google reports RESOURCE_EXHAUSTED, OpenAI insufficient_quota.
func isQuotaCode(code, message string) bool {
	if code == "RESOURCE_EXHAUSTED" || code == "insufficient_quota" {
		return true
	}
	return strings.Contains(message, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(message), "quota")
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
