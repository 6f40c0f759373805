package inference

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	ErrNoAPIKey            = errors.New("inference: API key required")
	ErrNoModel             = errors.New("inference: model required")
	ErrProviderUnavailable = errors.New("inference: provider unavailable")
	ErrAllProvidersFailed  = errors.New("inference: all providers failed")

	// ErrEmptyResponse is returned when the model produced no text, for
	// example when a safety filter blocked the reply.
	ErrEmptyResponse = errors.New("inference: empty response")
)

// APIError is a failed call to a chat service, normalized across the
// OpenAI-compatible endpoint and Gemini.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	return fmt.Sprintf("inference [%s]: status %d: %s", e.Provider, e.StatusCode, msg)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Rejected reports whether the service refused the credentials.
func (e *APIError) Rejected() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// readAPIError decodes an OpenAI {"error":{...}} body. Non-JSON bodies
// (proxies, local servers) become the message verbatim.
func readAPIError(provider string, resp *http.Response) *APIError {
	e := &APIError{Provider: provider, StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Error struct {
			Code    any    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		e.Message = envelope.Error.Message
		if envelope.Error.Code != nil {
			e.Code = fmt.Sprint(envelope.Error.Code)
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	return e
}

// fromGenAI converts a Gemini SDK error into an APIError so callers see one
// error type whichever provider answered.
func fromGenAI(err error) error {
	var ge genai.APIError
	if !errors.As(err, &ge) {
		return WrapError(providerGemini, err)
	}
	return &APIError{Provider: providerGemini, StatusCode: ge.Code, Code: ge.Status, Message: ge.Message}
}

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("inference [%s]: %v", e.Provider, e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError collects one error per provider tried, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return ErrAllProvidersFailed.Error()
	}
	return fmt.Sprintf("%v (%d tried, last: %v)", ErrAllProvidersFailed, len(e.Errors), e.Errors[len(e.Errors)-1])
}

func (e *ChainError) Unwrap() []error { return e.Errors }

func (e *ChainError) Is(target error) bool { return target == ErrAllProvidersFailed }
