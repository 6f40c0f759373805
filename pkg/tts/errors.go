package tts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrNoAPIKey            = errors.New("tts: API key required")
	ErrNoVoiceID           = errors.New("tts: voice ID required")
	ErrNoRegion            = errors.New("tts: region required")
	ErrEmptyText           = errors.New("tts: empty text")
	ErrProviderUnavailable = errors.New("tts: no providers available")
	ErrAllProvidersFailed  = errors.New("tts: all providers failed")

	// ErrCanceled means the service accepted the request but returned no
	// audio, which Azure does when it cancels a synthesis.
	ErrCanceled = errors.New("tts: synthesis canceled")
)

// APIError is a non-200 answer from a synthesis service.
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
	return fmt.Sprintf("tts [%s]: status %d: %s", e.Provider, e.StatusCode, msg)
}

// Temporary reports whether the same request may succeed later.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Rejected reports whether the service refused the credentials.
func (e *APIError) Rejected() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// readAPIError decodes the ElevenLabs ({"detail":{...}}) and OpenAI
// ({"error":{...}}) envelopes, falling back to the raw body for Azure.
func readAPIError(provider string, resp *http.Response) *APIError {
	e := &APIError{Provider: provider, StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var envelope struct {
		Detail *struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"detail"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		switch {
		case envelope.Detail != nil && envelope.Detail.Message != "":
			e.Code, e.Message = envelope.Detail.Status, envelope.Detail.Message
		case envelope.Error != nil && envelope.Error.Message != "":
			e.Code, e.Message = envelope.Error.Code, envelope.Error.Message
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

// ProviderError tags an error with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return fmt.Sprintf("tts [%s]: %v", e.Provider, e.Err) }

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError returns nil for a nil err.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}
