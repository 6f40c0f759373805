package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-commander/internal/httpc"
)

// transport is the HTTP plumbing shared by the REST providers.
type transport struct {
	name   string
	config *Config
	client *http.Client
	logger *slog.Logger
}

func newTransport(name string, cfg *Config) transport {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}
	return transport{
		name:   name,
		config: cfg,
		client: hc,
		logger: cfg.Logger.With("component", "tts."+name),
	}
}

// do sends req, retrying transport errors and temporary API errors with
// linear backoff.
func (t transport) do(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= t.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.config.RetryDelay * time.Duration(attempt)):
			}
			if body != nil {
				req.Body = io.NopCloser(bytes.NewReader(body))
			}
		}

		resp, err := t.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = WrapError(t.name, err)
			continue
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}
		apiErr := readAPIError(t.name, resp)
		resp.Body.Close()
		if !apiErr.Temporary() {
			return nil, apiErr
		}
		lastErr = apiErr
		t.logger.Warn("retrying request", "attempt", attempt+1, "status", resp.StatusCode)
	}

	return nil, lastErr
}

// fetch runs req and returns the whole response body.
func (t transport) fetch(ctx context.Context, req *http.Request, body []byte) ([]byte, error) {
	resp, err := t.do(ctx, req, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(t.name, err)
	}
	return data, nil
}

// postJSON marshals payload and posts it to url with headers.
func (t transport) postJSON(ctx context.Context, url string, payload any, headers map[string]string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(t.name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(t.name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return t.fetch(ctx, req, body)
}

// get issues a GET with headers and discards the body.
func (t transport) get(ctx context.Context, url string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return WrapError(t.name, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	_, err = t.fetch(ctx, req, nil)
	return err
}

func (t transport) close() {
	t.client.CloseIdleConnections()
}
