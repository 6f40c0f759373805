package tts_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-commander/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, tts.Request{Text: "Hello world", Style: "cheerful"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.CharCount != 11 {
			t.Errorf("expected 11 chars, got %d", result.CharCount)
		}
		if result.Format.SampleRate != 24000 {
			t.Errorf("expected 24000 sample rate, got %d", result.Format.SampleRate)
		}
		if result.Duration != 220*time.Millisecond {
			t.Errorf("expected 220ms, got %s", result.Duration)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		mock.Health(ctx)
		if len(mock.Calls()) != 1 || mock.CallCount("Health") != 1 {
			t.Errorf("expected 1 synthesis and 1 health call, got %d and %d", len(mock.Calls()), mock.CallCount("Health"))
		}
		if got := mock.Calls()[0]; got.Style != "cheerful" || got.Text != "Hello world" {
			t.Errorf("unexpected call %+v", got)
		}
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if mock.LastCall() != nil {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := mock.Synthesize(ctx, tts.Request{Text: "slow"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	if _, err := tts.NewElevenLabs(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if _, err := tts.NewElevenLabs(tts.WithAPIKey("k")); !errors.Is(err, tts.ErrNoVoiceID) {
		t.Errorf("expected ErrNoVoiceID, got %v", err)
	}
	if _, err := tts.NewAzure(tts.WithAPIKey("k")); !errors.Is(err, tts.ErrNoRegion) {
		t.Errorf("expected ErrNoRegion, got %v", err)
	}
	if _, err := tts.NewOpenAI(tts.WithAPIKey("k")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSSML(t *testing.T) {
	plain := tts.SSML("en-US-AvaMultilingualNeural", "", "Fish & chips")
	if strings.Contains(plain, "express-as") {
		t.Error("plain SSML should not carry a style")
	}
	if !strings.Contains(plain, "Fish &amp; chips") {
		t.Errorf("text not escaped: %s", plain)
	}

	styled := tts.SSML("en-US-AvaMultilingualNeural", "whispering", "<hello>")
	want := `<voice name="en-US-AvaMultilingualNeural"><mstts:express-as style="whispering">&lt;hello&gt;</mstts:express-as></voice>`
	if !strings.Contains(styled, want) {
		t.Errorf("unexpected SSML: %s", styled)
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/text-to-speech/EXAVITQu4vr4xnSDxMaL" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "pcm_24000" {
			t.Errorf("unexpected format %s", r.URL.RawQuery)
		}
		if r.Header.Get("xi-api-key") != "key" {
			t.Error("missing api key header")
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["text"] != "Hi there" {
			t.Errorf("unexpected text %v", body["text"])
		}
		w.Write(make([]byte, 48000))
	}))
	defer srv.Close()

	p, err := tts.NewElevenLabs(tts.WithAPIKey("key"), tts.WithVoice("sarah"), tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	res, err := p.Synthesize(context.Background(), tts.Request{Text: "Hi there", Style: "angry"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Duration != time.Second {
		t.Errorf("expected 1s of audio, got %s", res.Duration)
	}
	if !res.Format.Encoding.IsPCM() {
		t.Errorf("expected PCM, got %s", res.Format.Encoding)
	}
}

func TestOpenAISynthesizeWithStyle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["instructions"] != "Speak in a sarcastic tone." {
			t.Errorf("unexpected instructions %v", body["instructions"])
		}
		if body["response_format"] != "pcm" {
			t.Errorf("unexpected format %v", body["response_format"])
		}
		w.Write([]byte{0, 0, 0, 0})
	}))
	defer srv.Close()

	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL))
	res, err := p.Synthesize(context.Background(), tts.Request{Text: "Sure.", Style: "sarcastic"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(res.Audio) != 4 {
		t.Errorf("expected 4 bytes, got %d", len(res.Audio))
	}
}

func TestOpenAIClassicModelIgnoresStyle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["instructions"]; ok {
			t.Error("tts-1 should not receive instructions")
		}
		w.Write([]byte{1, 2})
	}))
	defer srv.Close()

	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithModel(tts.ModelTTS1))
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x", Style: "angry"}); err != nil {
		t.Fatal(err)
	}
}

func TestAzureSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cognitiveservices/v1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "az" {
			t.Error("missing subscription key")
		}
		if r.Header.Get("Content-Type") != "application/ssml+xml" {
			t.Errorf("unexpected content type %s", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `style="cheerful"`) {
			t.Errorf("style missing from SSML: %s", body)
		}
		w.Write(make([]byte, 4800))
	}))
	defer srv.Close()

	p, err := tts.NewAzure(tts.WithAPIKey("az"), tts.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	res, err := p.Synthesize(context.Background(), tts.Request{Text: "Yay", Style: "cheerful"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Duration != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %s", res.Duration)
	}

	if _, err := p.Synthesize(context.Background(), tts.Request{}); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestRetryAndAPIError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","code":"invalid_api_key"}}`))
	}))
	defer srv.Close()

	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithRetry(2, time.Millisecond))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "x"})

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.Rejected() || apiErr.Code != "invalid_api_key" || apiErr.Temporary() {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()
	first := tts.WithError(errors.New("down"))
	second := tts.NewMock()

	chain, err := tts.NewChain(nil, first, second)
	if err != nil {
		t.Fatal(err)
	}

	t.Run("falls back", func(t *testing.T) {
		if _, err := chain.Synthesize(ctx, tts.Request{Text: "hi"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if second.CallCount("Synthesize") != 1 {
			t.Error("fallback provider not used")
		}
	})

	t.Run("all fail", func(t *testing.T) {
		boom := errors.New("boom")
		all, _ := tts.NewChain(nil, tts.WithError(errors.New("a")), tts.WithError(boom))
		_, err := all.Synthesize(ctx, tts.Request{Text: "hi"})
		if !errors.Is(err, tts.ErrAllProvidersFailed) || !errors.Is(err, boom) {
			t.Errorf("unexpected error %v", err)
		}
	})

	t.Run("health", func(t *testing.T) {
		if err := chain.Health(ctx); err != nil {
			t.Errorf("one healthy provider should suffice: %v", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := tts.NewChain(nil); !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})
}

func TestProviderError(t *testing.T) {
	inner := errors.New("connection refused")
	err := tts.WrapError("azure", inner)
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match")
	}
	if tts.WrapError("azure", nil) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestElevenLabsVoiceID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"rachel", "21m00Tcm4TlvDq8ikWAM"},
		{" Rachel ", "21m00Tcm4TlvDq8ikWAM"},
		{"custom-id", "custom-id"},
	}
	for _, tt := range tests {
		if got := tts.ElevenLabsVoiceID(tt.in); got != tt.want {
			t.Errorf("ElevenLabsVoiceID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAPIErrorEnvelopes(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantCode string
		wantMsg  string
	}{
		{"elevenlabs", http.StatusBadRequest, `{"detail":{"status":"voice_not_found","message":"no voice"}}`, "voice_not_found", "no voice"},
		{"raw body", http.StatusBadRequest, "bad ssml\n", "", "bad ssml"},
		{"empty", http.StatusForbidden, "", "", "Forbidden"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p, _ := tts.NewElevenLabs(tts.WithAPIKey("k"), tts.WithVoice("v"), tts.WithBaseURL(srv.URL), tts.WithRetry(0, time.Millisecond))
			_, err := p.Synthesize(context.Background(), tts.Request{Text: "x"})

			var apiErr *tts.APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.Code != tt.wantCode || apiErr.Message != tt.wantMsg {
				t.Errorf("got code %q message %q", apiErr.Code, apiErr.Message)
			}
		})
	}
}
