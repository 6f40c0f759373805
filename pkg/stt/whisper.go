package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/teslashibe/go-commander/internal/httpc"
)

const (
	// DefaultWhisperURL is the OpenAI API root.
	DefaultWhisperURL = "https://api.openai.com/v1"

	// DefaultWhisperModel is the hosted transcription model.
	DefaultWhisperModel = "whisper-1"

	// DefaultRecordCommand writes 16kHz mono WAV to {output}.
	DefaultRecordCommand = "arecord -q -f S16_LE -r 16000 -c 1 -t wav {output}"

	// maxWhisperUpload is the API's file size limit.
	maxWhisperUpload = 25 << 20
)

// WhisperConfig configures the Whisper transcriber.
type WhisperConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string

	// Record is the capture command; {output} is replaced by the WAV path.
	// The process is interrupted when recording stops.
	Record []string

	HTTPClient *http.Client
}

// Whisper records with an external command and transcribes the clip with
// an OpenAI-compatible /audio/transcriptions endpoint.
type Whisper struct {
	cfg    WhisperConfig
	client *http.Client
	logger *slog.Logger
}

// NewWhisper validates cfg and fills in defaults.
func NewWhisper(cfg WhisperConfig, logger *slog.Logger) (*Whisper, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWhisperURL
		if cfg.APIKey == "" {
			return nil, ErrNoAPIKey
		}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultWhisperModel
	}
	if len(cfg.Record) == 0 {
		cfg.Record = strings.Fields(DefaultRecordCommand)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = httpc.NewClient(60 * time.Second)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Whisper{cfg: cfg, client: client, logger: logger.With("component", "stt.whisper")}, nil
}

// Transcribe records until stop, then uploads the recording.
func (w *Whisper) Transcribe(ctx context.Context, stop <-chan struct{}, partial func(string)) (string, error) {
	dir, err := os.MkdirTemp("", "commander-rec-")
	if err != nil {
		return "", fmt.Errorf("stt: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "input.wav")

	if err := w.record(ctx, stop, path); err != nil {
		return "", err
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("stt: read recording: %w", err)
	}
	if len(audio) <= 44 {
		w.logger.Debug("recording empty", "bytes", len(audio))
		return "", nil
	}
	if len(audio) > maxWhisperUpload {
		return "", fmt.Errorf("stt: recording too large (%d bytes)", len(audio))
	}

	text, err := w.Upload(ctx, audio, "input.wav")
	if err != nil {
		return "", err
	}
	if partial != nil && text != "" {
		partial(text)
	}
	return text, nil
}

func (w *Whisper) record(ctx context.Context, stop <-chan struct{}, path string) error {
	args := make([]string, len(w.cfg.Record))
	for i, a := range w.cfg.Record {
		args[i] = strings.ReplaceAll(a, "{output}", path)
	}
	cmd := exec.Command(args[0], args[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stt: start %s: %w", args[0], err)
	}
	w.logger.Debug("recording", "cmd", args[0], "path", path)

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case err := <-exited:
		if err != nil {
			return fmt.Errorf("stt: %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
		}
		return nil
	case <-stop:
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-exited
		return ctx.Err()
	}

	// Recorders finalize their output on SIGINT.
	_ = cmd.Process.Signal(syscall.SIGINT)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-exited
	}
	return nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

// Upload transcribes an already recorded clip.
func (w *Whisper) Upload(ctx context.Context, audio []byte, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("stt: create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("stt: write audio: %w", err)
	}
	if err := mw.WriteField("model", w.cfg.Model); err != nil {
		return "", fmt.Errorf("stt: write model: %w", err)
	}
	if w.cfg.Language != "" {
		if err := mw.WriteField("language", w.cfg.Language); err != nil {
			return "", fmt.Errorf("stt: write language: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("stt: write format: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("stt: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("stt: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if w.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.cfg.APIKey)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stt: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var out transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("stt: parse response: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	w.logger.Debug("transcribed", "bytes", len(audio), "chars", len(text), "latency_ms", time.Since(start).Milliseconds())
	return text, nil
}

// APIError is a non-200 response from the transcription endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("stt: API error (status %d): %s", e.StatusCode, e.Message)
}
