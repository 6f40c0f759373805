// Package screenshot captures a monitor as PNG by running an external
// capture tool.
package screenshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNoMonitor is returned for monitor numbers below 1.
	ErrNoMonitor = errors.New("screenshot: monitor must be 1 or higher")

	// ErrEmpty is returned when the tool produced no image.
	ErrEmpty = errors.New("screenshot: empty capture")
)

// DefaultCommand returns the capture template for the current platform.
// {monitor} is the 1-based monitor number, {index} the 0-based one and
// {output} the PNG path.
func DefaultCommand() []string {
	if runtime.GOOS == "darwin" {
		return []string{"screencapture", "-x", "-D", "{monitor}", "-t", "png", "{output}"}
	}
	return []string{"scrot", "--overwrite", "--monitor", "{index}", "{output}"}
}

// Capturer runs a capture command and reads back the image.
type Capturer struct {
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a Capturer. An empty command uses DefaultCommand.
func New(command []string, logger *slog.Logger) *Capturer {
	if len(command) == 0 {
		command = DefaultCommand()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		args:    append([]string(nil), command...),
		timeout: 10 * time.Second,
		logger:  logger.With("component", "screenshot"),
	}
}

// Capture grabs monitor and returns the PNG bytes.
func (c *Capturer) Capture(ctx context.Context, monitor int) ([]byte, error) {
	if monitor < 1 {
		return nil, ErrNoMonitor
	}
	dir, err := os.MkdirTemp("", "commander-shot-")
	if err != nil {
		return nil, fmt.Errorf("screenshot: temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, fmt.Sprintf("monitor_%d.png", monitor))

	repl := strings.NewReplacer(
		"{monitor}", strconv.Itoa(monitor),
		"{index}", strconv.Itoa(monitor-1),
		"{output}", out,
	)
	argv := make([]string, len(c.args))
	for i, a := range c.args {
		argv[i] = repl.Replace(a)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("screenshot: %s: %w: %s", argv[0], err, strings.TrimSpace(stderr.String()))
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("screenshot: read capture: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	c.logger.Debug("captured", "monitor", monitor, "bytes", len(data), "elapsed_ms", time.Since(start).Milliseconds())
	return data, nil
}
