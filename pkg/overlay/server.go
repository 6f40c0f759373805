// Package overlay serves the character overlay: JSON snapshots for the
// renderer, websocket feeds for state and transcript, and a small control
// API for activations and virtual keys.
package overlay

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/hub"
	"github.com/teslashibe/go-commander/pkg/keys"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// DefaultTranscriptLength is how many turn events the server keeps.
const DefaultTranscriptLength = 200

// Event types sent over the websocket feeds.
const (
	EventSnapshot = "snapshot"
	EventTurn     = "turn"
)

// Options wires the server to the running scene.
type Options struct {
	Port      string
	AssetsDir string
	Cast      *character.Cast
	Coord     *turn.Coordinator
	Keys      *keys.Board
	Logger    *slog.Logger

	// TranscriptLength caps the stored transcript; 0 means the default.
	TranscriptLength int
}

// Server is the overlay HTTP server.
type Server struct {
	app    *fiber.App
	opts   Options
	logger *slog.Logger

	stateHub      *hub.Hub
	transcriptHub *hub.Hub

	mu         sync.RWMutex
	transcript []turn.Event
}

// New builds the server and subscribes to every character's changes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TranscriptLength <= 0 {
		opts.TranscriptLength = DefaultTranscriptLength
	}
	s := &Server{
		opts:          opts,
		logger:        logger.With("component", "overlay"),
		stateHub:      hub.New("state", logger),
		transcriptHub: hub.New("transcript", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "commander overlay",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	if opts.AssetsDir != "" {
		app.Static("/assets", opts.AssetsDir)
	}

	app.Get("/healthz", func(c *fiber.Ctx) error { return c.SendString("ok") })

	api := app.Group("/api")
	api.Get("/characters", s.handleCharacters)
	api.Get("/queue", s.handleQueue)
	api.Get("/history/:name", s.handleHistory)
	api.Get("/transcript", s.handleTranscript)
	api.Post("/activate/:name", s.handleActivate)
	api.Post("/keys/:key", s.handleKey)
	api.Post("/screenshot", s.handleScreenshot)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/transcript", websocket.New(s.handleTranscriptWS))

	s.app = app

	for _, ch := range opts.Cast.All() {
		ch.Observe(s.observer(ch))
	}
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.opts.Port)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.stateHub.Run(ctx)
	go s.transcriptHub.Run(ctx)

	stop := context.AfterFunc(ctx, func() {
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown", "error", err)
		}
	})
	defer stop()

	s.logger.Info("overlay listening", "addr", ln.Addr().String())
	err := s.app.Listener(ln)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// RecordTurn appends a turn event to the transcript and broadcasts it.
func (s *Server) RecordTurn(ev turn.Event) {
	s.mu.Lock()
	s.transcript = append(s.transcript, ev)
	if over := len(s.transcript) - s.opts.TranscriptLength; over > 0 {
		s.transcript = append(s.transcript[:0:0], s.transcript[over:]...)
	}
	s.mu.Unlock()

	if err := s.transcriptHub.Publish(EventTurn, ev); err != nil {
		s.logger.Warn("encode turn", "error", err)
	}
}

// Transcript returns a copy of the stored turn events.
func (s *Server) Transcript() []turn.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]turn.Event(nil), s.transcript...)
}

// observer publishes ch's snapshots. A voice image that cannot be found
// under the assets dir is dropped and the corrected snapshot published.
func (s *Server) observer(ch *character.Character) character.Observer {
	return func(snap character.Snapshot) {
		if snap.VoiceImage != "" && !s.assetExists(snap.VoiceImage) {
			s.logger.Warn("voice image missing",
				"character", snap.Name,
				"image", snap.VoiceImage,
			)
			ch.ResetVoiceImage()
			return
		}
		if err := s.stateHub.Publish(EventSnapshot, snap); err != nil {
			s.logger.Warn("encode snapshot", "error", err)
		}
	}
}

func (s *Server) assetExists(rel string) bool {
	if s.opts.AssetsDir == "" {
		return true
	}
	_, err := os.Stat(filepath.Join(s.opts.AssetsDir, filepath.FromSlash(rel)))
	return !errors.Is(err, os.ErrNotExist)
}

func (s *Server) snapshots() []character.Snapshot {
	chars := s.opts.Cast.All()
	out := make([]character.Snapshot, 0, len(chars))
	for _, ch := range chars {
		out = append(out, ch.Snapshot())
	}
	return out
}
