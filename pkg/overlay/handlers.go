package overlay

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-commander/pkg/hub"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// QueueStatus is the response of GET /api/queue.
type QueueStatus struct {
	Pending    []turn.Pending `json:"pending"`
	Recording  bool           `json:"recording"`
	Screenshot bool           `json:"screenshot"`
}

// ActivateRequest is the optional body of POST /api/activate/:name.
type ActivateRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

func (s *Server) handleCharacters(c *fiber.Ctx) error {
	return c.JSON(s.snapshots())
}

func (s *Server) handleQueue(c *fiber.Ctx) error {
	pending := s.opts.Coord.Pending()
	if pending == nil {
		pending = []turn.Pending{}
	}
	return c.JSON(QueueStatus{
		Pending:    pending,
		Recording:  s.opts.Coord.Recording(),
		Screenshot: s.opts.Coord.ScreenshotEnabled(),
	})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	ch, ok := s.opts.Cast.Get(c.Params("name"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown character")
	}
	return c.JSON(ch.History().Messages())
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(s.Transcript())
}

func (s *Server) handleActivate(c *fiber.Ctx) error {
	ch, ok := s.opts.Cast.Get(c.Params("name"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "unknown character")
	}

	var in *turn.Input
	if len(c.Body()) > 0 {
		var req ActivateRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Text != "" {
			in = &turn.Input{Text: req.Text, Speaker: req.Speaker}
		}
	}

	act, err := s.opts.Coord.Enqueue(ch, turn.SourceAPI, in)
	if errors.Is(err, turn.ErrRecording) {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"id":        act.ID.String(),
		"character": ch.Name(),
	})
}

func (s *Server) handleKey(c *fiber.Ctx) error {
	if s.opts.Keys == nil {
		return fiber.NewError(fiber.StatusNotImplemented, "virtual keys disabled")
	}
	key := c.Params("key")
	n := s.opts.Keys.Release(key)
	return c.JSON(fiber.Map{"key": key, "woken": n})
}

func (s *Server) handleScreenshot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"enabled": s.opts.Coord.ToggleScreenshot()})
}

func (s *Server) handleStateWS(c *websocket.Conn) {
	var initial []hub.Message
	for _, snap := range s.snapshots() {
		msg, err := hub.Encode(EventSnapshot, snap)
		if err != nil {
			s.logger.Warn("encode snapshot", "error", err)
			continue
		}
		initial = append(initial, msg)
	}
	hub.NewClient(s.stateHub, c, initial...).Run()
}

func (s *Server) handleTranscriptWS(c *websocket.Conn) {
	hub.NewClient(s.transcriptHub, c).Run()
}
