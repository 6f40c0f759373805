package chatfeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gempir/go-twitch-irc/v4"
)

// SourceTwitch labels messages read from Twitch chat.
const SourceTwitch = "twitch"

var (
	// ErrNoChannel is returned when no channel is configured.
	ErrNoChannel = errors.New("chatfeed: twitch channel required")
	// ErrAuthFailed is returned when Twitch rejects the login.
	ErrAuthFailed = errors.New("chatfeed: twitch login failed")
)

// TwitchConfig configures a Twitch chat reader.
type TwitchConfig struct {
	Channel string
	Nick    string
	Token   string

	// Address overrides the IRC server, host:port. DisableTLS dials it in
	// plain text.
	Address        string
	DisableTLS     bool
	ReconnectDelay time.Duration
}

// Twitch reads a channel's chat into a Buffer.
type Twitch struct {
	cfg    TwitchConfig
	buf    *Buffer
	logger *slog.Logger
}

// NewTwitch creates a reader for cfg.Channel. An empty token logs in
// anonymously.
func NewTwitch(cfg TwitchConfig, buf *Buffer, logger *slog.Logger) (*Twitch, error) {
	cfg.Channel = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(cfg.Channel)), "#")
	if cfg.Channel == "" {
		return nil, ErrNoChannel
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.Token != "" && cfg.Nick == "" {
		cfg.Nick = cfg.Channel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Twitch{
		cfg:    cfg,
		buf:    buf,
		logger: logger.With("component", "chatfeed.twitch", "channel", cfg.Channel),
	}, nil
}

func fromPrivateMessage(m twitch.PrivateMessage) (Message, bool) {
	if strings.TrimSpace(m.Message) == "" {
		return Message{}, false
	}
	author := m.User.DisplayName
	if author == "" {
		author = m.User.Name
	}
	at := m.Time
	if at.IsZero() {
		at = time.Now()
	}
	return Message{
		ID:      m.ID,
		Source:  SourceTwitch,
		Author:  author,
		Content: m.Message,
		First:   m.Tags["first-msg"] == "1",
		At:      at,
	}, true
}

func (t *Twitch) client(ctx context.Context) *twitch.Client {
	var c *twitch.Client
	if t.cfg.Token == "" {
		c = twitch.NewAnonymousClient()
	} else {
		token := t.cfg.Token
		if !strings.HasPrefix(token, "oauth:") {
			token = "oauth:" + token
		}
		c = twitch.NewClient(t.cfg.Nick, token)
	}
	if t.cfg.Address != "" {
		c.IrcAddress = t.cfg.Address
	}
	if t.cfg.DisableTLS {
		c.TLS = false
	}

	c.OnConnect(func() {
		t.logger.Info("connected to twitch chat")
		if ctx.Err() != nil {
			go c.Disconnect()
		}
	})
	c.OnPrivateMessage(func(m twitch.PrivateMessage) {
		if msg, ok := fromPrivateMessage(m); ok {
			t.buf.Push(msg)
			t.logger.Debug("chat message", "author", msg.Author, "first", msg.First)
		}
	})
	c.OnNoticeMessage(func(m twitch.NoticeMessage) {
		t.logger.Debug("twitch notice", "text", m.Message)
	})
	c.Join(t.cfg.Channel)
	return c
}

// Run reads chat until ctx is cancelled, reconnecting after failures.
// A rejected login is not retried.
func (t *Twitch) Run(ctx context.Context) error {
	for {
		err := t.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, twitch.ErrLoginAuthenticationFailed) {
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		t.logger.Warn("twitch connection lost", "error", err, "retry_in", t.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(t.cfg.ReconnectDelay):
		}
	}
}

func (t *Twitch) session(ctx context.Context) error {
	c := t.client(ctx)
	stop := context.AfterFunc(ctx, func() { _ = c.Disconnect() })
	defer stop()

	err := c.Connect()
	if errors.Is(err, twitch.ErrClientDisconnected) && ctx.Err() != nil {
		return nil
	}
	return err
}
