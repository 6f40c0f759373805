// Package app wires configuration, characters, collaborators and
// activation sources into a running overlay.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/teslashibe/go-commander/internal/config"
	"github.com/teslashibe/go-commander/pkg/audio"
	"github.com/teslashibe/go-commander/pkg/character"
	"github.com/teslashibe/go-commander/pkg/chat"
	"github.com/teslashibe/go-commander/pkg/chatfeed"
	"github.com/teslashibe/go-commander/pkg/console"
	"github.com/teslashibe/go-commander/pkg/history"
	"github.com/teslashibe/go-commander/pkg/inference"
	"github.com/teslashibe/go-commander/pkg/keys"
	"github.com/teslashibe/go-commander/pkg/overlay"
	"github.com/teslashibe/go-commander/pkg/screenshot"
	"github.com/teslashibe/go-commander/pkg/source"
	"github.com/teslashibe/go-commander/pkg/speech"
	"github.com/teslashibe/go-commander/pkg/stt"
	"github.com/teslashibe/go-commander/pkg/turn"
)

// Options configures an App. The collaborator fields are optional; nil
// ones are built from System.
type Options struct {
	System *config.System

	// Characters selects characters by name; empty loads all of them.
	Characters []string

	// KeyInput, when set, is read for virtual key presses (one per line).
	KeyInput io.Reader

	// Transcript, when set, receives a readable log of every turn.
	Transcript io.Writer

	Logger *slog.Logger

	Chat        turn.ChatCompleter
	Voice       turn.Synthesizer
	Screen      turn.ScreenCapturer
	Transcriber source.Transcriber
}

// App is the main application orchestrator.
// It manages all components and their lifecycle.
type App struct {
	opts   Options
	sys    *config.System
	logger *slog.Logger

	cast       *character.Cast
	coord      *turn.Coordinator
	board      *keys.Board
	store      *history.Store
	dispatcher *turn.Dispatcher
	overlay    *overlay.Server

	provider inference.Provider
	router   *speech.Router
	buffer   *chatfeed.Buffer
	runners  []source.Runner
}

// New validates the configuration.
func New(opts Options) (*App, error) {
	if opts.System == nil {
		opts.System = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Chat == nil {
		if err := opts.System.Validate(); err != nil {
			return nil, err
		}
	}
	return &App{
		opts:   opts,
		sys:    opts.System,
		logger: opts.Logger.With("component", "app"),
		coord:  turn.NewCoordinator(opts.Logger),
		board:  keys.NewBoard(),
	}, nil
}

// Init loads characters, restores histories and builds every component.
// Call this after New() and before Run().
func (a *App) Init(ctx context.Context) error {
	if err := a.initCast(); err != nil {
		return err
	}
	if err := a.initHistory(); err != nil {
		return err
	}
	if err := a.initChat(ctx); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if err := a.initVoice(); err != nil {
		return fmt.Errorf("voice: %w", err)
	}
	if err := a.initSources(); err != nil {
		return err
	}

	a.overlay = overlay.New(overlay.Options{
		Port:      a.sys.Port,
		AssetsDir: a.sys.AssetsDir,
		Cast:      a.cast,
		Coord:     a.coord,
		Keys:      a.board,
		Logger:    a.opts.Logger,
	})

	onEvent := a.overlay.RecordTurn
	if a.opts.Transcript != nil {
		printer := console.New(a.opts.Transcript)
		onEvent = func(ev turn.Event) {
			a.overlay.RecordTurn(ev)
			printer.Handle(ev)
		}
	}

	screen := a.opts.Screen
	if screen == nil {
		screen = screenshot.New(a.sys.Screenshot.Command, a.opts.Logger)
	}
	a.dispatcher = turn.NewDispatcher(a.coord, a.cast, turn.Options{
		Chat:    a.opts.Chat,
		Voice:   a.opts.Voice,
		Screen:  screen,
		Store:   a.store,
		Logger:  a.opts.Logger,
		OnEvent: onEvent,
	})

	a.logger.Info("initialized",
		"characters", a.cast.Len(),
		"sources", len(a.runners),
		"chat_provider", a.sys.Chat.Provider,
	)
	return nil
}

func (a *App) initCast() error {
	all, err := loadCharacters(a.sys.CharactersDir)
	if err != nil {
		return err
	}
	cfgs, err := character.Select(all, a.opts.Characters)
	if err != nil {
		return err
	}
	if len(cfgs) == 0 {
		return fmt.Errorf("character: none defined in %s", a.sys.CharactersDir)
	}

	chars := make([]*character.Character, 0, len(cfgs))
	for _, cfg := range cfgs {
		chars = append(chars, character.New(cfg))
	}
	cast, err := character.NewCast(chars...)
	if err != nil {
		return err
	}
	defined := make(map[string]bool, len(all))
	for _, c := range all {
		defined[c.Name] = true
	}
	for _, ch := range cast.All() {
		for _, name := range cast.MissingPartners(ch) {
			if !defined[name] {
				return fmt.Errorf("%w: scene partner %q of %s", character.ErrNotFound, name, ch.Name())
			}
			a.logger.Warn("scene partner not loaded", "character", ch.Name(), "partner", name)
		}
	}
	a.cast = cast
	return nil
}

func loadCharacters(path string) ([]character.Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("character: %w", err)
	}
	if info.IsDir() {
		return character.LoadDir(path)
	}
	return character.LoadFile(path)
}

func (a *App) initHistory() error {
	store, err := history.NewStore(a.sys.HistoryDir)
	if err != nil {
		return err
	}
	a.store = store
	for _, ch := range a.cast.All() {
		cfg := ch.Config()
		loaded, err := store.Restore(ch.Name(), ch.History(), cfg.FirstSystemMessage.String(), cfg.History.Restore)
		if err != nil {
			a.logger.Warn("history reset", "character", ch.Name(), "error", err)
		}
		a.logger.Debug("history ready", "character", ch.Name(), "restored", loaded, "messages", ch.History().Len())
	}
	return nil
}

func (a *App) initChat(ctx context.Context) error {
	if a.opts.Chat != nil {
		return nil
	}
	c := a.sys.Chat
	common := []inference.Option{inference.WithModel(c.Model), inference.WithLogger(a.opts.Logger)}

	var providers []inference.Provider
	switch c.Provider {
	case config.ChatGemini:
		g, err := inference.NewGemini(ctx, append(common, inference.WithAPIKey(a.sys.Tokens.Google))...)
		if err != nil {
			return err
		}
		providers = append(providers, g)
	default:
		opts := append(common, inference.WithAPIKey(a.sys.Tokens.OpenAI))
		if c.BaseURL != "" {
			opts = append(opts, inference.WithBaseURL(c.BaseURL))
		}
		client, err := inference.NewClient(opts...)
		if err != nil {
			return err
		}
		providers = append(providers, client)

		if a.sys.Tokens.Google != "" {
			g, err := inference.NewGemini(ctx, inference.WithAPIKey(a.sys.Tokens.Google), inference.WithLogger(a.opts.Logger))
			if err != nil {
				a.logger.Warn("gemini fallback unavailable", "error", err)
			} else {
				providers = append(providers, g)
			}
		}
	}

	chain, err := inference.NewChain(a.opts.Logger, providers...)
	if err != nil {
		return err
	}
	a.provider = chain

	var opts []chat.Option
	if c.MaxTokens > 0 {
		opts = append(opts, chat.WithMaxTokens(c.MaxTokens))
	}
	if c.Temperature > 0 {
		opts = append(opts, chat.WithTemperature(c.Temperature))
	}
	a.opts.Chat = chat.New(chain, append(opts, chat.WithLogger(a.opts.Logger))...)
	return nil
}

func (a *App) initVoice() error {
	if a.opts.Voice != nil {
		return nil
	}
	var (
		player *audio.Player
		err    error
	)
	if len(a.sys.Audio.PlayerCommand) > 0 {
		player, err = audio.NewPlayerArgs(a.sys.Audio.PlayerCommand, a.opts.Logger)
	} else {
		player, err = audio.NewPlayer("", a.opts.Logger)
	}
	if err != nil {
		return err
	}
	a.router = speech.NewRouter(player, a.opts.Logger)
	if err := a.router.Build(a.cast, speech.ProviderFactory(a.sys.Tokens, a.opts.Logger)); err != nil {
		return err
	}
	a.opts.Voice = a.router
	return nil
}

func (a *App) initSources() error {
	log := a.opts.Logger
	a.runners = append(a.runners, source.NewHotkeys(a.coord, a.cast, a.board, log))

	if a.sys.InputVoiceStartButton != "" {
		tr, err := a.transcriber()
		if err != nil {
			return fmt.Errorf("transcriber: %w", err)
		}
		a.runners = append(a.runners, source.NewMicrophone(a.coord, a.cast, a.board, tr,
			a.sys.InputVoiceStartButton, a.sys.InputVoiceEndButton, log))
	}
	if a.sys.ScreenshotButton != "" {
		a.runners = append(a.runners, source.NewScreenshotToggle(a.coord, a.board, a.sys.ScreenshotButton, log))
	}

	if !a.sys.ChatFeedEnabled() {
		return nil
	}
	a.buffer = chatfeed.NewBuffer(a.sys.Twitch.HistoryLength)
	if a.sys.Twitch.Enabled {
		tw, err := chatfeed.NewTwitch(chatfeed.TwitchConfig{
			Channel: a.sys.Twitch.Channel,
			Nick:    a.sys.Twitch.Nick,
			Token:   a.sys.Tokens.Twitch,
		}, a.buffer, log)
		if err != nil {
			return err
		}
		a.runners = append(a.runners, tw)
	}
	for _, url := range a.sys.Feeds.URLs {
		a.runners = append(a.runners, chatfeed.NewFeed(url, a.sys.Feeds.PollInterval(), a.buffer, log))
	}
	a.runners = append(a.runners, source.NewChatFeed(a.coord, a.cast, a.buffer, a.sys.Twitch.PollInterval(), log))
	return nil
}

func (a *App) transcriber() (source.Transcriber, error) {
	if a.opts.Transcriber != nil {
		return a.opts.Transcriber, nil
	}
	sp := a.sys.Speech
	switch sp.Transcriber {
	case config.TranscriberConsole:
		if a.opts.KeyInput == io.Reader(os.Stdin) {
			return nil, errors.New("console transcriber and stdin keys cannot share stdin")
		}
		return stt.NewConsole(os.Stdin), nil
	default:
		return stt.NewWhisper(stt.WhisperConfig{
			BaseURL:  sp.BaseURL,
			APIKey:   a.sys.Tokens.OpenAI,
			Model:    sp.Model,
			Language: sp.Language,
			Record:   sp.RecordCommand,
		}, a.opts.Logger)
	}
}

// Run starts every source, the overlay and the dispatcher. It returns when
// ctx is done or the overlay fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("worker stopped", "worker", name, "error", err)
			}
		}()
	}

	for _, r := range a.runners {
		start(fmt.Sprintf("%T", r), r.Run)
	}
	if a.opts.KeyInput != nil {
		start("keys.stdin", func(ctx context.Context) error { return a.board.ReadLines(ctx, a.opts.KeyInput) })
	}
	start("dispatcher", a.dispatcher.Run)

	errc := make(chan error, 1)
	go func() { errc <- a.overlay.Run(ctx) }()

	a.logger.Info("running", "port", a.sys.Port, "characters", a.cast.Len())

	var err error
	select {
	case <-ctx.Done():
		err = <-errc
	case err = <-errc:
		if err != nil {
			err = fmt.Errorf("overlay: %w", err)
		}
	}
	cancel()
	wg.Wait()
	return err
}

// Shutdown saves every history and closes providers.
func (a *App) Shutdown() error {
	var errs []error
	if a.cast != nil && a.store != nil {
		for _, ch := range a.cast.All() {
			if err := a.store.Save(ch.Name(), ch.History().Messages()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if a.router != nil {
		errs = append(errs, a.router.Close())
	}
	if a.provider != nil {
		errs = append(errs, a.provider.Close())
	}
	a.logger.Info("shut down")
	return errors.Join(errs...)
}

// Cast returns the loaded characters.
func (a *App) Cast() *character.Cast { return a.cast }

// Coordinator returns the activation queue.
func (a *App) Coordinator() *turn.Coordinator { return a.coord }

// Keys returns the virtual keyboard.
func (a *App) Keys() *keys.Board { return a.board }

// Overlay returns the overlay server.
func (a *App) Overlay() *overlay.Server { return a.overlay }
