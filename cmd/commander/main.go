// Command commander runs a scene of voice-driven characters: hotkeys, a
// shared microphone and live chat activate them, and a browser overlay
// shows who is talking.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-commander/internal/config"
	"github.com/teslashibe/go-commander/internal/log"
	"github.com/teslashibe/go-commander/pkg/app"
)

type flags struct {
	config     string
	characters string
	tokens     string
	port       string
	debug      bool
	stdinKeys  bool
	quiet      bool
	names      []string
}

func main() {
	f := parseFlags()

	level := "info"
	if f.debug {
		level = "debug"
	}
	log.Init(level)
	logger := log.L()

	sys, err := loadSystem(f)
	if err != nil {
		fatal("configuration error", err)
	}

	opts := app.Options{System: sys, Characters: f.names, Logger: logger}
	if f.stdinKeys {
		opts.KeyInput = os.Stdin
	}
	if !f.quiet {
		opts.Transcript = os.Stdout
	}

	a, err := app.New(opts)
	if err != nil {
		fatal("configuration error", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := a.Init(ctx); err != nil {
		fatal("initialization failed", err)
	}
	defer func() {
		if err := a.Shutdown(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	if err := a.Run(ctx); err != nil {
		logger.Error("runtime error", "error", err)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.config, "config", "", "Settings file (JSON or YAML)")
	flag.StringVar(&f.characters, "characters", "", "Character file or directory (overrides the settings file)")
	flag.StringVar(&f.tokens, "tokens", "tokens.json", "Optional JSON file with API tokens")
	flag.StringVar(&f.port, "port", "", "Overlay HTTP port (overrides the settings file)")
	flag.BoolVar(&f.debug, "debug", false, "Enable verbose debug logging")
	flag.BoolVar(&f.stdinKeys, "stdin-keys", false, "Read key names from stdin, one per line")
	flag.BoolVar(&f.quiet, "quiet", false, "Do not print the turn transcript")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [character ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	f.names = flag.Args()
	return f
}

func loadSystem(f flags) (*config.System, error) {
	sys, err := config.Load(f.config)
	if err != nil {
		return nil, err
	}
	if f.characters != "" {
		sys.CharactersDir = f.characters
	}
	if f.port != "" {
		sys.Port = f.port
	}
	sys.Tokens, err = config.LoadTokens(f.tokens)
	if err != nil {
		return nil, err
	}
	return sys, nil
}

func fatal(msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
