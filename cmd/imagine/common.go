package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oukeidos/imagine/internal/api"
	"github.com/oukeidos/imagine/internal/auth"
	"github.com/oukeidos/imagine/internal/cleanup"
	"github.com/oukeidos/imagine/internal/files"
	"github.com/oukeidos/imagine/internal/logger"
	"github.com/oukeidos/imagine/internal/prefs"
	"golang.org/x/term"
)

var (
	isTerminal   = term.IsTerminal
	getKey       = auth.GetKey
	getEnvKey    = auth.GetEnvKey
	getStatus    = auth.GetStatus
	promptForKey = auth.PromptForKey
	openPrefs    = func() (prefs.Store, error) { return prefs.OpenDefault() }
)

// resolvePublicKey finds the public key. No key at all is allowed: the
// server may run in open public mode.
func resolvePublicKey(allowEnv, envOnly bool) (string, string, error) {
	if envOnly {
		if key, ok := getEnvKey(); ok {
			return key, auth.SourceEnv, nil
		}
		return "", "", fmt.Errorf("env-only set but %s is not set", auth.PublicKeyEnvVar)
	}

	if key, source := getKey(false); key != "" {
		return key, source, nil
	}

	if allowEnv {
		if key, ok := getEnvKey(); ok {
			return key, auth.SourceEnv, nil
		}
	}

	if isTerminal(int(os.Stdin.Fd())) {
		key, err := promptForKey("Imagine public key (press Enter to skip): ")
		if err != nil {
			return "", "", fmt.Errorf("error reading public key: %w", err)
		}
		if strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key), auth.SourcePrompt, nil
		}
	}
	return "", auth.SourceNone, nil
}

type logOptions struct {
	logFilePath string
	debug       bool
}

// setupLogging opens the optional JSONL log file and initializes the
// global logger. A nil console silences terminal output.
func setupLogging(opts logOptions, console io.Writer) error {
	level := logger.LevelInfo
	if opts.debug {
		level = logger.LevelDebug
	}
	var logFileW io.Writer
	if opts.logFilePath != "" {
		if err := files.RejectLink(opts.logFilePath); err != nil {
			return err
		}
		f, err := os.OpenFile(opts.logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cleanup.Register("log file", f.Close)
		logFileW = f
	}
	logger.InitWithConsole(level, console, logFileW)
	return nil
}

var newAPIClient = func(server, key string) (*api.Client, error) {
	return api.NewClient(api.ResolveServer(server), key)
}

func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("Cancellation requested")
			cancel()
		case <-ctx.Done():
		}
	}()
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, stop
}
