package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"voice-search-assistant/internal/app"
	"voice-search-assistant/internal/assistant"
	"voice-search-assistant/internal/config"
	"voice-search-assistant/internal/observability/logging"
)

func main() {
	logPath := flag.String("log", "assistant-tui.log", "Log file path")
	language := flag.String("language", "", "Recognition language (defaults to config)")
	mode := flag.String("mode", "", "Reconcile mode: event or end (defaults to config)")
	autoplay := flag.Bool("autoplay", true, "Play a simulated utterance when the mic is toggled (mock provider)")
	altScreen := flag.Bool("alt-screen", true, "Use the alternate screen")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.STT.Provider == "mock" {
		cfg.STT.MockAutoplay = *autoplay
	}

	logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	application, err := app.New(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create application: %v\n", err)
		os.Exit(1)
	}
	defer application.Shutdown()
	// app.New logs to stdout; move logging off the terminal before drawing.
	lc := logging.DefaultConfig()
	lc.Level = cfg.Observability.LogLevel
	lc.Format = "console"
	lc.NoColor = true
	logging.InitWriter(lc, logFile)

	session, err := application.Sessions.Create(assistant.CreateOptions{Language: *language, Mode: *mode})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create session: %v\n", err)
		os.Exit(1)
	}

	opts := []tea.ProgramOption{}
	if *altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(session, cfg.Prompts), opts...)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "assistant-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}
