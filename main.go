// nanochat - a terminal chat client for the NanoGPT API.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/nanochat/internal/api"
	"github.com/morganforge/nanochat/internal/config"
	"github.com/morganforge/nanochat/internal/connectivity"
	"github.com/morganforge/nanochat/internal/controller"
	"github.com/morganforge/nanochat/internal/export"
	"github.com/morganforge/nanochat/internal/logging"
	"github.com/morganforge/nanochat/internal/model"
	"github.com/morganforge/nanochat/internal/store"
	"github.com/morganforge/nanochat/internal/ui"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.nanochat/config.toml)")
	modelName := flag.String("model", "", "override the default model for this run")
	exportFormat := flag.String("export-format", "markdown", "transcript export format: markdown, json, html")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("nanochat %s\n", version)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *modelName != "" {
		cfg.API.DefaultModel = *modelName
	}

	if err := runTUI(cfg, *exportFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func runTUI(cfg *config.Config, exportFormat string) error {
	logPath, err := cfg.LogPath()
	if err != nil {
		return fmt.Errorf("failed to resolve log path: %w", err)
	}
	logCloser, err := logging.Setup(logPath, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	dbPath, err := cfg.DBPath()
	if err != nil {
		return fmt.Errorf("failed to resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	defer st.Close()

	client := api.NewClient(api.Config{
		BaseURL:           cfg.API.BaseURL,
		APIKey:            cfg.API.APIKey,
		Timeout:           cfg.RequestTimeout(),
		MaxRetries:        cfg.API.MaxRetries,
		RetryDelay:        cfg.RetryDelay(),
		PenaltyParams:     cfg.API.PenaltyParams,
		RequestsPerMinute: cfg.API.RequestsPerMinute,
	})

	monitor := connectivity.NewMonitor(
		connectivity.DialProber(cfg.Connectivity.ProbeAddr, cfg.ProbeTimeout()),
		cfg.ProbeInterval())
	defer monitor.Stop()

	// The program reference is captured by the emit closure before the
	// program exists; nothing emits until p.Run starts the event loop.
	var p *tea.Program
	emit := func(msg tea.Msg) { p.Send(msg) }

	ctrl := controller.New(cfg, st, client, monitor, emit)
	app := ui.NewApp(cfg, ctrl, exporter(cfg, st, exportFormat))

	p = tea.NewProgram(app, tea.WithAltScreen())

	// Forward connectivity transitions into the event loop.
	transitions := monitor.Subscribe()
	go func() {
		for state := range transitions {
			p.Send(controller.ConnectivityMsg{State: state})
		}
	}()
	monitor.Start()

	// Hot-reload config edits. The watcher goroutine never touches cfg;
	// the reloaded config travels as an event and is applied on the UI
	// goroutine like every other background result.
	if cfgPath, err := config.ConfigPath(); err == nil {
		watcher, err := config.NewWatcher(cfgPath, func(next *config.Config) {
			p.Send(controller.ConfigReloadedMsg{Config: next})
		})
		if err == nil && watcher.Watch() == nil {
			defer watcher.Close()
		}
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run nanochat: %w", err)
	}
	return nil
}

// exporter writes a session transcript under the config directory and
// returns the written path.
func exporter(cfg *config.Config, st *store.Store, formatName string) ui.Exporter {
	format := export.FormatMarkdown
	switch formatName {
	case "json":
		format = export.FormatJSON
	case "html":
		format = export.FormatHTML
	}

	return func(sess *model.Session) (string, error) {
		messages, err := st.GetAllMessages(sess.ID)
		if err != nil {
			return "", err
		}
		base, err := config.ConfigDir()
		if err != nil {
			return "", err
		}
		dir := filepath.Join(base, "exports")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", err
		}
		path := filepath.Join(dir, sess.ID+format.Ext())
		t := &export.Transcript{Session: sess, Messages: messages}
		if err := t.WriteFile(path, format); err != nil {
			return "", err
		}
		return path, nil
	}
}
