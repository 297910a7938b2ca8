package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hbeckert/concierge/internal/bridge"
	"github.com/hbeckert/concierge/internal/browser"
	"github.com/hbeckert/concierge/internal/config"
	"github.com/hbeckert/concierge/internal/dashboard"
	"github.com/hbeckert/concierge/internal/registry"
	"github.com/hbeckert/concierge/internal/store"
	"github.com/hbeckert/concierge/internal/supervisor"
	"github.com/hbeckert/concierge/internal/tabs"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// tabsPollInterval is the read-model rebuild fallback for consumers that
// cannot rely on push notifications.
const tabsPollInterval = 5 * time.Second

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the window host and dashboard API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.yaml (optional)")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store)
	if err != nil {
		return err
	}

	// Bindings load before any window can open.
	reg, err := registry.New(st, log)
	if err != nil {
		return err
	}

	bus := bridge.New(log)
	if cfg.Notify.Command != "" {
		bus.AddSink(&bridge.NotifyCommandSink{Command: cfg.Notify.Command, Log: log})
	}
	if cfg.Notify.SoundCommand != "" {
		bus.AddSink(&bridge.SoundCommandSink{Command: cfg.Notify.SoundCommand, Log: log})
	}
	if cfg.Slack.BotToken != "" {
		sink, err := bridge.NewSlackSink(cfg.Slack.BotToken, cfg.Slack.Channel, nil, log)
		if err != nil {
			return err
		}
		bus.AddSink(sink)
	}
	if cfg.Discord.BotToken != "" {
		sink, err := bridge.NewDiscordSink(cfg.Discord.BotToken, cfg.Discord.ChannelID, nil, log)
		if err != nil {
			return err
		}
		bus.AddSink(sink)
	}

	sup := supervisor.New(ctx, supervisor.Opts{
		Registry:  reg,
		Launcher:  &browser.ChromeLauncher{Log: log},
		Bus:       bus,
		Store:     st,
		DataDir:   cfg.DataDir,
		Browser:   cfg.Browser,
		Platforms: cfg.Platforms,
		Log:       log,
	})

	coord := tabs.New(reg, sup)
	reg.OnChange(bus.PublishTabsChanged)

	// Polling fallback keeps the read model honest even if a notification
	// is missed.
	go func() {
		ticker := time.NewTicker(tabsPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				coord.Rebuild()
			}
		}
	}()

	if cfg.Mirror.BaseURL != "" {
		mirrorCron, err := dashboard.StartMirror(ctx, dashboard.MirrorOpts{
			BaseURL:  cfg.Mirror.BaseURL,
			Schedule: cfg.Mirror.Schedule,
			Registry: reg,
			Log:      log,
		})
		if err != nil {
			return err
		}
		defer mirrorCron.Stop()
	}

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, log, func(next *config.Config) {
				sup.SetTuning(next.Platforms)
			})
			if err != nil {
				log.Warn().Err(err).Msg("config watch stopped")
			}
		}()
	}

	return dashboard.Start(ctx, dashboard.Opts{
		Registry:   reg,
		Supervisor: sup,
		Tabs:       coord,
		Bus:        bus,
		Store:      st,
		Port:       cfg.HTTPPort,
		Out:        cmd.OutOrStdout(),
		Log:        log,
	})
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
