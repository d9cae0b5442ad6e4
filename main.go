package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"axon/pkg/agent"
	"axon/pkg/channels"
	_ "axon/pkg/channels/telegram" // channel registration
	_ "axon/pkg/channels/web"      // channel registration
	"axon/pkg/config"
	"axon/pkg/gateway"
	"axon/pkg/handler"
	"axon/pkg/llm"
	_ "axon/pkg/llm/geminieng" // engine provider registration
	_ "axon/pkg/llm/ollamaeng" // engine provider registration
	_ "axon/pkg/llm/openaieng" // engine provider registration
	"axon/pkg/monitor"
)

func main() {
	// Logging is configured before anything else so startup errors are
	// formatted consistently.
	bootCfg := config.LoadSystemConfig("system.json")
	monitor.SetupSlog(bootCfg.LogLevel)
	monitor.PrintBanner()

	cfg, sysCfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	engine, err := llm.NewFromConfig(cfg.Engines, llm.LoaderOptions{
		MaxRetries: sysCfg.MaxRetries,
		RetryDelay: time.Duration(sysCfg.RetryDelayMs) * time.Millisecond,
	})
	if err != nil {
		slog.Error("Failed to initialize engines", "error", err)
		os.Exit(1)
	}
	llm.SetDebugAll(engine, sysCfg.DebugChunks)

	store, err := agent.NewStore(cfg.Agent.StateDir)
	if err != nil {
		slog.Error("Failed to open state store", "error", err)
		os.Exit(1)
	}

	h := handler.New(engine, cfg, sysCfg, store)

	gw, err := gateway.NewBuilder().
		WithMonitor(monitor.NewCLIMonitor()).
		WithSystemConfig(sysCfg).
		WithChannelLoader(func(g *gateway.Manager) {
			channels.LoadFromConfig(g, cfg.Channels, h, sysCfg)
		}).
		WithHandler(h).
		Build()
	if err != nil {
		slog.Error("Failed to build gateway", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config changes apply the log level live; everything else needs a
	// restart because engines and channels are built once at startup.
	reloadCh := config.WatchConfig(ctx, "config.json", "system.json")
	go func() {
		for range reloadCh {
			newSys := config.LoadSystemConfig("system.json")
			if newSys.LogLevel != sysCfg.LogLevel {
				monitor.SetupSlog(newSys.LogLevel)
				slog.Info("Log level updated", "level", newSys.LogLevel)
			}
			slog.Info("Configuration changed; restart to apply engine or channel changes")
		}
	}()

	slog.Info("Axon is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	slog.Info("Shutdown signal received, stopping services")
	gw.StopAll()
	h.Shutdown()
	slog.Info("Bye")
}
