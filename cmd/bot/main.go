// Gift Monitor — watches four Telegram gift marketplaces for new
// listings and notifies subscribed users within seconds.
//
// Architecture:
//
//	main.go                  — entry point: config, wiring, signal handling
//	monitor/poller.go        — one polling loop per venue, baseline-then-dispatch
//	monitor/supervisor.go    — shared lifecycle, venue switches, rule-change resets
//	marketplace/             — REST adapters for Portals, Tonnel, MRKT, GetGems
//	normalize/               — venue payloads → the canonical Listing
//	seen/                    — bounded per-venue dedup memory
//	userconf/                — per-user filter rules (JSON file store + cache)
//	filter/                  — rule matching, recipient resolution
//	enrich/                  — floor prices and sales history, cached, best-effort
//	notify/                  — message formatting, Telegram delivery, fan-out
//	api/                     — HTTP/WebSocket feed of dispatched listings
//
// The flow: a poller sees a listing it has never seen, the dispatcher
// enriches it, matching users get a Telegram message and the WebSocket
// feed gets an event. The first sweep per venue only marks the backlog,
// so a restart never floods anyone.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"giftwatch/internal/api"
	"giftwatch/internal/config"
	"giftwatch/internal/enrich"
	"giftwatch/internal/filter"
	"giftwatch/internal/marketplace"
	"giftwatch/internal/monitor"
	"giftwatch/internal/notify"
	"giftwatch/internal/seen"
	"giftwatch/internal/userconf"
	"giftwatch/pkg/types"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("GIFT_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	tokens := marketplace.NewTokenStore(map[types.Marketplace]string{
		types.Portals: cfg.Marketplaces.Portals.Auth,
		types.Tonnel:  cfg.Marketplaces.Tonnel.Auth,
		types.MRKT:    cfg.Marketplaces.MRKT.Auth,
		types.GetGems: cfg.Marketplaces.GetGems.Auth,
	})
	provider := marketplace.StaticTokens{Store: tokens}

	// One adapter per venue that has credentials.
	adapters := make(map[types.Marketplace]marketplace.Adapter)
	if tokens.Has(types.Portals) {
		adapters[types.Portals] = marketplace.NewPortalsClient(
			cfg.Marketplaces.Portals.BaseURL, tokens, logger)
	}
	if tokens.Has(types.Tonnel) {
		gate := marketplace.NewTonnelGate(rate.Every(cfg.Monitor.TonnelMinInterval))
		adapters[types.Tonnel] = marketplace.NewTonnelClient(
			cfg.Marketplaces.Tonnel.BaseURL, tokens, gate, logger)
	}
	if tokens.Has(types.MRKT) {
		adapters[types.MRKT] = marketplace.NewMRKTClient(
			cfg.Marketplaces.MRKT.BaseURL, tokens, logger)
	}
	if tokens.Has(types.GetGems) {
		adapters[types.GetGems] = marketplace.NewGetGemsClient(
			cfg.Marketplaces.GetGems.BaseURL, tokens, logger)
	}

	users, err := userconf.OpenFile(cfg.Users.File)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	rules := userconf.NewCache(users)
	matcher := filter.New(rules, logger)

	// Tonnel is the only venue with a usable sales history.
	enricher := enrich.New(adapters, adapters[types.Tonnel], enrich.Config{
		FloorTimeout:  cfg.Enrich.FloorTimeout,
		SalesTimeout:  cfg.Enrich.SalesTimeout,
		FloorCacheTTL: cfg.Enrich.FloorCacheTTL,
		TonnelFeeRate: cfg.Enrich.TonnelFeeRate,
		SalesLimit:    cfg.Enrich.SalesLimit,
	}, logger)

	sender, err := notify.NewTelegramSender(cfg.Notify.BotToken, cfg.Notify.SendTimeout, logger)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	var apiServer *api.Server
	var sink notify.Sink
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, logger)
		sink = apiServer.Hub()
	}

	dispatcher := notify.NewDispatcher(enricher, matcher, sender, sink, notify.Config{
		QueueSize:   cfg.Notify.QueueSize,
		Concurrency: cfg.Notify.Concurrency,
	}, logger)

	seenSet := seen.New(cfg.Monitor.SeenCap)
	pollers := make([]*monitor.Poller, 0, len(adapters))
	for mp, adapter := range adapters {
		mc := cfg.Marketplaces.ByMarketplace(mp)
		pollers = append(pollers, monitor.NewPoller(
			adapter, provider, tokens, rules, seenSet, dispatcher,
			mc.PollInterval, mc.PageLimit, logger))
	}
	supervisor := monitor.NewSupervisor(pollers, seenSet, rules, users.Changes(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if apiServer != nil {
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("api server failed", "error", err)
			}
		}()
		logger.Info("api server started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	go dispatcher.Run(ctx)
	go supervisor.Run(ctx)

	logger.Info("gift monitor started",
		"venues", len(adapters),
		"users_file", cfg.Users.File,
		"queue_size", cfg.Notify.QueueSize,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop api server", "error", err)
		}
	}
	cancel()
	logger.Info("shutdown complete")
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
