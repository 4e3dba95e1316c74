// Command feedsim serves live remaining-seat channels for local
// development of railbook.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/orchestra-mcp/railbook/config"
	"github.com/orchestra-mcp/railbook/src/bridge"
	"github.com/orchestra-mcp/railbook/src/feedserver"
	"github.com/orchestra-mcp/railbook/src/hub"
	"github.com/orchestra-mcp/railbook/src/inventory"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/valyala/fasthttp"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := run(logger); err != nil {
		logger.Fatal().Err(err).Msg("feedsim failed")
	}
}

func run(logger zerolog.Logger) error {
	cfg := config.FeedSimFromEnv()
	rcfg := bridge.RedisConfigFromEnv()

	flags := pflag.NewFlagSet("feedsim", pflag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flags.DurationVar(&cfg.PushInterval, "push-interval", cfg.PushInterval, "how often each channel is pushed")
	flags.IntVar(&cfg.MaxConnections, "max-connections", cfg.MaxConnections, "subscriber limit")
	flags.StringVar(&rcfg.Addr, "redis-addr", rcfg.Addr, "Redis address for counts and the instance bridge")
	standalone := flags.Bool("standalone", false, "keep counts in memory and skip Redis")
	verbose := flags.BoolP("verbose", "v", false, "debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *verbose {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	if cfg.PushInterval <= 0 {
		return fmt.Errorf("push interval must be positive")
	}

	h := hub.New(logger)
	go h.Run()
	defer h.Stop()

	var store inventory.Store = inventory.NewMemory()
	var rb *bridge.RedisBridge
	if !*standalone {
		client := rcfg.NewClient()
		defer client.Close()
		rb = bridge.NewRedisBridge(client, rcfg.Prefix, h, logger)
		if err := rb.Start(); err != nil {
			// Redis is optional; without it this instance runs alone.
			logger.Warn().Err(err).Str("redis_addr", rcfg.Addr).Msg("redis unavailable, running standalone")
			rb = nil
		} else {
			defer rb.Stop()
			h.SetBridge(rb)
			store = inventory.NewRedisStore(client, inventory.DefaultTTL)
			logger.Info().Str("redis_addr", rcfg.Addr).Msg("redis bridge connected")
		}
	}

	opts := feedserver.Options{Config: cfg, Hub: h, Store: store, Logger: logger}
	if rb != nil {
		opts.Bridge = rb
	}
	srv := feedserver.New(opts)
	defer srv.Close()

	server := &fasthttp.Server{
		Handler: srv.Handler(),
		Name:    "feedsim",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Dur("push_interval", cfg.PushInterval).Msg("feedsim listening")
		errc <- server.ListenAndServe(cfg.Addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	return server.Shutdown()
}
