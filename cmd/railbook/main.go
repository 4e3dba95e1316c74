// Command railbook is the terminal train booking client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/orchestra-mcp/railbook/config"
	"github.com/orchestra-mcp/railbook/src/api"
	"github.com/orchestra-mcp/railbook/src/app"
	"github.com/orchestra-mcp/railbook/src/feed"
	"github.com/orchestra-mcp/railbook/src/session"
	"github.com/orchestra-mcp/railbook/src/snapshot"
	"github.com/orchestra-mcp/railbook/src/tui"
	"github.com/orchestra-mcp/railbook/src/types"
	"github.com/orchestra-mcp/railbook/src/viewport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "railbook:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()

	flags := pflag.NewFlagSet("railbook", pflag.ContinueOnError)
	flags.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "gateway base URL")
	flags.StringVar(&cfg.FeedURL, "feed-url", cfg.FeedURL, "live feed base URL (defaults to --base-url)")
	flags.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "live channels kept open at once")
	flags.StringVar(&cfg.CredentialFile, "credential-file", cfg.CredentialFile, "where the sign-in token is kept")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	logFile := flags.String("log-file", "railbook.log", "log destination; the terminal is taken by the UI")
	orderID := flags.String("order", "", "open the payment page for this order")
	metricsAddr := flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	from := flags.String("from", "", "departure station")
	to := flags.String("to", "", "arrival station")
	date := flags.String("date", time.Now().Format(time.DateOnly), "travel date, YYYY-MM-DD")
	seat := flags.String("seat", "", "seat class filter; enables live counts on the list")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	logger := zerolog.New(f).Level(cfg.Level()).With().Timestamp().Logger()

	creds := session.NewStore(cfg.CredentialFile)
	if _, err := creds.Load(); err != nil {
		logger.Warn().Err(err).Msg("credential file unreadable, starting signed out")
	}

	reg := prometheus.NewRegistry()
	metrics := feed.NewMetrics(reg)
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	client := api.New(api.Options{
		BaseURL: cfg.BaseURL,
		Timeout: cfg.RequestTimeout,
		Token:   creds.Token,
		Logger:  logger,
	})
	dialer, err := feed.NewWSDialer(cfg.Feed(), creds.Token, cfg.RequestTimeout)
	if err != nil {
		return err
	}

	bridge := tui.NewBridge()
	var ctrl *app.Controller
	feeds := feed.New(feed.Options{
		Dialer:   dialer,
		Store:    snapshot.NewStore(),
		Logger:   logger,
		Metrics:  metrics,
		OnUpdate: func(u feed.Update) { ctrl.OnFeedUpdate(u) },
	})
	defer feeds.Close()

	layout := viewport.DefaultConfig()
	layout.RowHeight = 2
	layout.Viewport = 20
	ctrl = app.New(app.Options{
		Backend:     client,
		Feeds:       feeds,
		Credentials: creds,
		Logger:      logger,
		MaxConns:    cfg.MaxConns,
		Layout:      layout,
		OnRender:    bridge.Publish,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Run(ctx)
	}()

	query := types.SearchQuery{DepartureStation: *from, ArrivalStation: *to, TravelDate: *date, SeatType: *seat}
	if query.DepartureStation != "" && query.ArrivalStation != "" {
		ctrl.Post(app.Search{Query: query})
	}
	if *orderID != "" {
		ctrl.Post(app.AttachOrder{OrderID: *orderID})
	}

	model := tui.New(ctrl, bridge, tui.Options{Query: query})
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()

	cancel()
	<-done
	logger.Info().Msg("railbook exited")
	return err
}
