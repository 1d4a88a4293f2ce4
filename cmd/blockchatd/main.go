// Command blockchatd runs a single BlockChat network node: it bootstraps
// into (or founds) the network, then serves the protocol engine off a
// TCP listener until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/go-edu/blockchat/internal/account"
	"github.com/go-edu/blockchat/internal/bootstrap"
	"github.com/go-edu/blockchat/internal/config"
	"github.com/go-edu/blockchat/internal/cryptoutil"
	"github.com/go-edu/blockchat/internal/eventsink"
	"github.com/go-edu/blockchat/internal/metrics"
	"github.com/go-edu/blockchat/internal/network"
	"github.com/go-edu/blockchat/internal/protocol"
	"github.com/go-edu/blockchat/internal/wire"
)

func main() {
	configPath := flag.String("config", "blockchatd.yaml", "path to the daemon's YAML config file")
	flag.Parse()

	cfg, err := config.LoadDaemon(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "blockchatd: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	logger.Info().Msg("blockchatd: starting")

	priv, err := cryptoutil.GeneratePrivateKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("blockchatd: failed to generate node identity")
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, registry, logger)
	}

	result, err := bootstrap.Network(bootstrap.Config{
		TotalPeers:        cfg.TotalPeers,
		CentsPerPeer:      cfg.CentsPerPeer,
		BootstrapPeerAddr: cfg.BootstrapPeerAddr,
		BootstrapPort:     cfg.BootstrapPort,
		NetworkPort:       cfg.NetworkPort,
		PublicKey:         priv.PublicKey(),
		Logger:            logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("blockchatd: failed to bootstrap the network")
	}

	logger.Info().
		Int("peers", result.Peers.Len()).
		Uint32("local_id", result.LocalID).
		Msg("blockchatd: network formed")

	hardAccounts := account.NewCatalog(result.Peers)
	for _, tsx := range result.Chain.LastBlock().Transactions() {
		if err := hardAccounts.ProcessTransaction(&tsx); err != nil {
			logger.Fatal().Err(err).Msg("blockchatd: failed to apply a genesis transaction")
		}
	}

	var sink eventsink.Sink = eventsink.NoopSink{}
	if cfg.History {
		sink = eventsink.NewHistorySink()
	}

	outgoing := make(chan wire.Broadcast, 256)
	engine := protocol.New(result.LocalID, result.Peers, hardAccounts, result.Chain, priv, outgoing, sink, m, logger)

	var limiter *rate.Limiter
	if cfg.RateLimit.ConnectionsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.ConnectionsPerSecond), cfg.RateLimit.Burst)
	}
	listener := network.NewListener(result.NetworkListener, limiter, logger)
	broadcaster := network.NewBroadcaster(result.LocalID, result.Peers, logger)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan network.Event, 256)

	go listener.Serve(ctx, events)
	go broadcaster.Run(ctx, outgoing)
	go engine.Run(ctx, events)

	logger.Info().Str("addr", listener.Addr().String()).Msg("blockchatd: serving")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("blockchatd: shutting down")
	cancel()
	listener.Close()
	logger.Info().Msg("blockchatd: stopped")
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveMetrics(addr string, registry *prometheus.Registry, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("blockchatd: metrics server failed")
	}
}
