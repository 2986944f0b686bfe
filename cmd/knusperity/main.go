// knusperity runs the group-ordering bot as a headless service. Chat
// updates arrive over NATS, outbound chat actions go back out over NATS
// request/reply, and order records land in the configured store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/posixpascal/knusperity/adapters/knuspr"
	"github.com/posixpascal/knusperity/adapters/nats"
	"github.com/posixpascal/knusperity/adapters/prometheus"
	"github.com/posixpascal/knusperity/adapters/redis"
	"github.com/posixpascal/knusperity/core/bot"
	"github.com/posixpascal/knusperity/core/order"
	"github.com/posixpascal/knusperity/internal/config"
	"github.com/posixpascal/knusperity/ports/automation"
	"github.com/posixpascal/knusperity/ports/kv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connect := nats.ReuseConnection(nats.ConnectURL(cfg.NATS.URL))

	store, closeStore, err := newStore(ctx, cfg, connect)
	if err != nil {
		return err
	}
	defer closeStore()

	catalog, err := knuspr.NewClient(knuspr.Options{
		BaseURL:   cfg.Storefront.BaseURL,
		Logger:    log,
		CacheSize: cfg.Storefront.CacheSize,
		CacheTTL:  cfg.Storefront.ProductCacheTTL(),
	})
	if err != nil {
		return err
	}

	transport, err := nats.NewTransport(nats.TransportConfig{
		Connect: connect,
		Log:     log,
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	var treeMetrics *prometheus.TreeMetrics
	if cfg.Metrics.Enabled {
		treeMetrics = prometheus.New()
	}

	opts := bot.Options{
		Transport: transport,
		Catalog:   catalog,
		// Checkout automation stops at the order summary; the storefront
		// session itself is driven by a separate headless worker.
		Automation: automation.NewFakeService(),
		Orders:     order.NewStore(store),
		Hosts:      cfg.Storefront.Hosts,
		Context:    ctx,
		Logger:     log,
	}
	if treeMetrics != nil {
		opts.Metrics = treeMetrics
	}
	b, err := bot.New(opts)
	if err != nil {
		return err
	}
	defer b.Shutdown()

	gateway, err := nats.NewGateway(nats.GatewayConfig{
		Connect: connect,
		Handler: b,
		Subject: cfg.Chat.Subject,
		Logger:  log,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	if treeMetrics != nil {
		go serveMetrics(log, cfg.Metrics.Listen, treeMetrics)
	}

	log.Info("knusperity is up",
		slog.String("subject", cfg.Chat.Subject),
		slog.String("store", cfg.Store.Backend),
	)
	<-ctx.Done()
	log.Info("shutting down")
	return nil
}

func newLogger(cfg config.Log) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.JSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
}

func newStore(ctx context.Context, cfg config.Config, connect nats.Connector) (kv.Store, func(), error) {
	switch cfg.Store.Backend {
	case "file":
		store, err := kv.NewFileStore(cfg.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "redis":
		store, err := redis.NewStore(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "nats":
		store, err := nats.NewStore(ctx, nats.StoreConfig{
			Connect: connect,
			Bucket:  "knusperity_orders",
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func serveMetrics(log *slog.Logger, listen string, m *prometheus.TreeMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	log.Info("metrics listening", slog.String("addr", listen))
	if err := http.ListenAndServe(listen, mux); err != nil {
		log.Error("metrics server stopped", slog.Any("error", err))
	}
}
