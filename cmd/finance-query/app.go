package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/config"
	"github.com/Verdenroz/finance-query-sub000/internal/auth"
	"github.com/Verdenroz/finance-query-sub000/internal/logger"
	"github.com/Verdenroz/finance-query-sub000/internal/metrics"
	redisstore "github.com/Verdenroz/finance-query-sub000/internal/store/redis"
	sqlitestore "github.com/Verdenroz/finance-query-sub000/internal/store/sqlite"
	"github.com/Verdenroz/finance-query-sub000/pkg/finance"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

const service = "finance-query"

// app holds everything the commands share. It is populated lazily so that
// offline commands never build an HTTP session.
type app struct {
	cfgPath  string
	logLevel string
	dbPath   string

	cfg     *config.Config
	log     *zap.Logger
	reg     *prometheus.Registry
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	client  *finance.Client
	backend *redisstore.Backend
	archive *sqlitestore.Archive
}

func (a *app) init() error {
	cfg, err := config.Load(a.cfgPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.dbPath != "" {
		cfg.SQLitePath = a.dbPath
	}
	a.cfg = cfg
	a.log = logger.InitTo(service, cfg.LogLevel, "stderr")
	a.reg = prometheus.NewRegistry()
	a.metrics = metrics.NewMetrics(a.reg)
	a.health = metrics.NewHealthStatus()
	return nil
}

// authHealth forwards refresh outcomes to both metrics and /healthz.
type authHealth struct {
	m *metrics.Metrics
	h *metrics.HealthStatus
}

func (o authHealth) AuthRefresh(path string, err error) {
	o.m.AuthRefresh(path, err)
	o.h.SetAuthOK(err == nil)
}

// session returns the shared upstream client, building it on first use.
func (a *app) session() (*finance.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	httpClient, err := yahoo.NewHTTPClient(yahoo.Config{
		Timeout:    a.cfg.Timeout,
		ProxyURL:   a.cfg.ProxyURL,
		DisableSSL: a.cfg.DisableSSL,
	})
	if err != nil {
		return nil, err
	}
	mgr := auth.NewManager(auth.Config{
		HTTPClient:         httpClient,
		UserAgent:          a.cfg.UserAgent,
		TTL:                a.cfg.AuthTTL,
		MinRefreshInterval: a.cfg.AuthMinRefresh,
		Logger:             a.log.Named("auth"),
		Observer:           authHealth{m: a.metrics, h: a.health},
	})
	c, err := finance.NewClient(
		finance.WithHTTPClient(httpClient),
		finance.WithAuth(mgr),
		finance.WithUserAgent(a.cfg.UserAgent),
		finance.WithRegion(a.cfg.Region),
		finance.WithLang(a.cfg.Lang),
		finance.WithLogger(a.log),
		finance.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// cacheBackend connects Redis when configured. A failed connection is
// logged and the in-memory cache is used instead.
func (a *app) cacheBackend(ctx context.Context) *redisstore.Backend {
	if a.backend != nil || a.cfg.RedisAddr == "" {
		return a.backend
	}
	b, err := redisstore.New(ctx, redisstore.Config{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		Logger:   a.log.Named("redis"),
		OnStateChange: func(_, to redisstore.State) {
			a.metrics.BreakerState(int(to))
		},
	})
	if err != nil {
		a.log.Warn("redis unavailable, continuing with in-memory cache", zap.Error(err))
		return nil
	}
	a.backend = b
	return b
}

func (a *app) openArchive() (*sqlitestore.Archive, error) {
	if a.archive != nil {
		return a.archive, nil
	}
	if dir := filepath.Dir(a.cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("archive dir: %w", err)
		}
	}
	ar, err := sqlitestore.Open(a.cfg.SQLitePath, a.log.Named("archive"))
	if err != nil {
		return nil, err
	}
	a.archive = ar
	return ar, nil
}

// serveMetrics starts /metrics and /healthz when an address is configured
// and returns the shutdown func.
func (a *app) serveMetrics() func() {
	if a.cfg.MetricsAddr == "" {
		return func() {}
	}
	srv := metrics.NewServer(a.cfg.MetricsAddr, a.health, a.reg, a.log.Named("metrics"))
	srv.Start()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			a.log.Warn("metrics server shutdown", zap.Error(err))
		}
	}
}

func (a *app) close() {
	if a.archive != nil {
		a.archive.Close()
	}
	if a.backend != nil {
		a.backend.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           service,
		Short:         "Market data, indicators, risk and backtests from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "YAML config file (env FQ_* overrides it)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "chart archive path (default from config)")

	root.AddCommand(
		quoteCmd(a),
		chartCmd(a),
		indicatorsCmd(a),
		riskCmd(a),
		backtestCmd(a),
		streamCmd(a),
		archiveCmd(a),
		watchCmd(a),
		marketCmd(a),
	)
	return root
}
