package main

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/internal/logger"
	"github.com/Verdenroz/finance-query-sub000/internal/markethours"
	"github.com/Verdenroz/finance-query-sub000/internal/notification"
	"github.com/Verdenroz/finance-query-sub000/pkg/finance"
)

// watcher polls a symbol set on a cron schedule: quotes every tick, and
// charts pushed into the archive writer when one is attached.
type watcher struct {
	tickers  *finance.Tickers
	interval finance.Interval
	rng      finance.Range
	charts   chan<- *finance.Chart
	log      *zap.Logger
	onFetch  func(time.Time)
	timeout  time.Duration
	gate     func(time.Time) bool // nil polls around the clock

	// alerts fire once when |change_percent| crosses alertPct and re-arm
	// after the move falls back under it
	notify   notification.Notifier
	alertPct float64

	mu      sync.Mutex
	running bool
	alerted map[string]bool
}

func (w *watcher) checkAlerts(ctx context.Context, quotes map[string]finance.Quote) {
	if w.notify == nil || w.alertPct <= 0 {
		return
	}
	if w.alerted == nil {
		w.alerted = make(map[string]bool)
	}
	for sym, q := range quotes {
		if !q.ChangePercent.Valid {
			continue
		}
		pct := q.ChangePercent.Float64
		if math.Abs(pct) < w.alertPct {
			w.alerted[sym] = false
			continue
		}
		if w.alerted[sym] {
			continue
		}
		w.alerted[sym] = true
		level := notification.AlertWarning
		if math.Abs(pct) >= 2*w.alertPct {
			level = notification.AlertCritical
		}
		alert := notification.Alert{
			Level:   level,
			Symbol:  sym,
			Title:   fmt.Sprintf("%s %+.2f%%", sym, pct),
			Message: fmt.Sprintf("%s at %.2f moved %+.2f%% on the day", sym, q.Price.Float64, pct),
		}
		if err := w.notify.Send(ctx, alert); err != nil {
			w.log.Warn("alert delivery failed", logger.Fields(ctx, zap.String("symbol", sym), zap.Error(err))...)
		}
	}
}

// poll runs one round. Overlapping rounds are skipped rather than queued.
func (w *watcher) poll(ctx context.Context) {
	if w.gate != nil && !w.gate(time.Now()) {
		w.log.Debug("market closed, poll skipped")
		return
	}
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.log.Warn("previous poll still running, skipping")
		return
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ctx = logger.WithTraceID(ctx, logger.NewTraceID())
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	quotes, err := w.tickers.Quotes(ctx)
	if err != nil {
		w.log.Error("quote poll failed", logger.Fields(ctx, zap.Error(err))...)
		return
	}
	for sym, q := range quotes.Results {
		w.log.Info("quote", logger.Fields(ctx,
			zap.String("symbol", sym),
			zap.Float64("price", q.Price.Float64),
			zap.Float64("change_percent", q.ChangePercent.Float64),
		)...)
	}
	for sym, msg := range quotes.Errors {
		w.log.Warn("quote missing", logger.Fields(ctx, zap.String("symbol", sym), zap.String("error", msg))...)
	}
	w.checkAlerts(ctx, quotes.Results)
	if w.onFetch != nil {
		w.onFetch(time.Now())
	}

	if w.charts == nil {
		return
	}
	charts, err := w.tickers.Charts(ctx, w.interval, w.rng)
	if err != nil {
		w.log.Error("chart poll failed", logger.Fields(ctx, zap.Error(err))...)
		return
	}
	for _, ch := range charts.Results {
		select {
		case w.charts <- ch:
		case <-ctx.Done():
			return
		}
	}
}

func watchCmd(a *app) *cobra.Command {
	var (
		f        chartFlags
		schedule string
		symbols  []string
		archive  bool
		hours    bool
		alertPct float64
		webhook  string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Poll quotes on a cron schedule, optionally archiving charts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if schedule == "" {
				schedule = a.cfg.WatchSchedule
			}
			if len(symbols) == 0 {
				symbols = a.cfg.ParseSymbols()
			}

			c, err := a.session()
			if err != nil {
				return err
			}
			opts := []finance.Option{
				finance.WithClient(c),
				finance.WithMaxConcurrency(a.cfg.MaxConcurrency),
				finance.WithCacheTTL(a.cfg.CacheTTL),
			}
			backend := a.cacheBackend(ctx)
			if backend != nil {
				opts = append(opts, finance.WithCacheBackend(backend))
			}
			tk, err := finance.NewTickers(symbols, opts...)
			if err != nil {
				return err
			}

			interval, rng := f.values()
			if err := finance.ValidateChart(interval, rng); err != nil {
				return err
			}
			w := &watcher{
				tickers:  tk,
				interval: interval,
				rng:      rng,
				log:      a.log.Named("watch"),
				onFetch:  a.health.SetLastFetchTime,
				timeout:  a.cfg.Timeout * 3,
			}
			if hours {
				w.gate = markethours.IsMarketOpen
			}
			if alertPct > 0 {
				w.alertPct = alertPct
				w.notify = notification.NewLogNotifier(a.log.Named("alert"))
				if webhook != "" {
					w.notify = notification.NewWebhookNotifier(webhook, nil, a.log.Named("alert"))
				}
			}

			var wg sync.WaitGroup
			if archive {
				ar, err := a.openArchive()
				if err != nil {
					return err
				}
				ch := make(chan *finance.Chart, len(symbols))
				w.charts = ch
				wg.Add(1)
				go func() {
					defer wg.Done()
					ar.Run(ctx, ch)
				}()
			}

			var rdb *goredis.Client
			if backend != nil {
				rdb = backend.Client()
			}
			var db *sql.DB
			if a.archive != nil {
				db = a.archive.DB()
			}
			if rdb != nil || db != nil {
				a.health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)
			}

			stopMetrics := a.serveMetrics()
			defer stopMetrics()

			sched := cron.New()
			if _, err := sched.AddFunc(schedule, func() { w.poll(ctx) }); err != nil {
				return fmt.Errorf("watch schedule %q: %w", schedule, err)
			}
			sched.Start()
			a.log.Info("watch started",
				zap.Strings("symbols", tk.Symbols()),
				zap.String("schedule", schedule),
				zap.Bool("archive", archive))

			w.poll(ctx)
			<-ctx.Done()

			// wait for a poll in flight before the archive drains
			<-sched.Stop().Done()
			wg.Wait()
			a.log.Info("watch stopped")
			return nil
		},
	}
	f.register(cmd, "1d", "5d")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron spec or @every duration (default from config)")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "symbols to poll (default from config)")
	cmd.Flags().BoolVar(&archive, "archive", false, "merge polled charts into the archive")
	cmd.Flags().BoolVar(&hours, "market-hours", false, "only poll during the regular US session")
	cmd.Flags().Float64Var(&alertPct, "alert-percent", 0, "alert when a symbol moves this many percent on the day (0 disables)")
	cmd.Flags().StringVar(&webhook, "alert-webhook", "", "POST alerts to this URL instead of logging them")
	return cmd
}

func marketCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "market",
		Short: "Print whether the US market is in session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			a.log.Debug(markethours.StatusString(now))
			return printJSON(cmd.OutOrStdout(), markethours.Now(now))
		},
	}
}
