package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/internal/gateway"
	"github.com/Verdenroz/finance-query-sub000/pkg/stream"
	"github.com/Verdenroz/finance-query-sub000/pkg/yahoo"
)

func streamCmd(a *app) *cobra.Command {
	var (
		url     string
		buffer  int
		retries int
		listen  string
	)
	cmd := &cobra.Command{
		Use:   "stream SYMBOL...",
		Short: "Print live price updates as JSON lines until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if url == "" {
				url = yahoo.Endpoints{}.WithDefaults().Streamer
			}
			s, err := stream.New(stream.Config{
				URL:        url,
				MaxRetries: retries,
				Logger:     a.log.Named("stream"),
				Observer:   a.metrics,
				OnState:    a.health.SetStreamConnected,
			})
			if err != nil {
				return err
			}
			if err := s.Subscribe(args...); err != nil {
				return err
			}
			sub := s.Hub().Subscribe("cli", buffer)

			stopMetrics := a.serveMetrics()
			defer stopMetrics()

			if listen != "" {
				stop := relay(ctx, a, s.Hub().Subscribe("gateway", buffer), listen)
				defer stop()
			}

			errc := make(chan error, 1)
			go func() { errc <- s.Run(ctx) }()

			enc := json.NewEncoder(cmd.OutOrStdout())
			for p := range sub.C {
				if err := enc.Encode(p); err != nil {
					a.log.Warn("write update", zap.Error(err))
				}
			}
			err = <-errc
			if errors.Is(err, stream.ErrRetriesExhausted) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "websocket URL (default upstream streamer)")
	cmd.Flags().IntVar(&buffer, "buffer", 256, "updates buffered before dropping")
	cmd.Flags().IntVar(&retries, "max-retries", 0, "consecutive reconnect attempts before giving up; 0 retries forever")
	cmd.Flags().StringVar(&listen, "listen", "", "also relay updates to WebSocket clients on this address (/ws, /latest, /missed)")
	return cmd
}

// relay serves the gateway fed by sub and returns its shutdown func.
func relay(ctx context.Context, a *app, sub stream.Subscription, addr string) func() {
	log := a.log.Named("gateway")
	gw := gateway.NewHub(log, gateway.DefaultReplaySize)
	go gw.Run(ctx, sub.C)

	srv := &http.Server{Addr: addr, Handler: gw.Router(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("gateway listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("gateway server", zap.Error(err))
		}
	}()
	return func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("gateway shutdown", zap.Error(err))
		}
	}
}
