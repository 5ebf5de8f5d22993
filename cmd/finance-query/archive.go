package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Verdenroz/finance-query-sub000/pkg/backtest"
	"github.com/Verdenroz/finance-query-sub000/pkg/finance"
	"github.com/Verdenroz/finance-query-sub000/pkg/risk"
)

func archiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Store charts locally and analyze them offline",
	}
	cmd.AddCommand(
		archiveSaveCmd(a),
		archiveListCmd(a),
		archiveShowCmd(a),
		archiveBacktestCmd(a),
	)
	return cmd
}

func archiveSaveCmd(a *app) *cobra.Command {
	var f chartFlags
	cmd := &cobra.Command{
		Use:   "save SYMBOL...",
		Short: "Fetch charts and merge them into the archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ar, err := a.openArchive()
			if err != nil {
				return err
			}
			c, err := a.session()
			if err != nil {
				return err
			}
			tk, err := finance.NewTickers(args,
				finance.WithClient(c),
				finance.WithMaxConcurrency(a.cfg.MaxConcurrency),
			)
			if err != nil {
				return err
			}
			interval, rng := f.values()
			resp, err := tk.Charts(cmd.Context(), interval, rng)
			if err != nil {
				return err
			}
			for sym, ch := range resp.Results {
				if err := ar.SaveChart(cmd.Context(), ch); err != nil {
					return fmt.Errorf("archive %s: %w", sym, err)
				}
				a.log.Info("chart archived", zap.String("symbol", sym), zap.Int("candles", len(ch.Candles)))
			}
			for sym, msg := range resp.Errors {
				a.log.Warn("chart not archived", zap.String("symbol", sym), zap.String("error", msg))
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"saved":  len(resp.Results),
				"errors": resp.Errors,
			})
		},
	}
	f.register(cmd, "1d", "5y")
	return cmd
}

func archiveListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List archived symbols",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ar, err := a.openArchive()
			if err != nil {
				return err
			}
			syms, err := ar.Symbols(cmd.Context())
			if err != nil {
				return err
			}
			if syms == nil {
				syms = []string{}
			}
			return printJSON(cmd.OutOrStdout(), syms)
		},
	}
}

// loadArchived reads a chart saved under the interval flag.
func (a *app) loadArchived(cmd *cobra.Command, symbol string, f *chartFlags) (*finance.Chart, error) {
	ar, err := a.openArchive()
	if err != nil {
		return nil, err
	}
	interval, _ := f.values()
	return ar.LoadChart(cmd.Context(), symbol, interval, 0)
}

func archiveShowCmd(a *app) *cobra.Command {
	var f chartFlags
	cmd := &cobra.Command{
		Use:   "show SYMBOL",
		Short: "Print an archived chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ch, err := a.loadArchived(cmd, args[0], &f)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ch)
		},
	}
	f.register(cmd, "1d", "")
	return cmd
}

// offlineReport is what archive backtest prints.
type offlineReport struct {
	Symbol   string           `json:"symbol"`
	Interval finance.Interval `json:"interval"`
	Candles  int              `json:"candles"`
	Backtest *backtest.Result `json:"backtest"`
	Risk     *risk.Report     `json:"risk,omitempty"`
}

func archiveBacktestCmd(a *app) *cobra.Command {
	var f chartFlags
	var bf backtestFlags
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Run a strategy and risk report over an archived chart, without network access",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bf.strategyFor()
			if err != nil {
				return err
			}
			ch, err := a.loadArchived(cmd, args[0], &f)
			if err != nil {
				return err
			}
			res, err := backtest.Run(ch.Bars(), s, bf.cfg)
			if err != nil {
				return err
			}
			out := offlineReport{Symbol: ch.Symbol, Interval: ch.Interval, Candles: len(ch.Candles), Backtest: res}
			if rep, err := risk.Analyze(ch.Points(), nil, risk.Config{PeriodsPerYear: finance.PeriodsPerYear(ch.Interval)}); err == nil {
				out.Risk = rep
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	f.register(cmd, "1d", "")
	bf.register(cmd)
	return cmd
}
