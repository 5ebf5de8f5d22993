package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Verdenroz/finance-query-sub000/pkg/backtest"
	"github.com/Verdenroz/finance-query-sub000/pkg/finance"
	"github.com/Verdenroz/finance-query-sub000/pkg/risk"
)

// chartFlags are shared by every command that works on a chart.
type chartFlags struct {
	interval string
	rng      string
}

func (f *chartFlags) register(cmd *cobra.Command, interval, rng string) {
	cmd.Flags().StringVarP(&f.interval, "interval", "i", interval, "bar interval (1m, 5m, 15m, 1h, 1d, 1wk, 1mo)")
	cmd.Flags().StringVarP(&f.rng, "range", "r", rng, "history range (1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max)")
}

func (f *chartFlags) values() (finance.Interval, finance.Range) {
	return finance.Interval(f.interval), finance.Range(f.rng)
}

func (a *app) ticker(symbol string) (*finance.Ticker, error) {
	c, err := a.session()
	if err != nil {
		return nil, err
	}
	return finance.NewTicker(symbol, finance.WithClient(c))
}

func quoteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "quote SYMBOL...",
		Short: "Print quotes; several symbols go out as one batch request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				t, err := a.ticker(args[0])
				if err != nil {
					return err
				}
				q, err := t.Quote(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), q)
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
			resp, err := tk.Quotes(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func chartCmd(a *app) *cobra.Command {
	var f chartFlags
	cmd := &cobra.Command{
		Use:   "chart SYMBOL",
		Short: "Print OHLCV candles",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.ticker(args[0])
			if err != nil {
				return err
			}
			interval, rng := f.values()
			c, err := t.Chart(cmd.Context(), interval, rng)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
	f.register(cmd, "1d", "1mo")
	return cmd
}

func indicatorsCmd(a *app) *cobra.Command {
	var f chartFlags
	var patterns bool
	cmd := &cobra.Command{
		Use:   "indicators SYMBOL",
		Short: "Print the latest value of every standard indicator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.ticker(args[0])
			if err != nil {
				return err
			}
			interval, rng := f.values()
			if patterns {
				p, err := t.Patterns(cmd.Context(), interval, rng)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), p)
			}
			an, err := t.Indicators(cmd.Context(), interval, rng)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), an.Latest())
		},
	}
	f.register(cmd, "1d", "1y")
	cmd.Flags().BoolVar(&patterns, "patterns", false, "print candlestick patterns instead")
	return cmd
}

func riskCmd(a *app) *cobra.Command {
	var f chartFlags
	var benchmark string
	var cfg risk.Config
	cmd := &cobra.Command{
		Use:   "risk SYMBOL",
		Short: "Print return, volatility, drawdown, VaR and benchmark statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.ticker(args[0])
			if err != nil {
				return err
			}
			interval, rng := f.values()
			r, err := t.Risk(cmd.Context(), interval, rng, benchmark, cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		},
	}
	f.register(cmd, "1d", "1y")
	cmd.Flags().StringVarP(&benchmark, "benchmark", "b", "^GSPC", "benchmark symbol; empty skips beta/alpha")
	cmd.Flags().Float64Var(&cfg.RiskFreeRate, "risk-free", 0, "annual risk-free rate, e.g. 0.04")
	cmd.Flags().Float64Var(&cfg.Confidence, "confidence", risk.DefaultConfidence, "VaR confidence level")
	return cmd
}

// backtestFlags are shared by the live and archived backtest commands.
type backtestFlags struct {
	strategy string
	cfg      backtest.Config
}

func (f *backtestFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.strategy, "strategy", "s", "sma_cross", "sma_cross, rsi or macd")
	cmd.Flags().Float64Var(&f.cfg.InitialCash, "cash", backtest.DefaultInitialCash, "starting cash")
	cmd.Flags().Float64Var(&f.cfg.Commission, "commission", 0, "flat commission per fill")
	cmd.Flags().BoolVar(&f.cfg.Fractional, "fractional", false, "allow fractional share quantities")
}

func (f *backtestFlags) strategyFor() (backtest.Strategy, error) {
	s, err := backtest.ParseStrategy(f.strategy)
	if err != nil {
		return nil, fmt.Errorf("--strategy: %w", err)
	}
	return s, nil
}

func backtestCmd(a *app) *cobra.Command {
	var f chartFlags
	var bf backtestFlags
	cmd := &cobra.Command{
		Use:   "backtest SYMBOL",
		Short: "Run a built-in strategy over a fetched chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := bf.strategyFor()
			if err != nil {
				return err
			}
			t, err := a.ticker(args[0])
			if err != nil {
				return err
			}
			interval, rng := f.values()
			res, err := t.Backtest(cmd.Context(), interval, rng, s, bf.cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	f.register(cmd, "1d", "2y")
	bf.register(cmd)
	return cmd
}
