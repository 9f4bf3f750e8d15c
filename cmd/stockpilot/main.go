package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"stockpilot/pkg/stockpilot"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stockpilot <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  signal     Classify the latest bar of a symbol\n")
		fmt.Fprintf(os.Stderr, "  advise     Run the advice engine for a symbol\n")
		fmt.Fprintf(os.Stderr, "  portfolio  Value the configured portfolio and advise on each holding\n")
		fmt.Fprintf(os.Stderr, "  backtest   Simulate the signal strategy over history\n")
		fmt.Fprintf(os.Stderr, "  optimize   Grid-search backtest parameters\n")
		fmt.Fprintf(os.Stderr, "  runs       List persisted backtest runs\n")
		fmt.Fprintf(os.Stderr, "\nThe server address comes from -server or STOCKPILOT_SERVER\n")
		fmt.Fprintf(os.Stderr, "(default http://localhost:8080).\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	cmd, args := os.Args[1], os.Args[2:]
	if cmd == "version" {
		fmt.Printf("stockpilot %s\n", version)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var err error
	switch cmd {
	case "signal":
		err = runSignal(ctx, args)
	case "advise":
		err = runAdvise(ctx, args)
	case "portfolio":
		err = runPortfolio(ctx, args)
	case "backtest":
		err = runBacktest(ctx, args)
	case "optimize":
		err = runOptimize(ctx, args)
	case "runs":
		err = runList(ctx, args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(fs *flag.FlagSet) *string {
	def := os.Getenv("STOCKPILOT_SERVER")
	if def == "" {
		def = "http://localhost:8080"
	}
	return fs.String("server", def, "stockpilot server base URL")
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runSignal(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signal", flag.ExitOnError)
	server := newClient(fs)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: stockpilot signal [options] <symbol>")
	}

	sig, err := stockpilot.NewClient(*server).Signal(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	return printJSON(sig)
}

func runAdvise(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("advise", flag.ExitOnError)
	server := newClient(fs)
	var q stockpilot.AdviceQuery
	optFloat(fs, "target-price", "analyst target price", &q.TargetPrice)
	optFloat(fs, "pe", "price/earnings ratio", &q.PERatio)
	optFloat(fs, "pb", "price/book ratio", &q.PBRatio)
	optFloat(fs, "ps", "price/sales ratio", &q.PSRatio)
	optFloat(fs, "debt-equity", "debt/equity ratio", &q.DebtEquity)
	optFloat(fs, "margin", "profit margin (fraction)", &q.ProfitMargin)
	optFloat(fs, "roe", "return on equity (fraction)", &q.ROE)
	optFloat(fs, "beta", "beta", &q.Beta)
	optFloat(fs, "position-value", "current value of the holding", &q.PositionValue)
	optFloat(fs, "portfolio-value", "total portfolio value", &q.PortfolioValue)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: stockpilot advise [options] <symbol>")
	}

	adv, err := stockpilot.NewClient(*server).Advice(ctx, fs.Arg(0), q)
	if err != nil {
		return err
	}
	return printJSON(adv)
}

func runPortfolio(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("portfolio", flag.ExitOnError)
	server := newClient(fs)
	fs.Parse(args)

	pa, err := stockpilot.NewClient(*server).PortfolioAdvice(ctx)
	if err != nil {
		return err
	}
	return printJSON(pa)
}

func runBacktest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	server := newClient(fs)
	capital := fs.Float64("capital", 0, "start capital (0 = server default)")
	cost := fs.Float64("cost", 0, "flat cost per leg (0 = server default)")
	delay := fs.Int("delay", -1, "bars between signal and execution (-1 = server default)")
	stopLoss := fs.Float64("stop-loss", 0, "stop loss fraction (0 = server default)")
	takeProfit := fs.Float64("take-profit", 0, "take profit fraction (0 = server default)")
	days := fs.Int("days", 0, "history window in days (0 = server default)")
	trades := fs.Bool("trades", false, "include individual trades in the output")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: stockpilot backtest [options] <symbol>")
	}

	req := stockpilot.BacktestRequest{
		Symbol:        fs.Arg(0),
		StartCapital:  *capital,
		Cost:          *cost,
		StopLossPct:   *stopLoss,
		TakeProfitPct: *takeProfit,
		HistoryDays:   *days,
	}
	if *delay >= 0 {
		req.Delay = delay
	}

	res, err := stockpilot.NewClient(*server).Backtest(ctx, req)
	if err != nil {
		return err
	}
	if !*trades {
		res.Trades = nil
	}
	return printJSON(res)
}

func runOptimize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	server := newClient(fs)
	metric := fs.String("metric", "", "metric to maximize (default: return)")
	days := fs.Int("days", 0, "history window in days (0 = server default)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: stockpilot optimize [options] <symbol>")
	}

	best, err := stockpilot.NewClient(*server).Optimize(ctx, stockpilot.OptimizeRequest{
		Symbol:      fs.Arg(0),
		Metric:      *metric,
		HistoryDays: *days,
	})
	if err != nil {
		return err
	}
	return printJSON(best)
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	server := newClient(fs)
	symbol := fs.String("symbol", "", "filter by symbol")
	limit := fs.Int("limit", 0, "maximum rows (0 = server default)")
	fs.Parse(args)

	runs, err := stockpilot.NewClient(*server).ListBacktests(ctx, *symbol, *limit)
	if err != nil {
		return err
	}
	return printJSON(runs)
}

// optFloat registers a float flag that stays nil until explicitly set.
func optFloat(fs *flag.FlagSet, name, usage string, out **float64) {
	fs.Func(name, usage, func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid value %q", s)
		}
		*out = &v
		return nil
	})
}
