package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bourse/internal/backtest"
	"bourse/internal/config"
	"bourse/internal/report"
	"bourse/internal/store"
	"bourse/internal/util"
)

func main() {
	holding := flag.Int("holding", 0, "holding period in months (overrides config)")
	sweep := flag.Bool("sweep", false, "run every holding period in backtest.holding_sweep")
	outDir := flag.String("out", "", "report directory (overrides config)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *holding > 0 {
		cfg.Backtest.HoldingMonths = *holding
	}
	if *outDir != "" {
		cfg.Report.OutputDir = *outDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/bourse-backtest-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Storage.Options())
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	symbols, source, err := backtest.Universe(ctx, st, cfg.Backtest.Index, cfg.Backtest.UpperSymbols())
	if err != nil {
		log.Fatalf("failed to select instruments: %v", err)
	}
	if len(symbols) == 0 {
		log.Fatal("no instruments to simulate; gather or import prices first")
	}
	slog.Info("instruments selected", "count", len(symbols), "source", source)

	params, err := cfg.Backtest.Params(cfg.Backtest.HoldingMonths)
	if err != nil {
		log.Fatal(err)
	}
	bt, err := backtest.NewBacktester(st, params, logger)
	if err != nil {
		log.Fatal(err)
	}

	periods, err := cfg.Backtest.HoldingPeriods(*sweep)
	if err != nil {
		log.Fatal(err)
	}
	results, err := bt.Sweep(ctx, symbols, periods)
	if err != nil {
		log.Fatalf("backtest failed: %v", err)
	}

	for _, res := range results {
		slog.Info("run summary",
			"run", res.RunID,
			"holding_months", res.Params.HoldingMonths,
			"lots", res.Portfolio.Len(),
			"closed", res.Liquidation.Closed,
			"open", res.Liquidation.Unmatured,
			"net_return_pct", res.Pooled.NetReturnPct.String(),
			"sharpe", res.Pooled.Sharpe.String(),
		)
	}

	opts := report.Options{Separator: cfg.Report.Separator(), DecimalComma: cfg.Report.DecimalComma}
	paths, err := report.WriteDir(cfg.Report.OutputDir, results, opts, report.Formats{
		XLSX:    cfg.Report.XLSX,
		Parquet: cfg.Report.Parquet,
	})
	if err != nil {
		log.Fatalf("failed to write reports: %v", err)
	}
	for _, p := range paths {
		fmt.Println(p)
	}
}
