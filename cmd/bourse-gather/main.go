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
	"strings"
	"syscall"
	"time"

	"bourse/internal/backtest"
	"bourse/internal/config"
	"bourse/internal/gather"
	"bourse/internal/store"
	"bourse/internal/util"
)

func main() {
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: configured universe)")
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials missing; set APCA_API_KEY_ID and APCA_API_SECRET_KEY")
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/bourse-gather-%s.log", time.Now().Format("2006-01-02"))
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

	explicit := cfg.Backtest.UpperSymbols()
	if *symbolsFlag != "" {
		explicit = strings.Split(*symbolsFlag, ",")
	}
	symbols, source, err := backtest.Universe(ctx, st, cfg.Backtest.Index, explicit)
	if err != nil {
		log.Fatalf("failed to select symbols: %v", err)
	}
	if len(symbols) == 0 {
		log.Fatal("no symbols to gather; pass -symbols or import a composition first")
	}

	start, err := time.Parse(time.DateOnly, cfg.Gather.StartDate)
	if err != nil {
		log.Fatalf("invalid gather.start_date: %v", err)
	}

	g := gather.NewDailyBarGatherer(gather.AlpacaOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		Feed:            cfg.Alpaca.Feed,
		Start:           start,
		BatchSize:       cfg.Gather.BatchSize,
		RateLimitPerMin: cfg.Gather.RateLimitPerMin,
		MaxRetries:      cfg.Gather.MaxRetries,
		StateDir:        cfg.Storage.DataDir,
	}, st, symbols, logger)

	slog.Info("starting gather", "gatherer", g.Name(), "symbols", len(symbols), "source", source, "log_file", logFileName)
	if err := g.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
