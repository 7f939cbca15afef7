package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bourse/internal/config"
	"bourse/internal/gather"
	"bourse/internal/store"
	"bourse/internal/util"
)

func main() {
	prices := flag.String("prices", "", "CSV file of daily prices to import")
	symbol := flag.String("symbol", "", "symbol the -prices file belongs to")
	composition := flag.String("composition", "", "CSV file of an index composition to import")
	index := flag.String("index", "", "index name for -composition (default: backtest.index)")
	date := flag.String("date", "", "publication date of -composition, YYYY-MM-DD (default: today)")
	sep := flag.String("sep", ";", "CSV field separator")
	trim := flag.Bool("trim", false, "delete bars dated today or later")
	flag.Parse()

	if *prices == "" && *composition == "" && !*trim {
		flag.Usage()
		os.Exit(1)
	}
	if *prices != "" && *symbol == "" {
		log.Fatal("-prices needs -symbol")
	}
	comma := []rune(*sep)
	if len(comma) != 1 {
		log.Fatalf("-sep must be a single character, got %q", *sep)
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg.Storage.Options())
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	if *prices != "" {
		n, err := importFile(*prices, func(f *os.File) (int, error) {
			return gather.ImportBars(ctx, f, *symbol, comma[0], st)
		})
		if err != nil {
			log.Fatalf("import %s: %v", *prices, err)
		}
		logger.Info("prices imported", "file", *prices, "symbol", *symbol, "bars", n)
	}

	if *composition != "" {
		name := *index
		if name == "" {
			name = cfg.Backtest.Index
		}
		updated := util.DateOnly(time.Now())
		if *date != "" {
			if updated, err = time.Parse(time.DateOnly, *date); err != nil {
				log.Fatalf("invalid -date: %v", err)
			}
		}
		n, err := importFile(*composition, func(f *os.File) (int, error) {
			return gather.ImportComposition(ctx, f, name, updated, comma[0], st)
		})
		if err != nil {
			log.Fatalf("import %s: %v", *composition, err)
		}
		logger.Info("composition imported", "file", *composition, "index", name, "date", updated.Format(time.DateOnly), "rows", n)
	}

	if *trim {
		today := util.DateOnly(time.Now())
		n, err := st.TrimFrom(ctx, today)
		if err != nil {
			log.Fatalf("trim: %v", err)
		}
		fmt.Printf("removed %d bars dated %s or later\n", n, today.Format(time.DateOnly))
	}
}

func importFile(path string, fn func(*os.File) (int, error)) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return fn(f)
}
