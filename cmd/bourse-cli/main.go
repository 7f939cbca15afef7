package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"bourse/internal/backtest"
	"bourse/internal/config"
	"bourse/internal/store"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bourse-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version               Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  symbols               List symbols with stored prices\n")
		fmt.Fprintf(os.Stderr, "  bounds SYMBOL         Show the first and last stored dates\n")
		fmt.Fprintf(os.Stderr, "  resolve SYMBOL Y-M    Show the transaction price for a month\n")
		fmt.Fprintf(os.Stderr, "  composition [INDEX]   List the latest index composition\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("bourse-cli %s\n", version)
		return
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()
	st, err := store.Open(ctx, cfg.Storage.Options())
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	args := os.Args[2:]
	switch os.Args[1] {
	case "symbols":
		syms, err := st.ListSymbols(ctx)
		if err != nil {
			log.Fatal(err)
		}
		for _, s := range syms {
			fmt.Println(s)
		}

	case "bounds":
		if len(args) != 1 {
			flag.Usage()
			os.Exit(1)
		}
		first, last, err := st.SeriesBounds(ctx, strings.ToUpper(args[0]))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s %s\n", first.Format(time.DateOnly), last.Format(time.DateOnly))

	case "resolve":
		if len(args) != 2 {
			flag.Usage()
			os.Exit(1)
		}
		month, err := time.Parse("2006-01", args[1])
		if err != nil {
			log.Fatalf("invalid month %q: %v", args[1], err)
		}
		r := backtest.NewResolver(st, cfg.Backtest.ExtrapolatePastEnd)
		q, err := r.ResolveMonth(ctx, strings.ToUpper(args[0]), month.Year(), month.Month(), 0)
		if err != nil {
			log.Fatal(err)
		}
		note := ""
		if q.Extrapolated {
			note = " (extrapolated)"
		}
		fmt.Printf("%s %s %.4f%s\n", q.Symbol, q.Date.Format(time.DateOnly), q.Price, note)

	case "composition":
		index := cfg.Backtest.Index
		if len(args) > 0 {
			index = args[0]
		}
		rows, err := st.ListConstituents(ctx, index)
		if err != nil {
			log.Fatal(err)
		}
		for _, c := range rows {
			fmt.Printf("%s\t%s\t%s\t%.2f\n", c.Ticker, c.Company, c.Sector, c.WeightPct)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}
