package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bourse/internal/backtest"
)

// Formats selects the optional outputs of WriteDir.
type Formats struct {
	XLSX    bool
	Parquet bool
}

// WriteDir writes every report for results into dir and returns the paths
// written. Each run gets lots_<N>m.csv and results_<N>m.csv (plus
// lots_<N>m.parquet when asked); summary.md and bourse.xlsx cover all runs.
func WriteDir(dir string, results []*backtest.Result, o Options, formats Formats) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir: %w", err)
	}

	var paths []string
	write := func(name string, fn func(io.Writer) error) error {
		var buf bytes.Buffer
		if err := fn(&buf); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}

	for _, res := range results {
		n := res.Params.HoldingMonths
		if err := write(fmt.Sprintf("lots_%dm.csv", n), func(w io.Writer) error {
			return WriteLotsCSV(w, res.Portfolio.Lots(), o)
		}); err != nil {
			return paths, err
		}
		if err := write(fmt.Sprintf("results_%dm.csv", n), func(w io.Writer) error {
			return WriteResultsCSV(w, res.Reports, o)
		}); err != nil {
			return paths, err
		}
		if formats.Parquet {
			if err := write(fmt.Sprintf("lots_%dm.parquet", n), func(w io.Writer) error {
				return WriteLotsParquet(w, res.RunID, res.Portfolio.Lots())
			}); err != nil {
				return paths, err
			}
		}
	}

	if err := write("summary.md", func(w io.Writer) error { return WriteMarkdown(w, results) }); err != nil {
		return paths, err
	}
	if formats.XLSX {
		if err := write("bourse.xlsx", func(w io.Writer) error { return WriteXLSX(w, results) }); err != nil {
			return paths, err
		}
	}
	return paths, nil
}
