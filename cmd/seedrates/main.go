// Command seedrates converts a benchmark fee-schedule workbook into a SQL
// seed file for the benchmark_rates table.
// Usage: go run ./cmd/seedrates --in fee_schedule.xlsx [--sheet Rates] [--out db/seeds/benchmark_rates.sql]
package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/xuri/excelize/v2"
)

const batchSize = 500

type rateEntry struct {
	code        string
	description string
	rate        float64
}

var codePattern = regexp.MustCompile(`^\d{5}$`)

func main() {
	fs := ff.NewFlagSet("seedrates")
	var (
		in    = fs.StringLong("in", "", "fee schedule workbook (.xlsx)")
		sheet = fs.StringLong("sheet", "", "sheet name (defaults to the first sheet)")
		out   = fs.StringLong("out", "db/seeds/benchmark_rates.sql", "output SQL file")
	)
	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("SEEDRATES")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := run(*in, *sheet, *out); err != nil {
		log.Fatal(err)
	}
}

func run(in, sheet, outPath string) error {
	if in == "" {
		return fmt.Errorf("--in is required")
	}
	f, err := excelize.OpenFile(in)
	if err != nil {
		return fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	entries, skipped := parseRows(rows)
	log.Printf("%s: %d rates, %d rows skipped", sheet, len(entries), skipped)

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if err := writeSQL(out, entries); err != nil {
		return err
	}
	log.Printf("Generated %d entries in %s", len(entries), outPath)
	return nil
}

// parseRows reads code, description and rate from columns A to C. Rows whose
// code is not a five-digit procedure code or whose rate is not positive are
// skipped, which also drops the header row. Later duplicates win.
func parseRows(rows [][]string) ([]rateEntry, int) {
	index := make(map[string]int)
	var entries []rateEntry
	skipped := 0
	for _, row := range rows {
		code := strings.TrimSpace(cellVal(row, 0))
		rate, err := parseRate(cellVal(row, 2))
		if !codePattern.MatchString(code) || err != nil || rate <= 0 {
			skipped++
			continue
		}
		e := rateEntry{code: code, description: strings.TrimSpace(cellVal(row, 1)), rate: rate}
		if i, ok := index[code]; ok {
			entries[i] = e
			continue
		}
		index[code] = len(entries)
		entries = append(entries, e)
	}
	return entries, skipped
}

func parseRate(s string) (float64, error) {
	s = strings.NewReplacer("$", "", ",", "").Replace(strings.TrimSpace(s))
	return strconv.ParseFloat(s, 64)
}

func writeSQL(w io.Writer, entries []rateEntry) error {
	if _, err := fmt.Fprintf(w, "-- Benchmark rate seed data generated from a fee schedule workbook.\n-- %d entries in batches of %d.\nBEGIN;\n", len(entries), batchSize); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))
		if err := writeBatch(w, entries[i:end]); err != nil {
			return fmt.Errorf("write batch at offset %d: %w", i, err)
		}
	}
	if _, err := fmt.Fprintln(w, "\nCOMMIT;"); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	return nil
}

func writeBatch(w io.Writer, batch []rateEntry) error {
	var b strings.Builder
	b.WriteString("\nINSERT INTO benchmark_rates (code, rate, description) VALUES\n")
	for i, e := range batch {
		fmt.Fprintf(&b, "    ('%s', %.2f, '%s')", e.code, e.rate, escapeSQL(e.description))
		if i < len(batch)-1 {
			b.WriteString(",\n")
		}
	}
	b.WriteString("\nON CONFLICT (code) DO UPDATE SET rate = EXCLUDED.rate, description = EXCLUDED.description;\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func cellVal(row []string, idx int) string {
	if idx < len(row) {
		return row[idx]
	}
	return ""
}
