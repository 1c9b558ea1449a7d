// Command vatcheck validates EU VAT numbers from the command line.
//
// Usage:
//
//	vatcheck [-format-only] [-json] COUNTRY:NUMBER ...
//	echo "DE:123456789" | vatcheck
//
// An argument without a colon is read as a prefixed number (DE123456789).
// The exit status is 1 when any number fails validation and 2 on usage errors.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/config"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vies"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitUsage   = 2
)

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type output struct {
	Input string `json:"input"`
	vat.Result
}

func run(ctx context.Context, cfg config.Config, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vatcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	formatOnly := fs.Bool("format-only", false, "Check formats only; do not contact VIES")
	asJSON := fs.Bool("json", false, "Write results as JSON")
	verbose := fs.Bool("v", false, "Log VIES traffic to stderr")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	entries := fs.Args()
	if len(entries) == 0 {
		var err error
		entries, err = readLines(stdin)
		if err != nil {
			fmt.Fprintf(stderr, "Error reading stdin: %v\n", err)
			return exitUsage
		}
	}
	if len(entries) == 0 {
		fs.Usage()
		return exitUsage
	}

	items := make([]vat.BatchItem, len(entries))
	for i, e := range entries {
		items[i] = parseEntry(e)
	}

	var results []vat.Result
	if *formatOnly {
		results = checkFormats(items)
	} else {
		level := slog.LevelError
		if *verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

		client := vies.NewClient(cfg.VIESBaseURL,
			vies.WithLogger(logger),
			vies.WithTimeout(cfg.VIESTimeout),
			vies.WithMaxConcurrent(cfg.VIESMaxConcurrent),
			vies.WithUserAgent(cfg.VIESUserAgent),
		)
		validator := vat.New(client, vat.WithLogger(logger), vat.WithConcurrency(cfg.VIESMaxConcurrent))

		var err error
		results, err = validator.ValidateBatch(ctx, items)
		if err != nil {
			fmt.Fprintf(stderr, "Validation interrupted: %v\n", err)
			return exitInvalid
		}
	}

	failed := false
	outputs := make([]output, len(results))
	for i, r := range results {
		outputs[i] = output{Input: entries[i], Result: r}
		if !r.Valid {
			failed = true
		}
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outputs); err != nil {
			fmt.Fprintf(stderr, "Error writing JSON: %v\n", err)
			return exitUsage
		}
	} else {
		for _, o := range outputs {
			fmt.Fprintln(stdout, formatLine(o))
		}
	}

	if failed {
		return exitInvalid
	}
	return exitOK
}

// parseEntry splits "DE:123456789" or "DE123456789" into country and number.
func parseEntry(entry string) vat.BatchItem {
	entry = strings.TrimSpace(entry)
	if country, number, ok := strings.Cut(entry, ":"); ok {
		return vat.BatchItem{Country: vat.CallerCountry(country), Number: strings.TrimSpace(number)}
	}
	if len(entry) < 2 {
		return vat.BatchItem{Number: entry}
	}
	return vat.BatchItem{Country: vat.CallerCountry(entry[:2]), Number: entry}
}

func checkFormats(items []vat.BatchItem) []vat.Result {
	results := make([]vat.Result, len(items))
	for i, it := range items {
		results[i] = vat.CheckFormat(it.Country, it.Number)
	}
	return results
}

func formatLine(o output) string {
	if o.Valid {
		line := fmt.Sprintf("OK    %-20s %s (%s)", o.Input, o.CanonicalID, o.Source)
		if o.Name != "" {
			line += " " + o.Name
		}
		return line
	}
	kind := string(o.Kind)
	if kind == "" {
		kind = "REJECTED"
	}
	line := fmt.Sprintf("FAIL  %-20s %s: %s", o.Input, kind, vat.UserMessage(o.Kind, vat.Labels{}))
	if o.Detail != "" {
		line += " (" + o.Detail + ")"
	}
	return line
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, sc.Err()
}
