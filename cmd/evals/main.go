// Command evals checks the MCP tool evaluation suites and scores the keyword
// baseline against them.
//
// Usage:
//
//	go run ./cmd/evals -dir ./evals -baseline
//
// The command fails when a suite names a tool the server does not register or
// when the baseline misses a case. Score a model by implementing
// evals.ToolSelector.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/olgasafonova/vat-eu-mcp-server/evals"
	"github.com/olgasafonova/vat-eu-mcp-server/tools"
)

func main() {
	dir := flag.String("dir", "./evals", "Directory containing eval JSON files")
	verbose := flag.Bool("verbose", false, "List every case")
	baseline := flag.Bool("baseline", false, "Score the keyword baseline selector")
	flag.Parse()

	os.Exit(run(os.Stdout, *dir, *verbose, *baseline))
}

func run(out io.Writer, dir string, verbose, baseline bool) int {
	ts, cp, args, err := evals.LoadAllEvals(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load evals: %v\n", err)
		return 1
	}

	fmt.Fprintf(out, "VAT tool evals from %s\n\n", filepath.Clean(dir))
	summarize(out, ts, cp, args)
	if verbose {
		listCases(out, ts, cp, args)
	}

	if unknown := evals.UnknownTools(tools.ToolNames(), ts, cp, args); len(unknown) > 0 {
		fmt.Fprintf(os.Stderr, "suites reference unregistered tools: %v\n", unknown)
		return 1
	}
	if !baseline {
		return 0
	}

	selector := evals.KeywordSelector{}
	tsMetrics, _ := evals.EvaluateToolSelection(ts, selector)
	cpMetrics, _ := evals.EvaluateConfusionPairs(cp, selector)
	argMetrics, _ := evals.EvaluateArguments(args, selector)

	code := 0
	for _, r := range []struct {
		name    string
		metrics *evals.EvalMetrics
	}{
		{"Baseline: Tool Selection", tsMetrics},
		{"Baseline: Confusion Pairs", cpMetrics},
		{"Baseline: Arguments", argMetrics},
	} {
		fmt.Fprint(out, evals.FormatMetrics(r.metrics, r.name))
		if r.metrics.FailedTests > 0 {
			code = 2
		}
	}
	return code
}

// summarize prints case counts per suite and per tool.
func summarize(out io.Writer, ts *evals.ToolSelectionSuite, cp *evals.ConfusionPairSuite, args *evals.ArgumentSuite) {
	perTool := make(map[string]int)
	for _, t := range ts.Tests {
		perTool[t.ExpectedTool]++
	}
	pairCases := 0
	for _, p := range cp.Pairs {
		pairCases += len(p.Tests)
		for _, t := range p.Tests {
			perTool[t.Expected]++
		}
	}
	for _, t := range args.Tests {
		perTool[t.Tool]++
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%d cases\t%s\n", evals.ToolSelectionFile, len(ts.Tests), ts.Version)
	fmt.Fprintf(w, "%s\t%d cases in %d pairs\t%s\n", evals.ConfusionPairsFile, pairCases, len(cp.Pairs), cp.Version)
	fmt.Fprintf(w, "%s\t%d cases\t%s\n", evals.ArgumentsFile, len(args.Tests), args.Version)
	fmt.Fprintln(w)
	for _, name := range tools.ToolNames() {
		fmt.Fprintf(w, "%s\t%d\n", name, perTool[name])
	}
	w.Flush()

	fmt.Fprintf(out, "\nCountry rule: %s\nNumber rule:  %s\n\n",
		args.ValidationRules.CountryFormat, args.ValidationRules.NumberFormat)
}

func listCases(out io.Writer, ts *evals.ToolSelectionSuite, cp *evals.ConfusionPairSuite, args *evals.ArgumentSuite) {
	for _, t := range ts.Tests {
		fmt.Fprintf(out, "[%s] %q -> %s %v\n", t.ID, t.Input, t.ExpectedTool, t.ExpectedArgs)
	}
	for _, p := range cp.Pairs {
		fmt.Fprintf(out, "%s: %s\n", p.ID, p.Disambiguation)
		for _, t := range p.Tests {
			fmt.Fprintf(out, "  %q -> %s\n", t.Input, t.Expected)
		}
	}
	for _, t := range args.Tests {
		fmt.Fprintf(out, "[%s] %q -> %s required=%v forbidden=%v\n", t.ID, t.Input, t.Tool, t.RequiredArgs, t.ForbiddenArgs)
	}
	fmt.Fprintln(out)
}
