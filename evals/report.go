package evals

import (
	"fmt"
	"sort"
	"strings"
)

// maxFailedShown caps the failures listed by FormatMetrics.
const maxFailedShown = 10

// FormatMetrics renders a suite run as plain text.
func FormatMetrics(metrics *EvalMetrics, suiteName string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "\n%s\n%s\n", suiteName, strings.Repeat("=", len(suiteName)))
	fmt.Fprintf(&sb, "Passed: %d/%d (%.1f%%)\n", metrics.PassedTests, metrics.TotalTests, metrics.Accuracy*100)

	if len(metrics.ByCategory) > 0 {
		sb.WriteString("\nBy Category:\n")
		for _, name := range sortedNames(metrics.ByCategory) {
			cm := metrics.ByCategory[name]
			fmt.Fprintf(&sb, "  %-28s %d/%d\n", name, cm.Passed, cm.Total)
		}
	}

	// Only tools the selector got wrong are worth a line.
	var confused []string
	for _, name := range sortedNames(metrics.ByTool) {
		tm := metrics.ByTool[name]
		if tm.FalsePositives > 0 || tm.FalseNegatives > 0 {
			label := name
			if label == "" {
				label = "(none)"
			}
			confused = append(confused, fmt.Sprintf("  %-28s expected %d, picked %d, +%d/-%d",
				label, tm.ExpectedCount, tm.SelectedCount, tm.FalsePositives, tm.FalseNegatives))
		}
	}
	if len(confused) > 0 {
		sb.WriteString("\nBy Tool:\n")
		sb.WriteString(strings.Join(confused, "\n"))
		sb.WriteString("\n")
	}

	if len(metrics.FailedDetails) > 0 {
		sb.WriteString("\nFailed Tests:\n")
		for i, detail := range metrics.FailedDetails {
			if i == maxFailedShown {
				fmt.Fprintf(&sb, "  ... and %d more\n", len(metrics.FailedDetails)-maxFailedShown)
				break
			}
			fmt.Fprintf(&sb, "  %s\n", detail)
		}
	}
	return sb.String()
}

func sortedNames[T any](m map[string]T) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
