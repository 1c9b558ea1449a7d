// Package evals scores how well an LLM picks the VAT tools and fills their
// arguments from natural language requests. Arguments are compared the way the
// server reads them: country codes and VAT numbers are normalized first.
package evals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Suite file names inside an evals directory.
const (
	ToolSelectionFile  = "tool_selection.json"
	ConfusionPairsFile = "confusion_pairs.json"
	ArgumentsFile      = "argument_correctness.json"
)

// ToolSelectionTest is one request and the tool it should select.
type ToolSelectionTest struct {
	ID           string                 `json:"id"`
	Category     string                 `json:"category"`
	Input        string                 `json:"input"`
	ExpectedTool string                 `json:"expected_tool"`
	ExpectedArgs map[string]interface{} `json:"expected_args"`
	NotTools     []string               `json:"not_tools"`
}

// ToolSelectionSuite is the contents of tool_selection.json.
type ToolSelectionSuite struct {
	Name        string              `json:"name"`
	Version     string              `json:"version"`
	Description string              `json:"description"`
	Tests       []ToolSelectionTest `json:"tests"`
}

// ConfusionPairTest is one request that sits between the pair's tools.
type ConfusionPairTest struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Reason   string `json:"reason"`
}

// ConfusionPair groups tools that are easy to mix up, with the rule that separates them.
type ConfusionPair struct {
	ID             string              `json:"id"`
	Tools          []string            `json:"tools"`
	Disambiguation string              `json:"disambiguation"`
	Tests          []ConfusionPairTest `json:"tests"`
}

// ConfusionPairSuite is the contents of confusion_pairs.json.
type ConfusionPairSuite struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Pairs       []ConfusionPair `json:"pairs"`
}

// ArgumentTest checks the arguments extracted for a known tool.
type ArgumentTest struct {
	ID            string                 `json:"id"`
	Tool          string                 `json:"tool"`
	Input         string                 `json:"input"`
	RequiredArgs  []string               `json:"required_args"`
	ExpectedArgs  map[string]interface{} `json:"expected_args"`
	ForbiddenArgs []string               `json:"forbidden_args"`
	ArgNotes      string                 `json:"arg_notes,omitempty"`
}

// ValidationRules documents how arguments are expected to be written.
type ValidationRules struct {
	CountryFormat   string `json:"country_format"`
	NumberFormat    string `json:"number_format"`
	BooleanHandling string `json:"boolean_handling"`
	BatchHandling   string `json:"batch_handling"`
}

// ArgumentSuite is the contents of argument_correctness.json.
type ArgumentSuite struct {
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Description     string          `json:"description"`
	Tests           []ArgumentTest  `json:"tests"`
	ValidationRules ValidationRules `json:"validation_rules"`
}

func loadSuite[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	var suite T
	if err := json.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &suite, nil
}

// LoadToolSelectionSuite reads a tool selection suite.
func LoadToolSelectionSuite(path string) (*ToolSelectionSuite, error) {
	return loadSuite[ToolSelectionSuite](path)
}

// LoadConfusionPairSuite reads a confusion pair suite.
func LoadConfusionPairSuite(path string) (*ConfusionPairSuite, error) {
	return loadSuite[ConfusionPairSuite](path)
}

// LoadArgumentSuite reads an argument correctness suite.
func LoadArgumentSuite(path string) (*ArgumentSuite, error) {
	return loadSuite[ArgumentSuite](path)
}

// LoadAllEvals reads the three suites from dir.
func LoadAllEvals(dir string) (*ToolSelectionSuite, *ConfusionPairSuite, *ArgumentSuite, error) {
	ts, err := LoadToolSelectionSuite(filepath.Join(dir, ToolSelectionFile))
	if err != nil {
		return nil, nil, nil, err
	}
	cp, err := LoadConfusionPairSuite(filepath.Join(dir, ConfusionPairsFile))
	if err != nil {
		return nil, nil, nil, err
	}
	args, err := LoadArgumentSuite(filepath.Join(dir, ArgumentsFile))
	if err != nil {
		return nil, nil, nil, err
	}
	return ts, cp, args, nil
}

// ReferencedTools returns every tool name the suites mention, sorted.
func ReferencedTools(ts *ToolSelectionSuite, cp *ConfusionPairSuite, args *ArgumentSuite) []string {
	seen := make(map[string]bool)
	if ts != nil {
		for _, test := range ts.Tests {
			seen[test.ExpectedTool] = true
			for _, tool := range test.NotTools {
				seen[tool] = true
			}
		}
	}
	if cp != nil {
		for _, pair := range cp.Pairs {
			for _, tool := range pair.Tools {
				seen[tool] = true
			}
			for _, test := range pair.Tests {
				seen[test.Expected] = true
			}
		}
	}
	if args != nil {
		for _, test := range args.Tests {
			seen[test.Tool] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownTools returns the referenced tools missing from known.
func UnknownTools(known []string, ts *ToolSelectionSuite, cp *ConfusionPairSuite, args *ArgumentSuite) []string {
	registered := make(map[string]bool, len(known))
	for _, name := range known {
		registered[name] = true
	}

	var unknown []string
	for _, name := range ReferencedTools(ts, cp, args) {
		if !registered[name] {
			unknown = append(unknown, name)
		}
	}
	return unknown
}
