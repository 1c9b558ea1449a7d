package evals

import (
	"fmt"
	"strings"
)

// ToolSelector picks a VAT tool and its arguments for a request.
type ToolSelector interface {
	SelectTool(input string) (toolName string, args map[string]interface{}, err error)
}

// ToolSelectionResult is the outcome of one ToolSelectionTest.
type ToolSelectionResult struct {
	TestID       string
	Input        string
	ExpectedTool string
	ActualTool   string
	Passed       bool
	Errors       []string
}

// ConfusionPairResult is the outcome of one ConfusionPairTest.
type ConfusionPairResult struct {
	PairID       string
	TestInput    string
	ExpectedTool string
	ActualTool   string
	Reason       string
	Passed       bool
}

// ArgumentResult is the outcome of one ArgumentTest.
type ArgumentResult struct {
	TestID       string
	Tool         string
	Input        string
	Passed       bool
	MissingArgs  []string
	WrongArgs    map[string]string // arg -> reason
	ForbiddenHit []string
}

// EvalMetrics aggregates a suite run.
type EvalMetrics struct {
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Accuracy      float64
	ByCategory    map[string]*CategoryMetrics
	ByTool        map[string]*ToolMetrics
	FailedDetails []string
}

// CategoryMetrics counts results for one category, pair or tool.
type CategoryMetrics struct {
	Total  int
	Passed int
	Failed int
}

// ToolMetrics counts how a selector treated one tool.
type ToolMetrics struct {
	ExpectedCount  int // tests expecting the tool
	SelectedCount  int // times the selector picked it
	CorrectCount   int // picked when expected
	FalsePositives int // picked when another tool was expected
	FalseNegatives int // expected but another tool was picked
}

// scorecard does the bookkeeping shared by the three evaluations.
type scorecard struct {
	m *EvalMetrics
}

func newScorecard() *scorecard {
	return &scorecard{m: &EvalMetrics{
		ByCategory: make(map[string]*CategoryMetrics),
		ByTool:     make(map[string]*ToolMetrics),
	}}
}

func (s *scorecard) tool(name string) *ToolMetrics {
	tm, ok := s.m.ByTool[name]
	if !ok {
		tm = &ToolMetrics{}
		s.m.ByTool[name] = tm
	}
	return tm
}

// selection records which tool was picked when expected was wanted.
func (s *scorecard) selection(expected, actual string) {
	s.tool(expected).ExpectedCount++
	s.tool(actual).SelectedCount++
	if actual == expected {
		s.tool(expected).CorrectCount++
		return
	}
	s.tool(expected).FalseNegatives++
	s.tool(actual).FalsePositives++
}

// outcome records a finished test. problems explain a failure.
func (s *scorecard) outcome(category, id, input string, problems []string) bool {
	cm, ok := s.m.ByCategory[category]
	if !ok {
		cm = &CategoryMetrics{}
		s.m.ByCategory[category] = cm
	}
	s.m.TotalTests++
	cm.Total++

	if len(problems) == 0 {
		s.m.PassedTests++
		cm.Passed++
		return true
	}
	s.m.FailedTests++
	cm.Failed++
	s.m.FailedDetails = append(s.m.FailedDetails,
		fmt.Sprintf("[%s] %s: %s", id, input, strings.Join(problems, "; ")))
	return false
}

func (s *scorecard) done() *EvalMetrics {
	if s.m.TotalTests > 0 {
		s.m.Accuracy = float64(s.m.PassedTests) / float64(s.m.TotalTests)
	}
	return s.m
}

// EvaluateToolSelection checks the tool, the tools to avoid, and any expected
// arguments for every test.
func EvaluateToolSelection(suite *ToolSelectionSuite, selector ToolSelector) (*EvalMetrics, []ToolSelectionResult) {
	sc := newScorecard()
	results := make([]ToolSelectionResult, 0, len(suite.Tests))

	for _, test := range suite.Tests {
		tool, args, err := selector.SelectTool(test.Input)
		sc.selection(test.ExpectedTool, tool)

		var problems []string
		if err != nil {
			problems = append(problems, fmt.Sprintf("selector error: %v", err))
		}
		if tool != test.ExpectedTool {
			problems = append(problems, fmt.Sprintf("wrong tool: expected %s, got %s", test.ExpectedTool, tool))
		}
		for _, avoid := range test.NotTools {
			if tool == avoid {
				problems = append(problems, "selected forbidden tool: "+avoid)
			}
		}
		missing, wrong := argProblems(test.ExpectedArgs, args)
		for _, key := range missing {
			problems = append(problems, fmt.Sprintf("missing arg %s (expected %v)", key, test.ExpectedArgs[key]))
		}
		for _, key := range sortedNames(wrong) {
			problems = append(problems, fmt.Sprintf("wrong arg %s: %s", key, wrong[key]))
		}

		results = append(results, ToolSelectionResult{
			TestID:       test.ID,
			Input:        test.Input,
			ExpectedTool: test.ExpectedTool,
			ActualTool:   tool,
			Passed:       sc.outcome(test.Category, test.ID, test.Input, problems),
			Errors:       problems,
		})
	}
	return sc.done(), results
}

// EvaluateConfusionPairs checks only the tool picked for each pair test.
func EvaluateConfusionPairs(suite *ConfusionPairSuite, selector ToolSelector) (*EvalMetrics, []ConfusionPairResult) {
	sc := newScorecard()
	var results []ConfusionPairResult

	for _, pair := range suite.Pairs {
		for _, test := range pair.Tests {
			tool, _, err := selector.SelectTool(test.Input)
			sc.selection(test.Expected, tool)

			var problems []string
			switch {
			case err != nil:
				problems = append(problems, fmt.Sprintf("selector error: %v", err))
			case tool != test.Expected:
				problems = append(problems, fmt.Sprintf("expected %s, got %s (%s)", test.Expected, tool, test.Reason))
			}

			results = append(results, ConfusionPairResult{
				PairID:       pair.ID,
				TestInput:    test.Input,
				ExpectedTool: test.Expected,
				ActualTool:   tool,
				Reason:       test.Reason,
				Passed:       sc.outcome(pair.ID, pair.ID, test.Input, problems),
			})
		}
	}
	return sc.done(), results
}

// EvaluateArguments checks the arguments for tests whose tool is known. A wrong
// tool or a selector error fails the test without looking at arguments.
func EvaluateArguments(suite *ArgumentSuite, selector ToolSelector) (*EvalMetrics, []ArgumentResult) {
	sc := newScorecard()
	results := make([]ArgumentResult, 0, len(suite.Tests))

	for _, test := range suite.Tests {
		tool, args, err := selector.SelectTool(test.Input)
		sc.selection(test.Tool, tool)

		result := ArgumentResult{
			TestID:    test.ID,
			Tool:      test.Tool,
			Input:     test.Input,
			WrongArgs: make(map[string]string),
		}

		var problems []string
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("selector error: %v", err))
		case tool != test.Tool:
			problems = append(problems, fmt.Sprintf("wrong tool: expected %s, got %s", test.Tool, tool))
		default:
			checkArguments(test, args, &result)
			if len(result.MissingArgs) > 0 {
				problems = append(problems, fmt.Sprintf("missing: %v", result.MissingArgs))
			}
			for _, key := range sortedNames(result.WrongArgs) {
				problems = append(problems, key+": "+result.WrongArgs[key])
			}
			if len(result.ForbiddenHit) > 0 {
				problems = append(problems, fmt.Sprintf("forbidden: %v", result.ForbiddenHit))
			}
		}

		result.Passed = sc.outcome(test.Tool, test.ID, test.Input, problems)
		results = append(results, result)
	}
	return sc.done(), results
}

// checkArguments fills the argument findings of result.
func checkArguments(test ArgumentTest, args map[string]interface{}, result *ArgumentResult) {
	for _, key := range test.RequiredArgs {
		if _, ok := args[key]; !ok {
			result.MissingArgs = append(result.MissingArgs, key)
		}
	}

	missing, wrong := argProblems(test.ExpectedArgs, args)
	for _, key := range missing {
		if !containsString(result.MissingArgs, key) {
			result.MissingArgs = append(result.MissingArgs, key)
		}
	}
	for key, reason := range wrong {
		result.WrongArgs[key] = reason
	}

	for _, key := range test.ForbiddenArgs {
		if _, ok := args[key]; ok {
			result.ForbiddenHit = append(result.ForbiddenHit, key)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
