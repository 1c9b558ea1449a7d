package evals

import (
	"regexp"
	"strings"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/vat"
)

// vatToken matches a prefixed VAT number such as DE123456789 or NL123456789B01.
var vatToken = regexp.MustCompile(`\b([A-Z]{2})([0-9][0-9A-Z]{7,11}|[A-Z][0-9]{7,9}[0-9A-Z]?)\b`)

var (
	formatWords  = []string{"format", "look like", "looks like", "shape", "offline", "normalize", "normalise", "without contacting", "without calling"}
	countryWords = []string{"which countries", "what countries", "supported", "list the", "list of", "what code", "member states"}
)

// KeywordSelector is a rule-based ToolSelector. It sets the floor an LLM
// should beat and keeps the suites honest in CI.
type KeywordSelector struct{}

// SelectTool picks a tool by keywords and pulls prefixed VAT numbers out of input.
func (KeywordSelector) SelectTool(input string) (string, map[string]interface{}, error) {
	lower := strings.ToLower(input)
	numbers := findNumbers(input)

	switch {
	case len(numbers) == 0 && (containsAny(lower, countryWords) || containsAny(lower, formatWords)):
		return "vat_list_countries", map[string]interface{}{}, nil
	case len(numbers) > 1:
		items := make([]interface{}, len(numbers))
		for i, n := range numbers {
			items[i] = map[string]interface{}{"country": n[0], "vat_number": n[1]}
		}
		return "vat_validate_batch", map[string]interface{}{"items": items}, nil
	case len(numbers) == 1 && containsAny(lower, formatWords):
		return "vat_check_format", map[string]interface{}{"country": numbers[0][0], "vat_number": numbers[0][1]}, nil
	case len(numbers) == 1:
		return "vat_validate", map[string]interface{}{"country": numbers[0][0], "vat_number": numbers[0][1]}, nil
	}
	return "", nil, nil
}

// findNumbers returns [country, number] pairs for every EU-prefixed token.
func findNumbers(input string) [][2]string {
	var out [][2]string
	for _, m := range vatToken.FindAllStringSubmatch(input, -1) {
		country := m[1]
		if country != "GR" && !vat.IsEU(country) {
			continue
		}
		out = append(out, [2]string{country, m[0]})
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
