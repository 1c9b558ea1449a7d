package evals

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/vat"
)

// Argument names the VAT tools share.
const (
	argCountry   = "country"
	argVATNumber = "vat_number"
	argItems     = "items"
)

// argProblems compares actual against expected the way the tools read their
// input, and reports each mismatch as "arg: reason". Keys absent from actual
// are reported as missing instead.
func argProblems(expected, actual map[string]interface{}) (missing []string, wrong map[string]string) {
	wrong = make(map[string]string)
	for _, key := range sortedNames(expected) {
		want := expected[key]
		got, ok := actual[key]
		if !ok {
			missing = append(missing, key)
			continue
		}
		if !sameArg(key, want, got) {
			wrong[key] = fmt.Sprintf("expected %v, got %v", want, got)
		}
	}
	for key, reason := range prefixConflicts(actual) {
		if _, seen := wrong[key]; !seen {
			wrong[key] = reason
		}
	}
	return missing, wrong
}

// sameArg reports whether two values of the named argument mean the same to
// the server. "gr" and "EL" are the same country; "DE 123.456.789" and
// "123456789" are the same number.
func sameArg(key string, expected, actual interface{}) bool {
	switch key {
	case argCountry:
		e, eok := expected.(string)
		a, aok := actual.(string)
		if eok && aok {
			return vat.CallerCountry(e) == vat.CallerCountry(a)
		}
	case argVATNumber:
		e, eok := expected.(string)
		a, aok := actual.(string)
		if eok && aok {
			return sameNumber(e, a)
		}
	case argItems:
		return sameItems(expected, actual)
	}
	return sameValue(expected, actual)
}

// sameNumber compares normalized bodies. When both sides carry a country
// prefix, the prefixes must agree too.
func sameNumber(expected, actual string) bool {
	if vat.Normalize(expected) != vat.Normalize(actual) {
		return false
	}
	ep, ap := numberPrefix(expected), numberPrefix(actual)
	return ep == "" || ap == "" || ep == ap
}

func sameItems(expected, actual interface{}) bool {
	ev, av := reflect.ValueOf(expected), reflect.ValueOf(actual)
	if ev.Kind() != reflect.Slice || av.Kind() != reflect.Slice || ev.Len() != av.Len() {
		return false
	}
	for i := 0; i < ev.Len(); i++ {
		e, eok := ev.Index(i).Interface().(map[string]interface{})
		a, aok := av.Index(i).Interface().(map[string]interface{})
		if !eok || !aok {
			return false
		}
		if missing, wrong := argProblems(e, a); len(missing) > 0 || len(wrong) > 0 {
			return false
		}
	}
	return true
}

// prefixConflicts flags a vat_number whose own prefix names a different
// country than the country argument, at the top level and in batch items.
func prefixConflicts(args map[string]interface{}) map[string]string {
	conflicts := make(map[string]string)
	if reason := prefixConflict(args); reason != "" {
		conflicts[argVATNumber] = reason
	}
	if items, ok := args[argItems].([]interface{}); ok {
		for i, it := range items {
			m, ok := it.(map[string]interface{})
			if !ok {
				continue
			}
			if reason := prefixConflict(m); reason != "" {
				conflicts[argItems] = fmt.Sprintf("item %d: %s", i, reason)
				break
			}
		}
	}
	return conflicts
}

func prefixConflict(args map[string]interface{}) string {
	country, _ := args[argCountry].(string)
	number, _ := args[argVATNumber].(string)
	if country == "" || number == "" {
		return ""
	}
	prefix := numberPrefix(number)
	if prefix == "" || prefix == vat.CallerCountry(country) {
		return ""
	}
	return fmt.Sprintf("prefix %s contradicts country %s", prefix, vat.CallerCountry(country))
}

// numberPrefix returns the country prefix a VAT number was typed with, or ""
// when it starts with digits.
func numberPrefix(number string) string {
	var letters []rune
	for _, r := range strings.TrimSpace(number) {
		if r == ' ' || r == '.' || r == ',' || r == '-' {
			continue
		}
		if !unicode.IsLetter(r) || len(letters) == 2 {
			break
		}
		letters = append(letters, r)
	}
	if len(letters) != 2 {
		return ""
	}
	return vat.CallerCountry(string(letters))
}

// sameValue compares decoded JSON values, treating ints and float64 alike.
func sameValue(expected, actual interface{}) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	ev := reflect.ValueOf(expected)
	av := reflect.ValueOf(actual)

	switch ev.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if av.Kind() == reflect.Float64 {
			return float64(ev.Int()) == av.Float()
		}
	case reflect.Float32, reflect.Float64:
		if av.Kind() == reflect.Float64 {
			return ev.Float() == av.Float()
		}
	case reflect.Slice:
		if av.Kind() != reflect.Slice || ev.Len() != av.Len() {
			return false
		}
		for i := 0; i < ev.Len(); i++ {
			if !sameValue(ev.Index(i).Interface(), av.Index(i).Interface()) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(expected, actual)
}
