package vat

import (
	"regexp"
	"sort"
)

// CountryRule describes the VAT number body accepted for one EU member state.
type CountryRule struct {
	Code    string // VIES member state code; Greece is EL
	Name    string
	Length  int    // typical body length, informational only
	Expr    string // pattern source, matched against the end of the body
	pattern *regexp.Regexp
}

// Match reports whether body ends in a well-formed number for this country.
func (r CountryRule) Match(body string) bool {
	return r.pattern.MatchString(body)
}

func rule(code, name string, length int, expr string) CountryRule {
	return CountryRule{
		Code:    code,
		Name:    name,
		Length:  length,
		Expr:    expr,
		pattern: regexp.MustCompile(`(?:` + expr + `)$`),
	}
}

var countryRules = map[string]CountryRule{
	"AT": rule("AT", "Austria", 10, `U\d{9}`),
	"BE": rule("BE", "Belgium", 10, `\d{10}`),
	"BG": rule("BG", "Bulgaria", 10, `\d{10}`),
	"CY": rule("CY", "Cyprus", 9, `\d{8}[A-Z]`),
	"CZ": rule("CZ", "Czech Republic", 10, `\d{10}`),
	"DE": rule("DE", "Germany", 9, `\d{9}`),
	"DK": rule("DK", "Denmark", 8, `\d{8}`),
	"EE": rule("EE", "Estonia", 9, `\d{9}`),
	"EL": rule("EL", "Greece", 9, `\d{9}`),
	"ES": rule("ES", "Spain", 9, `[A-Z]\d{2}(?:\d{6}|\d{5}[A-Z])`),
	"FI": rule("FI", "Finland", 8, `\d{8}`),
	"FR": rule("FR", "France", 11, `\d{11}`),
	"HR": rule("HR", "Croatia", 11, `\d{11}`),
	"HU": rule("HU", "Hungary", 8, `\d{8}`),
	"IE": rule("IE", "Ireland", 9, `\d{7}[A-Z]{1,2}|\d[A-Z]\d{5}[A-Z]`),
	"IT": rule("IT", "Italy", 11, `\d{11}`),
	"LT": rule("LT", "Lithuania", 12, `\d{12}`),
	"LU": rule("LU", "Luxembourg", 8, `\d{8}`),
	"LV": rule("LV", "Latvia", 11, `\d{11}`),
	"MT": rule("MT", "Malta", 8, `\d{8}`),
	"NL": rule("NL", "Netherlands", 12, `\d{9}B\d{2}`),
	"PL": rule("PL", "Poland", 10, `\d{10}`),
	"PT": rule("PT", "Portugal", 9, `\d{9}`),
	"RO": rule("RO", "Romania", 8, `\d{8}`),
	"SE": rule("SE", "Sweden", 12, `\d{12}`),
	"SI": rule("SI", "Slovenia", 8, `\d{8}`),
	"SK": rule("SK", "Slovakia", 10, `\d{10}`),
}

// LookupCountry returns the rule for an exact member state code.
func LookupCountry(code string) (CountryRule, bool) {
	r, ok := countryRules[code]
	return r, ok
}

// IsEU reports whether code is a member state code known to VIES.
func IsEU(code string) bool {
	_, ok := countryRules[code]
	return ok
}

// Countries returns all rules ordered by code.
func Countries() []CountryRule {
	out := make([]CountryRule, 0, len(countryRules))
	for _, r := range countryRules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
