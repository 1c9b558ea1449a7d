package vat

import (
	"context"
	"fmt"
	"strings"

	apierrors "github.com/olgasafonova/vat-eu-mcp-server/internal/errors"
)

// MaxBatchSize caps vat_validate_batch requests.
const MaxBatchSize = 20

// MCP Tool wrapper methods
// These methods adapt tool arguments and wrap results for MCP integration.

// ValidateMCP is the MCP wrapper for Validate
func (v *Validator) ValidateMCP(ctx context.Context, args ValidateArgs) (ValidateResult, error) {
	country := CallerCountry(args.Country)

	if args.RequireCompany && args.VATNumber != "" && strings.TrimSpace(args.CompanyName) == "" {
		return summarize(Result{Kind: KindMissingCompanyName, Country: country, Source: SourceInput}), nil
	}

	return summarize(v.Validate(ctx, country, args.VATNumber)), nil
}

// CheckFormatMCP is the MCP wrapper for CheckFormat
func (v *Validator) CheckFormatMCP(_ context.Context, args CheckFormatArgs) (CheckFormatResult, error) {
	country := CallerCountry(args.Country)
	if country == "" {
		return CheckFormatResult{}, apierrors.NewValidationError("country", args.Country, "country code is required")
	}

	checked := CheckFormat(country, args.VATNumber)
	res := CheckFormatResult{
		FormatValid: checked.Valid,
		Country:     country,
		Number:      checked.Number,
		CanonicalID: checked.CanonicalID,
	}

	rule, ok := LookupCountry(country)
	if !ok {
		res.Message = "Country is outside the EU; the number is not checked."
		return res, nil
	}

	res.EU = true
	res.Pattern = rule.Expr
	res.ExpectedLength = rule.Length
	if !checked.Valid {
		res.Message = UserMessage(checked.Kind, Labels{})
	}
	return res, nil
}

// ValidateBatchMCP is the MCP wrapper for ValidateBatch
func (v *Validator) ValidateBatchMCP(ctx context.Context, args ValidateBatchArgs) (ValidateBatchResult, error) {
	if len(args.Items) == 0 {
		return ValidateBatchResult{}, apierrors.NewValidationError("items", "", "at least one item is required")
	}
	if len(args.Items) > MaxBatchSize {
		return ValidateBatchResult{}, apierrors.NewValidationError("items", fmt.Sprint(len(args.Items)),
			fmt.Sprintf("at most %d items per batch", MaxBatchSize))
	}

	items := make([]BatchItem, len(args.Items))
	for i, e := range args.Items {
		items[i] = BatchItem{Country: CallerCountry(e.Country), Number: e.VATNumber}
	}

	results, err := v.ValidateBatch(ctx, items)
	if err != nil {
		return ValidateBatchResult{}, fmt.Errorf("batch validation interrupted: %w", err)
	}

	out := ValidateBatchResult{Results: make([]ValidateResult, 0, len(results))}
	for _, r := range results {
		switch {
		case r.Valid:
			out.ValidCount++
		case r.Retryable():
			out.RetryableCount++
			out.InvalidCount++
		default:
			out.InvalidCount++
		}
		out.Results = append(out.Results, summarize(r))
	}
	return out, nil
}

// ListCountriesMCP is the MCP wrapper for Countries
func (v *Validator) ListCountriesMCP(_ context.Context, _ ListCountriesArgs) (ListCountriesResult, error) {
	rules := Countries()
	out := ListCountriesResult{Countries: make([]CountryInfo, 0, len(rules)), Count: len(rules)}
	for _, r := range rules {
		out.Countries = append(out.Countries, CountryInfo{
			Code:           r.Code,
			Name:           r.Name,
			ExpectedLength: r.Length,
			Pattern:        r.Expr,
		})
	}
	return out, nil
}

// CallerCountry tidies a country code typed by a person or model.
// ISO 3166 uses GR for Greece; VIES uses EL.
func CallerCountry(country string) string {
	c := strings.ToUpper(strings.TrimSpace(country))
	if c == "GR" {
		return "EL"
	}
	return c
}

func summarize(r Result) ValidateResult {
	out := ValidateResult{
		Valid:       r.Valid,
		CanonicalID: r.CanonicalID,
		Country:     r.Country,
		Number:      r.Number,
		Kind:        string(r.Kind),
		Retryable:   r.Retryable(),
		Detail:      r.Detail,
		Source:      r.Source,
		Name:        r.Name,
		Address:     r.Address,
		RequestDate: r.RequestDate,
	}
	if !r.Valid {
		out.Message = UserMessage(r.Kind, Labels{})
	}
	return out
}
