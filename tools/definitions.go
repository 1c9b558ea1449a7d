package tools

// AllTools contains all tool specifications for the VAT MCP server.
// Tool descriptions follow a structured format for LLM tool selection:
// - USE WHEN: Natural language triggers
// - NOT FOR: Disambiguation from similar tools
// - PARAMETERS: Key arguments with defaults
// - RETURNS: What the tool returns
var AllTools = []ToolSpec{
	// ==========================================================================
	// VALIDATION TOOLS
	// ==========================================================================
	{
		Name:     "vat_validate",
		Method:   "Validate",
		Title:    "Validate EU VAT Number",
		Category: "validate",
		Description: `Validate ONE EU VAT identification number: local format check, then confirmation against the EU VIES service.

USE WHEN: User asks "is DE123456789 a valid VAT number", "check this VAT ID", "verify the customer's tax number", "is this company VAT registered".

NOT FOR: Checking only the shape of a number without contacting VIES (use vat_check_format). Several numbers at once (use vat_validate_batch).

PARAMETERS:
- country: Two-letter member state code, e.g. DE, FR, EL (GR is accepted for Greece) (required)
- vat_number: The number as typed, with or without country prefix and separators (required)
- company_name: Company name entered alongside the number (optional)
- require_company: Fail with MISSING_COMPANY_NAME when a number is given without company_name (default false)

RETURNS: valid flag, canonical id (e.g. DE123456789), error kind, retryable flag, user-facing message, and the registered name/address when VIES discloses them.

NOTE: Countries outside the EU are accepted unchecked. Retryable kinds (MS_MAX_CONCURRENT_REQ, MS_UNAVAILABLE, TIMEOUT, SERVICE_UNAVAILABLE) mean VIES could not answer, not that the number is wrong.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},
	{
		Name:     "vat_validate_batch",
		Method:   "ValidateBatch",
		Title:    "Validate EU VAT Numbers (Batch)",
		Category: "validate",
		Description: `Validate SEVERAL EU VAT numbers in one call. Results keep input order.

USE WHEN: User provides a list of VAT numbers, "check these suppliers' VAT IDs", "validate all of these".

NOT FOR: A single number (use vat_validate).

PARAMETERS:
- items: Array of {country, vat_number}, 1 to 20 entries (required)

RETURNS: Per-item results as in vat_validate, plus valid, invalid and retryable counts.`,
		ReadOnly:   true,
		Idempotent: true,
		OpenWorld:  true,
	},

	// ==========================================================================
	// FORMAT TOOLS
	// ==========================================================================
	{
		Name:     "vat_check_format",
		Method:   "CheckFormat",
		Title:    "Check VAT Number Format",
		Category: "format",
		Description: `Check whether a VAT number has the right SHAPE for its country. Offline; VIES is not contacted.

USE WHEN: User asks "does this look like a valid Dutch VAT number", "what's wrong with this format", "normalize this VAT ID", or wants a quick check without a registry lookup.

NOT FOR: Confirming the number is actually registered (use vat_validate).

PARAMETERS:
- country: Two-letter member state code (required)
- vat_number: The number as typed (required)

RETURNS: format_valid flag, normalized number, canonical id, the expected pattern and typical length for the country.`,
		ReadOnly:   true,
		Idempotent: true,
	},

	// ==========================================================================
	// REFERENCE TOOLS
	// ==========================================================================
	{
		Name:     "vat_list_countries",
		Method:   "ListCountries",
		Title:    "List VAT Countries",
		Category: "reference",
		Description: `List the EU member states whose VAT numbers are checked, with their number formats.

USE WHEN: User asks "which countries are supported", "what is the VAT format in Ireland", "what code does Greece use".

NOT FOR: Validating a number (use vat_validate or vat_check_format).

PARAMETERS: none

RETURNS: Country code, name, typical body length and pattern for each member state.`,
		ReadOnly:   true,
		Idempotent: true,
	},
}

// ToolsByCategory returns the tools in category.
func ToolsByCategory(category string) []ToolSpec {
	var out []ToolSpec
	for _, spec := range AllTools {
		if spec.Category == category {
			out = append(out, spec)
		}
	}
	return out
}

// ToolNames returns the names of all tools.
func ToolNames() []string {
	names := make([]string, len(AllTools))
	for i, spec := range AllTools {
		names[i] = spec.Name
	}
	return names
}

// FindTool returns the spec named name.
func FindTool(name string) (ToolSpec, bool) {
	for _, spec := range AllTools {
		if spec.Name == name {
			return spec, true
		}
	}
	return ToolSpec{}, false
}
