package vat

// ValidateArgs contains parameters for a full VAT number validation
type ValidateArgs struct {
	Country        string `json:"country" jsonschema:"Two-letter EU member state code (EL or GR for Greece). Other countries are accepted unchecked."`
	VATNumber      string `json:"vat_number" jsonschema:"VAT number as entered, with or without country prefix, spaces, dots or dashes"`
	CompanyName    string `json:"company_name,omitempty" jsonschema:"Company name entered alongside the VAT number"`
	RequireCompany bool   `json:"require_company,omitempty" jsonschema:"Reject the number with MISSING_COMPANY_NAME when company_name is empty"`
}

// ValidateResult is the outcome of a single validation
type ValidateResult struct {
	Valid       bool   `json:"valid"`
	CanonicalID string `json:"canonical_id,omitempty"`
	Country     string `json:"country,omitempty"`
	Number      string `json:"number,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Retryable   bool   `json:"retryable,omitempty"`
	Message     string `json:"message,omitempty"`
	Detail      string `json:"detail,omitempty"`
	Source      string `json:"source"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	RequestDate string `json:"request_date,omitempty"`
}

// CheckFormatArgs contains parameters for an offline format check
type CheckFormatArgs struct {
	Country   string `json:"country" jsonschema:"Two-letter EU member state code (EL or GR for Greece)"`
	VATNumber string `json:"vat_number" jsonschema:"VAT number to check, with or without country prefix"`
}

// CheckFormatResult is the outcome of an offline format check
type CheckFormatResult struct {
	FormatValid    bool   `json:"format_valid"`
	EU             bool   `json:"eu"`
	Country        string `json:"country"`
	Number         string `json:"number,omitempty"`
	CanonicalID    string `json:"canonical_id,omitempty"`
	Pattern        string `json:"pattern,omitempty"`
	ExpectedLength int    `json:"expected_length,omitempty"`
	Message        string `json:"message,omitempty"`
}

// BatchEntry is one identifier in a batch request
type BatchEntry struct {
	Country   string `json:"country" jsonschema:"Two-letter EU member state code"`
	VATNumber string `json:"vat_number" jsonschema:"VAT number as entered"`
}

// ValidateBatchArgs contains parameters for batch validation
type ValidateBatchArgs struct {
	Items []BatchEntry `json:"items" jsonschema:"Identifiers to validate (max 20)"`
}

// ValidateBatchResult holds per-item outcomes in request order
type ValidateBatchResult struct {
	Results        []ValidateResult `json:"results"`
	ValidCount     int              `json:"valid_count"`
	InvalidCount   int              `json:"invalid_count"`
	RetryableCount int              `json:"retryable_count,omitempty"`
}

// ListCountriesArgs has no parameters
type ListCountriesArgs struct{}

// ListCountriesResult lists the supported member states
type ListCountriesResult struct {
	Countries []CountryInfo `json:"countries"`
	Count     int           `json:"count"`
}

// CountryInfo describes one member state's VAT number format
type CountryInfo struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	ExpectedLength int    `json:"expected_length"`
	Pattern        string `json:"pattern"`
}
