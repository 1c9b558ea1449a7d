package vat

import "fmt"

// ErrorKind classifies a failed validation. Kinds reported by VIES are passed
// through verbatim, so the set is open.
type ErrorKind string

const (
	KindMissingVATID       ErrorKind = "MISSING_VAT_ID"
	KindMissingCountry     ErrorKind = "MISSING_COUNTRY"
	KindMissingCompanyName ErrorKind = "MISSING_COMPANY_NAME"
	KindIncorrectFormat    ErrorKind = "INCORRECT_FORMAT"
	KindServiceUnavailable ErrorKind = "SERVICE_UNAVAILABLE"

	// Returned by VIES.
	KindMaxConcurrentReq       ErrorKind = "MS_MAX_CONCURRENT_REQ"
	KindGlobalMaxConcurrentReq ErrorKind = "GLOBAL_MAX_CONCURRENT_REQ"
	KindMSUnavailable          ErrorKind = "MS_UNAVAILABLE"
	KindTimeout                ErrorKind = "TIMEOUT"
	KindInvalidInput           ErrorKind = "INVALID_INPUT"
	KindInvalid                ErrorKind = "INVALID"
)

// Retryable reports whether the same request may succeed later.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindMaxConcurrentReq, KindGlobalMaxConcurrentReq, KindMSUnavailable, KindTimeout, KindServiceUnavailable:
		return true
	}
	return false
}

// Error is a failed validation expressed as a Go error.
type Error struct {
	Kind      ErrorKind
	Canonical string
	Detail    string
}

func (e *Error) Error() string {
	kind := string(e.Kind)
	if kind == "" {
		kind = "rejected"
	}
	switch {
	case e.Canonical != "" && e.Detail != "":
		return fmt.Sprintf("vat %s: %s: %s", e.Canonical, kind, e.Detail)
	case e.Canonical != "":
		return fmt.Sprintf("vat %s: %s", e.Canonical, kind)
	case e.Detail != "":
		return fmt.Sprintf("vat: %s: %s", kind, e.Detail)
	}
	return "vat: " + kind
}

// Retryable reports whether the failure is transient.
func (e *Error) Retryable() bool {
	return e.Kind.Retryable()
}

// Labels names the form fields referenced in caller messages.
type Labels struct {
	TaxID   string
	Company string
	Country string
}

// DefaultLabels returns the English field labels.
func DefaultLabels() Labels {
	return Labels{
		TaxID:   "VAT / Tax ID",
		Company: "Company name",
		Country: "Country / Region",
	}
}

// UserMessage returns the message shown to the person who entered the identifier.
// Every transient kind gets the wait-and-retry message. Empty labels fall back to
// DefaultLabels.
func UserMessage(kind ErrorKind, labels Labels) string {
	def := DefaultLabels()
	if labels.TaxID == "" {
		labels.TaxID = def.TaxID
	}
	if labels.Company == "" {
		labels.Company = def.Company
	}
	if labels.Country == "" {
		labels.Country = def.Country
	}

	switch kind {
	case KindMissingVATID:
		return fmt.Sprintf("Please enter %s.", labels.TaxID)
	case KindMissingCountry:
		return fmt.Sprintf("Please enter %s.", labels.Country)
	case KindMissingCompanyName:
		return fmt.Sprintf("Please enter %s.", labels.Company)
	case KindIncorrectFormat:
		return fmt.Sprintf("Field %s has incorrect format.", labels.TaxID)
	}
	if kind.Retryable() {
		return fmt.Sprintf("Unable to verify %s. Please wait and try again.", labels.TaxID)
	}
	return fmt.Sprintf("%s is invalid.", labels.TaxID)
}
