package vat

// Where a verdict came from.
const (
	SourceInput    = "input"    // rejected before any lookup
	SourceNonEU    = "non_eu"   // country outside the table, accepted unchecked
	SourceFormat   = "format"   // rejected by the local format rules
	SourceOverride = "override" // decided by a registered override
	SourceVIES     = "vies"
	SourceCache    = "cache"
)

// Result is the outcome of one validation. A failure carries its Kind; there
// is no state left behind on the Validator. CanonicalID is set only on success.
type Result struct {
	Valid       bool      `json:"valid"`
	CanonicalID string    `json:"canonical_id,omitempty"`
	Kind        ErrorKind `json:"kind,omitempty"`
	Detail      string    `json:"detail,omitempty"`

	Country     string `json:"country,omitempty"`
	Number      string `json:"number,omitempty"`
	Source      string `json:"source"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
	RequestDate string `json:"request_date,omitempty"`
}

// Err returns nil for a valid result and a *Error otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	e := &Error{Kind: r.Kind, Detail: r.Detail}
	if r.Number != "" {
		e.Canonical = r.Country + r.Number
	}
	return e
}

// Retryable reports whether a failed result may succeed if tried again.
func (r Result) Retryable() bool {
	return !r.Valid && r.Kind.Retryable()
}

// definitive reports whether the result is stable enough to cache.
func (r Result) definitive() bool {
	if r.Valid {
		return true
	}
	return r.Kind != "" && !r.Kind.Retryable()
}

func failure(kind ErrorKind, source string) Result {
	return Result{Kind: kind, Source: source}
}
