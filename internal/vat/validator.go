// Package vat validates EU VAT identification numbers: local normalization and
// per-country format rules, followed by confirmation against VIES.
package vat

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/infra"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vies"
	"github.com/olgasafonova/vat-eu-mcp-server/metrics"
	"github.com/olgasafonova/vat-eu-mcp-server/tracing"
)

// DefaultConcurrency bounds batch fan-out when no limit is configured.
const DefaultConcurrency = 2

// Checker confirms a number body with the remote registry.
type Checker interface {
	CheckVAT(ctx context.Context, country, number string) (*vies.CheckResponse, error)
}

// Override may decide a country's numbers before VIES is asked. ok=false defers
// to the normal flow; otherwise verdict is final.
type Override func(ctx context.Context, number string) (verdict bool, ok bool)

// Validator validates VAT numbers. It is safe for concurrent use.
type Validator struct {
	checker     Checker
	cache       ResultCache
	cacheTTL    time.Duration
	overrides   map[string]Override
	dedup       *infra.Deduplicator[Result]
	logger      *slog.Logger
	concurrency int
}

// Option configures a Validator.
type Option func(*Validator)

// WithCache reuses definitive VIES verdicts for ttl.
func WithCache(c ResultCache, ttl time.Duration) Option {
	return func(v *Validator) {
		v.cache = c
		if ttl > 0 {
			v.cacheTTL = ttl
		}
	}
}

// WithOverride registers fn for an exact country code.
func WithOverride(country string, fn Override) Option {
	return func(v *Validator) {
		if fn != nil {
			v.overrides[country] = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

// WithConcurrency bounds how many batch entries are validated at once.
func WithConcurrency(n int) Option {
	return func(v *Validator) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// New creates a Validator. checker may be nil, in which case every number that
// reaches the remote step fails with SERVICE_UNAVAILABLE.
func New(checker Checker, opts ...Option) *Validator {
	v := &Validator{
		checker:     checker,
		cacheTTL:    DefaultCacheTTL,
		overrides:   make(map[string]Override),
		dedup:       infra.NewDeduplicator[Result](),
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateFormat checks a raw identifier against the country's format without any
// network call. Countries outside the table are always accepted.
func ValidateFormat(country, raw string) bool {
	r, ok := LookupCountry(country)
	if !ok {
		return true
	}
	return r.Match(Normalize(raw))
}

// ValidateFormat is the package-level ValidateFormat.
func (v *Validator) ValidateFormat(country, raw string) bool {
	return ValidateFormat(country, raw)
}

// Validate runs the full check of raw for country. The first failing step decides
// the outcome; country must be an exact code (Greece is EL).
func (v *Validator) Validate(ctx context.Context, country, raw string) Result {
	ctx, span := tracing.StartSpan(ctx, "vat.validate")
	defer span.End()

	res := v.validate(ctx, country, raw)

	tracing.AddVATAttributes(span, country, res.Source)
	metrics.RecordValidation(countryLabel(country), res.Source, string(res.Kind))
	if !res.Valid {
		v.logger.Debug("VAT validation failed",
			"country", country,
			"kind", res.Kind,
			"source", res.Source,
			"detail", res.Detail)
	}
	return res
}

func (v *Validator) validate(ctx context.Context, country, raw string) Result {
	res, done := checkLocal(country, raw)
	if done {
		return res
	}
	body, canonical := res.Number, res.CanonicalID

	if fn, ok := v.overrides[country]; ok {
		if verdict, decided := fn(ctx, body); decided {
			res := Result{Valid: verdict, Country: country, Number: body, Source: SourceOverride}
			if verdict {
				res.CanonicalID = canonical
			}
			return res
		}
	}

	return v.verify(ctx, country, body, canonical)
}

// CheckFormat runs every local step of Validate and stops before overrides and
// VIES. A number that passes comes back valid with Source "format".
func CheckFormat(country, raw string) Result {
	res, done := checkLocal(country, raw)
	if !done {
		res.Valid = true
	}
	return res
}

// checkLocal applies the input, country, format and character checks. When done
// is false the number is well formed and res carries its body and canonical id
// for the remote step.
func checkLocal(country, raw string) (res Result, done bool) {
	if raw == "" {
		return failure(KindMissingVATID, SourceInput), true
	}
	if country == "" {
		return failure(KindMissingCountry, SourceInput), true
	}

	rule, ok := LookupCountry(country)
	if !ok {
		return Result{Valid: true, CanonicalID: raw, Country: country, Source: SourceNonEU}, true
	}

	body := Normalize(raw)
	canonical := country + body

	if !rule.Match(body) || !allowed(canonical) {
		return Result{Kind: KindIncorrectFormat, Country: country, Number: body, Source: SourceFormat}, true
	}
	return Result{CanonicalID: canonical, Country: country, Number: body, Source: SourceFormat}, false
}

// verify consults the cache, then VIES. Identical lookups in flight share one
// call; a caller whose ctx ends gets SERVICE_UNAVAILABLE without affecting the rest.
func (v *Validator) verify(ctx context.Context, country, body, canonical string) Result {
	if v.cache != nil {
		if cached, ok := v.cache.Get(ctx, canonical); ok {
			metrics.RecordCacheAccess(true)
			cached.Source = SourceCache
			return cached
		}
		metrics.RecordCacheAccess(false)
	}

	// Shared by every caller of canonical; the client timeout bounds it.
	shared := context.WithoutCancel(ctx)
	res, _, err := v.dedup.Do(ctx, canonical, func() (Result, error) {
		res := v.remote(shared, country, body, canonical)
		if v.cache != nil && res.definitive() {
			v.cache.Set(shared, canonical, res, v.cacheTTL)
		}
		return res, nil
	})
	if err != nil {
		return Result{Kind: KindServiceUnavailable, Detail: err.Error(), Country: country, Number: body, Source: SourceVIES}
	}
	return res
}

// InFlight returns the number of distinct VIES lookups currently running.
func (v *Validator) InFlight() int {
	return v.dedup.InFlight()
}

func (v *Validator) remote(ctx context.Context, country, body, canonical string) Result {
	res := Result{Country: country, Number: body, Source: SourceVIES}

	if v.checker == nil {
		res.Kind = KindServiceUnavailable
		res.Detail = "no verification service configured"
		return res
	}

	resp, err := v.checker.CheckVAT(ctx, country, body)
	if err != nil {
		v.logger.Warn("VIES check failed", "country", country, "error", err)
		res.Kind = KindServiceUnavailable
		res.Detail = err.Error()
		return res
	}

	res.Name = resp.Name
	res.Address = resp.Address
	res.RequestDate = resp.RequestDate

	switch {
	case resp.IsValid:
		res.Valid = true
		res.CanonicalID = canonical
	case resp.UserError == string(KindMaxConcurrentReq):
		res.Kind = KindMaxConcurrentReq
	default:
		res.Kind = ErrorKind(resp.UserError)
	}
	return res
}

// BatchItem is one entry of a batch validation.
type BatchItem struct {
	Country string
	Number  string
}

// ValidateBatch validates items concurrently, bounded by the configured
// concurrency. Results keep input order. If ctx ends early the entries not yet
// started are left zero and ctx's error is returned.
func (v *Validator) ValidateBatch(ctx context.Context, items []BatchItem) ([]Result, error) {
	results := make([]Result, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, item := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = v.Validate(gctx, item.Country, item.Number)
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// countryLabel keeps metric cardinality bounded to the table.
func countryLabel(country string) string {
	switch {
	case country == "":
		return "none"
	case IsEU(country):
		return country
	default:
		return "non_eu"
	}
}
