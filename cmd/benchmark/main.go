// Command benchmark measures the validator against the live VIES service:
// cache hits, batch concurrency, and deduplication of identical lookups.
//
// Usage:
//
//	go run ./cmd/benchmark -numbers DE:123456789,FR:12345678901,IT:12345678901
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/config"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vies"
)

const defaultNumbers = "DE:123456789,FR:12345678901,IT:12345678901,NL:123456789B01"

// newValidator builds a validator with a fresh in-memory cache.
func newValidator(cfg config.Config, logger *slog.Logger) (*vat.Validator, func()) {
	client := vies.NewClient(cfg.VIESBaseURL,
		vies.WithLogger(logger),
		vies.WithTimeout(cfg.VIESTimeout),
		vies.WithMaxConcurrent(cfg.VIESMaxConcurrent),
		vies.WithUserAgent(cfg.VIESUserAgent),
	)
	cache := vat.NewMemoryCache(cfg.CacheSize)
	v := vat.New(client,
		vat.WithLogger(logger),
		vat.WithCache(cache, cfg.CacheTTL),
		vat.WithConcurrency(cfg.VIESMaxConcurrent),
	)
	return v, cache.Close
}

// measureCachePerformance validates the same number twice.
func measureCachePerformance(ctx context.Context, cfg config.Config, logger *slog.Logger, item vat.BatchItem) {
	v, closeCache := newValidator(cfg, logger)
	defer closeCache()

	fmt.Println("=== Cache Performance Test ===")
	fmt.Println()
	fmt.Printf("1. Validate %s%s twice:\n", item.Country, item.Number)

	start := time.Now()
	first := v.Validate(ctx, item.Country, item.Number)
	firstCall := time.Since(start)
	fmt.Printf("   First call (network):  %v  source=%s kind=%s\n", firstCall, first.Source, first.Kind)

	start = time.Now()
	second := v.Validate(ctx, item.Country, item.Number)
	secondCall := time.Since(start)
	fmt.Printf("   Second call:           %v  source=%s\n", secondCall, second.Source)

	if second.Source == vat.SourceCache && secondCall > 0 {
		fmt.Printf("   Speedup: %.0fx faster\n", float64(firstCall)/float64(secondCall))
	} else {
		fmt.Println("   Not cached: VIES gave no definitive answer")
	}
	fmt.Println()
}

// measureBatchPerformance compares ValidateBatch with one-by-one calls.
func measureBatchPerformance(ctx context.Context, cfg config.Config, logger *slog.Logger, items []vat.BatchItem) {
	fmt.Println("=== Batch vs Sequential Performance ===")
	fmt.Println()
	fmt.Printf("Testing with %d numbers\n\n", len(items))

	fmt.Println("2. ValidateBatch (concurrent):")
	batchValidator, closeBatch := newValidator(cfg, logger)
	defer closeBatch()

	start := time.Now()
	results, err := batchValidator.ValidateBatch(ctx, items)
	if err != nil {
		fmt.Printf("   Error: %v\n", err)
		return
	}
	batchTime := time.Since(start)
	valid := 0
	for _, r := range results {
		if r.Valid {
			valid++
		}
	}
	fmt.Printf("   Batch time for %d numbers: %v\n", len(items), batchTime)
	fmt.Printf("   Valid: %d of %d\n", valid, len(results))
	fmt.Println()

	fmt.Println("3. Sequential Validate (for comparison):")
	seqValidator, closeSeq := newValidator(cfg, logger)
	defer closeSeq()

	start = time.Now()
	for _, item := range items {
		_ = seqValidator.Validate(ctx, item.Country, item.Number)
	}
	sequentialTime := time.Since(start)
	fmt.Printf("   Sequential time for %d numbers: %v\n", len(items), sequentialTime)
	if batchTime > 0 {
		fmt.Printf("   Parallel speedup: %.1fx faster\n", float64(sequentialTime)/float64(batchTime))
	}
	fmt.Println()
}

// measureDeduplication fires identical lookups at once; they should share
// one VIES request.
func measureDeduplication(ctx context.Context, cfg config.Config, logger *slog.Logger, item vat.BatchItem, callers int) {
	v, closeCache := newValidator(cfg, logger)
	defer closeCache()

	fmt.Println("=== Identical Lookup Deduplication ===")
	fmt.Println()
	fmt.Printf("4. %d concurrent lookups of %s%s:\n", callers, item.Country, item.Number)

	var wg sync.WaitGroup
	sources := make([]string, callers)
	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sources[i] = v.Validate(ctx, item.Country, item.Number).Source
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	bySource := make(map[string]int)
	for _, s := range sources {
		bySource[s]++
	}
	fmt.Printf("   Wall time: %v\n", elapsed)
	fmt.Printf("   Results by source: %v\n", bySource)
	fmt.Println()
}

func parseNumbers(list string) ([]vat.BatchItem, error) {
	var items []vat.BatchItem
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		country, number, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("entry %q: want COUNTRY:NUMBER", entry)
		}
		items = append(items, vat.BatchItem{Country: strings.ToUpper(country), Number: number})
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no numbers given")
	}
	return items, nil
}

func main() {
	numbers := flag.String("numbers", defaultNumbers, "Comma-separated COUNTRY:NUMBER entries")
	callers := flag.Int("callers", 10, "Concurrent callers for the deduplication test")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Config error: %v\n", err)
		os.Exit(1)
	}
	items, err := parseNumbers(*numbers)
	if err != nil {
		fmt.Printf("Input error: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := context.Background()

	fmt.Println("VAT EU MCP Server - Performance Measurements")
	fmt.Println("============================================")
	fmt.Printf("VIES: %s\n\n", cfg.VIESBaseURL)

	measureCachePerformance(ctx, cfg, logger, items[0])
	measureBatchPerformance(ctx, cfg, logger, items)
	measureDeduplication(ctx, cfg, logger, items[0], *callers)

	fmt.Println("=== Summary ===")
	fmt.Println()
	fmt.Println("• Caching: definitive answers are served from memory or Redis until VAT_CACHE_TTL")
	fmt.Println("• Concurrency: batches run in parallel, bounded by VIES_MAX_CONCURRENT")
	fmt.Println("• Deduplication: identical in-flight lookups share a single VIES request")
}
