package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-eu-mcp-server/internal/vies"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRegistry(t *testing.T, handler http.HandlerFunc) *HandlerRegistry {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := testLogger()
	client := vies.NewClient(server.URL, vies.WithLogger(logger))
	return NewHandlerRegistry(vat.New(client, vat.WithLogger(logger)), logger)
}

func TestNewHandlerRegistry(t *testing.T) {
	logger := testLogger()
	validator := vat.New(nil)

	registry := NewHandlerRegistry(validator, logger)

	if registry == nil {
		t.Fatal("Expected non-nil registry")
	}
	if registry.validator != validator {
		t.Error("Registry should hold the validator reference")
	}
	if registry.logger != logger {
		t.Error("Registry should hold the logger reference")
	}
}

func TestRegisterAll(t *testing.T) {
	registry := NewHandlerRegistry(vat.New(nil), testLogger())
	server := mcp.NewServer(&mcp.Implementation{Name: "test", Version: "0.0.0"}, nil)

	for _, spec := range AllTools {
		if !registry.registerByName(server, spec) {
			t.Errorf("Tool %s was not registered", spec.Name)
		}
	}

	if registry.registerByName(server, ToolSpec{Name: "bogus", Method: "Bogus"}) {
		t.Error("Unknown method should not register")
	}
}

func TestBuildTool(t *testing.T) {
	registry := NewHandlerRegistry(vat.New(nil), testLogger())

	tests := []struct {
		name      string
		spec      ToolSpec
		wantName  string
		wantDesc  string
		wantRO    bool
		wantIdem  bool
		wantDestr bool
		wantOpen  bool
	}{
		{
			name: "offline tool",
			spec: ToolSpec{
				Name:        "vat_check_format",
				Title:       "Check VAT Number Format",
				Description: "Check the shape of a VAT number",
				Method:      "CheckFormat",
				Category:    "format",
				ReadOnly:    true,
				Idempotent:  true,
			},
			wantName: "vat_check_format",
			wantDesc: "Check the shape of a VAT number",
			wantRO:   true,
			wantIdem: true,
		},
		{
			name: "open world tool",
			spec: ToolSpec{
				Name:        "vat_validate",
				Title:       "Validate EU VAT Number",
				Description: "Validate against VIES",
				Method:      "Validate",
				Category:    "validate",
				OpenWorld:   true,
			},
			wantName: "vat_validate",
			wantDesc: "Validate against VIES",
			wantOpen: true,
		},
		{
			name: "destructive tool",
			spec: ToolSpec{
				Name:        "vat_flush",
				Description: "Flush",
				Destructive: true,
			},
			wantName:  "vat_flush",
			wantDesc:  "Flush",
			wantDestr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool := registry.buildTool(tt.spec)

			if tool.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", tool.Name, tt.wantName)
			}
			if tool.Description != tt.wantDesc {
				t.Errorf("Description = %q, want %q", tool.Description, tt.wantDesc)
			}
			if tool.Annotations == nil {
				t.Fatal("Expected annotations")
			}
			if tool.Annotations.ReadOnlyHint != tt.wantRO {
				t.Errorf("ReadOnlyHint = %v, want %v", tool.Annotations.ReadOnlyHint, tt.wantRO)
			}
			if tool.Annotations.IdempotentHint != tt.wantIdem {
				t.Errorf("IdempotentHint = %v, want %v", tool.Annotations.IdempotentHint, tt.wantIdem)
			}
			gotDestr := tool.Annotations.DestructiveHint != nil && *tool.Annotations.DestructiveHint
			if gotDestr != tt.wantDestr {
				t.Errorf("DestructiveHint = %v, want %v", gotDestr, tt.wantDestr)
			}
			if tool.Annotations.OpenWorldHint == nil {
				t.Fatal("OpenWorldHint should always be set")
			}
			if *tool.Annotations.OpenWorldHint != tt.wantOpen {
				t.Errorf("OpenWorldHint = %v, want %v", *tool.Annotations.OpenWorldHint, tt.wantOpen)
			}
		})
	}
}

func TestWrap_Validate(t *testing.T) {
	registry := newTestRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ms/DE/vat/123456789" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"isValid": true, "name": "ACME GMBH", "address": "---"}`))
	})
	spec, _ := FindTool("vat_validate")

	handler := wrap(registry, spec, registry.validator.ValidateMCP)
	_, result, err := handler(context.Background(), nil, vat.ValidateArgs{Country: "de", VATNumber: "DE 123 456 789"})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Errorf("expected valid result, got %+v", result)
	}
	if result.CanonicalID != "DE123456789" {
		t.Errorf("CanonicalID = %q, want DE123456789", result.CanonicalID)
	}
	if result.Name != "ACME GMBH" {
		t.Errorf("Name = %q", result.Name)
	}
	if result.Address != "" {
		t.Errorf("hidden address should be empty, got %q", result.Address)
	}
}

func TestWrap_UpstreamTrouble(t *testing.T) {
	registry := newTestRegistry(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	spec, _ := FindTool("vat_validate")

	handler := wrap(registry, spec, registry.validator.ValidateMCP)
	_, result, err := handler(context.Background(), nil, vat.ValidateArgs{Country: "FR", VATNumber: "12345678901"})

	if err != nil {
		t.Fatalf("VIES trouble should be a result, not a tool error: %v", err)
	}
	if result.Valid || !result.Retryable {
		t.Errorf("expected retryable failure, got %+v", result)
	}
	if result.Kind != string(vat.KindServiceUnavailable) {
		t.Errorf("Kind = %q", result.Kind)
	}
}

func TestWrap_ToolError(t *testing.T) {
	registry := NewHandlerRegistry(vat.New(nil), testLogger())
	spec, _ := FindTool("vat_validate_batch")

	handler := wrap(registry, spec, registry.validator.ValidateBatchMCP)
	_, _, err := handler(context.Background(), nil, vat.ValidateBatchArgs{})

	if err == nil {
		t.Fatal("expected an error for an empty batch")
	}
	if !strings.HasPrefix(err.Error(), "vat_validate_batch failed:") {
		t.Errorf("error should name the tool, got %q", err.Error())
	}
}

func TestWrap_RecoversPanic(t *testing.T) {
	registry := NewHandlerRegistry(vat.New(nil), slog.New(slog.NewTextHandler(io.Discard, nil)))
	spec := ToolSpec{Name: "panicky", Category: "test"}

	handler := wrap(registry, spec, func(context.Context, vat.ListCountriesArgs) (vat.ListCountriesResult, error) {
		panic("boom")
	})
	_, _, err := handler(context.Background(), nil, vat.ListCountriesArgs{})

	if err == nil {
		t.Fatal("a panic should surface as an error")
	}
}

func TestRecoverPanic(t *testing.T) {
	registry := NewHandlerRegistry(vat.New(nil), testLogger())

	var err error
	func() {
		defer registry.recoverPanic("test_tool", &err)
		panic("test panic")
	}()

	if err == nil || !strings.Contains(err.Error(), "test_tool") {
		t.Errorf("expected error naming the tool, got %v", err)
	}

	// Nothing to recover leaves err alone.
	err = errors.New("kept")
	func() {
		defer registry.recoverPanic("test_tool", &err)
	}()
	if err.Error() != "kept" {
		t.Errorf("err = %v, want kept", err)
	}
}

func TestLogExecution(t *testing.T) {
	registry := NewHandlerRegistry(vat.New(nil), testLogger())
	spec := ToolSpec{Name: "test_tool", Category: "validate"}

	registry.logExecution(spec,
		vat.ValidateArgs{Country: "DE", VATNumber: "123456789"},
		vat.ValidateResult{Valid: false, Kind: "INVALID", Source: vat.SourceVIES})

	registry.logExecution(spec,
		vat.CheckFormatArgs{Country: "NL"},
		vat.CheckFormatResult{FormatValid: true, EU: true})

	registry.logExecution(spec,
		vat.ValidateBatchArgs{Items: []vat.BatchEntry{{Country: "DE"}}},
		vat.ValidateBatchResult{ValidCount: 1})

	registry.logExecution(spec, vat.ListCountriesArgs{}, vat.ListCountriesResult{Count: 27})
}

func TestAllToolsNotEmpty(t *testing.T) {
	if len(AllTools) == 0 {
		t.Error("AllTools should not be empty")
	}

	seen := make(map[string]bool)
	for i, spec := range AllTools {
		if spec.Name == "" {
			t.Errorf("Tool %d has empty Name", i)
		}
		if seen[spec.Name] {
			t.Errorf("Tool %s is defined twice", spec.Name)
		}
		seen[spec.Name] = true
		if spec.Method == "" {
			t.Errorf("Tool %s has empty Method", spec.Name)
		}
		if spec.Category == "" {
			t.Errorf("Tool %s has empty Category", spec.Name)
		}
		if !strings.Contains(spec.Description, "USE WHEN:") {
			t.Errorf("Tool %s description lacks USE WHEN section", spec.Name)
		}
		if !spec.ReadOnly || spec.Destructive {
			t.Errorf("Tool %s should be read-only and non-destructive", spec.Name)
		}
	}
}

func TestToolSpecMethods(t *testing.T) {
	knownMethods := map[string]bool{
		"Validate":      true,
		"CheckFormat":   true,
		"ValidateBatch": true,
		"ListCountries": true,
	}

	for _, spec := range AllTools {
		if !knownMethods[spec.Method] {
			t.Errorf("Tool %s has unknown method: %s", spec.Name, spec.Method)
		}
	}
	if len(AllTools) != len(knownMethods) {
		t.Errorf("got %d tools, want %d", len(AllTools), len(knownMethods))
	}
}

func TestOpenWorldMatchesNetworkUse(t *testing.T) {
	for _, name := range []string{"vat_validate", "vat_validate_batch"} {
		spec, ok := FindTool(name)
		if !ok || !spec.OpenWorld {
			t.Errorf("%s should be open world", name)
		}
	}
	for _, name := range []string{"vat_check_format", "vat_list_countries"} {
		spec, ok := FindTool(name)
		if !ok || spec.OpenWorld {
			t.Errorf("%s should not be open world", name)
		}
	}
}

func TestToolsByCategory(t *testing.T) {
	validateTools := ToolsByCategory("validate")
	if len(validateTools) != 2 {
		t.Errorf("Expected 2 validate tools, got %d", len(validateTools))
	}
	for _, tool := range validateTools {
		if tool.Category != "validate" {
			t.Errorf("Tool %s has category %s, expected validate", tool.Name, tool.Category)
		}
	}

	if len(ToolsByCategory("unknown")) != 0 {
		t.Error("Expected no tools for unknown category")
	}
}

func TestToolNames(t *testing.T) {
	names := ToolNames()
	if len(names) != len(AllTools) {
		t.Fatalf("got %d names, want %d", len(names), len(AllTools))
	}
	for _, name := range names {
		if _, ok := FindTool(name); !ok {
			t.Errorf("FindTool(%q) failed", name)
		}
	}
	if _, ok := FindTool("unknown_tool"); ok {
		t.Error("FindTool should miss unknown names")
	}
}
