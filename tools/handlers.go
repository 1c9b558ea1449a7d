package tools

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/olgasafonova/vat-eu-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-eu-mcp-server/metrics"
	"github.com/olgasafonova/vat-eu-mcp-server/tracing"
)

// HandlerRegistry provides type-safe tool registration by mapping
// tool names to their concrete handler implementations.
type HandlerRegistry struct {
	validator *vat.Validator
	logger    *slog.Logger
}

// NewHandlerRegistry creates a new handler registry.
func NewHandlerRegistry(validator *vat.Validator, logger *slog.Logger) *HandlerRegistry {
	return &HandlerRegistry{
		validator: validator,
		logger:    logger,
	}
}

// RegisterAll registers all tools with the MCP server.
func (h *HandlerRegistry) RegisterAll(server *mcp.Server) {
	registered := 0
	for _, spec := range AllTools {
		if h.registerByName(server, spec) {
			registered++
		}
	}
	h.logger.Info("Registered all tools", "count", registered)
}

// registerByName dispatches to the correct typed registration function.
func (h *HandlerRegistry) registerByName(server *mcp.Server, spec ToolSpec) bool {
	tool := h.buildTool(spec)

	switch spec.Method {
	case "Validate":
		register(h, server, tool, spec, h.validator.ValidateMCP)
	case "CheckFormat":
		register(h, server, tool, spec, h.validator.CheckFormatMCP)
	case "ValidateBatch":
		register(h, server, tool, spec, h.validator.ValidateBatchMCP)
	case "ListCountries":
		register(h, server, tool, spec, h.validator.ListCountriesMCP)
	default:
		h.logger.Error("Unknown method, tool not registered", "method", spec.Method, "tool", spec.Name)
		return false
	}
	return true
}

// buildTool creates an mcp.Tool from a ToolSpec.
func (h *HandlerRegistry) buildTool(spec ToolSpec) *mcp.Tool {
	annotations := &mcp.ToolAnnotations{
		Title:          spec.Title,
		ReadOnlyHint:   spec.ReadOnly,
		IdempotentHint: spec.Idempotent,
	}
	if spec.Destructive {
		annotations.DestructiveHint = ptr(true)
	}
	// Unset means true in MCP, so closed-world tools say so explicitly.
	annotations.OpenWorldHint = ptr(spec.OpenWorld)

	return &mcp.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		Annotations: annotations,
	}
}

// register wraps a validator method with panic recovery, metrics, tracing,
// and logging, and adds it to the server.
func register[Args, Result any](
	h *HandlerRegistry,
	server *mcp.Server,
	tool *mcp.Tool,
	spec ToolSpec,
	method func(context.Context, Args) (Result, error),
) {
	mcp.AddTool(server, tool, wrap(h, spec, method))
}

// wrap builds the typed MCP handler for method.
func wrap[Args, Result any](
	h *HandlerRegistry,
	spec ToolSpec,
	method func(context.Context, Args) (Result, error),
) func(context.Context, *mcp.CallToolRequest, Args) (*mcp.CallToolResult, Result, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args Args) (_ *mcp.CallToolResult, result Result, err error) {
		defer h.recoverPanic(spec.Name, &err)

		ctx, span := tracing.StartSpan(ctx, "mcp.tool."+spec.Name)
		defer span.End()

		tracing.AddToolAttributes(span, spec.Name, spec.Category)
		span.SetAttributes(attribute.Bool("mcp.tool.readonly", spec.ReadOnly))

		metrics.RequestInFlight.WithLabelValues(spec.Name).Inc()
		defer metrics.RequestInFlight.WithLabelValues(spec.Name).Dec()

		start := time.Now()
		result, err = method(ctx, args)
		duration := time.Since(start).Seconds()

		span.SetAttributes(attribute.Float64("mcp.tool.duration_seconds", duration))

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			metrics.RecordRequest(spec.Name, duration, false)
			var zero Result
			return nil, zero, fmt.Errorf("%s failed: %w", spec.Name, err)
		}

		span.SetStatus(codes.Ok, "")
		metrics.RecordRequest(spec.Name, duration, true)
		h.logExecution(spec, args, result)
		return nil, result, nil
	}
}

// recoverPanic turns a panic in a tool handler into a tool error.
func (h *HandlerRegistry) recoverPanic(toolName string, err *error) {
	if rec := recover(); rec != nil {
		metrics.PanicsRecovered.WithLabelValues(toolName).Inc()
		h.logger.Error("Panic recovered",
			"tool", toolName,
			"panic", rec,
			"stack", string(debug.Stack()))
		if err != nil {
			*err = fmt.Errorf("%s failed: internal error", toolName)
		}
	}
}

// logExecution logs tool execution details.
func (h *HandlerRegistry) logExecution(spec ToolSpec, args, result any) {
	attrs := []any{"tool", spec.Name, "category", spec.Category}

	switch a := args.(type) {
	case vat.ValidateArgs:
		attrs = append(attrs, "country", a.Country)
	case vat.CheckFormatArgs:
		attrs = append(attrs, "country", a.Country)
	case vat.ValidateBatchArgs:
		attrs = append(attrs, "items", len(a.Items))
	case vat.ListCountriesArgs:
		// No args to log
	}

	switch r := result.(type) {
	case vat.ValidateResult:
		attrs = append(attrs, "valid", r.Valid, "source", r.Source)
		if r.Kind != "" {
			attrs = append(attrs, "kind", r.Kind)
		}
	case vat.CheckFormatResult:
		attrs = append(attrs, "format_valid", r.FormatValid, "eu", r.EU)
	case vat.ValidateBatchResult:
		attrs = append(attrs, "valid", r.ValidCount, "invalid", r.InvalidCount, "retryable", r.RetryableCount)
	case vat.ListCountriesResult:
		attrs = append(attrs, "countries", r.Count)
	}

	h.logger.Info("Tool executed", attrs...)
}
