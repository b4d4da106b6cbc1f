package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const langfuseOTelPath = "/api/public/otel/v1/traces"

// LangfuseReporter exports traces as OpenTelemetry spans to Langfuse's OTLP
// endpoint. Spans are batched and sent in the background.
type LangfuseReporter struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

func NewLangfuseReporter(ctx context.Context, host, publicKey, secretKey, serviceName string) (*LangfuseReporter, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(publicKey + ":" + secretKey))
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(strings.TrimRight(host, "/")+langfuseOTelPath),
		otlptracehttp.WithHeaders(map[string]string{"Authorization": "Basic " + auth}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		slog.Warn("telemetry export failed", "error", err)
	}))

	return newLangfuseReporter(serviceName, sdktrace.WithBatcher(exporter)), nil
}

func newLangfuseReporter(serviceName string, opts ...sdktrace.TracerProviderOption) *LangfuseReporter {
	opts = append(opts,
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(serviceName))),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	tp := sdktrace.NewTracerProvider(opts...)
	return &LangfuseReporter{
		tp:     tp,
		tracer: tp.Tracer(serviceName),
	}
}

type traceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (r *LangfuseReporter) Report(ctx context.Context, t Trace) error {
	input := make([]traceMessage, 0, len(t.Input))
	for _, m := range t.Input {
		input = append(input, traceMessage{Role: string(m.Role), Content: m.Content})
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode trace input: %w", err)
	}
	usageJSON, _ := json.Marshal(map[string]int{
		"input":  t.PromptTokens,
		"output": t.CompletionTokens,
		"total":  t.TotalTokens,
	})
	cost, _ := t.CostUSD.Float64()
	costJSON, _ := json.Marshal(map[string]float64{"total": cost})

	attrs := []attribute.KeyValue{
		attribute.String("langfuse.trace.name", t.Name),
		attribute.String("langfuse.session.id", t.SessionID),
		attribute.String("session.id", t.SessionID),
		attribute.String("langfuse.trace.metadata.conversation_id", t.ConversationID.String()),
		attribute.String("langfuse.observation.type", "generation"),
		attribute.String("langfuse.observation.model.name", t.Model),
		attribute.String("langfuse.observation.input", string(inputJSON)),
		attribute.String("langfuse.observation.output", t.Output),
		attribute.String("langfuse.observation.usage_details", string(usageJSON)),
		attribute.String("langfuse.observation.cost_details", string(costJSON)),
		attribute.String("gen_ai.system", t.Provider),
		attribute.String("gen_ai.request.model", t.Model),
		attribute.Int("gen_ai.usage.input_tokens", t.PromptTokens),
		attribute.Int("gen_ai.usage.output_tokens", t.CompletionTokens),
		attribute.Float64("gen_ai.usage.cost", cost),
		attribute.Bool("naszgpt.truncated", t.Truncated),
	}

	startOpts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
		trace.WithNewRoot(),
	}
	if !t.StartedAt.IsZero() {
		startOpts = append(startOpts, trace.WithTimestamp(t.StartedAt))
	}
	_, span := r.tracer.Start(context.WithoutCancel(ctx), t.Name, startOpts...)

	if t.Err != nil {
		span.RecordError(t.Err)
		span.SetStatus(codes.Error, t.Err.Error())
		span.SetAttributes(
			attribute.String("langfuse.observation.level", "ERROR"),
			attribute.String("langfuse.observation.status_message", t.Err.Error()),
		)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	var endOpts []trace.SpanEndOption
	if !t.EndedAt.IsZero() {
		endOpts = append(endOpts, trace.WithTimestamp(t.EndedAt))
	}
	span.End(endOpts...)
	return nil
}

// Shutdown flushes buffered spans.
func (r *LangfuseReporter) Shutdown(ctx context.Context) error {
	return r.tp.Shutdown(ctx)
}
