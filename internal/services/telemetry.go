package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"naszgpt-backend/internal/logger"
	"naszgpt-backend/internal/metrics"
	"naszgpt-backend/internal/models"
)

// Trace describes one completion call, successful or not.
type Trace struct {
	Name             string
	SessionID        string
	ConversationID   uuid.UUID
	Provider         string
	Model            string
	Input            []models.Message
	Output           string
	Truncated        bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	CostUSD          decimal.Decimal
	StartedAt        time.Time
	EndedAt          time.Time
	Err              error
}

// Reporter forwards traces to an observability backend.
type Reporter interface {
	Report(ctx context.Context, t Trace) error
	Shutdown(ctx context.Context) error
}

// NoopReporter is used when tracing is not configured.
type NoopReporter struct{}

func (NoopReporter) Report(context.Context, Trace) error { return nil }
func (NoopReporter) Shutdown(context.Context) error      { return nil }

// SafeReport hands t to r and never lets a reporting problem reach the
// caller: errors are logged and panics recovered.
func SafeReport(ctx context.Context, r Reporter, t Trace) {
	log := logger.FromContext(ctx)
	defer func() {
		if rec := recover(); rec != nil {
			metrics.TelemetryReports.WithLabelValues("panic").Inc()
			log.Warn("telemetry reporter panicked", "trace", t.Name, "panic", fmt.Sprint(rec))
		}
	}()

	if err := r.Report(ctx, t); err != nil {
		metrics.TelemetryReports.WithLabelValues("error").Inc()
		log.Warn("telemetry report failed", "trace", t.Name, "error", err)
		return
	}
	metrics.TelemetryReports.WithLabelValues("ok").Inc()
}
