package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hydro-project/hydroscope/internal/domain"
	"github.com/hydro-project/hydroscope/internal/ports"
)

var _ AreaBudgetObserver = (*OTelBudgetObserver)(nil)

// OTelBudgetObserver implements AreaBudgetObserver using OpenTelemetry
// tracing and an injected ports.MetricsCollector: it opens a span per
// smart-collapse request, records usage-against-ceiling attributes, and
// raises threshold warning/critical events.
type OTelBudgetObserver struct {
	metrics ports.MetricsCollector
	span    trace.Span
}

// NewOTelBudgetObserver creates an OTelBudgetObserver emitting metrics
// through metrics (may be nil to disable metric recording).
func NewOTelBudgetObserver(metrics ports.MetricsCollector) *OTelBudgetObserver {
	return &OTelBudgetObserver{metrics: metrics}
}

// PreCheck implements AreaBudgetObserver.
func (o *OTelBudgetObserver) PreCheck(ctx context.Context, requested float64, budget AreaBudget) {
	tracer := otel.Tracer("area-budget-manager")
	_, span := tracer.Start(ctx, "AreaBudgetManager.ApplySmartCollapse")
	o.span = span

	o.addSpanAttributes(requested, budget)
	o.checkThreshold(requested, budget)
}

// PostCheck implements AreaBudgetObserver.
func (o *OTelBudgetObserver) PostCheck(ctx context.Context, requested float64, budget AreaBudget, elapsed time.Duration, err error) {
	defer o.span.End()

	o.addSpanAttributes(requested, budget)

	labels := o.metricLabels(budget)
	if o.metrics != nil {
		o.metrics.RecordLatency("area_budget_apply_duration", elapsed, labels)
	}

	if err != nil {
		if budgetErr, ok := err.(*domain.BudgetExceededError); ok {
			o.span.AddEvent("budget.exceeded", trace.WithAttributes(
				attribute.String("limit_type", budgetErr.LimitType),
				attribute.Int("limit_value", budgetErr.Limit),
				attribute.Int("used_value", budgetErr.Used),
			))
			o.span.SetStatus(codes.Error, "area budget exceeded")
			if o.metrics != nil {
				labels["limit_type"] = budgetErr.LimitType
				o.metrics.RecordCounter("area_budget_exceeded_total", 1, labels)
			}
		} else {
			o.span.SetStatus(codes.Error, err.Error())
		}
		return
	}

	o.span.AddEvent("budget.applied", trace.WithAttributes(attribute.Float64("requested_area", requested)))
	if o.metrics != nil {
		o.metrics.RecordGauge("area_budget_requested", requested, labels)
	}
	o.span.SetStatus(codes.Ok, "smart collapse applied")
}

func (o *OTelBudgetObserver) addSpanAttributes(requested float64, budget AreaBudget) {
	o.span.SetAttributes(attribute.Float64("budget.requested_area", requested))
	if budget.MaxArea > 0 {
		o.span.SetAttributes(
			attribute.Float64("budget.max_area", budget.MaxArea),
			attribute.Float64("budget.remaining_area", budget.MaxArea-requested),
		)
	}
}

func (o *OTelBudgetObserver) checkThreshold(requested float64, budget AreaBudget) {
	const warningThreshold = 0.8
	const criticalThreshold = 0.95

	if budget.MaxArea <= 0 {
		return
	}
	usagePercentage := requested / budget.MaxArea
	switch {
	case usagePercentage >= criticalThreshold:
		o.span.AddEvent("budget.threshold.critical", trace.WithAttributes(
			attribute.Float64("usage_percentage", usagePercentage*100),
		))
	case usagePercentage >= warningThreshold:
		o.span.AddEvent("budget.threshold.warning", trace.WithAttributes(
			attribute.Float64("usage_percentage", usagePercentage*100),
		))
	}
}

func (o *OTelBudgetObserver) metricLabels(budget AreaBudget) map[string]string {
	if budget.MaxArea > 0 {
		return map[string]string{"budget_limit": "bounded"}
	}
	return map[string]string{"budget_limit": "unlimited"}
}
