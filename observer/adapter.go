package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/codebench/codebench"
)

// ObservedAdapter wraps a storage Adapter with OTEL instrumentation. It
// forwards the optional Exporter and FlushCloser capabilities through
// Unwrap so lifecycle handling still reaches the inner adapter.
type ObservedAdapter struct {
	inner codebench.Adapter
	inst  *Instruments
}

var _ codebench.Adapter = (*ObservedAdapter)(nil)

// WrapAdapter returns an instrumented adapter.
func WrapAdapter(inner codebench.Adapter, inst *Instruments) *ObservedAdapter {
	return &ObservedAdapter{inner: inner, inst: inst}
}

// Unwrap returns the inner adapter.
func (o *ObservedAdapter) Unwrap() codebench.Adapter { return o.inner }

func (o *ObservedAdapter) Run(ctx context.Context, op codebench.Op, args ...any) (codebench.Ack, error) {
	ctx, span, start := o.begin(ctx, "store.run", op)
	defer span.End()
	ack, err := o.inner.Run(ctx, op, args...)
	o.finish(ctx, span, op, start, err)
	return ack, err
}

func (o *ObservedAdapter) Get(ctx context.Context, op codebench.Op, args ...any) (codebench.Row, error) {
	ctx, span, start := o.begin(ctx, "store.get", op)
	defer span.End()
	row, err := o.inner.Get(ctx, op, args...)
	o.finish(ctx, span, op, start, err)
	return row, err
}

func (o *ObservedAdapter) All(ctx context.Context, op codebench.Op, args ...any) ([]codebench.Row, error) {
	ctx, span, start := o.begin(ctx, "store.all", op)
	defer span.End()
	rows, err := o.inner.All(ctx, op, args...)
	o.finish(ctx, span, op, start, err)
	return rows, err
}

func (o *ObservedAdapter) begin(ctx context.Context, name string, op codebench.Op) (context.Context, trace.Span, time.Time) {
	ctx, span := o.inst.Tracer.Start(ctx, name, trace.WithAttributes(
		AttrStoreOp.String(op.String()),
	))
	return ctx, span, time.Now()
}

func (o *ObservedAdapter) finish(ctx context.Context, span trace.Span, op codebench.Op, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	o.inst.StoreOps.Add(ctx, 1, metric.WithAttributes(
		AttrStoreOp.String(op.String()),
		AttrStatus.String(status),
	))
	o.inst.StoreDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(
		AttrStoreOp.String(op.String()),
	))
}
