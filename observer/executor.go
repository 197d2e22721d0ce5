package observer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/codebench/codebench"
)

// Attribute keys shared by the executor and adapter wrappers.
var (
	AttrLanguage = attribute.Key("code.language")
	AttrStatus   = attribute.Key("exec.status")
	AttrStoreOp  = attribute.Key("store.op")
)

// CountFallback records one fallback-taken execution. It matches the
// executor chain's fallback hook signature, so wiring is
// executor.WithFallbackHook(inst.CountFallback).
func (inst *Instruments) CountFallback(ctx context.Context, language codebench.Language) {
	inst.ExecFallbacks.Add(ctx, 1, metric.WithAttributes(
		AttrLanguage.String(string(language)),
	))
}

// ObservedExecutor wraps an Executor with OTEL instrumentation.
type ObservedExecutor struct {
	inner codebench.Executor
	inst  *Instruments
}

var _ codebench.Executor = (*ObservedExecutor)(nil)
var _ codebench.RuntimeChecker = (*ObservedExecutor)(nil)

// WrapExecutor returns an instrumented executor.
func WrapExecutor(inner codebench.Executor, inst *Instruments) *ObservedExecutor {
	return &ObservedExecutor{inner: inner, inst: inst}
}

func (o *ObservedExecutor) Execute(ctx context.Context, code string, language codebench.Language, stdin string) codebench.ExecutionResult {
	ctx, span := o.inst.Tracer.Start(ctx, "exec.run", trace.WithAttributes(
		AttrLanguage.String(string(language)),
	))
	defer span.End()
	start := time.Now()

	result := o.inner.Execute(ctx, code, language, stdin)

	durationMs := float64(time.Since(start).Milliseconds())
	span.SetAttributes(AttrStatus.String(string(result.Status)))
	if result.Status != codebench.StatusSuccess {
		span.SetStatus(codes.Error, result.Stderr)
	}

	o.inst.ExecRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLanguage.String(string(language)),
		AttrStatus.String(string(result.Status)),
	))
	o.inst.ExecDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLanguage.String(string(language)),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("code executed"))
	rec.AddAttributes(
		otellog.String("code.language", string(language)),
		otellog.String("exec.status", string(result.Status)),
		otellog.Int("exec.stdout_length", len(result.Stdout)),
		otellog.Float64("exec.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return result
}

// CheckRuntime delegates to the inner executor when it can probe runtimes.
func (o *ObservedExecutor) CheckRuntime(ctx context.Context, runtime string) bool {
	if rc, ok := o.inner.(codebench.RuntimeChecker); ok {
		return rc.CheckRuntime(ctx, runtime)
	}
	return true
}
