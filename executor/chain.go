package executor

import (
	"context"
	"io"
	"log/slog"

	"github.com/codebench/codebench"
)

// Chain dispatches to a primary executor and, when the primary reports an
// error-status result, retries exactly once through a per-language fallback.
// The fallback policy is a data-driven table: languages without an entry
// (Python by default) surface the primary's error directly.
type Chain struct {
	primary    codebench.Executor
	fallbacks  map[codebench.Language]codebench.Executor
	logger     *slog.Logger
	onFallback func(ctx context.Context, language codebench.Language)
}

var _ codebench.Executor = (*Chain)(nil)
var _ codebench.RuntimeChecker = (*Chain)(nil)

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithFallback registers a fallback executor for one language.
func WithFallback(language codebench.Language, exec codebench.Executor) ChainOption {
	return func(c *Chain) { c.fallbacks[language] = exec }
}

// WithChainLogger sets a structured logger for the chain.
func WithChainLogger(l *slog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithFallbackHook registers a callback invoked each time the chain takes a
// fallback, before the fallback executor runs. Used for instrumentation.
func WithFallbackHook(fn func(ctx context.Context, language codebench.Language)) ChainOption {
	return func(c *Chain) { c.onFallback = fn }
}

// NewChain creates a Chain over primary with no fallbacks.
func NewChain(primary codebench.Executor, opts ...ChainOption) *Chain {
	c := &Chain{
		primary:   primary,
		fallbacks: make(map[codebench.Language]codebench.Executor),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewWebChain creates the web-deployment chain: remote judge primary with
// local in-process fallback for JavaScript and markup. Python deliberately
// has no fallback — it cannot be evaluated in-process.
func NewWebChain(judge *Judge, local *Local, opts ...ChainOption) *Chain {
	opts = append([]ChainOption{
		WithFallback(codebench.LangJavaScript, local),
		WithFallback(codebench.LangHTML, local),
	}, opts...)
	return NewChain(judge, opts...)
}

// Execute runs the primary and applies the one-shot fallback policy.
func (c *Chain) Execute(ctx context.Context, code string, language codebench.Language, stdin string) codebench.ExecutionResult {
	result := c.primary.Execute(ctx, code, language, stdin)
	if result.Status != codebench.StatusError {
		return result
	}
	fallback, ok := c.fallbacks[language]
	if !ok {
		return result
	}
	c.logger.Debug("chain: primary failed, invoking fallback", "language", language, "stderr", result.Stderr)
	if c.onFallback != nil {
		c.onFallback(ctx, language)
	}
	return fallback.Execute(ctx, code, language, stdin)
}

// CheckRuntime delegates to the primary when it can probe runtimes;
// otherwise availability is assumed.
func (c *Chain) CheckRuntime(ctx context.Context, runtime string) bool {
	if rc, ok := c.primary.(codebench.RuntimeChecker); ok {
		return rc.CheckRuntime(ctx, runtime)
	}
	return true
}
