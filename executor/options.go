// Package executor provides the Executor strategy variants: remote judge,
// local in-process JavaScript evaluation, native runtime subprocess, static
// markup passthrough, and the per-language fallback chain over them.
package executor

import (
	"io"
	"log/slog"
	"time"
)

// Option configures an executor.
type Option func(*config)

type config struct {
	// Shared options.
	timeout   time.Duration
	maxOutput int
	logger    *slog.Logger

	// Judge options.
	endpoint string
	apiKey   string
	apiHost  string

	// Native options.
	pythonBin string
	nodeBin   string
}

func defaultConfig() config {
	return config{
		timeout:   30 * time.Second,
		maxOutput: 64 * 1024, // 64KB
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		endpoint:  "https://judge0-ce.p.rapidapi.com",
		apiHost:   "judge0-ce.p.rapidapi.com",
		pythonBin: "python3",
		nodeBin:   "node",
	}
}

// WithTimeout sets the maximum duration of one execution. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxOutput sets the maximum captured output size in bytes per stream.
// Output beyond this limit is truncated. Default: 64KB.
func WithMaxOutput(bytes int) Option {
	return func(c *config) { c.maxOutput = bytes }
}

// WithLogger sets a structured logger. Default: discard.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithEndpoint sets the base URL of the remote judge service.
// Default: the hosted judge0 CE endpoint.
func WithEndpoint(url string) Option {
	return func(c *config) { c.endpoint = url }
}

// WithAPIKey sets the judge API key. An empty key makes the judge executor
// answer every non-markup request with a configuration-error result.
func WithAPIKey(key string) Option {
	return func(c *config) { c.apiKey = key }
}

// WithAPIHost sets the API host header sent to the judge service.
func WithAPIHost(host string) Option {
	return func(c *config) { c.apiHost = host }
}

// WithPythonBin sets the Python binary used by the native executor.
// Default: "python3".
func WithPythonBin(bin string) Option {
	return func(c *config) { c.pythonBin = bin }
}

// WithNodeBin sets the Node.js binary used by the native executor.
// Default: "node".
func WithNodeBin(bin string) Option {
	return func(c *config) { c.nodeBin = bin }
}
