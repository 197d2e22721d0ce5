// Package codebench implements the execution and persistence core of a
// code-editing shell: a session coordinator that dispatches Python,
// JavaScript, or HTML sources to interchangeable executors with per-language
// fallback, manages the stdin-wait protocol for blocking input() calls, and
// persists code sessions through a pluggable storage adapter.
//
// The package root holds the shared types, the operation-typed storage
// contract, the typed session repository, and the coordinator state machine.
// Executor variants live in executor/, storage backends in store/..., and
// OTEL instrumentation in observer/.
package codebench
