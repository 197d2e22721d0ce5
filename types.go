package codebench

import (
	"context"
	"fmt"
	"time"
)

// Language identifies one of the supported editor languages.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangHTML       Language = "html"
)

// Valid reports whether l is one of the three supported languages.
func (l Language) Valid() bool {
	switch l {
	case LangPython, LangJavaScript, LangHTML:
		return true
	}
	return false
}

// Runtime returns the name of the native runtime required to execute l,
// or "" when no runtime is needed (markup).
func (l Language) Runtime() string {
	switch l {
	case LangPython:
		return "python"
	case LangJavaScript:
		return "node"
	}
	return ""
}

// Status classifies the outcome of an executor invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// ExecutionResult is the uniform outcome shape every executor produces.
// Status is always set; empty Stdout/Stderr means no output on that stream.
type ExecutionResult struct {
	Stdout        string  `json:"stdout,omitempty"`
	Stderr        string  `json:"stderr,omitempty"`
	Status        Status  `json:"status"`
	ExecutionTime float64 `json:"executionTime,omitempty"` // seconds
}

// Executor turns (source code, language, optional stdin) into an
// ExecutionResult. Execution-level failures are encoded in the result's
// Status and Stderr; implementations never propagate them as Go errors.
type Executor interface {
	Execute(ctx context.Context, code string, language Language, stdin string) ExecutionResult
}

// RuntimeChecker probes whether a native runtime ("python" or "node") is
// available to the executor.
type RuntimeChecker interface {
	CheckRuntime(ctx context.Context, runtime string) bool
}

// MissingRuntimeError is returned by Coordinator.Run when the runtime gate
// reports the required runtime absent. The run is aborted without a state
// change.
type MissingRuntimeError struct {
	Runtime string
}

func (e *MissingRuntimeError) Error() string {
	return fmt.Sprintf("runtime %q is not available", e.Runtime)
}

// MessageType classifies a console message.
type MessageType string

const (
	MessageOutput MessageType = "output"
	MessageError  MessageType = "error"
	MessageInput  MessageType = "input"
)

// ConsoleMessage is one entry in the coordinator's append-only message log.
type ConsoleMessage struct {
	ID        string
	Type      MessageType
	Content   string
	Timestamp time.Time
}

// CodeSession is one persisted snapshot of code plus optional prior output.
// ID is assigned by the store on insert. Output holds the JSON-serialized
// ExecutionResult of the run that produced the snapshot, or nil for plain
// autosaves. Timestamp is ISO-8601.
type CodeSession struct {
	ID        int64
	Code      string
	Language  Language
	Output    *string
	Timestamp string
}

// SessionUpdate carries the optional fields of a partial session update.
// Nil fields are left untouched.
type SessionUpdate struct {
	Code      *string
	Output    *string
	Timestamp *string
}

// AppData is one row of the generic key/value settings store.
type AppData struct {
	Key   string
	Value string
}

// DefaultCode returns the seed snippet shown for a language when no
// persisted session exists.
func DefaultCode(l Language) string {
	switch l {
	case LangPython:
		return "print(\"Hello, World!\")\nname = input(\"Enter your name: \")\nprint(f\"Hello, {name}!\")"
	case LangJavaScript:
		return "console.log(\"Hello, World!\");\nconst name = \"World\";\nconsole.log(`Hello, ${name}!`);"
	case LangHTML:
		return "<!DOCTYPE html>\n<html>\n<head>\n    <title>Hello World</title>\n</head>\n<body>\n    <h1>Hello, World!</h1>\n</body>\n</html>"
	}
	return ""
}
