package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/codebench/codebench"
)

// Local evaluates JavaScript in-process in a fresh, isolated VM per call,
// capturing console.log output. It is the fallback behind the remote judge;
// Python is refused since it cannot be meaningfully evaluated in-process.
type Local struct {
	cfg config
}

var _ codebench.Executor = (*Local)(nil)

// NewLocal creates a Local executor.
func NewLocal(opts ...Option) *Local {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Local{cfg: cfg}
}

// Execute evaluates the source. The VM is interrupted when ctx expires or
// the configured timeout elapses, whichever comes first.
func (l *Local) Execute(ctx context.Context, code string, language codebench.Language, _ string) codebench.ExecutionResult {
	switch language {
	case codebench.LangHTML:
		return codebench.ExecutionResult{Stdout: code, Status: codebench.StatusSuccess}
	case codebench.LangPython:
		return codebench.ExecutionResult{
			Stderr: "Python execution requires the remote judge or a native runtime",
			Status: codebench.StatusError,
		}
	case codebench.LangJavaScript:
	default:
		return codebench.ExecutionResult{
			Stderr: fmt.Sprintf("language %s is not supported by the local evaluator", language),
			Status: codebench.StatusError,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()

	vm := goja.New()
	var lines []string
	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		lines = append(lines, strings.Join(parts, " "))
		return goja.Undefined()
	})
	_ = vm.Set("console", console)

	// Interrupt the VM when the deadline passes; RunString has no context
	// awareness of its own.
	watchdog := make(chan struct{})
	defer close(watchdog)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-watchdog:
		}
	}()

	start := time.Now()
	// The original evaluated sources inside new Function(code); a function
	// wrapper keeps top-level declarations out of the VM's global scope.
	_, err := vm.RunString("(function() {\n" + code + "\n})();")
	elapsed := time.Since(start).Seconds()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return codebench.ExecutionResult{
				Stderr:        fmt.Sprintf("execution timed out after %s", l.cfg.timeout),
				Status:        codebench.StatusTimeout,
				ExecutionTime: elapsed,
			}
		}
		msg := err.Error()
		var exception *goja.Exception
		if errors.As(err, &exception) {
			msg = exception.Value().String()
		}
		return codebench.ExecutionResult{
			Stderr:        "JavaScript Error: " + msg,
			Status:        codebench.StatusError,
			ExecutionTime: elapsed,
		}
	}

	return codebench.ExecutionResult{
		Stdout:        strings.Join(lines, "\n"),
		Status:        codebench.StatusSuccess,
		ExecutionTime: elapsed,
	}
}
