package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/codebench/codebench"
)

// Native executes code through the host's own runtimes (python3/node): the
// desktop-target equivalent of the original's privileged host bridge. Code
// is written to a temp file, run as a subprocess with stdin piped in, and
// the exit status is translated into the standard result shape.
type Native struct {
	cfg config
}

var _ codebench.Executor = (*Native)(nil)
var _ codebench.RuntimeChecker = (*Native)(nil)

// NewNative creates a Native executor using the configured runtime binaries.
func NewNative(opts ...Option) *Native {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Native{cfg: cfg}
}

// CheckRuntime probes whether the named runtime ("python" or "node") is
// present by asking it for its version.
func (n *Native) CheckRuntime(ctx context.Context, runtime string) bool {
	var bin string
	switch runtime {
	case "python":
		bin = n.cfg.pythonBin
	case "node":
		bin = n.cfg.nodeBin
	default:
		return false
	}
	err := exec.CommandContext(ctx, bin, "--version").Run()
	if err != nil {
		n.cfg.logger.Debug("native: runtime probe failed", "runtime", runtime, "bin", bin, "error", err)
	}
	return err == nil
}

// Execute runs the source in a subprocess.
func (n *Native) Execute(ctx context.Context, code string, language codebench.Language, stdin string) codebench.ExecutionResult {
	var bin, ext string
	switch language {
	case codebench.LangHTML:
		return codebench.ExecutionResult{Stdout: code, Status: codebench.StatusSuccess}
	case codebench.LangPython:
		bin, ext = n.cfg.pythonBin, ".py"
	case codebench.LangJavaScript:
		bin, ext = n.cfg.nodeBin, ".js"
	default:
		return codebench.ExecutionResult{
			Stderr: fmt.Sprintf("language %s is not supported by the native executor", language),
			Status: codebench.StatusError,
		}
	}

	tmpFile, err := os.CreateTemp("", "codebench-*"+ext)
	if err != nil {
		return errorResult(fmt.Sprintf("execution error: create temp file: %v", err))
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.WriteString(code); err != nil {
		tmpFile.Close()
		return errorResult(fmt.Sprintf("execution error: write script: %v", err))
	}
	tmpFile.Close()

	ctx, cancel := context.WithTimeout(ctx, n.cfg.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, tmpFile.Name())
	if stdin != "" {
		// Newline-terminate so a trailing input() read completes.
		if !strings.HasSuffix(stdin, "\n") {
			stdin += "\n"
		}
		cmd.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &cappedWriter{w: &stdout, max: n.cfg.maxOutput}
	cmd.Stderr = &cappedWriter{w: &stderr, max: n.cfg.maxOutput}

	start := time.Now()
	n.cfg.logger.Debug("native: executing", "language", language, "bin", bin)
	runErr := cmd.Run()
	elapsed := time.Since(start).Seconds()

	result := codebench.ExecutionResult{
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		Status:        codebench.StatusSuccess,
		ExecutionTime: elapsed,
	}
	if runErr != nil {
		result.Status = codebench.StatusError
		if ctx.Err() == context.DeadlineExceeded {
			result.Status = codebench.StatusTimeout
			result.Stderr = fmt.Sprintf("execution timed out after %s", n.cfg.timeout)
		} else if result.Stderr == "" {
			result.Stderr = runErr.Error()
		}
	}
	n.cfg.logger.Debug("native: completed", "language", language, "status", result.Status, "duration", time.Since(start))
	return result
}

// cappedWriter limits capture to a maximum size; excess bytes are dropped
// but still acknowledged so the subprocess never blocks on a full pipe.
type cappedWriter struct {
	w   *strings.Builder
	max int
}

func (cw *cappedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if cw.w.Len() < cw.max {
		remaining := cw.max - cw.w.Len()
		if len(p) > remaining {
			p = p[:remaining]
		}
		cw.w.Write(p)
	}
	return n, nil
}
