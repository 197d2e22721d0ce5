package executor

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/codebench/codebench"
)

func requireRuntime(t *testing.T, bin string) {
	t.Helper()
	if _, err := exec.LookPath(bin); err != nil {
		t.Skipf("%s not installed", bin)
	}
}

func TestNativePython(t *testing.T) {
	requireRuntime(t, "python3")
	n := NewNative()
	result := n.Execute(context.Background(), "print('hi from python')", codebench.LangPython, "")
	if result.Status != codebench.StatusSuccess {
		t.Fatalf("Status = %q, want success (stderr: %q)", result.Status, result.Stderr)
	}
	if strings.TrimSpace(result.Stdout) != "hi from python" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if result.ExecutionTime <= 0 {
		t.Errorf("ExecutionTime = %v, want > 0", result.ExecutionTime)
	}
}

func TestNativePythonStdin(t *testing.T) {
	requireRuntime(t, "python3")
	n := NewNative()
	// Stdin without a trailing newline still satisfies input().
	result := n.Execute(context.Background(), "print('hi', input())", codebench.LangPython, "alice")
	if result.Status != codebench.StatusSuccess {
		t.Fatalf("Status = %q, want success (stderr: %q)", result.Status, result.Stderr)
	}
	if strings.TrimSpace(result.Stdout) != "hi alice" {
		t.Errorf("Stdout = %q, want hi alice", result.Stdout)
	}
}

func TestNativePythonError(t *testing.T) {
	requireRuntime(t, "python3")
	n := NewNative()
	result := n.Execute(context.Background(), "raise ValueError('boom')", codebench.LangPython, "")
	if result.Status != codebench.StatusError {
		t.Fatalf("Status = %q, want error", result.Status)
	}
	if !strings.Contains(result.Stderr, "ValueError") {
		t.Errorf("Stderr = %q, want the traceback", result.Stderr)
	}
}

func TestNativeNode(t *testing.T) {
	requireRuntime(t, "node")
	n := NewNative()
	result := n.Execute(context.Background(), "console.log('hi from node')", codebench.LangJavaScript, "")
	if result.Status != codebench.StatusSuccess {
		t.Fatalf("Status = %q, want success (stderr: %q)", result.Status, result.Stderr)
	}
	if strings.TrimSpace(result.Stdout) != "hi from node" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
}

func TestNativeTimeout(t *testing.T) {
	requireRuntime(t, "python3")
	n := NewNative(WithTimeout(300 * time.Millisecond))
	result := n.Execute(context.Background(), "while True: pass", codebench.LangPython, "")
	if result.Status != codebench.StatusTimeout {
		t.Fatalf("Status = %q, want timeout", result.Status)
	}
	if !strings.Contains(result.Stderr, "timed out") {
		t.Errorf("Stderr = %q, want timeout message", result.Stderr)
	}
}

func TestNativeHTMLPassthrough(t *testing.T) {
	n := NewNative()
	const doc = "<div>hi</div>"
	result := n.Execute(context.Background(), doc, codebench.LangHTML, "")
	if result.Status != codebench.StatusSuccess || result.Stdout != doc {
		t.Errorf("result = %+v, want passthrough success", result)
	}
}

func TestNativeCheckRuntime(t *testing.T) {
	n := NewNative(WithPythonBin("definitely-not-a-real-binary"))
	if n.CheckRuntime(context.Background(), "python") {
		t.Error("CheckRuntime = true for a bogus binary, want false")
	}
	if n.CheckRuntime(context.Background(), "cobol") {
		t.Error("CheckRuntime = true for an unknown runtime name, want false")
	}
}

func TestNativeOutputCap(t *testing.T) {
	requireRuntime(t, "python3")
	n := NewNative(WithMaxOutput(1024))
	result := n.Execute(context.Background(), "print('x' * 100000)", codebench.LangPython, "")
	if result.Status != codebench.StatusSuccess {
		t.Fatalf("Status = %q, want success (stderr: %q)", result.Status, result.Stderr)
	}
	if len(result.Stdout) > 1024 {
		t.Errorf("len(Stdout) = %d, want capped at 1024", len(result.Stdout))
	}
}
