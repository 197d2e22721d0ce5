package executor

import (
	"context"
	"testing"

	"github.com/codebench/codebench"
)

func TestStaticExecutor(t *testing.T) {
	s := NewStatic()
	const doc = "<html><body>hi</body></html>"

	result := s.Execute(context.Background(), doc, codebench.LangHTML, "")
	if result.Status != codebench.StatusSuccess {
		t.Fatalf("Status = %q, want success", result.Status)
	}
	if result.Stdout != doc {
		t.Errorf("Stdout = %q, want the source unchanged", result.Stdout)
	}

	result = s.Execute(context.Background(), "print(1)", codebench.LangPython, "")
	if result.Status != codebench.StatusError {
		t.Errorf("Status = %q for python, want error", result.Status)
	}
}
