package executor

import (
	"context"
	"fmt"

	"github.com/codebench/codebench"
)

// Static is the markup passthrough executor: "executing" HTML means echoing
// it back as stdout for the preview pane. No process runs.
type Static struct{}

var _ codebench.Executor = (*Static)(nil)

// NewStatic creates a Static executor.
func NewStatic() *Static {
	return &Static{}
}

// Execute returns the source as stdout for markup, and an error result for
// anything else.
func (s *Static) Execute(_ context.Context, code string, language codebench.Language, _ string) codebench.ExecutionResult {
	if language == codebench.LangHTML {
		return codebench.ExecutionResult{
			Stdout: code,
			Status: codebench.StatusSuccess,
		}
	}
	return codebench.ExecutionResult{
		Stderr: fmt.Sprintf("language %s is not supported by the static executor", language),
		Status: codebench.StatusError,
	}
}
