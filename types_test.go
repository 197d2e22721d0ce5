package codebench

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLanguageValid(t *testing.T) {
	for _, l := range []Language{LangPython, LangJavaScript, LangHTML} {
		if !l.Valid() {
			t.Errorf("%s.Valid() = false, want true", l)
		}
	}
	for _, l := range []Language{"", "ruby", "Python"} {
		if l.Valid() {
			t.Errorf("%q.Valid() = true, want false", l)
		}
	}
}

func TestLanguageRuntime(t *testing.T) {
	if got := LangPython.Runtime(); got != "python" {
		t.Errorf("python runtime = %q", got)
	}
	if got := LangJavaScript.Runtime(); got != "node" {
		t.Errorf("javascript runtime = %q", got)
	}
	// Markup needs no runtime.
	if got := LangHTML.Runtime(); got != "" {
		t.Errorf("html runtime = %q, want empty", got)
	}
}

func TestExecutionResultJSON(t *testing.T) {
	result := ExecutionResult{
		Stdout:        "out\n",
		Status:        StatusSuccess,
		ExecutionTime: 0.042,
	}
	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	s := string(data)
	for _, want := range []string{`"stdout":"out\n"`, `"status":"success"`, `"executionTime":0.042`} {
		if !strings.Contains(s, want) {
			t.Errorf("serialized result %s missing %s", s, want)
		}
	}
	// Empty stderr is omitted.
	if strings.Contains(s, "stderr") {
		t.Errorf("serialized result %s carries empty stderr", s)
	}
}

func TestDefaultCode(t *testing.T) {
	for _, l := range []Language{LangPython, LangJavaScript, LangHTML} {
		if DefaultCode(l) == "" {
			t.Errorf("DefaultCode(%s) is empty", l)
		}
	}
	// The python seed demonstrates the blocking-input flow.
	if !strings.Contains(DefaultCode(LangPython), "input(") {
		t.Error("python seed snippet lacks an input() call")
	}
}

func TestMissingRuntimeError(t *testing.T) {
	err := &MissingRuntimeError{Runtime: "node"}
	if !strings.Contains(err.Error(), "node") {
		t.Errorf("Error() = %q, want the runtime named", err.Error())
	}
}
