package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd(t *testing.T, configPath string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().String("config", configPath, "")
	cmd.Flags().String("lang", "", "")
	cmd.Flags().String("executor", "judge", "")
	cmd.Flags().Bool("verbose", false, "")
	cmd.SetContext(context.Background())
	return cmd
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codebench.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// Host env must not leak into config resolution.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CODEBENCH_JUDGE_API_KEY",
		"CODEBENCH_DB_BACKEND",
		"CODEBENCH_DB_PATH",
		"CODEBENCH_POSTGRES_URL",
		"CODEBENCH_LANGUAGE",
	} {
		t.Setenv(key, "")
	}
}

func TestBuildAppDegradesWithoutPersistence(t *testing.T) {
	isolateEnv(t)
	cfgPath := writeConfig(t, `
[database]
backend = "postgres"
postgres_url = "://not-a-url"
`)

	a, err := buildApp(newTestCmd(t, cfgPath))
	if err != nil {
		t.Fatalf("buildApp() error = %v, want degraded startup", err)
	}
	defer a.close(context.Background())

	if a.repo != nil {
		t.Error("repo != nil despite unusable backend, want nil")
	}
	if a.persistErr == nil {
		t.Error("persistErr = nil, want the init failure recorded")
	}
	if a.exec == nil {
		t.Error("exec = nil, want an executor even without persistence")
	}
}

func TestRunFailureExitCodeAndBufferFlush(t *testing.T) {
	isolateEnv(t)
	snapshot := filepath.Join(t.TempDir(), "history.json")
	cfgPath := writeConfig(t, `
[database]
backend = "buffer"
snapshot_path = "`+snapshot+`"
flush_interval_secs = 0
`)

	// No judge API key: a python run through the judge chain fails.
	rootCmd.SetArgs([]string{
		"run", "--config", cfgPath, "--executor", "judge",
		"-l", "python", "-c", "print(1)",
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		exitCode = 0
	})

	if got := Execute(); got != 1 {
		t.Fatalf("Execute() = %d, want 1 for a failed execution", got)
	}

	// The failure path must still flush the buffer store on the way out,
	// with the serialized result persisted as the session output.
	data, err := os.ReadFile(snapshot)
	if err != nil {
		t.Fatalf("snapshot not written after failed run: %v", err)
	}
	if !strings.Contains(string(data), "print(1)") {
		t.Errorf("snapshot missing the session code: %s", data)
	}
	if !strings.Contains(string(data), `\"status\":\"error\"`) {
		t.Errorf("snapshot output is not a serialized result: %s", data)
	}
}
