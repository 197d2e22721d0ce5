package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Editor   EditorConfig   `toml:"editor"`
	Judge    JudgeConfig    `toml:"judge"`
	Runtime  RuntimeConfig  `toml:"runtime"`
	Database DatabaseConfig `toml:"database"`
	Observer ObserverConfig `toml:"observer"`
}

type EditorConfig struct {
	Language           string `toml:"language"`
	AutosaveDebounceMS int    `toml:"autosave_debounce_ms"`
}

type JudgeConfig struct {
	Endpoint    string `toml:"endpoint"`
	APIKey      string `toml:"api_key"`
	APIHost     string `toml:"api_host"`
	TimeoutSecs int    `toml:"timeout_secs"`
}

type RuntimeConfig struct {
	PythonBin string `toml:"python_bin"`
	NodeBin   string `toml:"node_bin"`
}

// DatabaseConfig selects the persistence backend. Backend is one of
// "memory" (ephemeral), "buffer" (in-memory engine flushed to SnapshotPath),
// "file" (SQLite file at Path), or "postgres" (PostgresURL).
type DatabaseConfig struct {
	Backend           string `toml:"backend"`
	Path              string `toml:"path"`
	SnapshotPath      string `toml:"snapshot_path"`
	FlushIntervalSecs int    `toml:"flush_interval_secs"`
	PostgresURL       string `toml:"postgres_url"`
}

type ObserverConfig struct {
	Enabled bool `toml:"enabled"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Editor: EditorConfig{Language: "python", AutosaveDebounceMS: 500},
		Judge: JudgeConfig{
			Endpoint:    "https://judge0-ce.p.rapidapi.com",
			APIHost:     "judge0-ce.p.rapidapi.com",
			TimeoutSecs: 30,
		},
		Runtime: RuntimeConfig{PythonBin: "python3", NodeBin: "node"},
		Database: DatabaseConfig{
			Backend:           "file",
			Path:              "codebench.db",
			SnapshotPath:      "codebench.snapshot.json",
			FlushIntervalSecs: 30,
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "codebench.toml"
	}

	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("CODEBENCH_JUDGE_API_KEY"); v != "" {
		cfg.Judge.APIKey = v
	}
	if v := os.Getenv("CODEBENCH_JUDGE_ENDPOINT"); v != "" {
		cfg.Judge.Endpoint = v
	}
	if v := os.Getenv("CODEBENCH_JUDGE_API_HOST"); v != "" {
		cfg.Judge.APIHost = v
	}
	if v := os.Getenv("CODEBENCH_DB_BACKEND"); v != "" {
		cfg.Database.Backend = v
	}
	if v := os.Getenv("CODEBENCH_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CODEBENCH_POSTGRES_URL"); v != "" {
		cfg.Database.PostgresURL = v
	}
	if v := os.Getenv("CODEBENCH_LANGUAGE"); v != "" {
		cfg.Editor.Language = v
	}
	if v := os.Getenv("CODEBENCH_AUTOSAVE_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Editor.AutosaveDebounceMS = ms
		}
	}
	if os.Getenv("CODEBENCH_OBSERVER_ENABLED") == "true" || os.Getenv("CODEBENCH_OBSERVER_ENABLED") == "1" {
		cfg.Observer.Enabled = true
	}

	return cfg
}
