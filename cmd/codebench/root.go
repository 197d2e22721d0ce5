package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/codebench/codebench"
	"github.com/codebench/codebench/executor"
	"github.com/codebench/codebench/internal/config"
	"github.com/codebench/codebench/observer"
	"github.com/codebench/codebench/store/memstore"
	"github.com/codebench/codebench/store/postgres"
	"github.com/codebench/codebench/store/sqlite"
)

var rootCmd = &cobra.Command{
	Use:   "codebench",
	Short: "Run and persist Python, JavaScript, and HTML snippets",
	Long: `codebench - Execute code snippets through a remote judge or local
runtimes and keep an autosaved session history.

Python and JavaScript run through the configured executor; HTML sources
pass straight through. Sessions persist per language, and the most recent
one is restored on startup.`,
}

// exitCode is the process exit status. Commands set it instead of calling
// os.Exit so deferred closers (final snapshot flush, exporter shutdown) still
// run; main exits with it after Execute returns.
var exitCode int

func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: codebench.toml)")
	rootCmd.PersistentFlags().StringP("lang", "l", "", "Language: python, javascript, html")
	rootCmd.PersistentFlags().String("executor", "auto", "Executor: auto, native, judge")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// app bundles everything a subcommand needs after wiring. repo is nil when
// persistence could not be initialized; persistErr then carries the cause.
type app struct {
	cfg        config.Config
	logger     *slog.Logger
	repo       *codebench.Repository
	persistErr error
	exec       codebench.Executor
	shutdown   func(context.Context) error
}

// close tears down persistence and observability. Safe with a nil repo.
func (a *app) close(ctx context.Context) {
	if a.repo != nil {
		if err := a.repo.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing store: %v\n", err)
		}
	}
	if err := a.shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: shutting down observer: %v\n", err)
	}
}

func buildApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")
	cfg := config.Load(path)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	a := &app{cfg: cfg, logger: logger, shutdown: func(context.Context) error { return nil }}

	var inst *observer.Instruments
	if cfg.Observer.Enabled {
		var err error
		var stop func(context.Context) error
		inst, stop, err = observer.Init(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("init observer: %w", err)
		}
		a.shutdown = stop
	}

	// Persistence-init failure degrades: the session continues without a
	// repository rather than refusing to start.
	adapter, err := buildAdapter(cmd.Context(), cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: persistence unavailable, continuing without history: %v\n", err)
		a.persistErr = err
	} else {
		if inst != nil {
			adapter = observer.WrapAdapter(adapter, inst)
		}
		repo := codebench.NewRepository(adapter, codebench.WithRepositoryLogger(logger))
		if err := repo.InitializeTables(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "warning: persistence unavailable, continuing without history: %v\n", err)
			a.persistErr = err
			repo.Close(cmd.Context())
		} else {
			a.repo = repo
		}
	}

	a.exec = buildExecutor(cmd, cfg, logger, inst)
	if inst != nil {
		a.exec = observer.WrapExecutor(a.exec, inst)
	}
	return a, nil
}

func buildAdapter(ctx context.Context, cfg config.Config, logger *slog.Logger) (codebench.Adapter, error) {
	switch cfg.Database.Backend {
	case "memory":
		return memstore.New(memstore.WithLogger(logger)), nil
	case "buffer":
		sink := &sqlite.FileSink{Path: cfg.Database.SnapshotPath}
		interval := time.Duration(cfg.Database.FlushIntervalSecs) * time.Second
		return sqlite.NewBuffered(ctx, sink, interval, sqlite.WithLogger(logger))
	case "file", "":
		return sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger)), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.New(pool, postgres.WithLogger(logger)), nil
	}
	return nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
}

func buildExecutor(cmd *cobra.Command, cfg config.Config, logger *slog.Logger, inst *observer.Instruments) codebench.Executor {
	mode, _ := cmd.Flags().GetString("executor")

	timeout := time.Duration(cfg.Judge.TimeoutSecs) * time.Second
	native := executor.NewNative(
		executor.WithTimeout(timeout),
		executor.WithPythonBin(cfg.Runtime.PythonBin),
		executor.WithNodeBin(cfg.Runtime.NodeBin),
		executor.WithLogger(logger),
	)
	judge := executor.NewJudge(
		executor.WithTimeout(timeout),
		executor.WithEndpoint(cfg.Judge.Endpoint),
		executor.WithAPIKey(cfg.Judge.APIKey),
		executor.WithAPIHost(cfg.Judge.APIHost),
		executor.WithLogger(logger),
	)
	local := executor.NewLocal(executor.WithTimeout(timeout), executor.WithLogger(logger))

	chainOpts := []executor.ChainOption{executor.WithChainLogger(logger)}
	if inst != nil {
		chainOpts = append(chainOpts, executor.WithFallbackHook(inst.CountFallback))
	}

	switch mode {
	case "native":
		return native
	case "judge":
		return executor.NewWebChain(judge, local, chainOpts...)
	}
	// auto: prefer host runtimes, fall back to the judge chain when neither
	// python nor node is installed.
	probe, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if native.CheckRuntime(probe, "python") || native.CheckRuntime(probe, "node") {
		return native
	}
	return executor.NewWebChain(judge, local, chainOpts...)
}

func resolveLanguage(cmd *cobra.Command, cfg config.Config, filename string) (codebench.Language, error) {
	lang, _ := cmd.Flags().GetString("lang")
	if lang == "" && filename != "" {
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".py":
			lang = "python"
		case ".js", ".mjs":
			lang = "javascript"
		case ".html", ".htm":
			lang = "html"
		}
	}
	if lang == "" {
		lang = cfg.Editor.Language
	}
	switch lang {
	case "py":
		lang = "python"
	case "js":
		lang = "javascript"
	}
	l := codebench.Language(lang)
	if !l.Valid() {
		return "", fmt.Errorf("unknown language %q: use python, javascript, or html", lang)
	}
	return l, nil
}
