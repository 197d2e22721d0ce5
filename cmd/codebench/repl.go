package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/codebench/codebench"
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive editing session with autosave",
	Long: `Start an interactive session. Typed lines accumulate into the
current snippet; the most recent session for the language is restored on
startup and edits autosave in the background.

Commands:
  :run          execute the current snippet
  :show         print the current snippet
  :clear        discard the snippet and console output
  :lang <name>  switch language (restores that language's last session)
  :exit         quit`,
	RunE: runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.shutdown(cmd.Context())

	language, err := resolveLanguage(cmd, a.cfg, "")
	if err != nil {
		return err
	}

	opts := []codebench.CoordinatorOption{
		codebench.WithLanguage(language),
		codebench.WithLogger(a.logger),
		codebench.WithAutosaveDebounce(time.Duration(a.cfg.Editor.AutosaveDebounceMS) * time.Millisecond),
	}
	if a.repo != nil {
		opts = append(opts, codebench.WithRepository(a.repo))
	}
	if rc, ok := a.exec.(codebench.RuntimeChecker); ok {
		opts = append(opts, codebench.WithRuntimeChecker(rc))
	}
	// The coordinator owns the repository and closes it; only the observer
	// shutdown is left to the app.
	c := codebench.NewCoordinator(a.exec, opts...)
	defer c.Close(cmd.Context())

	c.Restore(cmd.Context())

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		InterruptPrompt: "^C",
		EOFPrompt:       ":exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(os.Stderr, "codebench %s session (:run to execute, :exit to quit)\n", c.Language())
	if c.Code() != "" {
		fmt.Fprintln(os.Stderr, "restored last session; :show to view it")
	}

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err == io.EOF {
			fmt.Println()
			return nil
		}
		if err != nil {
			return err
		}

		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == ":exit" || trimmed == ":quit":
			return nil
		case trimmed == ":run":
			execute(cmd, rl, c)
		case trimmed == ":show":
			fmt.Println(c.Code())
		case trimmed == ":clear":
			c.SetCode("")
			c.ClearMessages()
		case strings.HasPrefix(trimmed, ":lang "):
			l, err := resolveLanguageName(strings.TrimSpace(strings.TrimPrefix(trimmed, ":lang ")))
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			c.SetLanguage(cmd.Context(), l)
			fmt.Fprintf(os.Stderr, "language: %s\n", c.Language())
		case strings.HasPrefix(trimmed, ":"):
			fmt.Fprintf(os.Stderr, "unknown command %s\n", trimmed)
		default:
			code := c.Code()
			if code != "" && !strings.HasSuffix(code, "\n") {
				code += "\n"
			}
			c.SetCode(code + line)
		}
	}
}

func execute(cmd *cobra.Command, rl *readline.Instance, c *codebench.Coordinator) {
	if err := c.Run(cmd.Context()); err != nil {
		var missing *codebench.MissingRuntimeError
		if errors.As(err, &missing) {
			fmt.Fprintf(os.Stderr, "error: %s runtime not found on this host\n", missing.Runtime)
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}

	if c.IsWaitingForInput() {
		rl.SetPrompt("input> ")
		line, err := rl.Readline()
		rl.SetPrompt(">>> ")
		if err != nil {
			return
		}
		c.SubmitInput(cmd.Context(), line)
	}

	for _, msg := range c.Messages() {
		switch msg.Type {
		case codebench.MessageError:
			fmt.Fprintln(os.Stderr, msg.Content)
		case codebench.MessageInput:
			// Already echoed by the terminal.
		default:
			fmt.Println(msg.Content)
		}
	}
	c.ClearMessages()
}

func resolveLanguageName(name string) (codebench.Language, error) {
	switch name {
	case "py":
		name = "python"
	case "js":
		name = "javascript"
	}
	l := codebench.Language(name)
	if !l.Valid() {
		return "", fmt.Errorf("unknown language %q: use python, javascript, or html", name)
	}
	return l, nil
}
