package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/codebench/codebench"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute a snippet once and print its output",
	Long: `Execute a source file (or stdin) through the configured executor.

Code can be provided via:
  - File argument: codebench run script.py
  - Inline flag: codebench run -l python -c 'print(1+1)'
  - Stdin: echo 'print(1+1)' | codebench run -l python`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("code", "c", "", "Code to execute")
	runCmd.Flags().String("stdin", "", "Standard input passed to the program")
	runCmd.Flags().Bool("no-save", false, "Skip persisting the session")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	inline, _ := cmd.Flags().GetString("code")
	stdin, _ := cmd.Flags().GetString("stdin")
	noSave, _ := cmd.Flags().GetBool("no-save")

	var source, filename string
	switch {
	case inline != "":
		source = inline
	case len(args) > 0:
		filename = args[0]
		data, err := os.ReadFile(filename)
		if err != nil {
			return err
		}
		source = string(data)
	default:
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			return cmd.Help()
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		source = string(data)
		if source == "" {
			return cmd.Help()
		}
	}

	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	language, err := resolveLanguage(cmd, a.cfg, filename)
	if err != nil {
		return err
	}

	result := a.exec.Execute(cmd.Context(), source, language, stdin)
	if result.Stdout != "" {
		fmt.Print(result.Stdout)
		if result.Stdout[len(result.Stdout)-1] != '\n' {
			fmt.Println()
		}
	}
	if result.Stderr != "" {
		fmt.Fprintln(os.Stderr, result.Stderr)
	}

	if !noSave && a.repo != nil {
		// Persist the full result, same shape the interactive session writes,
		// so history rows decode uniformly regardless of how they were made.
		serialized, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("serialize result: %w", err)
		}
		output := string(serialized)
		session := codebench.CodeSession{
			Code:      source,
			Language:  language,
			Output:    &output,
			Timestamp: codebench.NowISO(),
		}
		if _, err := a.repo.SaveCodeSession(cmd.Context(), session); err != nil {
			fmt.Fprintf(os.Stderr, "warning: session not saved: %v\n", err)
		}
	}

	if result.Status != codebench.StatusSuccess {
		exitCode = 1
	}
	return nil
}
