package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codebench/codebench"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect persisted code sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions newest-first",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a session's code and output",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session by id",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

func init() {
	sessionsListCmd.Flags().Int("limit", 20, "Maximum sessions to list (0 = all)")
	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runSessionsList(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())
	if a.repo == nil {
		return fmt.Errorf("session history unavailable: %w", a.persistErr)
	}

	lang, _ := cmd.Flags().GetString("lang")
	limit, _ := cmd.Flags().GetInt("limit")

	sessions, err := a.repo.GetAllCodeSessions(cmd.Context(), codebench.Language(lang))
	if err != nil {
		return err
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range sessions {
		preview := strings.SplitN(s.Code, "\n", 2)[0]
		if len(preview) > 60 {
			preview = preview[:60] + "..."
		}
		fmt.Printf("%6d  %-10s  %s  %s\n", s.ID, s.Language, s.Timestamp, preview)
	}
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())
	if a.repo == nil {
		return fmt.Errorf("session history unavailable: %w", a.persistErr)
	}

	sessions, err := a.repo.GetAllCodeSessions(cmd.Context(), "")
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.ID != id {
			continue
		}
		fmt.Printf("id: %d\nlanguage: %s\ntimestamp: %s\n\n%s\n", s.ID, s.Language, s.Timestamp, s.Code)
		if s.Output != nil && *s.Output != "" {
			fmt.Printf("\n--- output ---\n%s\n", *s.Output)
		}
		return nil
	}
	return fmt.Errorf("session %d not found", id)
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	a, err := buildApp(cmd)
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())
	if a.repo == nil {
		return fmt.Errorf("session history unavailable: %w", a.persistErr)
	}

	if err := a.repo.DeleteCodeSession(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Printf("deleted session %d\n", id)
	return nil
}
