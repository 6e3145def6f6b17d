package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"vesselflow/internal/journal"
)

func newStatusCommand(cmdCtx *commandContext) *cobra.Command {
	var limit int
	var sessionID string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent workflow events from the diagnostics journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cmdCtx.ensureConfig()
			if err != nil {
				return err
			}
			diary, err := journal.Open(cfg)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer diary.Close()

			var events []journal.Event
			if sessionID != "" {
				events, err = diary.BySession(cmd.Context(), sessionID)
			} else {
				events, err = diary.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}

			if asJSON {
				return writeEventJSON(cmd, events)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("workflow events", colorize) {
				fmt.Fprintln(out, line)
			}
			if len(events) == 0 {
				fmt.Fprintln(out, renderStatusLine("journal", statusInfo, "no events recorded", colorize))
				return nil
			}
			fmt.Fprintln(out, renderEventTable(events))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events to show")
	cmd.Flags().StringVar(&sessionID, "session", "", "Show the full trace for one session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit events as JSON")
	return cmd
}

// writeEventJSON emits the journal trace as indented JSON for scripted
// consumers of `status --json`.
func writeEventJSON(cmd *cobra.Command, events []journal.Event) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

func renderEventTable(events []journal.Event) string {
	rows := make([][]string, 0, len(events))
	for _, event := range events {
		rows = append(rows, []string{
			event.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(event.SessionID),
			string(event.Kind),
			event.Phase,
			event.Detail,
		})
	}
	return renderTable([]string{"Time", "Session", "Event", "Phase", "Detail"}, rows)
}

// shortID trims a UUID down to its first group for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
