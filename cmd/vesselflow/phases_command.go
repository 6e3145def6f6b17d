package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vesselflow/internal/workflow"
)

func newPhasesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "phases",
		Short:       "List the workflow phases in order",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0)
			for i, phase := range workflow.AllPhases() {
				rows = append(rows, []string{
					fmt.Sprintf("%d", i+1),
					string(phase),
					phase.Label(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"#", "Phase", "Description"}, rows, 0))
			return nil
		},
	}
}
