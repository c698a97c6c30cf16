package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func workQueueCmd(state *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workqueue",
		Short: "Maintain the auto-assignment work queue",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prepare",
		Short: "Mirror the pending requests of the active window into the work queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := state.container.AutoAssignment.PrepareWorkspace(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Work queue rebuilt with %d row(s).\n", written)
			return nil
		},
	})
	return cmd
}
