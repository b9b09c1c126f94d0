package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCommand(a *app) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Resume deployment attempts that stopped before completing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.chainServices(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if list {
				attempts, err := svc.Orchestrator.ListIncomplete(cmd.Context())
				if err != nil {
					return err
				}
				for _, attempt := range attempts {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", attempt.ID, attempt.UserID, attempt.Step, attempt.UpdatedAt.Format("2006-01-02 15:04:05"))
				}
				fmt.Fprintf(out, "%d incomplete attempts\n", len(attempts))
				return nil
			}

			completed, err := svc.Orchestrator.ReconcilePending(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d attempts completed\n", completed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "only list incomplete attempts")
	return cmd
}
