package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func verifyCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <collection-address>",
		Short: "Check every stored code of a collection against its on-chain registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.chainServices(cmd.Context())
			if err != nil {
				return err
			}

			report, err := svc.Verifier.VerifyCollection(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "collection:      %s\n", report.CollectionAddress)
			fmt.Fprintf(out, "codes:           %d\n", report.Total)
			fmt.Fprintf(out, "registered:      %d\n", report.Registered)
			fmt.Fprintf(out, "used on-chain:   %d\n", report.UsedOnChain)
			fmt.Fprintf(out, "used in ledger:  %d\n", report.UsedInLedger)
			for _, issue := range report.Issues {
				fmt.Fprintf(out, "  %s\t%s\t%s\n", issue.Code, issue.Hash, issue.Issue)
			}

			if !report.OK() {
				return fmt.Errorf("%d codes failed verification", len(report.Issues))
			}
			return nil
		},
	}
	return cmd
}
