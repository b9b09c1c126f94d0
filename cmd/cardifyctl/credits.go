package main

import (
	"fmt"
	"strconv"

	"github.com/rxtech-lab/cardify-mcp/internal/services"
	"github.com/spf13/cobra"
)

func creditsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and grant deployment credits",
	}
	cmd.AddCommand(creditsGrantCommand(a), creditsShowCommand(a))
	return cmd
}

func creditsGrantCommand(a *app) *cobra.Command {
	var reference string

	cmd := &cobra.Command{
		Use:   "grant <user-id> <amount>",
		Short: "Add credits to a user's balance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive integer, got %q", args[1])
			}

			db, err := a.database()
			if err != nil {
				return err
			}

			balance, err := services.NewCreditService(db.GetDB()).Grant(cmd.Context(), args[0], amount, reference)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "granted %d credits to %s, balance %d\n", amount, args[0], balance)
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "unique reference; repeating a grant with the same reference is a no-op")
	return cmd
}

func creditsShowCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a user's balance and credit history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.database()
			if err != nil {
				return err
			}
			credits := services.NewCreditService(db.GetDB())

			balance, err := credits.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			transactions, err := credits.ListTransactions(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "balance: %d\n", balance)
			for _, tx := range transactions {
				fmt.Fprintf(out, "%s\t%+d\t%s\t%s\n", tx.CreatedAt.Format("2006-01-02 15:04:05"), tx.Amount, tx.Reason, tx.Reference)
			}
			return nil
		},
	}
	return cmd
}
