package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/repository"
	"github.com/lyzr/claims/common/validation"
)

func syncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <claim-id>",
		Short: "Rebuild or correct a mirror record from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claimID, err := validation.ParseClaimID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			components, err := setup(ctx, bootstrap.WithReadOnlyLedger())
			if err != nil {
				return err
			}
			defer components.Shutdown(ctx)

			orchestrator, err := components.NewOrchestrator(
				repository.NewClaimRepository(components.DB),
				repository.NewUserRepository(components.DB),
			)
			if err != nil {
				return err
			}

			result, err := orchestrator.Synchronize(ctx, claimID)
			if err != nil {
				return fmt.Errorf("sync claim %d: %w", claimID, err)
			}

			return printResult(cmd.OutOrStdout(), result, func(w io.Writer) {
				fmt.Fprintf(w, "claim %d: %s (status %s)\n", claimID, result.Action, result.Claim.Status)
			})
		},
	}
	return cmd
}
