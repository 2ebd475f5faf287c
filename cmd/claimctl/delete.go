package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/repository"
	"github.com/lyzr/claims/common/validation"
)

var errMaintenanceDisabled = errors.New("maintenance commands are disabled; set ALLOW_MAINTENANCE=true")

func deleteCommand() *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "delete <claim-id>",
		Short: "Remove a claim from the mirror only; the ledger is untouched",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claimID, err := validation.ParseClaimID(args[0])
			if err != nil {
				return err
			}
			if !confirmed {
				return errors.New("refusing to delete without --yes")
			}

			ctx := cmd.Context()
			components, err := setup(ctx, bootstrap.WithoutLedger())
			if err != nil {
				return err
			}
			defer components.Shutdown(ctx)

			if !components.Config.Service.AllowMaintenance {
				return errMaintenanceDisabled
			}

			if err := repository.NewClaimRepository(components.DB).Delete(ctx, claimID); err != nil {
				return fmt.Errorf("delete claim %d: %w", claimID, err)
			}
			components.Logger.WithClaimID(claimID).Warn("claim removed from mirror", "actor", "claimctl")

			return printResult(cmd.OutOrStdout(), map[string]interface{}{"claimId": claimID, "deleted": true}, func(w io.Writer) {
				fmt.Fprintf(w, "claim %d deleted from mirror\n", claimID)
			})
		},
	}

	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm the deletion")
	return cmd
}
