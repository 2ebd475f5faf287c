package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/validation"
)

type reviewerReport struct {
	Address  string          `json:"address"`
	Reviewer bool            `json:"reviewer"`
	Owner    bool            `json:"owner"`
	Receipt  *ledger.Receipt `json:"receipt,omitempty"`
}

func reviewerCommand() *cobra.Command {
	var grant, revoke bool

	cmd := &cobra.Command{
		Use:   "reviewer <address>",
		Short: "Show or change an address's reviewer membership",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if grant && revoke {
				return errors.New("--grant and --revoke are mutually exclusive")
			}
			address, err := validation.Address("address", args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			opts := []bootstrap.Option{bootstrap.WithoutDB()}
			if !grant && !revoke {
				opts = append(opts, bootstrap.WithReadOnlyLedger())
			}
			components, err := setup(ctx, opts...)
			if err != nil {
				return err
			}
			defer components.Shutdown(ctx)

			report := reviewerReport{Address: address}
			if grant || revoke {
				receipt, err := components.Ledger.SetReviewer(ctx, address, grant)
				if err != nil {
					return fmt.Errorf("set reviewer: %w", err)
				}
				report.Receipt = receipt
			}

			if report.Reviewer, err = components.Ledger.IsAuthorizedReviewer(ctx, address); err != nil {
				return err
			}
			if report.Owner, err = components.Ledger.IsOwner(ctx, address); err != nil {
				return err
			}

			return printResult(cmd.OutOrStdout(), report, func(w io.Writer) {
				if report.Receipt != nil {
					fmt.Fprintf(w, "tx %s mined in block %d\n", report.Receipt.TxHash, report.Receipt.BlockNumber)
				}
				fmt.Fprintf(w, "%s: reviewer=%t owner=%t\n", report.Address, report.Reviewer, report.Owner)
			})
		},
	}

	cmd.Flags().BoolVar(&grant, "grant", false, "authorize the address as a reviewer")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove the address from the reviewer set")
	return cmd
}
