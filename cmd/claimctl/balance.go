package main

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/ledger"
)

type balanceReport struct {
	ContractAddress string          `json:"contractAddress"`
	Balance         decimal.Decimal `json:"balance"`
	BalanceWei      string          `json:"balanceWei"`
}

func balanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the contract's native balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			components, err := setup(ctx, bootstrap.WithoutDB(), bootstrap.WithReadOnlyLedger())
			if err != nil {
				return err
			}
			defer components.Shutdown(ctx)

			wei, err := components.Ledger.ContractBalance(ctx)
			if err != nil {
				return fmt.Errorf("read balance: %w", err)
			}

			report := balanceReport{
				ContractAddress: components.Ledger.ContractAddress(),
				Balance:         ledger.FromWei(wei),
				BalanceWei:      wei.String(),
			}
			return printResult(cmd.OutOrStdout(), report, func(w io.Writer) {
				fmt.Fprintf(w, "%s: %s (%s wei)\n", report.ContractAddress, report.Balance, report.BalanceWei)
			})
		},
	}
	return cmd
}
