package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/lyzr/claims/common/bootstrap"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/repository"
	"github.com/lyzr/claims/common/validation"
)

// fieldDiff is one compared field
type fieldDiff struct {
	Field  string `json:"field"`
	Mirror string `json:"mirror"`
	Ledger string `json:"ledger"`
	Match  bool   `json:"match"`
}

type verifyReport struct {
	ClaimID       int64       `json:"claimId"`
	InSync        bool        `json:"inSync"`
	MissingMirror bool        `json:"missingMirror,omitempty"`
	MissingLedger bool        `json:"missingLedger,omitempty"`
	Fields        []fieldDiff `json:"fields,omitempty"`
}

// compareClaim checks the fields the ledger owns. Either side may be nil.
func compareClaim(claimID int64, mirror *models.Claim, canonical *ledger.CanonicalClaim) verifyReport {
	report := verifyReport{
		ClaimID:       claimID,
		MissingMirror: mirror == nil,
		MissingLedger: canonical == nil,
	}
	if mirror == nil || canonical == nil {
		return report
	}

	ledgerWei := decimal.Zero
	if canonical.AmountWei != nil {
		ledgerWei = decimal.NewFromBigInt(canonical.AmountWei, 0)
	}

	report.Fields = []fieldDiff{
		{
			Field:  "status",
			Mirror: string(mirror.Status),
			Ledger: string(canonical.Status),
			Match:  mirror.Status == canonical.Status,
		},
		{
			Field:  "requester",
			Mirror: mirror.Requester,
			Ledger: canonical.Requester,
			Match:  strings.EqualFold(mirror.Requester, canonical.Requester),
		},
		{
			Field:  "amountWei",
			Mirror: mirror.AmountWei.String(),
			Ledger: ledgerWei.String(),
			Match:  mirror.AmountWei.Equal(ledgerWei),
		},
	}

	report.InSync = true
	for _, f := range report.Fields {
		if !f.Match {
			report.InSync = false
		}
	}
	return report
}

func (r verifyReport) writeText(w io.Writer) {
	switch {
	case r.MissingMirror && r.MissingLedger:
		fmt.Fprintf(w, "claim %d: not found in mirror or on ledger\n", r.ClaimID)
		return
	case r.MissingMirror:
		fmt.Fprintf(w, "claim %d: on ledger but missing from mirror (run sync)\n", r.ClaimID)
		return
	case r.MissingLedger:
		fmt.Fprintf(w, "claim %d: in mirror but missing on ledger\n", r.ClaimID)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tMIRROR\tLEDGER\t")
	for _, f := range r.Fields {
		mark := ""
		if !f.Match {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Field, f.Mirror, f.Ledger, mark)
	}
	tw.Flush()

	if r.InSync {
		fmt.Fprintf(w, "claim %d: in sync\n", r.ClaimID)
	} else {
		fmt.Fprintf(w, "claim %d: out of sync\n", r.ClaimID)
	}
}

func verifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <claim-id>",
		Short: "Compare a mirror record with the ledger without changing either",
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

			mirror, err := repository.NewClaimRepository(components.DB).FindByID(ctx, claimID)
			if err != nil && !errors.Is(err, models.ErrClaimNotFound) {
				return err
			}
			canonical, err := components.Ledger.FetchClaim(ctx, claimID)
			if err != nil && !errors.Is(err, ledger.ErrClaimNotFound) {
				return err
			}

			report := compareClaim(claimID, mirror, canonical)
			if err := printResult(cmd.OutOrStdout(), report, report.writeText); err != nil {
				return err
			}
			if !report.InSync {
				return fmt.Errorf("claim %d is not in sync", claimID)
			}
			return nil
		},
	}
	return cmd
}
