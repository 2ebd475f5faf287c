package main

import (
	"bytes"
	"context"
	"io"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/models"
)

func TestCompareClaim(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	mirror := &models.Claim{
		ClaimID:   9,
		Requester: "0xAbC0000000000000000000000000000000000001",
		AmountWei: decimal.NewFromBigInt(wei, 0),
		Status:    models.StatusValidated,
	}
	canonical := &ledger.CanonicalClaim{
		ClaimID:   9,
		Requester: "0xabc0000000000000000000000000000000000001",
		AmountWei: wei,
		Status:    models.StatusValidated,
	}

	t.Run("in sync ignores address case", func(t *testing.T) {
		report := compareClaim(9, mirror, canonical)
		assert.True(t, report.InSync)
		assert.Len(t, report.Fields, 3)
	})

	t.Run("status drift", func(t *testing.T) {
		ahead := *canonical
		ahead.Status = models.StatusApproved

		report := compareClaim(9, mirror, &ahead)
		assert.False(t, report.InSync)
		assert.False(t, report.Fields[0].Match)
		assert.Equal(t, "approved", report.Fields[0].Ledger)
		assert.True(t, report.Fields[2].Match)
	})

	t.Run("missing sides", func(t *testing.T) {
		report := compareClaim(9, nil, canonical)
		assert.True(t, report.MissingMirror)
		assert.False(t, report.InSync)

		report = compareClaim(9, mirror, nil)
		assert.True(t, report.MissingLedger)
		assert.Empty(t, report.Fields)
	})

	t.Run("text output marks mismatches", func(t *testing.T) {
		drift := *canonical
		drift.AmountWei = big.NewInt(1)

		var buf bytes.Buffer
		compareClaim(9, mirror, &drift).writeText(&buf)
		assert.Contains(t, buf.String(), "out of sync")
		assert.Contains(t, buf.String(), "*")
	})
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	return cmd.ExecuteContext(context.Background())
}

func TestCommands_RejectBeforeConnecting(t *testing.T) {
	err := execute(t, deleteCommand(), "12")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	err = execute(t, deleteCommand(), "abc", "--yes")
	assert.Error(t, err)

	err = execute(t, reviewerCommand(), "0x0000000000000000000000000000000000000001", "--grant", "--revoke")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")

	err = execute(t, reviewerCommand(), "not-an-address")
	assert.Error(t, err)

	err = execute(t, syncCommand())
	assert.Error(t, err)
}

func TestPrintResult(t *testing.T) {
	defer func(prev string) { globalFlags.output = prev }(globalFlags.output)

	var buf bytes.Buffer
	globalFlags.output = "json"
	require.NoError(t, printResult(&buf, map[string]int{"claimId": 4}, nil))
	assert.JSONEq(t, `{"claimId":4}`, buf.String())

	buf.Reset()
	globalFlags.output = "text"
	require.NoError(t, printResult(&buf, nil, func(w io.Writer) { w.Write([]byte("ok")) }))
	assert.Equal(t, "ok", buf.String())
}
