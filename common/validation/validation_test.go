package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validIntake() IntakeClaim {
	return IntakeClaim{
		Description:  "fender bender",
		Amount:       decimal.RequireFromString("0.5"),
		ClaimType:    "auto",
		PolicyNumber: "POL-2024-001",
	}
}

func TestIntakePolicy_DefaultRules(t *testing.T) {
	policy, err := NewIntakePolicy(nil)
	require.NoError(t, err)
	assert.Equal(t, len(DefaultRules), policy.Len())

	assert.NoError(t, policy.Check(validIntake()))

	c := validIntake()
	c.Amount = decimal.Zero
	c.PolicyNumber = ""
	err = policy.Check(c)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "amount must be greater than zero")
	assert.Contains(t, err.Error(), "policyNumber is required")
}

func TestIntakePolicy_ExtraRules(t *testing.T) {
	policy, err := NewIntakePolicy([]string{`claim.amount <= 10.0`, `claim.claimType in ["auto", "home"]`})
	require.NoError(t, err)

	assert.NoError(t, policy.Check(validIntake()))

	c := validIntake()
	c.ClaimType = "boat"
	assert.ErrorIs(t, policy.Check(c), ErrInvalidInput)

	c = validIntake()
	c.Amount = decimal.RequireFromString("11")
	assert.ErrorIs(t, policy.Check(c), ErrInvalidInput)
}

func TestIntakePolicy_BadExpressionFailsAtStartup(t *testing.T) {
	_, err := NewIntakePolicy([]string{`claim.amount >`})
	assert.Error(t, err)

	_, err = NewIntakePolicy([]string{`1 + 1`})
	assert.Error(t, err)
}

func TestIntakePolicy_DescriptionLength(t *testing.T) {
	policy, err := NewIntakePolicy(nil)
	require.NoError(t, err)

	c := validIntake()
	c.Description = string(make([]byte, 1001))
	assert.ErrorIs(t, policy.Check(c), ErrInvalidInput)
}

func TestAddressAndTxHash(t *testing.T) {
	addr, err := Address("requester", "0xAbC0000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xabc0000000000000000000000000000000000001", addr)

	_, err = Address("requester", "0x123")
	assert.ErrorIs(t, err, ErrInvalidInput)

	hash, err := TxHash("txHash", "0xABCDEF0000000000000000000000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000000000000000000000000000001", hash)

	_, err = TxHash("txHash", "0xabc")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestParseClaimID(t *testing.T) {
	id, err := ParseClaimID("12345678901")
	require.NoError(t, err)
	assert.Equal(t, int64(12345678901), id)

	for _, bad := range []string{"", "abc", "0", "-4"} {
		_, err := ParseClaimID(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestMetadataPatchValidator(t *testing.T) {
	v := NewMetadataPatchValidator()

	assert.NoError(t, v.Validate([]byte(`{"location":"Madrid","documents":["a.pdf"]}`)))
	assert.NoError(t, v.Validate([]byte(`{"location":null}`)))

	for _, bad := range []string{
		`{"status":"paid"}`,
		`{"amount":"1"}`,
		`{"location":5}`,
		`{"documents":"a.pdf"}`,
		`{"policyNumber":null}`,
		`{"claimType":""}`,
		`{}`,
		`[]`,
	} {
		assert.ErrorIs(t, v.Validate([]byte(bad)), ErrInvalidInput, bad)
	}
}
