package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClaimStatus is the lifecycle state of a claim
type ClaimStatus string

const (
	StatusCreated   ClaimStatus = "created"
	StatusValidated ClaimStatus = "validated"
	StatusApproved  ClaimStatus = "approved"
	StatusRejected  ClaimStatus = "rejected"
	StatusPaid      ClaimStatus = "paid"
)

// AllStatuses lists every status in ledger code order (0..4)
var AllStatuses = []ClaimStatus{
	StatusCreated,
	StatusValidated,
	StatusApproved,
	StatusRejected,
	StatusPaid,
}

// rank orders statuses: created < validated < {approved, rejected} < paid
var rank = map[ClaimStatus]int{
	StatusCreated:   0,
	StatusValidated: 1,
	StatusApproved:  2,
	StatusRejected:  2,
	StatusPaid:      3,
}

// Valid reports whether s is a known status
func (s ClaimStatus) Valid() bool {
	_, ok := rank[s]
	return ok
}

// IsTerminal reports whether no further transition is possible
func (s ClaimStatus) IsTerminal() bool {
	return s == StatusRejected || s == StatusPaid
}

// Rank returns the position of s in the lifecycle ordering, -1 if unknown
func (s ClaimStatus) Rank() int {
	r, ok := rank[s]
	if !ok {
		return -1
	}
	return r
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic.
// Skipping intermediate states is allowed here (synchronize may catch up several
// steps at once); single-step predecessor checks live in the orchestrator.
func (s ClaimStatus) CanAdvanceTo(next ClaimStatus) bool {
	if !s.Valid() || !next.Valid() || s.IsTerminal() {
		return false
	}
	if next == StatusPaid {
		return s != StatusRejected
	}
	return next.Rank() > s.Rank()
}

// Predecessor returns the status a claim must be in before moving to target
func Predecessor(target ClaimStatus) (ClaimStatus, bool) {
	switch target {
	case StatusValidated:
		return StatusCreated, true
	case StatusApproved, StatusRejected:
		return StatusValidated, true
	case StatusPaid:
		return StatusApproved, true
	default:
		return "", false
	}
}

// Claim is the mirrored claim record
// Maps to: claims table (+ claim_history rows)
type Claim struct {
	ClaimID       int64           `json:"claimId"`
	Requester     string          `json:"requester"`
	AssignedEmail string          `json:"assignedEmail,omitempty"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `json:"amount"`
	AmountWei     decimal.Decimal `json:"amountWei"`
	ClaimType     string          `json:"claimType"`
	PolicyNumber  string          `json:"policyNumber"`
	Location      string          `json:"location,omitempty"`
	Documents     json.RawMessage `json:"documents,omitempty"`
	Status        ClaimStatus     `json:"status"`

	// Transition hashes: optional until the transition happens, immutable afterwards
	CreationTxHash   string  `json:"creationTxHash"`
	ValidationTxHash *string `json:"validationTxHash,omitempty"`
	ReviewTxHash     *string `json:"reviewTxHash,omitempty"`
	PaymentTxHash    *string `json:"paymentTxHash,omitempty"`

	ReviewerAddress *string    `json:"reviewerAddress,omitempty"`
	AdminNotes      *string    `json:"adminNotes,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	ChangeHistory []HistoryEntry `json:"changeHistory"`
}

// HistoryEntry is one append-only audit row
// Maps to: claim_history table
type HistoryEntry struct {
	ID             uuid.UUID   `json:"id"`
	Seq            int         `json:"seq"`
	PreviousStatus ClaimStatus `json:"previousStatus"`
	NewStatus      ClaimStatus `json:"newStatus"`
	Actor          string      `json:"actor"`
	TxHash         *string     `json:"txHash,omitempty"`
	Notes          *string     `json:"notes,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

// NewClaim is the input for Repository.Create
type NewClaim struct {
	ClaimID       int64
	Requester     string
	AssignedEmail string
	Description   string
	Amount        decimal.Decimal
	AmountWei     decimal.Decimal
	ClaimType     string
	PolicyNumber  string
	Location      string
	Documents     json.RawMessage
	// Status defaults to created; synchronize may import a claim further along
	Status ClaimStatus
}

// ClaimPatch carries the fields to change; nil means "leave as is"
type ClaimPatch struct {
	Status           *ClaimStatus
	Requester        *string
	AssignedEmail    *string
	Description      *string
	Amount           *decimal.Decimal
	AmountWei        *decimal.Decimal
	ClaimType        *string
	PolicyNumber     *string
	Location         *string
	Documents        json.RawMessage
	ValidationTxHash *string
	ReviewTxHash     *string
	PaymentTxHash    *string
	ReviewerAddress  *string
	AdminNotes       *string
	ReviewedAt       *time.Time

	// Notes is recorded on the history entry, not on the claim
	Notes *string
}

// HistoryTxHash picks the transaction hash recorded on a history entry.
// Priority: validation, then approval/rejection, then payment.
func (p *ClaimPatch) HistoryTxHash() *string {
	switch {
	case p.ValidationTxHash != nil:
		return p.ValidationTxHash
	case p.ReviewTxHash != nil:
		return p.ReviewTxHash
	case p.PaymentTxHash != nil:
		return p.PaymentTxHash
	}
	return nil
}

// ClaimFilter narrows List results. Zero values are ignored.
type ClaimFilter struct {
	Status        ClaimStatus
	Requester     string
	ClaimType     string
	AssignedEmail string
	PolicyNumber  string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// ClaimPage is one page of List results
type ClaimPage struct {
	Claims []*Claim `json:"claims"`
	Total  int64    `json:"total"`
	Page   int      `json:"page"`
	Limit  int      `json:"limit"`
}

// Statistics summarises the whole claims collection
type Statistics struct {
	TotalClaims         int64                 `json:"totalClaims"`
	CountsByStatus      map[ClaimStatus]int64 `json:"countsByStatus"`
	TotalAmountClaimed  decimal.Decimal       `json:"totalAmountClaimed"`
	TotalAmountApproved decimal.Decimal       `json:"totalAmountApproved"`
}

// NormalizeAddress lowercases and trims a wallet address
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
