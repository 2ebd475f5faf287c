package lifecycle

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/redis"
)

const (
	signer   = "0x00000000000000000000000000000000000000aa"
	reviewer = "0x00000000000000000000000000000000000000bb"
	outsider = "0x00000000000000000000000000000000000000cc"
)

func testLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, "error", "json")
}

func hashN(n int) string {
	return fmt.Sprintf("0x%064x", n)
}

// fakeLedger is an in-memory contract
type fakeLedger struct {
	mu sync.Mutex

	claims    map[int64]*ledger.CanonicalClaim
	reviewers map[string]bool
	balance   *big.Int

	submitted []ledger.Transition
	external  map[string]*ledger.Receipt

	submitErr  error
	confirmErr error
	fetchErr   error
	txCount    int

	// onAwait runs while the transaction is pending, before it is mined
	onAwait func()
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		claims:    map[int64]*ledger.CanonicalClaim{},
		reviewers: map[string]bool{signer: true, reviewer: true},
		balance:   big.NewInt(0),
		external:  map[string]*ledger.Receipt{},
	}
}

var kindTargets = map[ledger.TransitionKind]models.ClaimStatus{
	ledger.KindRegister: models.StatusCreated,
	ledger.KindValidate: models.StatusValidated,
	ledger.KindApprove:  models.StatusApproved,
	ledger.KindReject:   models.StatusRejected,
	ledger.KindPay:      models.StatusPaid,
}

func (f *fakeLedger) FetchClaim(_ context.Context, claimID int64) (*ledger.CanonicalClaim, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	c, ok := f.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrClaimNotFound, claimID)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeLedger) Submit(_ context.Context, t ledger.Transition) (*ledger.PendingTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, t)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.txCount++
	return &ledger.PendingTransaction{
		Hash:    hashN(f.txCount),
		Kind:    t.Kind,
		ClaimID: t.ClaimID,
		From:    signer,
	}, nil
}

func (f *fakeLedger) AwaitConfirmation(ctx context.Context, p *ledger.PendingTransaction) (*ledger.Receipt, error) {
	if f.onAwait != nil {
		f.onAwait()
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("await confirmation of %s: %w", p.Hash, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}

	t := f.submitted[len(f.submitted)-1]
	if t.Kind == ledger.KindRegister {
		f.claims[t.ClaimID] = &ledger.CanonicalClaim{
			ClaimID:     t.ClaimID,
			Requester:   signer,
			Description: t.Description,
			Amount:      ledger.FromWei(t.AmountWei),
			AmountWei:   t.AmountWei,
			Status:      models.StatusCreated,
		}
	} else if c, ok := f.claims[t.ClaimID]; ok {
		c.Status = kindTargets[t.Kind]
	}

	return &ledger.Receipt{TxHash: p.Hash, BlockNumber: 100, From: signer, ClaimID: p.ClaimID}, nil
}

func (f *fakeLedger) ConfirmExternal(_ context.Context, txHash string) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.external[txHash]
	if !ok {
		return nil, &ledger.TxError{Kind: ledger.ErrConfirmationTimeout, TxHash: txHash, Err: ledger.ErrConfirmationTimeout}
	}
	return r, nil
}

func (f *fakeLedger) IsAuthorizedReviewer(_ context.Context, address string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reviewers[address], nil
}

func (f *fakeLedger) ContractBalance(_ context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

// walletTx simulates a transaction the caller mined from their wallet
func (f *fakeLedger) walletTx(hash, from, method string, claimID int64, after models.ClaimStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.external[hash] = &ledger.Receipt{TxHash: hash, From: from, Method: method, ClaimID: claimID, BlockNumber: 7}
	if c, ok := f.claims[claimID]; ok {
		c.Status = after
	}
}

func (f *fakeLedger) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}

// memStore is an in-memory ClaimStore with the repository's write rules
type memStore struct {
	mu        sync.Mutex
	claims    map[int64]*models.Claim
	taken     map[int64]bool
	updateErr error
	createErr error
}

func newMemStore() *memStore {
	return &memStore{claims: map[int64]*models.Claim{}, taken: map[int64]bool{}}
}

func clone(c *models.Claim) *models.Claim {
	cp := *c
	cp.ChangeHistory = append([]models.HistoryEntry(nil), c.ChangeHistory...)
	return &cp
}

func (s *memStore) Create(ctx context.Context, nc *models.NewClaim, creationTxHash string) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if _, ok := s.claims[nc.ClaimID]; ok {
		return nil, fmt.Errorf("%w: %d", models.ErrDuplicateClaim, nc.ClaimID)
	}
	status := nc.Status
	if status == "" {
		status = models.StatusCreated
	}
	now := time.Now().UTC()
	c := &models.Claim{
		ClaimID:        nc.ClaimID,
		Requester:      models.NormalizeAddress(nc.Requester),
		AssignedEmail:  nc.AssignedEmail,
		Description:    nc.Description,
		Amount:         nc.Amount,
		AmountWei:      nc.AmountWei,
		ClaimType:      nc.ClaimType,
		PolicyNumber:   nc.PolicyNumber,
		Location:       nc.Location,
		Documents:      nc.Documents,
		Status:         status,
		CreationTxHash: creationTxHash,
		CreatedAt:      now,
		UpdatedAt:      now,
		ChangeHistory:  []models.HistoryEntry{},
	}
	s.claims[c.ClaimID] = c
	return clone(c), nil
}

func (s *memStore) FindByID(_ context.Context, claimID int64) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrClaimNotFound, claimID)
	}
	return clone(c), nil
}

func (s *memStore) Exists(_ context.Context, claimID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claims[claimID]
	return ok || s.taken[claimID], nil
}

func (s *memStore) Update(ctx context.Context, claimID int64, p *models.ClaimPatch, actor string) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	c, ok := s.claims[claimID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", models.ErrClaimNotFound, claimID)
	}

	next := clone(c)
	changed := false
	if p.Status != nil && *p.Status != c.Status {
		if !c.Status.CanAdvanceTo(*p.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, c.Status, *p.Status)
		}
		next.ChangeHistory = append(next.ChangeHistory, models.HistoryEntry{
			ID:             uuid.New(),
			Seq:            len(c.ChangeHistory) + 1,
			PreviousStatus: c.Status,
			NewStatus:      *p.Status,
			Actor:          actor,
			TxHash:         p.HistoryTxHash(),
			Notes:          p.Notes,
			Timestamp:      time.Now().UTC(),
		})
		next.Status = *p.Status
		changed = true
	}
	setOnce := func(dst **string, v *string) {
		if v != nil && *dst == nil {
			*dst = v
			changed = true
		}
	}
	setOnce(&next.ValidationTxHash, p.ValidationTxHash)
	setOnce(&next.ReviewTxHash, p.ReviewTxHash)
	setOnce(&next.PaymentTxHash, p.PaymentTxHash)
	if p.ReviewerAddress != nil {
		next.ReviewerAddress = p.ReviewerAddress
		changed = true
	}
	if p.AdminNotes != nil {
		next.AdminNotes = p.AdminNotes
		changed = true
	}
	if p.ReviewedAt != nil {
		next.ReviewedAt = p.ReviewedAt
	}
	if p.Description != nil {
		next.Description = *p.Description
		changed = true
	}
	if p.Amount != nil {
		next.Amount = *p.Amount
		changed = true
	}
	if p.AmountWei != nil {
		next.AmountWei = *p.AmountWei
		changed = true
	}
	if p.Requester != nil {
		next.Requester = *p.Requester
		changed = true
	}
	if changed {
		next.UpdatedAt = time.Now().UTC()
	}
	s.claims[claimID] = next
	return clone(next), nil
}

func (s *memStore) put(c *models.Claim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ChangeHistory == nil {
		c.ChangeHistory = []models.HistoryEntry{}
	}
	s.claims[c.ClaimID] = c
}

type fakeSink struct {
	mu      sync.Mutex
	records []divergence.Record
}

func (f *fakeSink) Record(_ context.Context, rec divergence.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type fakeGuard struct {
	mu   sync.Mutex
	held map[int64]bool
	err  error
}

func (g *fakeGuard) Acquire(_ context.Context, claimID int64) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	if g.held == nil {
		g.held = map[int64]bool{}
	}
	if g.held[claimID] {
		return nil, fmt.Errorf("claim %d: %w", claimID, redis.ErrInFlight)
	}
	g.held[claimID] = true
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.held, claimID)
	}, nil
}

type fakeEvents struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeEvents) PublishEvent(_ context.Context, channel string, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, channel+" "+message)
	return nil
}

type fakeUsers struct {
	users map[string]*models.User
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUserNotFound, email)
	}
	return u, nil
}
