package lifecycle

import (
	"context"
	"encoding/json"
	"math/big"
	"math/rand"
	"time"

	"github.com/lyzr/claims/common/divergence"
	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/telemetry"
	"github.com/lyzr/claims/common/validation"
)

// EventsChannel carries a JSON event after every mirror write
const EventsChannel = "claims.events"

// Ledger is the subset of *ledger.Gateway the orchestrator drives
type Ledger interface {
	FetchClaim(ctx context.Context, claimID int64) (*ledger.CanonicalClaim, error)
	Submit(ctx context.Context, t ledger.Transition) (*ledger.PendingTransaction, error)
	AwaitConfirmation(ctx context.Context, pending *ledger.PendingTransaction) (*ledger.Receipt, error)
	ConfirmExternal(ctx context.Context, txHash string) (*ledger.Receipt, error)
	IsAuthorizedReviewer(ctx context.Context, address string) (bool, error)
	ContractBalance(ctx context.Context) (*big.Int, error)
}

// ClaimStore is the subset of *repository.ClaimRepository the orchestrator writes through
type ClaimStore interface {
	Create(ctx context.Context, nc *models.NewClaim, creationTxHash string) (*models.Claim, error)
	FindByID(ctx context.Context, claimID int64) (*models.Claim, error)
	Exists(ctx context.Context, claimID int64) (bool, error)
	Update(ctx context.Context, claimID int64, patch *models.ClaimPatch, actor string) (*models.Claim, error)
}

// UserLookup resolves registered users for requester resolution
type UserLookup interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// DivergenceSink records ledger-ahead-of-mirror events
type DivergenceSink interface {
	Record(ctx context.Context, rec divergence.Record) error
}

// TransitionGuard excludes concurrent transitions of the same claim
type TransitionGuard interface {
	Acquire(ctx context.Context, claimID int64) (func(), error)
}

// EventPublisher publishes claim events
type EventPublisher interface {
	PublishEvent(ctx context.Context, channel string, message string) error
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithUsers enables requester resolution through registered users
func WithUsers(users UserLookup) Option {
	return func(o *Orchestrator) { o.users = users }
}

// WithGuard enables the per-claim in-flight guard
func WithGuard(guard TransitionGuard) Option {
	return func(o *Orchestrator) { o.guard = guard }
}

// WithDivergenceSink records divergences for the reconciler
func WithDivergenceSink(sink DivergenceSink) Option {
	return func(o *Orchestrator) { o.divergence = sink }
}

// WithEvents publishes claim events after mirror writes
func WithEvents(events EventPublisher) Option {
	return func(o *Orchestrator) { o.events = events }
}

// WithMetrics records transition metrics
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithConfirmationWindow sets how long after a missed confirmation the
// reconciler re-reads the claim
func WithConfirmationWindow(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.confirmationWindow = d
		}
	}
}

// WithIntakePolicy replaces the default intake policy
func WithIntakePolicy(p *validation.IntakePolicy) Option {
	return func(o *Orchestrator) { o.intake = p }
}

// Orchestrator keeps the mirror in step with the ledger.
// Every transition runs precondition check, ledger write and mirror update in
// that order, and never re-submits a ledger transaction on its own.
type Orchestrator struct {
	ledger     Ledger
	store      ClaimStore
	users      UserLookup
	guard      TransitionGuard
	divergence DivergenceSink
	events     EventPublisher
	metrics    *telemetry.Metrics
	intake     *validation.IntakePolicy
	logger     *logger.Logger

	// confirmationWindow delays the reconciler's look at an unconfirmed transaction
	confirmationWindow time.Duration

	now    func() time.Time
	random func(n int) int
}

// New creates an orchestrator
func New(l Ledger, store ClaimStore, log *logger.Logger, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		ledger: l,
		store:  store,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
		random: rand.Intn,

		confirmationWindow: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.intake == nil {
		policy, err := validation.NewIntakePolicy(nil)
		if err != nil {
			return nil, err
		}
		o.intake = policy
	}
	return o, nil
}

// Outcome is the result of a successful transition
type Outcome struct {
	Claim   *models.Claim   `json:"claim"`
	Receipt *ledger.Receipt `json:"receipt"`
}

// acquire takes the in-flight guard. A Redis outage does not block transitions:
// the contract's own state checks remain the final backstop.
func (o *Orchestrator) acquire(ctx context.Context, claimID int64) (func(), error) {
	if o.guard == nil {
		return func() {}, nil
	}
	release, err := o.guard.Acquire(ctx, claimID)
	if err != nil {
		e := fromStore(err)
		if e.Kind == KindInProgress {
			return nil, e
		}
		o.logger.Warn("claim guard unavailable, continuing without it", "claim_id", claimID, "error", err)
		return func() {}, nil
	}
	return release, nil
}

// diverged records that the ledger confirmed but the mirror write failed
func (o *Orchestrator) diverged(ctx context.Context, kind ledger.TransitionKind, stage divergence.Stage, claimID int64, receipt *ledger.Receipt, cause error) *Error {
	o.metrics.ObserveDivergence(string(kind))
	o.logger.Error("mirror update failed after ledger confirmation",
		"claim_id", claimID,
		"kind", kind,
		"tx_hash", receipt.TxHash,
		"error", cause)

	if o.divergence != nil {
		// the request context may be the thing that failed
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := o.divergence.Record(recordCtx, divergence.Record{
			ClaimID:    claimID,
			Kind:       string(kind),
			Stage:      stage,
			TxHash:     receipt.TxHash,
			Error:      cause.Error(),
			RecordedAt: o.now(),
		})
		if err != nil {
			o.logger.Error("failed to record divergence", "claim_id", claimID, "tx_hash", receipt.TxHash, "error", err)
		}
	}

	return &Error{
		Kind:    KindDivergence,
		Message: "ledger transaction confirmed but the mirror is pending synchronization",
		TxHash:  receipt.TxHash,
		Receipt: receipt,
		Err:     cause,
	}
}

// unconfirmed schedules a synchronize for a broadcast transaction whose outcome
// is unknown. Reverts are final and need nothing.
func (o *Orchestrator) unconfirmed(ctx context.Context, kind ledger.TransitionKind, claimID int64, e *Error) {
	switch e.Kind {
	case KindConfirmationTimeout, KindNetwork, KindInternal:
	default:
		return
	}
	if o.divergence == nil || e.TxHash == "" {
		return
	}

	notBefore := o.now().Add(o.confirmationWindow)
	o.logger.Warn("ledger confirmation not observed, scheduling synchronize",
		"claim_id", claimID,
		"kind", kind,
		"tx_hash", e.TxHash,
		"not_before", notBefore,
		"error", e.Err)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := o.divergence.Record(recordCtx, divergence.Record{
		ClaimID:    claimID,
		Kind:       string(kind),
		Stage:      divergence.StageUnconfirmed,
		TxHash:     e.TxHash,
		Error:      e.Error(),
		RecordedAt: o.now(),
		NotBefore:  notBefore,
	})
	if err != nil {
		o.logger.Error("failed to record unconfirmed transaction", "claim_id", claimID, "tx_hash", e.TxHash, "error", err)
	}
}

// Event is the JSON payload published on EventsChannel
type Event struct {
	Type      string             `json:"type"`
	ClaimID   int64              `json:"claimId"`
	Status    models.ClaimStatus `json:"status"`
	TxHash    string             `json:"txHash,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (o *Orchestrator) publish(ctx context.Context, eventType string, claim *models.Claim, txHash string) {
	if o.events == nil || claim == nil {
		return
	}
	data, err := json.Marshal(Event{
		Type:      eventType,
		ClaimID:   claim.ClaimID,
		Status:    claim.Status,
		TxHash:    txHash,
		Timestamp: o.now(),
	})
	if err != nil {
		return
	}
	if err := o.events.PublishEvent(ctx, EventsChannel, string(data)); err != nil {
		o.logger.Warn("failed to publish claim event", "claim_id", claim.ClaimID, "type", eventType, "error", err)
	}
}

func confirmationTime(pending *ledger.PendingTransaction, now time.Time) time.Duration {
	if pending.SubmittedAt.IsZero() {
		return 0
	}
	return now.Sub(pending.SubmittedAt)
}

// observe records the transition outcome metric
func (o *Orchestrator) observe(kind ledger.TransitionKind, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(KindOf(err))
	}
	o.metrics.ObserveTransition(string(kind), outcome)
}
