package service

import (
	"context"
	"errors"

	"github.com/lyzr/claims/common/ledger"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
)

// Warnings attached to a ClaimView
const (
	WarningLedgerUnavailable = "ledger_unavailable"
	WarningMissingOnLedger   = "missing_on_ledger"
	WarningOutOfSync         = "mirror_out_of_sync"
)

// ClaimReader is the read side of the claim repository
type ClaimReader interface {
	FindByID(ctx context.Context, claimID int64) (*models.Claim, error)
	List(ctx context.Context, filter models.ClaimFilter, limit, page int) (*models.ClaimPage, error)
}

// ClaimFetcher reads canonical claims
type ClaimFetcher interface {
	FetchClaim(ctx context.Context, claimID int64) (*ledger.CanonicalClaim, error)
}

// ClaimView is a mirror record next to its canonical ledger state
type ClaimView struct {
	Database *models.Claim          `json:"database"`
	Ledger   *ledger.CanonicalClaim `json:"ledger"`
	Warning  string                 `json:"warning,omitempty"`
}

// ClaimQueryService serves claim reads
type ClaimQueryService struct {
	claims ClaimReader
	ledger ClaimFetcher
	log    *logger.Logger
}

// NewClaimQueryService creates a new claim query service
func NewClaimQueryService(claims ClaimReader, l ClaimFetcher, log *logger.Logger) *ClaimQueryService {
	return &ClaimQueryService{
		claims: claims,
		ledger: l,
		log:    log,
	}
}

// Get returns the mirror record and, when reachable, the ledger's view of it.
// A ledger failure never fails the read; it is reported as a warning.
func (s *ClaimQueryService) Get(ctx context.Context, claimID int64) (*ClaimView, error) {
	claim, err := s.claims.FindByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	view := &ClaimView{Database: claim}

	canonical, err := s.ledger.FetchClaim(ctx, claimID)
	switch {
	case errors.Is(err, ledger.ErrClaimNotFound):
		view.Warning = WarningMissingOnLedger
	case err != nil:
		s.log.Warn("failed to read claim from ledger", "claim_id", claimID, "error", err)
		view.Warning = WarningLedgerUnavailable
	default:
		view.Ledger = canonical
		if canonical.Status != claim.Status {
			view.Warning = WarningOutOfSync
		}
	}
	return view, nil
}

// List returns one page of mirror records
func (s *ClaimQueryService) List(ctx context.Context, filter models.ClaimFilter, limit, page int) (*models.ClaimPage, error) {
	return s.claims.List(ctx, filter, limit, page)
}
