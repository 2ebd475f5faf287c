package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/validation"
)

// ClaimWriter is the metadata side of the claim repository
type ClaimWriter interface {
	FindByID(ctx context.Context, claimID int64) (*models.Claim, error)
	Update(ctx context.Context, claimID int64, patch *models.ClaimPatch, actor string) (*models.Claim, error)
	Delete(ctx context.Context, claimID int64) error
}

// claimMetadata is the editable, ledger-independent part of a claim
type claimMetadata struct {
	Location      string          `json:"location"`
	ClaimType     string          `json:"claimType"`
	PolicyNumber  string          `json:"policyNumber"`
	AssignedEmail string          `json:"assignedEmail"`
	Documents     json.RawMessage `json:"documents,omitempty"`
}

// MetadataService edits descriptive claim fields the ledger does not own
type MetadataService struct {
	claims    ClaimWriter
	validator *validation.MetadataPatchValidator
	log       *logger.Logger
}

// NewMetadataService creates a new metadata service
func NewMetadataService(claims ClaimWriter, log *logger.Logger) *MetadataService {
	return &MetadataService{
		claims:    claims,
		validator: validation.NewMetadataPatchValidator(),
		log:       log,
	}
}

// Patch applies an RFC 7386 merge patch to the claim's metadata.
// Status, amount, requester and transaction hashes cannot be reached this way.
func (s *MetadataService) Patch(ctx context.Context, claimID int64, patch []byte, actor string) (*models.Claim, error) {
	if err := s.validator.Validate(patch); err != nil {
		return nil, err
	}

	claim, err := s.claims.FindByID(ctx, claimID)
	if err != nil {
		return nil, err
	}

	current := claimMetadata{
		Location:      claim.Location,
		ClaimType:     claim.ClaimType,
		PolicyNumber:  claim.PolicyNumber,
		AssignedEmail: claim.AssignedEmail,
		Documents:     documents(claim.Documents),
	}
	original, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("failed to encode claim metadata: %w", err)
	}

	merged, err := jsonpatch.MergePatch(original, patch)
	if err != nil {
		return nil, validation.Invalid("patch", "cannot be applied: %v", err)
	}

	var next claimMetadata
	if err := json.Unmarshal(merged, &next); err != nil {
		return nil, fmt.Errorf("failed to decode merged metadata: %w", err)
	}

	next.Documents = documents(next.Documents)

	update := diffMetadata(current, next)
	if update == nil {
		return claim, nil
	}

	updated, err := s.claims.Update(ctx, claimID, update, actor)
	if err != nil {
		return nil, err
	}

	s.log.Info("claim metadata updated", "claim_id", claimID, "actor", actor)
	return updated, nil
}

// Delete removes a mirror record. Callers gate this behind maintenance mode.
func (s *MetadataService) Delete(ctx context.Context, claimID int64, actor string) error {
	if err := s.claims.Delete(ctx, claimID); err != nil {
		return err
	}
	s.log.Warn("claim mirror record deleted", "claim_id", claimID, "actor", actor)
	return nil
}

// diffMetadata returns nil when nothing changed
func diffMetadata(current, next claimMetadata) *models.ClaimPatch {
	patch := &models.ClaimPatch{}
	changed := false

	if next.Location != current.Location {
		patch.Location = &next.Location
		changed = true
	}
	if next.ClaimType != current.ClaimType {
		patch.ClaimType = &next.ClaimType
		changed = true
	}
	if next.PolicyNumber != current.PolicyNumber {
		patch.PolicyNumber = &next.PolicyNumber
		changed = true
	}
	if next.AssignedEmail != current.AssignedEmail {
		patch.AssignedEmail = &next.AssignedEmail
		changed = true
	}
	if !jsonEqual(current.Documents, next.Documents) {
		patch.Documents = next.Documents
		if len(patch.Documents) == 0 {
			patch.Documents = json.RawMessage("null")
		}
		changed = true
	}

	if !changed {
		return nil
	}
	return patch
}

func documents(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func jsonEqual(a, b json.RawMessage) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	var x, y bytes.Buffer
	if json.Compact(&x, a) != nil || json.Compact(&y, b) != nil {
		return false
	}
	return bytes.Equal(x.Bytes(), y.Bytes())
}
