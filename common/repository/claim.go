package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/lyzr/claims/common/db"
	"github.com/lyzr/claims/common/models"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

const claimColumns = `
	claim_id, requester, assigned_email, description, amount::text, amount_wei::text,
	claim_type, policy_number, location, documents, status,
	creation_tx_hash, validation_tx_hash, review_tx_hash, payment_tx_hash,
	reviewer_address, admin_notes, reviewed_at, created_at, updated_at`

// ClaimRepository handles database operations for mirrored claims
type ClaimRepository struct {
	db *db.DB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(database *db.DB) *ClaimRepository {
	return &ClaimRepository{db: database}
}

// Create inserts a claim tagged with its ledger creation hash.
// A second insert of the same claim id fails with ErrDuplicateClaim via the primary key.
func (r *ClaimRepository) Create(ctx context.Context, nc *models.NewClaim, creationTxHash string) (*models.Claim, error) {
	status := nc.Status
	if status == "" {
		status = models.StatusCreated
	}

	query := `
		INSERT INTO claims (
			claim_id, requester, assigned_email, description, amount, amount_wei,
			claim_type, policy_number, location, documents, status, creation_tx_hash
		)
		VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.db.Exec(
		ctx,
		query,
		nc.ClaimID,
		models.NormalizeAddress(nc.Requester),
		strings.ToLower(nc.AssignedEmail),
		nc.Description,
		nc.Amount.String(),
		nc.AmountWei.String(),
		nc.ClaimType,
		nc.PolicyNumber,
		nc.Location,
		nullableJSON(nc.Documents),
		string(status),
		creationTxHash,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %d", models.ErrDuplicateClaim, nc.ClaimID)
		}
		return nil, storageError("create claim", err)
	}

	return r.FindByID(ctx, nc.ClaimID)
}

// FindByID returns the claim with its history, or ErrClaimNotFound
func (r *ClaimRepository) FindByID(ctx context.Context, claimID int64) (*models.Claim, error) {
	claim, err := scanClaim(r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE claim_id = $1`, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrClaimNotFound, claimID)
		}
		return nil, storageError("get claim", err)
	}

	if err := r.attachHistory(ctx, []*models.Claim{claim}); err != nil {
		return nil, err
	}
	return claim, nil
}

// Exists reports whether a claim id is already taken
func (r *ClaimRepository) Exists(ctx context.Context, claimID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claims WHERE claim_id = $1)`, claimID).Scan(&exists)
	if err != nil {
		return false, storageError("check claim", err)
	}
	return exists, nil
}

// List returns one page of claims, newest first, plus the total match count
func (r *ClaimRepository) List(ctx context.Context, filter models.ClaimFilter, limit, page int) (*models.ClaimPage, error) {
	limit, page = normalizePage(limit, page)
	where, args := buildClaimFilter(filter)

	var total int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM claims`+where, args...).Scan(&total); err != nil {
		return nil, storageError("count claims", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM claims%s ORDER BY created_at DESC, claim_id DESC LIMIT $%d OFFSET $%d`,
		claimColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, storageError("list claims", err)
	}
	defer rows.Close()

	claims := make([]*models.Claim, 0, limit)
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, storageError("scan claim", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("list claims", err)
	}

	if err := r.attachHistory(ctx, claims); err != nil {
		return nil, err
	}

	return &models.ClaimPage{Claims: claims, Total: total, Page: page, Limit: limit}, nil
}

// Update applies patch under a row lock. When the status changes, exactly one
// history entry is appended in the same transaction.
func (r *ClaimRepository) Update(ctx context.Context, claimID int64, patch *models.ClaimPatch, actor string) (*models.Claim, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, storageError("begin update", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanClaim(tx.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE claim_id = $1 FOR UPDATE`, claimID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %d", models.ErrClaimNotFound, claimID)
		}
		return nil, storageError("lock claim", err)
	}

	plan, err := planUpdate(current, patch, actor)
	if err != nil {
		return nil, err
	}

	if len(plan.sets) > 0 {
		query := fmt.Sprintf(`UPDATE claims SET %s, updated_at = now() WHERE claim_id = $1`, strings.Join(plan.sets, ", "))
		if _, err := tx.Exec(ctx, query, append([]any{claimID}, plan.args...)...); err != nil {
			return nil, storageError("update claim", err)
		}
	}

	if plan.entry != nil {
		var seq int
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(seq), 0) FROM claim_history WHERE claim_id = $1`, claimID).Scan(&seq); err != nil {
			return nil, storageError("read history sequence", err)
		}

		e := plan.entry
		_, err := tx.Exec(ctx, `
			INSERT INTO claim_history (id, claim_id, seq, previous_status, new_status, actor, tx_hash, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		`, e.ID, claimID, seq+1, string(e.PreviousStatus), string(e.NewStatus), e.Actor, e.TxHash, e.Notes)
		if err != nil {
			return nil, storageError("append history", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageError("commit update", err)
	}

	return r.FindByID(ctx, claimID)
}

// Delete removes a claim and its history. Maintenance use only.
func (r *ClaimRepository) Delete(ctx context.Context, claimID int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM claims WHERE claim_id = $1`, claimID)
	if err != nil {
		return storageError("delete claim", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", models.ErrClaimNotFound, claimID)
	}
	return nil
}

// AggregateStatistics groups the whole collection by status
func (r *ClaimRepository) AggregateStatistics(ctx context.Context) (*models.Statistics, error) {
	rows, err := r.db.Query(ctx, `
		SELECT status, count(*), COALESCE(sum(amount), 0)::text
		FROM claims
		GROUP BY status
	`)
	if err != nil {
		return nil, storageError("aggregate claims", err)
	}
	defer rows.Close()

	var groups []statusGroup
	for rows.Next() {
		var g statusGroup
		var status, sum string
		if err := rows.Scan(&status, &g.count, &sum); err != nil {
			return nil, storageError("scan aggregate", err)
		}
		g.status = models.ClaimStatus(status)
		if g.sum, err = decimal.NewFromString(sum); err != nil {
			return nil, fmt.Errorf("failed to parse amount sum %q: %w", sum, err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("aggregate claims", err)
	}

	return foldStatistics(groups), nil
}

type statusGroup struct {
	status models.ClaimStatus
	count  int64
	sum    decimal.Decimal
}

// foldStatistics: approved total counts approved and paid claims
func foldStatistics(groups []statusGroup) *models.Statistics {
	stats := &models.Statistics{
		CountsByStatus:      make(map[models.ClaimStatus]int64, len(models.AllStatuses)),
		TotalAmountClaimed:  decimal.Zero,
		TotalAmountApproved: decimal.Zero,
	}
	for _, s := range models.AllStatuses {
		stats.CountsByStatus[s] = 0
	}

	for _, g := range groups {
		stats.CountsByStatus[g.status] = g.count
		stats.TotalClaims += g.count
		stats.TotalAmountClaimed = stats.TotalAmountClaimed.Add(g.sum)
		if g.status == models.StatusApproved || g.status == models.StatusPaid {
			stats.TotalAmountApproved = stats.TotalAmountApproved.Add(g.sum)
		}
	}
	return stats
}

func (r *ClaimRepository) attachHistory(ctx context.Context, claims []*models.Claim) error {
	if len(claims) == 0 {
		return nil
	}

	ids := make([]int64, len(claims))
	byID := make(map[int64]*models.Claim, len(claims))
	for i, c := range claims {
		ids[i] = c.ClaimID
		byID[c.ClaimID] = c
		c.ChangeHistory = []models.HistoryEntry{}
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, claim_id, seq, previous_status, new_status, actor, tx_hash, notes, created_at
		FROM claim_history
		WHERE claim_id = ANY($1)
		ORDER BY claim_id, seq
	`, ids)
	if err != nil {
		return storageError("load history", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.HistoryEntry
		var claimID int64
		var prev, next string
		if err := rows.Scan(&e.ID, &claimID, &e.Seq, &prev, &next, &e.Actor, &e.TxHash, &e.Notes, &e.Timestamp); err != nil {
			return storageError("scan history", err)
		}
		e.PreviousStatus = models.ClaimStatus(prev)
		e.NewStatus = models.ClaimStatus(next)
		if c, ok := byID[claimID]; ok {
			c.ChangeHistory = append(c.ChangeHistory, e)
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var (
		c                 models.Claim
		amount, amountWei string
		status            string
		documents         []byte
	)

	err := row.Scan(
		&c.ClaimID,
		&c.Requester,
		&c.AssignedEmail,
		&c.Description,
		&amount,
		&amountWei,
		&c.ClaimType,
		&c.PolicyNumber,
		&c.Location,
		&documents,
		&status,
		&c.CreationTxHash,
		&c.ValidationTxHash,
		&c.ReviewTxHash,
		&c.PaymentTxHash,
		&c.ReviewerAddress,
		&c.AdminNotes,
		&c.ReviewedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if c.AmountWei, err = decimal.NewFromString(amountWei); err != nil {
		return nil, fmt.Errorf("parse amount_wei %q: %w", amountWei, err)
	}
	c.Status = models.ClaimStatus(status)
	if len(documents) > 0 {
		c.Documents = json.RawMessage(documents)
	}

	return &c, nil
}

// updatePlan is the SQL assignment list for one Update call.
// Placeholder $1 is reserved for the claim id.
type updatePlan struct {
	sets  []string
	args  []any
	entry *models.HistoryEntry
}

func (p *updatePlan) set(column string, value any, cast string) {
	p.args = append(p.args, value)
	p.sets = append(p.sets, fmt.Sprintf("%s = $%d%s", column, len(p.args)+1, cast))
}

// planUpdate applies the mirror's write rules to a patch:
// status only moves forward, transition hashes are write-once, and a history
// entry is produced only when the status actually changes.
func planUpdate(current *models.Claim, patch *models.ClaimPatch, actor string) (*updatePlan, error) {
	plan := &updatePlan{}

	if patch.Status != nil && *patch.Status != current.Status {
		next := *patch.Status
		if !current.Status.CanAdvanceTo(next) {
			return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, next)
		}
		plan.set("status", string(next), "")
		plan.entry = &models.HistoryEntry{
			ID:             uuid.New(),
			PreviousStatus: current.Status,
			NewStatus:      next,
			Actor:          models.NormalizeAddress(actor),
			TxHash:         patch.HistoryTxHash(),
			Notes:          patch.Notes,
		}
	}

	hashes := []struct {
		column  string
		current *string
		next    *string
	}{
		{"validation_tx_hash", current.ValidationTxHash, patch.ValidationTxHash},
		{"review_tx_hash", current.ReviewTxHash, patch.ReviewTxHash},
		{"payment_tx_hash", current.PaymentTxHash, patch.PaymentTxHash},
	}
	for _, h := range hashes {
		if h.next == nil {
			continue
		}
		if h.current != nil {
			if *h.current != *h.next {
				return nil, fmt.Errorf("%w: %s", models.ErrImmutableField, h.column)
			}
			continue
		}
		plan.set(h.column, *h.next, "")
	}

	if patch.Requester != nil && models.NormalizeAddress(*patch.Requester) != current.Requester {
		plan.set("requester", models.NormalizeAddress(*patch.Requester), "")
	}
	if patch.AssignedEmail != nil && strings.ToLower(*patch.AssignedEmail) != current.AssignedEmail {
		plan.set("assigned_email", strings.ToLower(*patch.AssignedEmail), "")
	}
	if patch.Description != nil && *patch.Description != current.Description {
		plan.set("description", *patch.Description, "")
	}
	if patch.Amount != nil && !patch.Amount.Equal(current.Amount) {
		plan.set("amount", patch.Amount.String(), "::numeric")
	}
	if patch.AmountWei != nil && !patch.AmountWei.Equal(current.AmountWei) {
		plan.set("amount_wei", patch.AmountWei.String(), "::numeric")
	}
	if patch.ClaimType != nil && *patch.ClaimType != current.ClaimType {
		plan.set("claim_type", *patch.ClaimType, "")
	}
	if patch.PolicyNumber != nil && *patch.PolicyNumber != current.PolicyNumber {
		plan.set("policy_number", *patch.PolicyNumber, "")
	}
	if patch.Location != nil && *patch.Location != current.Location {
		plan.set("location", *patch.Location, "")
	}
	if patch.Documents != nil {
		plan.set("documents", nullableJSON(patch.Documents), "")
	}
	if patch.ReviewerAddress != nil && !equalPtr(current.ReviewerAddress, models.NormalizeAddress(*patch.ReviewerAddress)) {
		plan.set("reviewer_address", models.NormalizeAddress(*patch.ReviewerAddress), "")
	}
	if patch.AdminNotes != nil && !equalPtr(current.AdminNotes, *patch.AdminNotes) {
		plan.set("admin_notes", *patch.AdminNotes, "")
	}
	if patch.ReviewedAt != nil {
		plan.set("reviewed_at", patch.ReviewedAt.UTC(), "")
	}

	return plan, nil
}

// buildClaimFilter renders a WHERE clause with numbered placeholders
func buildClaimFilter(f models.ClaimFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Requester != "" {
		add("requester = $%d", models.NormalizeAddress(f.Requester))
	}
	if f.ClaimType != "" {
		add("claim_type = $%d", f.ClaimType)
	}
	if f.AssignedEmail != "" {
		add("assigned_email = $%d", strings.ToLower(f.AssignedEmail))
	}
	if f.PolicyNumber != "" {
		add("policy_number = $%d", f.PolicyNumber)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", f.CreatedFrom.UTC())
	}
	if f.CreatedTo != nil {
		add("created_at <= $%d", f.CreatedTo.UTC())
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func normalizePage(limit, page int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page < 1 {
		page = 1
	}
	return limit, page
}

func nullableJSON(doc json.RawMessage) any {
	if len(doc) == 0 || string(doc) == "null" {
		return nil
	}
	return string(doc)
}

func equalPtr(current *string, next string) bool {
	return current != nil && *current == next
}

func storageError(op string, err error) error {
	if db.IsUnavailable(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, models.ErrStorageUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
