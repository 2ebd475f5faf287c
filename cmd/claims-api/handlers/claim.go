package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/claims/cmd/claims-api/service"
	"github.com/lyzr/claims/common/lifecycle"
	"github.com/lyzr/claims/common/logger"
	"github.com/lyzr/claims/common/middleware"
	"github.com/lyzr/claims/common/models"
	"github.com/lyzr/claims/common/validation"
)

// ClaimCreator registers new claims
type ClaimCreator interface {
	Create(ctx context.Context, req lifecycle.CreateRequest) (*lifecycle.Outcome, error)
}

// ClaimQuery serves claim reads
type ClaimQuery interface {
	Get(ctx context.Context, claimID int64) (*service.ClaimView, error)
	List(ctx context.Context, filter models.ClaimFilter, limit, page int) (*models.ClaimPage, error)
}

// MetadataEditor edits and removes mirror records
type MetadataEditor interface {
	Patch(ctx context.Context, claimID int64, patch []byte, actor string) (*models.Claim, error)
	Delete(ctx context.Context, claimID int64, actor string) error
}

// StatisticsReader serves aggregate statistics
type StatisticsReader interface {
	Get(ctx context.Context) (*service.StatisticsView, error)
}

// ClaimHandler handles claim CRUD requests
type ClaimHandler struct {
	responder
	creator          ClaimCreator
	query            ClaimQuery
	metadata         MetadataEditor
	stats            StatisticsReader
	allowMaintenance bool
}

// ClaimHandlerConfig carries ClaimHandler's collaborators
type ClaimHandlerConfig struct {
	Creator          ClaimCreator
	Query            ClaimQuery
	Metadata         MetadataEditor
	Statistics       StatisticsReader
	AllowMaintenance bool
	Production       bool
	Logger           *logger.Logger
}

// NewClaimHandler creates a new claim handler
func NewClaimHandler(cfg ClaimHandlerConfig) *ClaimHandler {
	return &ClaimHandler{
		responder:        responder{log: cfg.Logger, production: cfg.Production},
		creator:          cfg.Creator,
		query:            cfg.Query,
		metadata:         cfg.Metadata,
		stats:            cfg.Statistics,
		allowMaintenance: cfg.AllowMaintenance,
	}
}

// ListClaims lists mirror records with filters
// GET /api/v1/claims?status=created&requester=0x..&page=1&limit=20
func (h *ClaimHandler) ListClaims(c echo.Context) error {
	filter, err := parseFilter(c)
	if err != nil {
		return h.invalid(c, err)
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return h.invalid(c, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return h.invalid(c, err)
	}

	result, err := h.query.List(c.Request().Context(), filter, limit, page)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, result)
}

// CreateClaim registers a claim on the ledger and mirrors it
// POST /api/v1/claims
func (h *ClaimHandler) CreateClaim(c echo.Context) error {
	var req lifecycle.CreateRequest
	if err := c.Bind(&req); err != nil {
		return h.invalid(c, validation.Invalid("body", "invalid JSON: %v", err))
	}

	out, err := h.creator.Create(c.Request().Context(), req)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusCreated, out)
}

// GetClaim returns the mirror record and the ledger's view of it
// GET /api/v1/claims/:id
func (h *ClaimHandler) GetClaim(c echo.Context) error {
	id, err := validation.ParseClaimID(c.Param("id"))
	if err != nil {
		return h.invalid(c, err)
	}

	view, err := h.query.Get(c.Request().Context(), id)
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, view)
}

// PatchClaim applies a JSON merge patch to editable metadata
// PATCH /api/v1/claims/:id
func (h *ClaimHandler) PatchClaim(c echo.Context) error {
	id, err := validation.ParseClaimID(c.Param("id"))
	if err != nil {
		return h.invalid(c, err)
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return h.invalid(c, validation.Invalid("body", "unreadable: %v", err))
	}

	claim, err := h.metadata.Patch(c.Request().Context(), id, body, actor(c))
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, claim)
}

// DeleteClaim removes a mirror record; only available in maintenance mode
// DELETE /api/v1/claims/:id
func (h *ClaimHandler) DeleteClaim(c echo.Context) error {
	if !h.allowMaintenance {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"success": false,
			"error":   "maintenance_disabled",
			"message": "deleting claims requires ALLOW_MAINTENANCE=true",
		})
	}

	id, err := validation.ParseClaimID(c.Param("id"))
	if err != nil {
		return h.invalid(c, err)
	}

	if err := h.metadata.Delete(c.Request().Context(), id, actor(c)); err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, map[string]interface{}{"claimId": id, "deleted": true})
}

// GetStatistics returns aggregate statistics
// GET /api/v1/statistics
func (h *ClaimHandler) GetStatistics(c echo.Context) error {
	view, err := h.stats.Get(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return h.ok(c, http.StatusOK, view)
}

func parseFilter(c echo.Context) (models.ClaimFilter, error) {
	filter := models.ClaimFilter{
		ClaimType:     strings.TrimSpace(c.QueryParam("claimType")),
		AssignedEmail: strings.ToLower(strings.TrimSpace(c.QueryParam("assignedEmail"))),
		PolicyNumber:  strings.TrimSpace(c.QueryParam("policyNumber")),
	}

	if raw := c.QueryParam("status"); raw != "" {
		status := models.ClaimStatus(strings.ToLower(raw))
		if !status.Valid() {
			return filter, validation.Invalid("status", "unknown status %q", raw)
		}
		filter.Status = status
	}

	if raw := c.QueryParam("requester"); raw != "" {
		requester, err := validation.Address("requester", raw)
		if err != nil {
			return filter, err
		}
		filter.Requester = requester
	}

	for _, bound := range []struct {
		name string
		dst  **time.Time
	}{
		{"from", &filter.CreatedFrom},
		{"to", &filter.CreatedTo},
	} {
		raw := c.QueryParam(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, validation.Invalid(bound.name, "must be an RFC3339 timestamp")
		}
		*bound.dst = &t
	}

	if filter.CreatedFrom != nil && filter.CreatedTo != nil && filter.CreatedTo.Before(*filter.CreatedFrom) {
		return filter, validation.Invalid("to", "is before from")
	}
	return filter, nil
}

// actor names the caller in audit fields: the declared wallet, else "api"
func actor(c echo.Context) string {
	if wallet := middleware.Wallet(c); wallet != "" {
		return wallet
	}
	return "api"
}
