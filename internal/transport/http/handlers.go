package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"mailroom/internal/tenant/models"
	id "mailroom/pkg/domain"
	dErrors "mailroom/pkg/domain-errors"
	"mailroom/pkg/platform/httputil"
)

// AdminKeyHeader carries the organization admin key on scoped reads.
const AdminKeyHeader = "X-Admin-Key"

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.health))
	for name, check := range h.health {
		if check == nil {
			continue
		}
		if err := check(); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	httputil.WriteJSON(w, status, map[string]any{
		"status": http.StatusText(status),
		"checks": checks,
	})
}

// requireAdminKey authenticates organization-scoped reads against the
// bcrypt hash issued at onboarding.
func (h *Handler) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
			return
		}
		key := r.Header.Get(AdminKeyHeader)
		if key == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin key required"))
			return
		}
		if err := h.tenants.VerifyAdminKey(r.Context(), orgID, key); err != nil {
			// A missing organization reads the same as a bad key, so the
			// endpoint cannot be used to enumerate org ids.
			h.logger.WarnContext(r.Context(), "admin key rejected", "org_id", orgID)
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid admin key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Operator endpoints
// =============================================================================

type onboardRequest struct {
	Name           string `json:"name"`
	InboundAddress string `json:"inbound_address"`
	Subdomain      string `json:"subdomain,omitempty"`
	Tier           string `json:"tier,omitempty"`
}

func (h *Handler) handleOnboard(w http.ResponseWriter, r *http.Request) {
	var req onboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid JSON body"))
		return
	}

	res, err := h.tenants.Onboard(r.Context(), req.Name, req.InboundAddress, req.Subdomain, models.Tier(req.Tier))
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			err = dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid organization")
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"organization": res.Organization,
		// Returned exactly once; only the bcrypt hash is stored.
		"admin_key": res.AdminKey,
	})
}

func (h *Handler) handleSuspend(w http.ResponseWriter, r *http.Request) {
	h.billingTransition(w, r, h.tenants.Suspend)
}

func (h *Handler) handleReactivate(w http.ResponseWriter, r *http.Request) {
	h.billingTransition(w, r, h.tenants.Reactivate)
}

func (h *Handler) billingTransition(w http.ResponseWriter, r *http.Request, transition func(context.Context, id.OrgID) (*models.Organization, error)) {
	orgID, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid organization id"))
		return
	}

	org, err := transition(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"organization": org})
}

// =============================================================================
// Organization-scoped reads
// =============================================================================

func (h *Handler) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	// requireAdminKey already validated the id.
	orgID, _ := id.ParseOrgID(chi.URLParam(r, "orgID"))

	org, err := h.tenants.Get(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"organization": org})
}

func (h *Handler) handleListProjects(w http.ResponseWriter, r *http.Request) {
	orgID, _ := id.ParseOrgID(chi.URLParam(r, "orgID"))

	projects, err := h.projects.List(r.Context(), orgID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	orgID, _ := id.ParseOrgID(chi.URLParam(r, "orgID"))
	projectID, err := id.ParseProjectID(chi.URLParam(r, "projectID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid project id"))
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a non-negative integer"))
			return
		}
	}

	// Confirm the project belongs to the caller's org before listing.
	if _, err := h.projects.Get(r.Context(), orgID, projectID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.ledger.History(r.Context(), orgID, projectID, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	orgID, _ := id.ParseOrgID(chi.URLParam(r, "orgID"))

	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		var err error
		days, err = strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "days must be an integer"))
			return
		}
	}

	summary, err := h.usage.Summary(r.Context(), orgID, days)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"usage": summary})
}
