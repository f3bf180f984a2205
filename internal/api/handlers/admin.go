package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"chatforge/internal/core"
	"chatforge/internal/types"
)

// AdminProfileStore is the profile access the admin surface needs.
type AdminProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.Profile, error)
	ListAll(ctx context.Context) ([]*types.Profile, error)
	Count(ctx context.Context) (int, error)
	CountActive(ctx context.Context) (int, error)
}

// RevenueReader sums the settled payment ledger.
type RevenueReader interface {
	TotalRevenue(ctx context.Context) (float64, error)
}

// ChatCounter counts logged chat turns.
type ChatCounter interface {
	Count(ctx context.Context) (int, error)
}

// AdminAccessResponse is the response for GET /v1/admin/check-access.
type AdminAccessResponse struct {
	Access bool `json:"access"`
}

// AdminHandler serves the admin dashboard endpoints. Every route is gated on
// the caller's profile carrying the admin flag.
type AdminHandler struct {
	profiles AdminProfileStore
	revenue  RevenueReader
	chats    ChatCounter
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler with its dependencies.
func NewAdminHandler(
	profiles AdminProfileStore,
	revenue RevenueReader,
	chats ChatCounter,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		profiles: profiles,
		revenue:  revenue,
		chats:    chats,
		logger:   logger,
	}
}

// RegisterRoutes mounts the admin endpoints on the given router.
func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Get("/check-access", h.HandleCheckAccess)
		r.Get("/stats", h.HandleStats)
		r.Get("/users", h.HandleListUsers)
	})
}

// requireAdmin rejects callers whose profile does not carry the admin flag.
// The flag is read from the database on every request; there is no cached
// admin claim to go stale.
func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := identityFromRequest(r)
		if err != nil {
			core.Error(w, r, err)
			return
		}

		profile, err := h.profiles.GetByUserID(r.Context(), identity.UserID)
		if err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProfile {
				core.Error(w, r, types.NewAppError(types.ErrCodePermissionAdminOnly, "admin access required", nil))
				return
			}
			core.Error(w, r, err)
			return
		}

		if !profile.IsAdmin {
			h.logger.Warn("admin route denied",
				slog.String("user_id", identity.UserID),
				slog.String("path", r.URL.Path),
			)
			core.Error(w, r, types.NewAppError(types.ErrCodePermissionAdminOnly, "admin access required", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// HandleCheckAccess handles GET /v1/admin/check-access. Reaching the handler
// means the admin gate already passed.
func (h *AdminHandler) HandleCheckAccess(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: AdminAccessResponse{Access: true}})
}

// HandleStats handles GET /v1/admin/stats. The four aggregates are
// independent queries, so they run concurrently; any failure fails the whole
// snapshot rather than serving partial numbers.
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	var stats types.AdminStats

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		n, err := h.profiles.Count(ctx)
		stats.TotalUsers = n
		return err
	})
	g.Go(func() error {
		n, err := h.profiles.CountActive(ctx)
		stats.ActiveUsers = n
		return err
	})
	g.Go(func() error {
		total, err := h.revenue.TotalRevenue(ctx)
		stats.TotalRevenue = total
		return err
	})
	g.Go(func() error {
		n, err := h.chats.Count(ctx)
		stats.TotalMessages = n
		return err
	})

	if err := g.Wait(); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}

// HandleListUsers handles GET /v1/admin/users, returning every profile newest
// first.
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.ListAll(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profiles})
}
