// Package handlers contains the HTTP handler implementations for the
// chatforge API. Each handler declares the minimal service interfaces it
// depends on and receives implementations via its constructor, which keeps the
// handlers decoupled from concrete repositories and providers and enables test
// mocking.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatforge/internal/core"
	"chatforge/internal/types"
)

// ProfileStore is the minimal profile access shared by the handlers that
// resolve the caller's profile.
type ProfileStore interface {
	GetByUserID(ctx context.Context, userID string) (*types.Profile, error)
	Create(ctx context.Context, userID, email, fullName string) (*types.Profile, error)
}

// ensureProfile returns the caller's profile, creating it with free-tier
// defaults on first contact. Identities are minted by the external auth
// provider, so the first authenticated request is the earliest moment a
// profile row can exist.
func ensureProfile(ctx context.Context, store ProfileStore, identity types.Identity) (*types.Profile, error) {
	profile, err := store.GetByUserID(ctx, identity.UserID)
	if err == nil {
		return profile, nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeNotFoundProfile {
		return store.Create(ctx, identity.UserID, identity.Email, identity.Name)
	}
	return nil, err
}

// identityFromRequest pulls the authenticated Identity from the request
// context. The session middleware guarantees it for protected routes; the
// guard covers misconfigured route mounting.
func identityFromRequest(r *http.Request) (types.Identity, error) {
	identity, ok := types.GetIdentity(r.Context())
	if !ok {
		return types.Identity{}, types.NewAppError(types.ErrCodeAuthSessionMissing, "Authentication required", nil)
	}
	return identity, nil
}

// ProfileHandler serves the caller's own profile.
type ProfileHandler struct {
	profiles ProfileStore
	logger   *slog.Logger
}

// NewProfileHandler creates a ProfileHandler with its dependencies.
func NewProfileHandler(profiles ProfileStore, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// RegisterRoutes mounts the profile endpoints on the given router.
func (h *ProfileHandler) RegisterRoutes(r chi.Router) {
	r.Get("/me/profile", h.HandleGetProfile)
}

// HandleGetProfile handles GET /v1/me/profile. The profile is created lazily
// with free-tier defaults when the user has never touched the platform before.
func (h *ProfileHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	profile, err := ensureProfile(r.Context(), h.profiles, identity)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: profile})
}
