package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chatforge/internal/config"
	"chatforge/internal/types"
)

// AuthClient resolves session tokens against the external auth provider's
// user endpoint. Sessions are issued elsewhere; this client only validates
// them. Resolution is single-shot: a failed validation is returned to the
// caller immediately rather than retried.
type AuthClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
}

// NewAuthClient creates an auth provider client from the given config.
func NewAuthClient(cfg config.AuthConfig) *AuthClient {
	httpClient := &http.Client{Timeout: 5 * time.Second}

	return &AuthClient{
		base:    NewBaseClient(httpClient, "auth-provider", NoRetryPolicy(), "chatforge/1.0"),
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.ServiceKey,
	}
}

// authUserResponse mirrors the provider's user payload. Only the fields the
// platform consumes are declared.
type authUserResponse struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	UserMetadata struct {
		FullName string `json:"full_name"`
		Name     string `json:"name"`
	} `json:"user_metadata"`
}

// ResolveSession validates the session token and returns the identity it
// belongs to. A token the provider rejects (expired, revoked, malformed)
// yields ErrCodeAuthSessionInvalid; provider outages yield ErrCodeUpstreamAuth.
func (c *AuthClient) ResolveSession(ctx context.Context, token string) (*types.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build auth request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.apiKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		var appErr *types.AppError
		if e, ok := err.(*types.AppError); ok {
			appErr = e
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamAuth, "auth provider unreachable", appErr)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, types.NewAppError(types.ErrCodeAuthSessionInvalid, "session token rejected", nil)
	case resp.StatusCode != http.StatusOK:
		return nil, types.NewAppError(
			types.ErrCodeUpstreamAuth,
			fmt.Sprintf("auth provider returned unexpected status %d", resp.StatusCode),
			nil,
		)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAuth, "failed to read auth response", err)
	}

	var user authUserResponse
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAuth, "failed to parse auth response", err)
	}
	if user.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthSessionInvalid, "auth response carried no user", nil)
	}

	name := user.UserMetadata.FullName
	if name == "" {
		name = user.UserMetadata.Name
	}

	return &types.Identity{
		UserID: user.ID,
		Email:  user.Email,
		Name:   name,
	}, nil
}
