package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"chatforge/internal/types"
)

// authPublicPaths lists URL paths exempt from session authentication.
// Webhooks authenticate via provider signature instead of a session.
var authPublicPaths = map[string]bool{
	"/health":             true,
	"/v1/webhooks/stripe": true,
}

// SessionAuthMiddleware resolves the caller's session to an Identity.
//
//  1. Reads the session token from the configured session cookie, falling
//     back to an Authorization Bearer header for non-browser clients.
//  2. Calls Sessions.ResolveSession to validate the token with the external
//     auth provider. Sessions are issued elsewhere; this service only
//     delegates validation.
//  3. Injects the resolved Identity into the request context.
//  4. Returns 401 Unauthorized on a missing or rejected token. Auth provider
//     outages surface as the resolver's upstream error (500), not as a 401,
//     so clients can distinguish "log in again" from "try again later".
//
// If the Sessions field on Server is nil (tests that don't inject a resolver),
// the middleware passes through without authentication.
func (s *Server) SessionAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Sessions == nil {
			next.ServeHTTP(w, r)
			return
		}

		if authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token := s.extractSessionToken(r)
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthSessionMissing, "Authentication required")
			return
		}

		identity, err := s.Sessions.ResolveSession(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if identity == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthSessionInvalid, "Invalid session")
			return
		}

		ctx := types.WithIdentity(r.Context(), *identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractSessionToken returns the session token from the configured cookie,
// or from an Authorization Bearer header when no cookie is present.
func (s *Server) extractSessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(s.Config.Auth.CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return extractBearerToken(r.Header.Get("Authorization"))
}

// extractBearerToken parses an Authorization header value in the form
// "Bearer <token>" (case-insensitive scheme per RFC 7235). Returns the empty
// string if the format is invalid.
func extractBearerToken(authHeader string) string {
	const prefix = "Bearer "
	if len(authHeader) < len(prefix) {
		return ""
	}
	if !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authHeader[len(prefix):])
}

// handleAuthError inspects the error from ResolveSession and writes the
// appropriate response. Session rejections become 401; anything else is
// surfaced through the standard error writer so upstream failures keep their
// 500 mapping.
func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeAuthSessionInvalid {
		s.Logger.Warn("authentication failed: session rejected",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		s.writeAuthError(w, r, types.ErrCodeAuthSessionInvalid, "Invalid or expired session")
		return
	}

	s.Logger.Error("authentication failed: resolver error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	Error(w, r, err)
}

// writeAuthError writes a 401 Unauthorized JSON response with the given code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	resp := APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	}
	JSON(w, r, http.StatusUnauthorized, resp)
}
