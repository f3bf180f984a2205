package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chatforge/internal/core"
	"chatforge/internal/types"
)

// ChatProfileStore extends ProfileStore with the atomic balance mutation the
// chat flow needs after a successful generation.
type ChatProfileStore interface {
	ProfileStore
	ApplyChatUsage(ctx context.Context, userID string, tokensUsed int) (*types.Profile, error)
}

// CompletionService abstracts the AI generation provider.
type CompletionService interface {
	Generate(ctx context.Context, prompt string, history []types.ChatTurn) (*types.Completion, error)
}

// ChatLog records completed chat turns.
type ChatLog interface {
	Insert(ctx context.Context, m types.ChatMessage) error
}

// ChatRequest is the request body for POST /v1/chat.
type ChatRequest struct {
	Message             string           `json:"message"`
	ConversationHistory []types.ChatTurn `json:"conversation_history"`
}

// ChatResponse is the response for POST /v1/chat.
type ChatResponse struct {
	Response        string `json:"response"`
	TokensUsed      int    `json:"tokens_used"`
	TokensRemaining int    `json:"tokens_remaining"`
}

// ChatHandler serves metered AI chat.
type ChatHandler struct {
	profiles    ChatProfileStore
	completions CompletionService
	chatLog     ChatLog
	logger      *slog.Logger
}

// NewChatHandler creates a ChatHandler with its dependencies.
func NewChatHandler(
	profiles ChatProfileStore,
	completions CompletionService,
	chatLog ChatLog,
	logger *slog.Logger,
) *ChatHandler {
	return &ChatHandler{
		profiles:    profiles,
		completions: completions,
		chatLog:     chatLog,
		logger:      logger,
	}
}

// RegisterRoutes mounts the chat endpoints on the given router.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
}

// HandleChat handles POST /v1/chat.
//
// Flow: resolve the caller's profile (creating it lazily), gate on the token
// balance, generate the completion, then charge the estimated usage against
// the balance in one atomic update and log the turn. A caller with zero
// tokens is rejected before any provider call or write happens.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromRequest(r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req ChatRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationEmptyMessage, "message must not be empty", nil))
		return
	}

	profile, err := ensureProfile(r.Context(), h.profiles, identity)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if profile.TokensRemaining <= 0 {
		core.Error(w, r, types.NewAppError(
			types.ErrCodeLimitTokens,
			"token limit reached; upgrade your plan to continue",
			nil,
		))
		return
	}

	completion, err := h.completions.Generate(r.Context(), req.Message, req.ConversationHistory)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	updated, err := h.profiles.ApplyChatUsage(r.Context(), identity.UserID, completion.TokensUsed)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// The turn already succeeded and was charged; a failed log append is not
	// worth failing the response over.
	if err := h.chatLog.Insert(r.Context(), types.ChatMessage{
		UserID:     identity.UserID,
		Message:    req.Message,
		Response:   completion.Text,
		TokensUsed: completion.TokensUsed,
	}); err != nil {
		h.logger.Warn("failed to log chat turn",
			slog.String("user_id", identity.UserID),
			slog.String("error", err.Error()),
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: ChatResponse{
		Response:        completion.Text,
		TokensUsed:      completion.TokensUsed,
		TokensRemaining: updated.TokensRemaining,
	}})
}
