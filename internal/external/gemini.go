package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"chatforge/internal/config"
	"chatforge/internal/types"
)

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// historyWindow caps how many prior turns are folded into the prompt.
const historyWindow = 10

// GeminiClient implements CompletionService against the Gemini
// generateContent API. Generation calls are single-shot; a failed generation
// is surfaced to the user rather than retried with a second paid call.
type GeminiClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	model   string
}

// NewGeminiClient creates a generation client from the given AI config.
func NewGeminiClient(cfg config.AIConfig) *GeminiClient {
	httpClient := &http.Client{Timeout: 60 * time.Second}

	return &GeminiClient{
		base:    NewBaseClient(httpClient, "gemini", NoRetryPolicy(), "chatforge/1.0"),
		baseURL: geminiAPIBase,
		apiKey:  cfg.GeminiAPIKey,
		model:   cfg.Model,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// buildPrompt folds the trailing history window into a flat transcript with
// the new prompt appended as the final user line.
func buildPrompt(prompt string, history []types.ChatTurn) string {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	var b strings.Builder
	for _, turn := range history {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(prompt)
	return b.String()
}

// estimateTokens approximates token usage as one token per four characters of
// combined prompt and response text, rounded up.
func estimateTokens(fullPrompt, response string) int {
	return int(math.Ceil(float64(len(fullPrompt)+len(response)) / 4))
}

// Generate produces a completion for the prompt in the context of the given
// history and reports the estimated token cost of the exchange.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, history []types.ChatTurn) (*types.Completion, error) {
	fullPrompt := buildPrompt(prompt, history)

	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: fullPrompt}}}},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode generation payload", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey.Unmask())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build generation request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "generation request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "failed to read generation response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(
			types.ErrCodeUpstreamGeneration,
			fmt.Sprintf("generation provider returned status %d", resp.StatusCode),
			nil,
		)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "failed to parse generation response", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamGeneration, "generation response carried no candidates", nil)
	}

	text := parsed.Candidates[0].Content.Parts[0].Text
	return &types.Completion{
		Text:       text,
		TokensUsed: estimateTokens(fullPrompt, text),
	}, nil
}
