package groq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"news-faces/config"
	"news-faces/providers"
)

// ErrMalformed wird zurückgegeben, wenn die LLM-Antwort kein gültiges JSON-Objekt ist.
var ErrMalformed = errors.New("malformed extraction response")

// Extractor implementiert providers.EntityExtractor über eine OpenAI-kompatible Chat-API.
type Extractor struct {
	Config *config.Config
	Logger *zap.Logger

	client     *openai.Client
	newBackOff func() backoff.BackOff
}

// NewExtractor erstellt einen Extractor für die konfigurierte API (Standard: Groq).
func NewExtractor(cfg *config.Config, logger *zap.Logger) *Extractor {
	oc := openai.DefaultConfig(cfg.GroqAPIKey)
	oc.BaseURL = strings.TrimRight(cfg.LLMBaseURL, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.LLMTimeout}

	return &Extractor{
		Config: cfg,
		Logger: logger,
		client: openai.NewClientWithConfig(oc),
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff()
		},
	}
}

// Extract schickt den Artikel an das LLM und gibt die extrahierten Personen zurück.
// Ohne qualifizierende Person ist das Ergebnis (nil, nil).
func (e *Extractor) Extract(ctx context.Context, article providers.RawArticle) (*providers.Extraction, error) {
	req := openai.ChatCompletionRequest{
		Model: e.Config.LLMModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent(article)},
		},
		Temperature: e.Config.LLMTemperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	var resp openai.ChatCompletionResponse
	attempt := 0
	op := func() error {
		attempt++
		var err error
		resp, err = e.client.CreateChatCompletion(ctx, req)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		e.Logger.Warn("LLM-Anfrage fehlgeschlagen, neuer Versuch", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), e.Config.LLMMaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformed)
	}
	return parseExtraction(resp.Choices[0].Message.Content)
}

// retryable: Rate-Limits, Serverfehler und Transportfehler werden wiederholt,
// andere 4xx-Antworten nicht.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

// parseExtraction liest das JSON-Objekt der LLM-Antwort. Manche Modelle liefern
// "name" als Liste statt als kommagetrennten String; beides wird akzeptiert.
func parseExtraction(content string) (*providers.Extraction, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	ex := &providers.Extraction{
		Name:        strings.TrimSpace(stringField(raw["name"])),
		CatchyTitle: strings.TrimSpace(stringField(raw["catchy_title"])),
		Summary:     strings.TrimSpace(stringField(raw["summary"])),
	}
	if ex.Name == "" {
		return nil, nil
	}
	return ex, nil
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}
