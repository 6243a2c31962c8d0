// Package gemini provides a generation adapter using the Google Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/custodia-labs/quire/internal/adapters/driven/embedding/gemini"
	"github.com/custodia-labs/quire/internal/core/domain"
	"github.com/custodia-labs/quire/internal/core/ports/driven"
)

// Ensure LLMService implements the interface.
var _ driven.Generator = (*LLMService)(nil)

// DefaultLLMModel is used when no model is configured.
const DefaultLLMModel = "gemini-2.0-flash"

const provider = "gemini"

// LLMConfig holds configuration for the Gemini LLM service.
type LLMConfig struct {
	// APIKey is the Gemini API key (required).
	APIKey string

	// Model is the LLM model to use (default: gemini-2.0-flash).
	Model string

	// Endpoint overrides the API endpoint.
	Endpoint string
}

// LLMService generates text using Gemini.
type LLMService struct {
	client *genai.Client
	model  string
}

// NewLLMService creates a new Gemini LLM service.
func NewLLMService(ctx context.Context, cfg LLMConfig) (*LLMService, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}

	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &LLMService{client: client, model: cfg.Model}, nil
}

// Generate produces text completion from a prompt.
func (s *LLMService) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	m := s.generativeModel(opts.MaxTokens, opts.Temperature)
	m.StopSequences = opts.StopWords

	resp, err := m.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", serviceError(ctx, err)
	}
	return responseText(resp)
}

// Chat conducts a multi-turn conversation. System messages become the
// system instruction; the last user message is sent against the rest as
// history.
func (s *LLMService) Chat(ctx context.Context, messages []domain.ChatMessage, opts driven.ChatOptions) (string, error) {
	m := s.generativeModel(opts.MaxTokens, opts.Temperature)

	system, history, last := splitMessages(messages)
	if system != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}
	if last == "" {
		return "", &domain.GenerationServiceError{Provider: provider, Err: errors.New("no user message to send")}
	}

	cs := m.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", serviceError(ctx, err)
	}
	return responseText(resp)
}

func (s *LLMService) generativeModel(maxTokens int, temperature float64) *genai.GenerativeModel {
	m := s.client.GenerativeModel(s.model)
	m.SetTemperature(float32(temperature))
	if maxTokens > 0 {
		m.SetMaxOutputTokens(int32(maxTokens))
	}
	return m
}

// splitMessages maps chat turns onto Gemini roles. Assistant turns become
// "model" turns.
func splitMessages(messages []domain.ChatMessage) (system string, history []*genai.Content, last string) {
	var systems []string
	var turns []domain.ChatMessage
	for _, msg := range messages {
		if msg.Role == "system" {
			systems = append(systems, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	system = strings.Join(systems, "\n\n")

	if n := len(turns); n > 0 && turns[n-1].Role == "user" {
		last = turns[n-1].Content
		turns = turns[:n-1]
	}
	for _, t := range turns {
		role := "user"
		if t.Role == "assistant" {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	return system, history, last
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &domain.GenerationServiceError{Provider: provider, Err: errors.New("no candidates returned"), Temporary: true}
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String(), nil
}

func serviceError(ctx context.Context, err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return &domain.GenerationServiceError{Provider: provider, Err: err}
	}
	status, temporary := gemini.Classify(ctx, err)
	return &domain.GenerationServiceError{Provider: provider, StatusCode: status, Err: err, Temporary: temporary}
}

// ModelName returns the name of the LLM model being used.
func (s *LLMService) ModelName() string {
	return s.model
}

// Ping checks the key and model by fetching the model's metadata.
func (s *LLMService) Ping(ctx context.Context) error {
	if _, err := s.client.GenerativeModel(s.model).Info(ctx); err != nil {
		return fmt.Errorf("gemini: ping failed: %w", err)
	}
	return nil
}

// Close releases the client connection.
func (s *LLMService) Close() error {
	return s.client.Close()
}
