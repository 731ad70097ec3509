// Package chat answers questions over retrieved document context.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/vsedlak/chatrag/internal/search"
	"github.com/vsedlak/chatrag/pkg/types"
)

// Default values
const (
	DefaultModel       = "gpt-3.5-turbo"
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
)

const systemPrompt = `You are a helpful assistant answering questions about the user's documents.
Use the context excerpts below when they are relevant. If the context does not
contain the answer, say so instead of guessing.`

// Config contains chat completion settings.
type Config struct {
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

// Reply is one assistant answer together with the chunks that informed it.
type Reply struct {
	Message types.Message
	Model   string
	Sources []types.SearchResult
}

// Service runs retrieval-augmented chat completions.
type Service struct {
	client *openai.Client
	search *search.Service
	config Config
	logger *slog.Logger
}

// New creates a chat service. The search service may be nil, in which case
// answers are generated without document context.
func New(cfg Config, searchSvc *search.Service, logger *slog.Logger) *Service {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Service{
		client: openai.NewClientWithConfig(clientConfig),
		search: searchSvc,
		config: cfg,
		logger: logger,
	}
}

// Ask answers the question, retrieving document context first. History is
// replayed in order before the question.
func (s *Service) Ask(ctx context.Context, history []types.Message, question string) (*Reply, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question")
	}

	var sources []types.SearchResult
	if s.search != nil {
		results, err := s.search.Search(ctx, question, nil)
		if err != nil {
			// Retrieval failing degrades the answer, it does not block it.
			s.logger.Warn("retrieval failed, answering without context", "error", err)
		} else {
			sources = results
		}
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildSystemMessage(sources)},
	}
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: question,
	})

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Messages:    messages,
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return &Reply{
		Message: types.Message{
			Role:    openai.ChatMessageRoleAssistant,
			Content: resp.Choices[0].Message.Content,
		},
		Model:   s.config.Model,
		Sources: sources,
	}, nil
}

// buildSystemMessage appends the usable context excerpts to the system
// prompt. Unavailable placeholders carry no text and are left out.
func buildSystemMessage(sources []types.SearchResult) string {
	var b strings.Builder
	b.WriteString(systemPrompt)

	wrote := 0
	for _, src := range sources {
		if src.Unavailable {
			continue
		}
		if wrote == 0 {
			b.WriteString("\n\nContext excerpts:\n")
		}
		wrote++
		fmt.Fprintf(&b, "\n[%d] %s\n", wrote, src.Text)
	}

	return b.String()
}
