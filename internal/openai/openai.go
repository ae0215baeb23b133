package openai

import (
	"context"
	"io"
	"math"
	"sort"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

const (
	ProviderName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// ErrMissingAPIKey is returned when no API key is configured
var ErrMissingAPIKey = errors.New("API key is not configured")

// Client implements prepc.Provider against the OpenAI chat completions API
type Client struct {
	baseURL string
}

// NewClient creates a new client for the given base URL.
// An empty base URL targets the public OpenAI API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: baseURL}
}

// BaseURL returns the API endpoint the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) client(apiKey string) *go_openai.Client {
	config := go_openai.DefaultConfig(apiKey)
	config.BaseURL = c.baseURL
	return go_openai.NewClientWithConfig(config)
}

// StreamCompletion opens a streaming chat completion for history.
// The API key, model and temperature are taken from settings on every call.
func (c *Client) StreamCompletion(ctx context.Context, settings prepc.Settings, history []prepc.Message) (prepc.Stream, error) {
	if settings.APIKey == "" {
		return nil, prepc.NewTransportError(ErrMissingAPIKey, "OpenAI API Error: %v", ErrMissingAPIKey)
	}

	req := buildRequest(settings, history)
	log.Debug().
		Str("model", req.Model).
		Float32("temperature", req.Temperature).
		Int("messages", len(req.Messages)).
		Msg("Opening completion stream")

	stream, err := c.client(settings.APIKey).CreateChatCompletionStream(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("OpenAI streaming request failed")
		return nil, prepc.NewTransportError(err, "OpenAI API Error: %v", err)
	}

	return &completionStream{stream: stream}, nil
}

func buildRequest(settings prepc.Settings, history []prepc.Message) go_openai.ChatCompletionRequest {
	messages := make([]go_openai.ChatCompletionMessage, 0, len(history))
	for _, m := range history {
		role, ok := toOpenAIRole(m.Role)
		if !ok {
			log.Warn().Str("role", string(m.Role)).Msg("Skipping message with unknown role")
			continue
		}
		messages = append(messages, go_openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	// go-openai drops a zero Temperature (omitempty)
	temperature := float32(settings.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	return go_openai.ChatCompletionRequest{
		Model:       settings.Model,
		Temperature: temperature,
		Messages:    messages,
		Stream:      true,
	}
}

func toOpenAIRole(role prepc.Role) (string, bool) {
	switch role {
	case prepc.RoleSystem:
		return go_openai.ChatMessageRoleSystem, true
	case prepc.RoleUser:
		return go_openai.ChatMessageRoleUser, true
	case prepc.RoleAssistant:
		return go_openai.ChatMessageRoleAssistant, true
	default:
		return "", false
	}
}

// completionStream yields the non-empty content deltas of a chat completion stream
type completionStream struct {
	stream *go_openai.ChatCompletionStream
	chunks int
}

func (s *completionStream) Recv() (string, error) {
	for {
		response, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			log.Debug().Int("chunks_received", s.chunks).Msg("OpenAI stream completed")
			return "", io.EOF
		}
		if err != nil {
			log.Error().Err(err).Int("chunks_received", s.chunks).Msg("OpenAI stream receive failed")
			return "", prepc.NewTransportError(err, "OpenAI API Error: %v", err)
		}
		s.chunks++

		if len(response.Choices) == 0 {
			continue
		}
		if delta := response.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}
}

func (s *completionStream) Close() error {
	return s.stream.Close()
}

// ListModels returns the ids of the models available to apiKey, sorted
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	if apiKey == "" {
		return nil, prepc.NewTransportError(ErrMissingAPIKey, "OpenAI API Error: %v", ErrMissingAPIKey)
	}

	list, err := c.client(apiKey).ListModels(ctx)
	if err != nil {
		return nil, prepc.NewTransportError(err, "OpenAI API Error: %v", err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ prepc.Provider = (*Client)(nil)
