// Package prepc provides the core types shared by the interview-preparation
// chat client: messages, conversations, user settings, and the Provider
// abstraction that streams assistant replies from a chat-completion API.
package prepc

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Provider defines the interface for chat-completion backends.
//
// Example usage:
//
//	client := openai.NewClient(baseURL)
//	stream, err := client.StreamCompletion(ctx, settings, conv.Messages)
//	for {
//		fragment, err := stream.Recv()
//		if errors.Is(err, io.EOF) {
//			break
//		}
//		...
//	}
type Provider interface {
	// StreamCompletion opens a streaming completion for the given history.
	// history is the full ordered message sequence (system prompt, prior
	// turns and the new user message) and never contains an empty assistant
	// placeholder.
	StreamCompletion(ctx context.Context, settings Settings, history []Message) (Stream, error)
}

// Stream is a lazy, single-pass sequence of reply fragments.
type Stream interface {
	// Recv returns the next non-empty fragment. It returns io.EOF once the
	// remote side signals completion, or a *TransportError on failure.
	Recv() (string, error)

	// Close releases the underlying connection.
	Close() error
}

// TransportError is returned when the remote completion API cannot be reached,
// rejects the request, or sends a malformed stream.
type TransportError struct {
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError wraps err with a human-readable message.
func NewTransportError(err error, format string, args ...interface{}) *TransportError {
	return &TransportError{
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}

// NewID returns a fresh random identifier for messages and conversations.
func NewID() string {
	return uuid.NewString()
}
