package session

import (
	"context"
	"strings"
	"sync"

	"github.com/longkey1/prepc/internal/prepc"
)

// Turn is a handle on one in-flight assistant reply
type Turn struct {
	ID             string
	ConversationID string

	// base is the conversation as persisted when the turn started,
	// ending with the user message
	base        prepc.Conversation
	placeholder prepc.Message
	cancel      context.CancelFunc

	done chan struct{}

	mu      sync.Mutex
	content strings.Builder
	result  prepc.Conversation
	err     error
}

func newTurn(base prepc.Conversation, placeholder prepc.Message, cancel context.CancelFunc) *Turn {
	return &Turn{
		ID:             placeholder.ID,
		ConversationID: base.ID,
		base:           base,
		placeholder:    placeholder,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
}

// Done is closed once the turn has committed, rolled back or been abandoned
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the turn settles. It returns the settled conversation,
// and the transport error on rollback or ErrTurnAbandoned when the
// conversation was deleted mid-stream.
func (t *Turn) Wait() (prepc.Conversation, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

// Content returns the reply accumulated so far
func (t *Turn) Content() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.content.String()
}

func (t *Turn) append(fragment string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.content.WriteString(fragment)
}

// working returns the base conversation with the placeholder carrying the
// content received so far
func (t *Turn) working() prepc.Conversation {
	t.mu.Lock()
	defer t.mu.Unlock()
	m := t.placeholder
	m.Content = t.content.String()
	return t.base.WithMessage(m)
}

func (t *Turn) settle(result prepc.Conversation, err error) {
	t.mu.Lock()
	t.result = result
	t.err = err
	t.mu.Unlock()
	close(t.done)
}
