package session

import (
	"time"

	"github.com/longkey1/prepc/internal/prepc"
)

// Store persists settled state
type Store interface {
	SaveConversations(conversations []prepc.Conversation) error
	SaveSettings(settings prepc.Settings) error
}

// Recorder receives usage events
type Recorder interface {
	Record(eventType string, metadata map[string]interface{})
}

type nopStore struct{}

func (nopStore) SaveConversations([]prepc.Conversation) error { return nil }
func (nopStore) SaveSettings(prepc.Settings) error            { return nil }

type nopRecorder struct{}

func (nopRecorder) Record(string, map[string]interface{}) {}

type Option func(*Controller)

// WithStore persists conversations and settings through s
func WithStore(s Store) Option {
	return func(c *Controller) {
		c.store = s
	}
}

// WithRecorder sends usage events to r
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		c.recorder = r
	}
}

// WithClock overrides the time source used for message timestamps
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// WithObserver registers a function called after every state update
func WithObserver(fn func(Update)) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, fn)
	}
}

// WithSettings sets the initial settings
func WithSettings(s prepc.Settings) Option {
	return func(c *Controller) {
		c.settings = s
	}
}
