package prepc

import "time"

// DefaultTitle is used for conversations that were not started from a template
const DefaultTitle = "New Conversation"

// Conversation represents an ordered exchange of messages
type Conversation struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Messages       []Message `json:"messages"`
	PromptCategory string    `json:"promptCategory,omitempty"` // Category of the originating template
	PromptID       string    `json:"promptId,omitempty"`       // Originating template ID
	Timestamp      int64     `json:"timestamp"`                // Unix milliseconds
}

// NewConversation creates an empty conversation with a fresh ID
func NewConversation(title string, at time.Time) Conversation {
	if title == "" {
		title = DefaultTitle
	}
	return Conversation{
		ID:        NewID(),
		Title:     title,
		Messages:  []Message{},
		Timestamp: at.UnixMilli(),
	}
}

// Clone returns a copy that shares no message storage with c
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// WithMessage returns a copy of c with m appended
func (c Conversation) WithMessage(m Message) Conversation {
	out := c
	out.Messages = make([]Message, len(c.Messages), len(c.Messages)+1)
	copy(out.Messages, c.Messages)
	out.Messages = append(out.Messages, m)
	return out
}

// VisibleMessages returns the messages shown to the user.
// System messages carry the template instruction and are never displayed.
func (c Conversation) VisibleMessages() []Message {
	visible := make([]Message, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleSystem {
			continue
		}
		visible = append(visible, m)
	}
	return visible
}

// LastTimestamp returns the timestamp of the trailing message, or the
// conversation creation time when there are no messages
func (c Conversation) LastTimestamp() int64 {
	if len(c.Messages) == 0 {
		return c.Timestamp
	}
	return c.Messages[len(c.Messages)-1].Timestamp
}

// MessageCount returns the number of messages in the conversation
func (c Conversation) MessageCount() int {
	return len(c.Messages)
}

// ShortID returns the first 8 characters of the conversation ID
func (c Conversation) ShortID() string {
	if len(c.ID) >= 8 {
		return c.ID[:8]
	}
	return c.ID
}

// CreatedAt returns the creation time
func (c Conversation) CreatedAt() time.Time {
	return time.UnixMilli(c.Timestamp)
}
