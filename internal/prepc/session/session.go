// Package session drives conversations: it owns the conversation list, the
// current selection, and the lifecycle of streamed assistant replies.
package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/longkey1/prepc/internal/prepc/analytics"
	"github.com/longkey1/prepc/internal/prepc/catalog"
	"github.com/longkey1/prepc/internal/prepc/transfer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoConversation       = errors.New("no conversation selected")
	ErrEmptyMessage         = errors.New("message is empty")
	ErrTurnInProgress       = errors.New("a reply is already streaming for this conversation")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNothingToImport      = errors.New("no new conversations to import")
	ErrTurnAbandoned        = errors.New("conversation was deleted while the reply was streaming")
)

type UpdateKind string

const (
	// UpdateAppended is published once the user message and the empty
	// assistant placeholder have been added
	UpdateAppended   UpdateKind = "appended"
	UpdateFragment   UpdateKind = "fragment"
	UpdateCommitted  UpdateKind = "committed"
	UpdateRolledBack UpdateKind = "rolled_back"
)

// Update describes one transition of a turn
type Update struct {
	Kind           UpdateKind
	ConversationID string
	Conversation   prepc.Conversation // Snapshot after the transition
	Fragment       string             // Set for UpdateFragment
	Err            error              // Set for UpdateRolledBack
}

// Controller is the single owner of conversation state. All transitions are
// serialized; each turn's fragments are applied in arrival order by the
// goroutine streaming that turn.
type Controller struct {
	provider  prepc.Provider
	store     Store
	recorder  Recorder
	now       func() time.Time
	observers []func(Update)

	mu            sync.Mutex
	settings      prepc.Settings
	conversations []prepc.Conversation // Newest first, never holds a placeholder
	currentID     string
	turns         map[string]*Turn // Keyed by conversation ID
	err           error
}

// New creates a controller over the given conversation list
func New(conversations []prepc.Conversation, provider prepc.Provider, options ...Option) *Controller {
	c := &Controller{
		provider: provider,
		store:    nopStore{},
		recorder: nopRecorder{},
		now:      time.Now,
		settings: prepc.DefaultSettings(),
		turns:    map[string]*Turn{},
	}
	for _, o := range options {
		o(c)
	}

	c.conversations = make([]prepc.Conversation, 0, len(conversations))
	for _, conv := range conversations {
		c.conversations = append(c.conversations, conv.Clone())
	}
	return c
}

func (c *Controller) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range c.conversations {
		if c.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// viewLocked returns the conversation with its in-flight reply overlaid
func (c *Controller) viewLocked(id string) (prepc.Conversation, bool) {
	i := c.indexOf(id)
	if i < 0 {
		return prepc.Conversation{}, false
	}
	if t, ok := c.turns[id]; ok {
		return t.working(), true
	}
	return c.conversations[i].Clone(), true
}

func (c *Controller) saveLocked() {
	if err := c.store.SaveConversations(c.conversations); err != nil {
		log.Error().Err(err).Msg("Failed to save conversations")
	}
}

func (c *Controller) notify(u Update) {
	for _, fn := range c.observers {
		fn(u)
	}
}

// Send appends a user message to the current conversation and starts
// streaming the assistant reply. ctx bounds the streaming call.
func (c *Controller) Send(ctx context.Context, content string) (*Turn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	c.mu.Lock()
	i := c.indexOf(c.currentID)
	if i < 0 {
		c.mu.Unlock()
		return nil, ErrNoConversation
	}
	if _, busy := c.turns[c.currentID]; busy {
		c.mu.Unlock()
		return nil, ErrTurnInProgress
	}

	now := c.now()
	conv := c.conversations[i]
	user := prepc.NewMessage(prepc.RoleUser, content, now)
	if last := conv.LastTimestamp(); user.Timestamp < last {
		user.Timestamp = last
	}
	base := conv.WithMessage(user)
	c.conversations[i] = base
	c.saveLocked()

	placeholder := prepc.NewMessage(prepc.RoleAssistant, "", now)
	if placeholder.Timestamp <= user.Timestamp {
		placeholder.Timestamp = user.Timestamp + 1
	}

	turnCtx, cancel := context.WithCancel(ctx)
	t := newTurn(base.Clone(), placeholder, cancel)
	c.turns[base.ID] = t
	c.err = nil
	settings := c.settings
	history := base.Clone().Messages
	view := t.working()
	c.mu.Unlock()

	c.recorder.Record(analytics.EventMessageSent, nil)
	c.notify(Update{Kind: UpdateAppended, ConversationID: base.ID, Conversation: view})

	log.Debug().Str("conversation_id", base.ID).Str("turn_id", t.ID).Msg("Starting turn")
	go c.stream(turnCtx, t, settings, history)
	return t, nil
}

func (c *Controller) stream(ctx context.Context, t *Turn, settings prepc.Settings, history []prepc.Message) {
	defer t.cancel()

	stream, err := c.provider.StreamCompletion(ctx, settings, history)
	if err != nil {
		c.rollback(t, err)
		return
	}
	defer func() {
		if err := stream.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close completion stream")
		}
	}()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			c.commit(t)
			return
		}
		if err != nil {
			c.rollback(t, err)
			return
		}
		if fragment == "" {
			continue
		}
		c.applyFragment(t, fragment)
	}
}

// ownsLocked reports whether t is still the registered turn for a
// conversation that still exists
func (c *Controller) ownsLocked(t *Turn) bool {
	return c.turns[t.ConversationID] == t && c.indexOf(t.ConversationID) >= 0
}

func (c *Controller) applyFragment(t *Turn, fragment string) {
	c.mu.Lock()
	if !c.ownsLocked(t) {
		c.mu.Unlock()
		return
	}
	t.append(fragment)
	view := t.working()
	c.mu.Unlock()

	c.notify(Update{Kind: UpdateFragment, ConversationID: t.ConversationID, Conversation: view, Fragment: fragment})
}

func (c *Controller) commit(t *Turn) {
	c.mu.Lock()
	if !c.ownsLocked(t) {
		c.mu.Unlock()
		t.settle(prepc.Conversation{}, ErrTurnAbandoned)
		return
	}
	final := t.working()
	c.conversations[c.indexOf(t.ConversationID)] = final
	delete(c.turns, t.ConversationID)
	c.err = nil
	c.saveLocked()
	c.mu.Unlock()

	log.Debug().Str("conversation_id", t.ConversationID).Str("turn_id", t.ID).Msg("Turn committed")
	c.notify(Update{Kind: UpdateCommitted, ConversationID: t.ConversationID, Conversation: final.Clone()})
	t.settle(final, nil)
}

func (c *Controller) rollback(t *Turn, err error) {
	var transportErr *prepc.TransportError
	if !errors.As(err, &transportErr) {
		err = prepc.NewTransportError(err, "OpenAI API Error: %v", err)
	}

	c.mu.Lock()
	if !c.ownsLocked(t) {
		c.mu.Unlock()
		t.settle(prepc.Conversation{}, ErrTurnAbandoned)
		return
	}
	base := t.base.Clone()
	c.conversations[c.indexOf(t.ConversationID)] = base
	delete(c.turns, t.ConversationID)
	c.err = err
	c.saveLocked()
	c.mu.Unlock()

	log.Warn().Err(err).Str("conversation_id", t.ConversationID).Str("turn_id", t.ID).Msg("Turn rolled back")
	c.notify(Update{Kind: UpdateRolledBack, ConversationID: t.ConversationID, Conversation: base.Clone(), Err: err})
	t.settle(base, err)
}

// CreateFromTemplate starts a conversation seeded with the template's
// instruction and, when present, its opening line. It becomes current.
func (c *Controller) CreateFromTemplate(tpl catalog.Template) prepc.Conversation {
	now := c.now()
	conv := prepc.NewConversation(tpl.Title, now)
	conv.PromptCategory = tpl.Category
	conv.PromptID = tpl.ID

	system := prepc.NewMessage(prepc.RoleSystem, tpl.SystemPrompt, now)
	conv = conv.WithMessage(system)
	if tpl.InitialMessage != "" {
		opening := prepc.NewMessage(prepc.RoleAssistant, tpl.InitialMessage, now)
		opening.Timestamp = system.Timestamp + 1
		conv = conv.WithMessage(opening)
	}

	c.add(conv)
	c.recorder.Record(analytics.EventConversationCreated, map[string]interface{}{
		"categoryId": tpl.Category,
		"promptId":   tpl.ID,
	})
	return conv.Clone()
}

// StartBlank starts a conversation without a template instruction.
// An empty title falls back to prepc.DefaultTitle.
func (c *Controller) StartBlank(title string) prepc.Conversation {
	conv := prepc.NewConversation(title, c.now())
	c.add(conv)
	c.recorder.Record(analytics.EventConversationCreated, nil)
	return conv.Clone()
}

func (c *Controller) add(conv prepc.Conversation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conversations = append([]prepc.Conversation{conv.Clone()}, c.conversations...)
	c.currentID = conv.ID
	c.err = nil
	c.saveLocked()
}

// Select makes the conversation with the given ID current
func (c *Controller) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOf(id) < 0 {
		return ErrConversationNotFound
	}
	c.currentID = id
	c.err = nil
	return nil
}

// NewChat clears the current selection
func (c *Controller) NewChat() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentID = ""
	c.err = nil
}

// Delete removes a conversation. A reply streaming for it is abandoned.
func (c *Controller) Delete(id string) error {
	c.mu.Lock()
	i := c.indexOf(id)
	if i < 0 {
		c.mu.Unlock()
		return ErrConversationNotFound
	}
	c.conversations = append(c.conversations[:i:i], c.conversations[i+1:]...)
	if c.currentID == id {
		c.currentID = ""
	}
	t, streaming := c.turns[id]
	delete(c.turns, id)
	c.saveLocked()
	c.mu.Unlock()

	if streaming {
		log.Debug().Str("conversation_id", id).Str("turn_id", t.ID).Msg("Abandoning turn of deleted conversation")
		t.cancel()
	}
	return nil
}

// Import prepends the conversations whose IDs are not yet known and
// returns how many were added
func (c *Controller) Import(conversations []prepc.Conversation) (int, error) {
	c.mu.Lock()
	merged, added := transfer.Merge(c.conversations, conversations)
	if added == 0 {
		c.mu.Unlock()
		return 0, ErrNothingToImport
	}
	c.conversations = make([]prepc.Conversation, 0, len(merged))
	for _, conv := range merged {
		c.conversations = append(c.conversations, conv.Clone())
	}
	c.err = nil
	c.saveLocked()
	c.mu.Unlock()

	c.recorder.Record(analytics.EventConversationsImported, map[string]interface{}{"count": added})
	return added, nil
}

// ImportFrom reads an exported file and imports it. Invalid files change
// nothing and set the error slot.
func (c *Controller) ImportFrom(r io.Reader) (int, error) {
	conversations, err := transfer.Read(r)
	if err != nil {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		return 0, err
	}
	return c.Import(conversations)
}

// Export writes the conversation list as an importable JSON array
func (c *Controller) Export(w io.Writer) error {
	conversations := c.Conversations()
	if err := transfer.Write(w, conversations); err != nil {
		return err
	}
	c.recorder.Record(analytics.EventConversationsExported, map[string]interface{}{"count": len(conversations)})
	return nil
}

// Conversations returns a copy of the conversation list, newest first.
// In-flight replies are not included.
func (c *Controller) Conversations() []prepc.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]prepc.Conversation, 0, len(c.conversations))
	for _, conv := range c.conversations {
		out = append(out, conv.Clone())
	}
	return out
}

// Conversation returns the conversation with the given ID, including the
// reply streaming for it if any
func (c *Controller) Conversation(id string) (prepc.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(id)
}

// Current returns the current conversation, including the reply streaming
// for it if any
func (c *Controller) Current() (prepc.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked(c.currentID)
}

func (c *Controller) CurrentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentID
}

// Busy reports whether a reply is streaming for the conversation
func (c *Controller) Busy(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.turns[id]
	return ok
}

// Loading reports whether any reply is streaming
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns) > 0
}

// Err returns the error awaiting the user's attention, if any
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = nil
}

func (c *Controller) Settings() prepc.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// UpdateSettings validates and persists new settings.
// Replies already streaming keep the settings they started with.
func (c *Controller) UpdateSettings(s prepc.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = s
	if err := c.store.SaveSettings(s); err != nil {
		log.Error().Err(err).Msg("Failed to save settings")
	}
	return nil
}
