package session

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/longkey1/prepc/internal/prepc/analytics"
	"github.com/longkey1/prepc/internal/prepc/catalog"
	"github.com/longkey1/prepc/internal/prepc/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type streamEvent struct {
	fragment string
	err      error
}

// fakeStream yields whatever the test pushes; closing events ends the stream
type fakeStream struct {
	ctx       context.Context
	events    chan streamEvent
	ignoreCtx bool
}

func (s *fakeStream) Recv() (string, error) {
	var done <-chan struct{}
	if !s.ignoreCtx {
		done = s.ctx.Done()
	}
	select {
	case ev, ok := <-s.events:
		if !ok {
			return "", io.EOF
		}
		if ev.err != nil {
			return "", ev.err
		}
		return ev.fragment, nil
	case <-done:
		return "", s.ctx.Err()
	}
}

func (s *fakeStream) Close() error { return nil }

type fakeProvider struct {
	mu        sync.Mutex
	histories [][]prepc.Message
	settings  []prepc.Settings
	openErr   error
	ignoreCtx bool
	streams   chan *fakeStream
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{streams: make(chan *fakeStream, 10)}
}

func (p *fakeProvider) StreamCompletion(ctx context.Context, settings prepc.Settings, history []prepc.Message) (prepc.Stream, error) {
	p.mu.Lock()
	p.histories = append(p.histories, history)
	p.settings = append(p.settings, settings)
	openErr := p.openErr
	p.mu.Unlock()
	if openErr != nil {
		return nil, openErr
	}
	s := &fakeStream{ctx: ctx, events: make(chan streamEvent), ignoreCtx: p.ignoreCtx}
	p.streams <- s
	return s, nil
}

func (p *fakeProvider) next(t *testing.T) *fakeStream {
	t.Helper()
	select {
	case s := <-p.streams:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no stream opened")
		return nil
	}
}

func (p *fakeProvider) lastHistory() []prepc.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.histories[len(p.histories)-1]
}

type fakeStore struct {
	mu       sync.Mutex
	saves    [][]prepc.Conversation
	settings []prepc.Settings
	err      error
}

func (s *fakeStore) SaveConversations(conversations []prepc.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]prepc.Conversation, 0, len(conversations))
	for _, c := range conversations {
		cp = append(cp, c.Clone())
	}
	s.saves = append(s.saves, cp)
	return s.err
}

func (s *fakeStore) SaveSettings(settings prepc.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = append(s.settings, settings)
	return s.err
}

func (s *fakeStore) last() []prepc.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saves) == 0 {
		return nil
	}
	return s.saves[len(s.saves)-1]
}

func (s *fakeStore) all() [][]prepc.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]prepc.Conversation(nil), s.saves...)
}

type recordedEvent struct {
	Type     string
	Metadata map[string]interface{}
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) Record(eventType string, metadata map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Type: eventType, Metadata: metadata})
}

func (r *fakeRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctrl     *Controller
	provider *fakeProvider
	store    *fakeStore
	recorder *fakeRecorder

	mu      sync.Mutex
	updates []Update
}

func newFixture(t *testing.T, conversations ...prepc.Conversation) *fixture {
	t.Helper()
	f := &fixture{
		provider: newFakeProvider(),
		store:    &fakeStore{},
		recorder: &fakeRecorder{},
	}
	f.ctrl = New(conversations, f.provider,
		WithStore(f.store),
		WithRecorder(f.recorder),
		WithClock(func() time.Time { return fixedNow }),
		WithSettings(prepc.Settings{APIKey: "sk-test", Model: "gpt-4o", Temperature: 0.7}),
		WithObserver(func(u Update) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.updates = append(f.updates, u)
		}),
	)
	return f
}

func (f *fixture) kinds(id string) []UpdateKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []UpdateKind
	for _, u := range f.updates {
		if u.ConversationID == id {
			out = append(out, u.Kind)
		}
	}
	return out
}

func waitSettled(t *testing.T, turn *Turn) (prepc.Conversation, error) {
	t.Helper()
	select {
	case <-turn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not settle")
	}
	return turn.Wait()
}

func waitContent(t *testing.T, turn *Turn, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return turn.Content() == want
	}, 2*time.Second, 5*time.Millisecond)
}

func practiceTemplate() catalog.Template {
	return catalog.Template{
		ID:             "algo-practice",
		Category:       "algorithms",
		Title:          "Algorithm Practice",
		SystemPrompt:   "You are an algorithms interviewer.",
		InitialMessage: "Ready for your first problem?",
	}
}

func TestSend_StreamsAndCommits(t *testing.T) {
	f := newFixture(t)
	conv := f.ctrl.CreateFromTemplate(practiceTemplate())

	turn, err := f.ctrl.Send(context.Background(), "Yes, go ahead")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, turn.ConversationID)
	assert.True(t, f.ctrl.Busy(conv.ID))
	assert.True(t, f.ctrl.Loading())

	stream := f.provider.next(t)

	// The history handed to the provider ends with the user message
	history := f.provider.lastHistory()
	require.Len(t, history, 3)
	assert.Equal(t, prepc.RoleUser, history[2].Role)
	assert.Equal(t, "Yes, go ahead", history[2].Content)

	stream.events <- streamEvent{fragment: "Two "}
	waitContent(t, turn, "Two ")

	current, ok := f.ctrl.Current()
	require.True(t, ok)
	require.Len(t, current.Messages, 4)
	assert.Equal(t, prepc.RoleAssistant, current.Messages[3].Role)
	assert.Equal(t, "Two ", current.Messages[3].Content)

	// The persisted list never holds the placeholder
	assert.Len(t, f.store.last()[0].Messages, 3)

	stream.events <- streamEvent{fragment: "sum"}
	close(stream.events)

	final, err := waitSettled(t, turn)
	require.NoError(t, err)
	require.Len(t, final.Messages, 4)
	assert.Equal(t, "Two sum", final.Messages[3].Content)
	assert.Equal(t, turn.ID, final.Messages[3].ID)

	assert.False(t, f.ctrl.Busy(conv.ID))
	assert.False(t, f.ctrl.Loading())
	assert.NoError(t, f.ctrl.Err())
	assert.Equal(t, final, f.store.last()[0])
	assert.Equal(t, []prepc.Conversation{final}, f.ctrl.Conversations())

	assert.Equal(t, []UpdateKind{UpdateAppended, UpdateFragment, UpdateFragment, UpdateCommitted}, f.kinds(conv.ID))
	assert.Equal(t, []string{analytics.EventConversationCreated, analytics.EventMessageSent}, f.recorder.types())
}

func TestSend_Timestamps(t *testing.T) {
	f := newFixture(t)
	f.ctrl.CreateFromTemplate(practiceTemplate())

	_, err := f.ctrl.Send(context.Background(), "hello")
	require.NoError(t, err)
	f.provider.next(t)

	current, ok := f.ctrl.Current()
	require.True(t, ok)
	require.Len(t, current.Messages, 4)
	opening, user, placeholder := current.Messages[1], current.Messages[2], current.Messages[3]
	assert.GreaterOrEqual(t, user.Timestamp, opening.Timestamp)
	assert.Greater(t, placeholder.Timestamp, user.Timestamp)
	assert.NotEqual(t, user.ID, placeholder.ID)
}

func TestSend_Guards(t *testing.T) {
	t.Run("no conversation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ctrl.Send(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrNoConversation)
		assert.Empty(t, f.store.all())
	})

	t.Run("empty message", func(t *testing.T) {
		f := newFixture(t)
		conv := f.ctrl.StartBlank("")
		_, err := f.ctrl.Send(context.Background(), "   \n\t")
		assert.ErrorIs(t, err, ErrEmptyMessage)
		got, _ := f.ctrl.Conversation(conv.ID)
		assert.Empty(t, got.Messages)
	})

	t.Run("after new chat", func(t *testing.T) {
		f := newFixture(t)
		f.ctrl.StartBlank("")
		f.ctrl.NewChat()
		_, err := f.ctrl.Send(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrNoConversation)
	})
}

func TestSend_AtMostOneTurnPerConversation(t *testing.T) {
	f := newFixture(t)
	conv := f.ctrl.StartBlank("")

	turn, err := f.ctrl.Send(context.Background(), "first")
	require.NoError(t, err)
	stream := f.provider.next(t)

	before, _ := f.ctrl.Current()
	saves := len(f.store.all())

	_, err = f.ctrl.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrTurnInProgress)

	after, _ := f.ctrl.Current()
	assert.Equal(t, before.MessageCount(), after.MessageCount())
	assert.Len(t, f.store.all(), saves)

	close(stream.events)
	final, err := waitSettled(t, turn)
	require.NoError(t, err)
	assert.Equal(t, 2, final.MessageCount())
	assert.Equal(t, conv.ID, final.ID)
}

func TestSend_RollbackDiscardsPartialReply(t *testing.T) {
	f := newFixture(t)
	conv := f.ctrl.StartBlank("Mock interview")

	turn, err := f.ctrl.Send(context.Background(), "Tell me about yourself")
	require.NoError(t, err)
	stream := f.provider.next(t)

	stream.events <- streamEvent{fragment: "I am"}
	stream.events <- streamEvent{fragment: " an"}
	waitContent(t, turn, "I am an")
	stream.events <- streamEvent{err: prepc.NewTransportError(io.ErrUnexpectedEOF, "OpenAI API Error: connection reset")}

	settled, err := waitSettled(t, turn)
	var transportErr *prepc.TransportError
	require.ErrorAs(t, err, &transportErr)

	require.Len(t, settled.Messages, 1)
	assert.Equal(t, prepc.RoleUser, settled.Messages[0].Role)
	assert.Equal(t, "Tell me about yourself", settled.Messages[0].Content)

	persisted := f.store.last()
	require.Len(t, persisted, 1)
	assert.Equal(t, settled, persisted[0])
	for _, m := range persisted[0].Messages {
		assert.NotEqual(t, prepc.RoleAssistant, m.Role)
	}

	current, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, settled, current)

	require.Error(t, f.ctrl.Err())
	assert.Equal(t, "OpenAI API Error: connection reset", f.ctrl.Err().Error())
	assert.False(t, f.ctrl.Busy(conv.ID))
	assert.Equal(t, UpdateRolledBack, f.kinds(conv.ID)[len(f.kinds(conv.ID))-1])

	// The next successful action clears the error slot
	_, err = f.ctrl.Send(context.Background(), "retry")
	require.NoError(t, err)
	assert.NoError(t, f.ctrl.Err())
	close(f.provider.next(t).events)
}

func TestSend_OpenFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.provider.openErr = prepc.NewTransportError(nil, "OpenAI API Error: invalid api key")
	f.ctrl.StartBlank("")

	turn, err := f.ctrl.Send(context.Background(), "hello")
	require.NoError(t, err)

	settled, err := waitSettled(t, turn)
	require.Error(t, err)
	assert.Equal(t, 1, settled.MessageCount())
	assert.EqualError(t, f.ctrl.Err(), "OpenAI API Error: invalid api key")

	f.ctrl.DismissError()
	assert.NoError(t, f.ctrl.Err())
}

func TestSend_NonTransportErrorIsWrapped(t *testing.T) {
	f := newFixture(t)
	f.provider.openErr = io.ErrClosedPipe
	f.ctrl.StartBlank("")

	turn, err := f.ctrl.Send(context.Background(), "hello")
	require.NoError(t, err)

	_, err = waitSettled(t, turn)
	var transportErr *prepc.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestDelete_AbandonsTurn(t *testing.T) {
	for _, ignoreCtx := range []bool{false, true} {
		name := "cancelled stream"
		if ignoreCtx {
			name = "stream completes after delete"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.provider.ignoreCtx = ignoreCtx
			other := f.ctrl.StartBlank("Other")
			conv := f.ctrl.StartBlank("Doomed")

			turn, err := f.ctrl.Send(context.Background(), "hello")
			require.NoError(t, err)
			stream := f.provider.next(t)
			stream.events <- streamEvent{fragment: "partial"}
			waitContent(t, turn, "partial")

			require.NoError(t, f.ctrl.Delete(conv.ID))
			assert.Empty(t, f.ctrl.CurrentID())
			assert.False(t, f.ctrl.Busy(conv.ID))
			savesAfterDelete := len(f.store.all())

			if ignoreCtx {
				stream.events <- streamEvent{fragment: " late"}
				close(stream.events)
			}

			_, err = waitSettled(t, turn)
			assert.ErrorIs(t, err, ErrTurnAbandoned)

			for _, c := range f.ctrl.Conversations() {
				assert.NotEqual(t, conv.ID, c.ID)
			}
			_, ok := f.ctrl.Conversation(conv.ID)
			assert.False(t, ok)
			assert.Len(t, f.store.all(), savesAfterDelete)
			assert.Equal(t, []prepc.Conversation{other}, f.store.last())
			assert.NoError(t, f.ctrl.Err())
		})
	}
}

func TestSelect_SwitchingMidStreamKeepsProgress(t *testing.T) {
	f := newFixture(t)
	first := f.ctrl.StartBlank("First")

	turn, err := f.ctrl.Send(context.Background(), "question")
	require.NoError(t, err)
	stream := f.provider.next(t)

	second := f.ctrl.StartBlank("Second")
	assert.Equal(t, second.ID, f.ctrl.CurrentID())

	stream.events <- streamEvent{fragment: "ans"}
	waitContent(t, turn, "ans")

	// The conversation the user switched to is untouched
	current, ok := f.ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, second, current)

	// Switching back shows live progress
	require.NoError(t, f.ctrl.Select(first.ID))
	current, ok = f.ctrl.Current()
	require.True(t, ok)
	require.Len(t, current.Messages, 2)
	assert.Equal(t, "ans", current.Messages[1].Content)

	require.NoError(t, f.ctrl.Select(second.ID))
	stream.events <- streamEvent{fragment: "wer"}
	close(stream.events)
	final, err := waitSettled(t, turn)
	require.NoError(t, err)

	assert.Equal(t, second.ID, f.ctrl.CurrentID())
	got, ok := f.ctrl.Conversation(first.ID)
	require.True(t, ok)
	assert.Equal(t, final, got)
	assert.Equal(t, "answer", got.Messages[1].Content)

	current, _ = f.ctrl.Current()
	assert.Equal(t, second, current)
}

func TestSend_ConcurrentTurnsOnDifferentConversations(t *testing.T) {
	f := newFixture(t)
	a := f.ctrl.StartBlank("A")
	turnA, err := f.ctrl.Send(context.Background(), "to A")
	require.NoError(t, err)
	streamA := f.provider.next(t)

	b := f.ctrl.StartBlank("B")
	turnB, err := f.ctrl.Send(context.Background(), "to B")
	require.NoError(t, err)
	streamB := f.provider.next(t)

	streamB.events <- streamEvent{fragment: "reply B"}
	close(streamB.events)
	streamA.events <- streamEvent{fragment: "reply A"}
	close(streamA.events)

	finalA, err := waitSettled(t, turnA)
	require.NoError(t, err)
	finalB, err := waitSettled(t, turnB)
	require.NoError(t, err)

	assert.Equal(t, a.ID, finalA.ID)
	assert.Equal(t, "reply A", finalA.Messages[1].Content)
	assert.Equal(t, b.ID, finalB.ID)
	assert.Equal(t, "reply B", finalB.Messages[1].Content)

	byID := map[string]prepc.Conversation{}
	for _, c := range f.store.last() {
		byID[c.ID] = c
	}
	assert.Equal(t, finalA, byID[a.ID])
	assert.Equal(t, finalB, byID[b.ID])
}

func TestCreateFromTemplate(t *testing.T) {
	tests := []struct {
		name    string
		tpl     catalog.Template
		roles   []prepc.Role
		visible int
	}{
		{
			name:    "with opening line",
			tpl:     practiceTemplate(),
			roles:   []prepc.Role{prepc.RoleSystem, prepc.RoleAssistant},
			visible: 1,
		},
		{
			name: "without opening line",
			tpl: catalog.Template{
				ID:           "distributed-systems",
				Category:     "system-design",
				Title:        "Distributed Systems",
				SystemPrompt: "You are a distributed systems interviewer.",
			},
			roles:   []prepc.Role{prepc.RoleSystem},
			visible: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, prepc.NewConversation("existing", fixedNow))
			conv := f.ctrl.CreateFromTemplate(tt.tpl)

			var roles []prepc.Role
			for _, m := range conv.Messages {
				roles = append(roles, m.Role)
			}
			assert.Equal(t, tt.roles, roles)
			assert.Equal(t, tt.tpl.SystemPrompt, conv.Messages[0].Content)
			if tt.tpl.InitialMessage != "" {
				assert.Equal(t, tt.tpl.InitialMessage, conv.Messages[1].Content)
				assert.Greater(t, conv.Messages[1].Timestamp, conv.Messages[0].Timestamp)
			}
			assert.Len(t, conv.VisibleMessages(), tt.visible)
			for _, m := range conv.VisibleMessages() {
				assert.NotEqual(t, prepc.RoleSystem, m.Role)
			}

			assert.Equal(t, tt.tpl.Title, conv.Title)
			assert.Equal(t, tt.tpl.Category, conv.PromptCategory)
			assert.Equal(t, tt.tpl.ID, conv.PromptID)
			assert.Equal(t, conv.ID, f.ctrl.CurrentID())

			list := f.ctrl.Conversations()
			require.Len(t, list, 2)
			assert.Equal(t, conv.ID, list[0].ID)
			assert.Equal(t, list, f.store.last())

			// No streaming call happens on this path
			assert.Empty(t, f.provider.histories)

			f.recorder.mu.Lock()
			defer f.recorder.mu.Unlock()
			require.Len(t, f.recorder.events, 1)
			assert.Equal(t, map[string]interface{}{"categoryId": tt.tpl.Category, "promptId": tt.tpl.ID}, f.recorder.events[0].Metadata)
		})
	}
}

func TestCreateFromTemplate_UniqueIDs(t *testing.T) {
	f := newFixture(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		conv := f.ctrl.CreateFromTemplate(practiceTemplate())
		assert.False(t, seen[conv.ID])
		seen[conv.ID] = true
	}
}

func TestStartBlank_DefaultTitle(t *testing.T) {
	f := newFixture(t)
	conv := f.ctrl.StartBlank("")
	assert.Equal(t, prepc.DefaultTitle, conv.Title)
	assert.Empty(t, conv.Messages)
}

func TestSelectAndDelete(t *testing.T) {
	f := newFixture(t)
	a := f.ctrl.StartBlank("A")
	b := f.ctrl.StartBlank("B")

	assert.ErrorIs(t, f.ctrl.Select("missing"), ErrConversationNotFound)
	assert.Equal(t, b.ID, f.ctrl.CurrentID())

	require.NoError(t, f.ctrl.Select(a.ID))
	require.NoError(t, f.ctrl.Delete(b.ID))
	assert.Equal(t, a.ID, f.ctrl.CurrentID())

	require.NoError(t, f.ctrl.Delete(a.ID))
	assert.Empty(t, f.ctrl.CurrentID())
	_, ok := f.ctrl.Current()
	assert.False(t, ok)
	assert.Empty(t, f.store.last())

	assert.ErrorIs(t, f.ctrl.Delete(a.ID), ErrConversationNotFound)
}

func TestImport_MergesNewConversationsOnly(t *testing.T) {
	existing := prepc.NewConversation("Existing", fixedNow)
	f := newFixture(t, existing)

	fresh := prepc.NewConversation("Fresh", fixedNow)
	clash := prepc.NewConversation("Clash", fixedNow)
	clash.ID = existing.ID

	added, err := f.ctrl.Import([]prepc.Conversation{clash, fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	list := f.ctrl.Conversations()
	require.Len(t, list, 2)
	assert.Equal(t, fresh.ID, list[0].ID)
	assert.Equal(t, "Existing", list[1].Title)
	assert.Equal(t, list, f.store.last())

	f.recorder.mu.Lock()
	assert.Equal(t, recordedEvent{Type: analytics.EventConversationsImported, Metadata: map[string]interface{}{"count": 1}}, f.recorder.events[0])
	f.recorder.mu.Unlock()

	saves := len(f.store.all())
	_, err = f.ctrl.Import([]prepc.Conversation{fresh})
	assert.ErrorIs(t, err, ErrNothingToImport)
	assert.Len(t, f.store.all(), saves)
}

func TestImportFrom_InvalidFileChangesNothing(t *testing.T) {
	existing := prepc.NewConversation("Existing", fixedNow)
	f := newFixture(t, existing)

	_, err := f.ctrl.ImportFrom(strings.NewReader(`[{"id":"x","title":"ok","messages":[]},{"id":"y"}]`))
	var validationErr *transfer.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, err, f.ctrl.Err())
	assert.Equal(t, []prepc.Conversation{existing}, f.ctrl.Conversations())
	assert.Empty(t, f.store.all())
}

func TestExportImportRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.ctrl.CreateFromTemplate(practiceTemplate())
	f.ctrl.StartBlank("Blank")

	var buf bytes.Buffer
	require.NoError(t, f.ctrl.Export(&buf))
	assert.Contains(t, f.recorder.types(), analytics.EventConversationsExported)

	restored := newFixture(t)
	added, err := restored.ctrl.ImportFrom(&buf)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Equal(t, f.ctrl.Conversations(), restored.ctrl.Conversations())
}

func TestResolve(t *testing.T) {
	a := prepc.NewConversation("A", fixedNow)
	a.ID = "abcd1111-0000-0000-0000-000000000000"
	b := prepc.NewConversation("B", fixedNow.Add(time.Minute))
	b.ID = "abcd2222-0000-0000-0000-000000000000"
	f := newFixture(t, a, b)

	got, err := f.ctrl.Resolve("abcd1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = f.ctrl.Resolve(b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	got, err = f.ctrl.Resolve(LatestAlias)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, err = f.ctrl.Resolve("abcd")
	var ambiguous *AmbiguousIDError
	require.ErrorAs(t, err, &ambiguous)
	assert.Len(t, ambiguous.Matches, 2)
	assert.Contains(t, err.Error(), "Multiple matches found")

	_, err = f.ctrl.Resolve("abc")
	assert.ErrorContains(t, err, "at least 4 characters")

	_, err = f.ctrl.Resolve("ffff")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	_, err = newFixture(t).ctrl.Resolve(LatestAlias)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestUpdateSettings(t *testing.T) {
	f := newFixture(t)

	err := f.ctrl.UpdateSettings(prepc.Settings{APIKey: "sk-new", Model: "gpt-4o-mini", Temperature: 5})
	require.Error(t, err)
	assert.Equal(t, "gpt-4o", f.ctrl.Settings().Model)

	want := prepc.Settings{APIKey: "sk-new", Model: "gpt-4o-mini", Temperature: 0}
	require.NoError(t, f.ctrl.UpdateSettings(want))
	assert.Equal(t, want, f.ctrl.Settings())
	assert.Equal(t, []prepc.Settings{want}, f.store.settings)

	f.ctrl.StartBlank("")
	_, err = f.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	close(f.provider.next(t).events)
	f.provider.mu.Lock()
	assert.Equal(t, want, f.provider.settings[0])
	f.provider.mu.Unlock()
}

func TestStoreFailuresAreSwallowed(t *testing.T) {
	f := newFixture(t)
	f.store.err = assert.AnError

	conv := f.ctrl.StartBlank("")
	turn, err := f.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	stream := f.provider.next(t)
	stream.events <- streamEvent{fragment: "ok"}
	close(stream.events)

	final, err := waitSettled(t, turn)
	require.NoError(t, err)
	got, ok := f.ctrl.Conversation(conv.ID)
	require.True(t, ok)
	assert.Equal(t, final, got)
	assert.NoError(t, f.ctrl.Err())
}

func TestObserversSeeIncrementalGrowth(t *testing.T) {
	f := newFixture(t)
	conv := f.ctrl.StartBlank("")

	turn, err := f.ctrl.Send(context.Background(), "count")
	require.NoError(t, err)
	stream := f.provider.next(t)
	for _, s := range []string{"1", "2", "3"} {
		stream.events <- streamEvent{fragment: s}
	}
	close(stream.events)
	_, err = waitSettled(t, turn)
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	var contents []string
	for _, u := range f.updates {
		if u.ConversationID != conv.ID {
			continue
		}
		last := u.Conversation.Messages[len(u.Conversation.Messages)-1]
		contents = append(contents, last.Content)
	}
	assert.Equal(t, []string{"", "1", "12", "123", "123"}, contents)
}

func TestSendTrimsContent(t *testing.T) {
	f := newFixture(t)
	f.ctrl.StartBlank("")

	turn, err := f.ctrl.Send(context.Background(), "  padded  \n")
	require.NoError(t, err)
	stream := f.provider.next(t)
	close(stream.events)
	final, err := waitSettled(t, turn)
	require.NoError(t, err)

	require.Len(t, final.Messages, 2)
	assert.Equal(t, "padded", final.Messages[0].Content)
	assert.Equal(t, "padded", f.provider.lastHistory()[0].Content)
}

func TestTitleKeptThroughTurns(t *testing.T) {
	f := newFixture(t)
	conv := f.ctrl.CreateFromTemplate(catalog.Template{
		ID:           "algo-practice",
		Category:     "algorithms",
		Title:        "Algorithms",
		SystemPrompt: "You are a coach.",
	})

	turn, err := f.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	stream := f.provider.next(t)
	stream.events <- streamEvent{fragment: "hello"}
	close(stream.events)
	final, err := waitSettled(t, turn)
	require.NoError(t, err)

	assert.Equal(t, "Algorithms", final.Title)
	got, ok := f.ctrl.Conversation(conv.ID)
	require.True(t, ok)
	assert.Equal(t, "Algorithms", got.Title)
	assert.Equal(t, "Algorithms", f.store.last()[0].Title)
}
