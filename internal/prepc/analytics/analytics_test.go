package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/longkey1/prepc/internal/prepc/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func newTestTracker(t *testing.T) (*Tracker, *store.Repository, *fakeClock) {
	t.Helper()
	repo := store.NewRepository(store.NewMemoryStore())
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(repo, WithClock(clock.Now)), repo, clock
}

func TestTracker_RecordUpdatesStats(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	tracker.Record(EventAppLoaded, nil)
	tracker.Record(EventConversationCreated, map[string]interface{}{"categoryId": "algorithms", "promptId": "algo-practice"})
	tracker.Record(EventConversationCreated, map[string]interface{}{"categoryId": "algorithms", "promptId": "algo-practice"})
	tracker.Record(EventConversationCreated, map[string]interface{}{"categoryId": "behavioral", "promptId": "star-method"})
	tracker.Record(EventConversationCreated, nil)
	tracker.Record(EventMessageSent, nil)
	tracker.Record(EventMessageSent, nil)
	tracker.Record(EventConversationsExported, map[string]interface{}{"count": 3})
	tracker.Record(EventConversationsImported, map[string]interface{}{"count": 1})

	summary := tracker.Summary()
	assert.Equal(t, 9, summary.TotalEvents)
	assert.Equal(t, 4, summary.Stats.ConversationsCreated)
	assert.Equal(t, 2, summary.Stats.MessagesTotal)
	assert.Equal(t, 1, summary.Stats.ExportCount)
	assert.Equal(t, 1, summary.Stats.ImportCount)
	assert.Equal(t, map[string]int{"algo-practice": 2, "star-method": 1}, summary.Stats.PromptsUsed)
	assert.Equal(t, []string{"algorithms", "behavioral"}, summary.Stats.CategoriesExplored)
	assert.Equal(t, []PromptCount{{"algo-practice", 2}, {"star-method", 1}}, summary.MostUsedPrompts)
}

func TestTracker_KeepsLastEvents(t *testing.T) {
	tracker, _, clock := newTestTracker(t)

	for i := 0; i < MaxEvents+5; i++ {
		clock.t = clock.t.Add(time.Millisecond)
		tracker.Record(EventMessageSent, map[string]interface{}{"n": i})
	}

	summary := tracker.Summary()
	assert.Equal(t, MaxEvents, summary.TotalEvents)
	assert.Equal(t, MaxEvents+5, summary.Stats.MessagesTotal)

	var buf bytes.Buffer
	require.NoError(t, tracker.Export(&buf))
	var out struct {
		AllEvents []Event `json:"allEvents"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.AllEvents, MaxEvents)
	// The five oldest are gone
	assert.EqualValues(t, 5, out.AllEvents[0].Metadata["n"])
}

func TestTracker_TopFivePrompts(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	for i := 0; i < 7; i++ {
		for j := 0; j <= i; j++ {
			tracker.Record(EventConversationCreated, map[string]interface{}{"promptId": fmt.Sprintf("p%d", i)})
		}
	}

	top := tracker.Summary().MostUsedPrompts
	require.Len(t, top, 5)
	assert.Equal(t, "p6", top[0].PromptID)
	assert.Equal(t, 7, top[0].Count)
	assert.Equal(t, "p2", top[4].PromptID)
}

func TestTracker_RecentActivity(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	start := clock.t

	tracker.Record(EventAppLoaded, nil)
	clock.t = start.Add(4 * 24 * time.Hour)
	tracker.Record(EventAppLoaded, nil)
	clock.t = start.Add(10 * 24 * time.Hour)
	tracker.Record(EventAppLoaded, nil)

	summary := tracker.Summary()
	assert.Equal(t, 1, summary.RecentActivity.Last24h)
	assert.Equal(t, 2, summary.RecentActivity.LastWeek)
	assert.Equal(t, 10*24*time.Hour, summary.SessionDuration)
}

func TestTracker_PersistsAcrossInstances(t *testing.T) {
	tracker, repo, _ := newTestTracker(t)
	tracker.Record(EventMessageSent, nil)

	reopened := NewTracker(repo)
	tracker.Record(EventMessageSent, nil)
	assert.Equal(t, 2, reopened.Summary().Stats.MessagesTotal)
}

func TestTracker_CorruptedRecordStartsFresh(t *testing.T) {
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Put(store.KeyAnalytics, []byte("not json")))

	tracker := NewTracker(store.NewRepository(kv))
	tracker.Record(EventAppLoaded, nil)
	assert.Equal(t, 1, tracker.Summary().TotalEvents)
}

func TestTracker_Clear(t *testing.T) {
	tracker, repo, _ := newTestTracker(t)
	tracker.Record(EventAppLoaded, nil)

	require.NoError(t, tracker.Clear())
	_, err := repo.KV().Get(store.KeyAnalytics)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 0, tracker.Summary().TotalEvents)
}

func TestTracker_Export(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	tracker.Record(EventConversationCreated, map[string]interface{}{"categoryId": "frontend", "promptId": "react-expert"})

	var buf bytes.Buffer
	require.NoError(t, tracker.Export(&buf))

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "2025-03-01T12:00:00Z", out["exportDate"])
	assert.Contains(t, out, "stats")
	assert.Contains(t, out, "mostUsedPrompts")
	assert.Contains(t, out, "recentActivity")
	assert.Len(t, out["allEvents"], 1)
}

func TestBus_DeliversInOrder(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	bus, err := NewBus(tracker, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		bus.Record(EventMessageSent, map[string]interface{}{"n": i})
	}
	require.NoError(t, bus.Close())

	var buf bytes.Buffer
	require.NoError(t, tracker.Export(&buf))
	var out struct {
		AllEvents []Event `json:"allEvents"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out.AllEvents, 20)
	for i, e := range out.AllEvents {
		assert.EqualValues(t, i, e.Metadata["n"])
	}
}

func TestBus_RecordAfterCloseIsDropped(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	bus, err := NewBus(tracker, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	bus.Record(EventAppLoaded, nil)
	assert.Equal(t, 0, tracker.Summary().TotalEvents)
}

func TestBus_RecordDoesNotWaitForTracker(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	bus, err := NewBus(tracker, zerolog.Nop())
	require.NoError(t, err)

	// Hold the tracker so the subscriber cannot append.
	tracker.mu.Lock()
	recorded := make(chan struct{})
	go func() {
		defer close(recorded)
		for i := 0; i < 10; i++ {
			bus.Record(EventMessageSent, map[string]interface{}{"n": i})
		}
	}()
	select {
	case <-recorded:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on the tracker")
	}
	tracker.mu.Unlock()

	require.NoError(t, bus.Close())
	assert.Equal(t, 10, tracker.Summary().TotalEvents)
}
