// Package analytics keeps a local, privacy-first usage log. Nothing leaves
// the machine unless the user exports it.
package analytics

import (
	"encoding/json"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/longkey1/prepc/internal/prepc/store"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Event types
const (
	EventAppLoaded             = "app_loaded"
	EventConversationCreated   = "conversation_created"
	EventMessageSent           = "message_sent"
	EventConversationsExported = "conversations_exported"
	EventConversationsImported = "conversations_imported"
)

// MaxEvents is the number of events retained; older events are dropped first
const MaxEvents = 1000

// Event is one entry of the usage log
type Event struct {
	Type      string                 `json:"type"`
	Timestamp int64                  `json:"timestamp"` // Unix milliseconds
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Stats are counters maintained incrementally as events are recorded
type Stats struct {
	ConversationsCreated int            `json:"conversationsCreated"`
	MessagesTotal        int            `json:"messagesTotal"`
	PromptsUsed          map[string]int `json:"promptsUsed"`
	CategoriesExplored   []string       `json:"categoriesExplored"` // Set semantics, sorted
	ExportCount          int            `json:"exportCount"`
	ImportCount          int            `json:"importCount"`
}

// Data is the persisted analytics record
type Data struct {
	SessionStart int64   `json:"sessionStart"`
	Events       []Event `json:"events"`
	Stats        Stats   `json:"stats"`
}

func newData(now time.Time) *Data {
	return &Data{
		SessionStart: now.UnixMilli(),
		Events:       []Event{},
		Stats: Stats{
			PromptsUsed:        map[string]int{},
			CategoriesExplored: []string{},
		},
	}
}

// Tracker records events into the analytics record of a store.
// Persistence is best-effort: failures are logged and never returned.
type Tracker struct {
	mu   sync.Mutex
	repo *store.Repository
	now  func() time.Time
	data *Data
}

type TrackerOption func(*Tracker)

// WithClock overrides the time source
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates a tracker backed by repo
func NewTracker(repo *store.Repository, options ...TrackerOption) *Tracker {
	t := &Tracker{
		repo: repo,
		now:  time.Now,
	}
	for _, o := range options {
		o(t)
	}
	return t
}

// load returns the in-memory record, reading it from the store on first use.
// Callers must hold t.mu.
func (t *Tracker) load() *Data {
	if t.data != nil {
		return t.data
	}
	var data Data
	if err := t.repo.ReadJSON(store.KeyAnalytics, &data); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Error().Err(err).Msg("Failed to load analytics")
		}
		t.data = newData(t.now())
		return t.data
	}
	if data.Events == nil {
		data.Events = []Event{}
	}
	if data.Stats.PromptsUsed == nil {
		data.Stats.PromptsUsed = map[string]int{}
	}
	if data.Stats.CategoriesExplored == nil {
		data.Stats.CategoriesExplored = []string{}
	}
	t.data = &data
	return t.data
}

func (t *Tracker) save() {
	if err := t.repo.WriteJSON(store.KeyAnalytics, t.data); err != nil {
		log.Error().Err(err).Msg("Failed to save analytics")
	}
}

// Record appends an event stamped with the current time
func (t *Tracker) Record(eventType string, metadata map[string]interface{}) {
	t.Append(Event{
		Type:      eventType,
		Timestamp: t.now().UnixMilli(),
		Metadata:  metadata,
	})
}

// Append adds an already stamped event and updates the counters for its type
func (t *Tracker) Append(event Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	data := t.load()
	data.Events = append(data.Events, event)

	metadata := event.Metadata
	switch event.Type {
	case EventConversationCreated:
		data.Stats.ConversationsCreated++
		if promptID, ok := metadata["promptId"].(string); ok && promptID != "" {
			data.Stats.PromptsUsed[promptID]++
		}
		if categoryID, ok := metadata["categoryId"].(string); ok && categoryID != "" {
			data.Stats.CategoriesExplored = addToSet(data.Stats.CategoriesExplored, categoryID)
		}
	case EventMessageSent:
		data.Stats.MessagesTotal++
	case EventConversationsExported:
		data.Stats.ExportCount++
	case EventConversationsImported:
		data.Stats.ImportCount++
	}

	if len(data.Events) > MaxEvents {
		data.Events = append([]Event(nil), data.Events[len(data.Events)-MaxEvents:]...)
	}

	t.save()
}

func addToSet(set []string, v string) []string {
	i := sort.SearchStrings(set, v)
	if i < len(set) && set[i] == v {
		return set
	}
	set = append(set, "")
	copy(set[i+1:], set[i:])
	set[i] = v
	return set
}

// PromptCount is a template ID with its usage count
type PromptCount struct {
	PromptID string `json:"promptId"`
	Count    int    `json:"count"`
}

// Activity counts events in recent windows
type Activity struct {
	Last24h  int `json:"last24h"`
	LastWeek int `json:"lastWeek"`
}

// Summary is the derived view shown to the user
type Summary struct {
	SessionDuration time.Duration `json:"sessionDuration"`
	TotalEvents     int           `json:"totalEvents"`
	Stats           Stats         `json:"stats"`
	MostUsedPrompts []PromptCount `json:"mostUsedPrompts"`
	RecentActivity  Activity      `json:"recentActivity"`
}

// Summary computes usage statistics relative to the current time
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.summary(t.now())
}

func (t *Tracker) summary(now time.Time) Summary {
	data := t.load()

	prompts := make([]PromptCount, 0, len(data.Stats.PromptsUsed))
	for id, count := range data.Stats.PromptsUsed {
		prompts = append(prompts, PromptCount{PromptID: id, Count: count})
	}
	sort.Slice(prompts, func(i, j int) bool {
		if prompts[i].Count != prompts[j].Count {
			return prompts[i].Count > prompts[j].Count
		}
		return prompts[i].PromptID < prompts[j].PromptID
	})
	if len(prompts) > 5 {
		prompts = prompts[:5]
	}

	dayAgo := now.Add(-24 * time.Hour).UnixMilli()
	weekAgo := now.Add(-7 * 24 * time.Hour).UnixMilli()
	var activity Activity
	for _, e := range data.Events {
		if e.Timestamp > dayAgo {
			activity.Last24h++
		}
		if e.Timestamp > weekAgo {
			activity.LastWeek++
		}
	}

	stats := data.Stats
	stats.PromptsUsed = make(map[string]int, len(data.Stats.PromptsUsed))
	for k, v := range data.Stats.PromptsUsed {
		stats.PromptsUsed[k] = v
	}
	stats.CategoriesExplored = append([]string(nil), data.Stats.CategoriesExplored...)

	return Summary{
		SessionDuration: now.Sub(time.UnixMilli(data.SessionStart)),
		TotalEvents:     len(data.Events),
		Stats:           stats,
		MostUsedPrompts: prompts,
		RecentActivity:  activity,
	}
}

// Export writes the summary and the full event log as indented JSON
func (t *Tracker) Export(w io.Writer) error {
	t.mu.Lock()
	now := t.now()
	summary := t.summary(now)
	events := append([]Event(nil), t.data.Events...)
	t.mu.Unlock()

	out := struct {
		ExportDate string `json:"exportDate"`
		Summary
		AllEvents []Event `json:"allEvents"`
	}{
		ExportDate: now.UTC().Format(time.RFC3339),
		Summary:    summary,
		AllEvents:  events,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return errors.Wrap(err, "failed to export analytics")
	}
	return nil
}

// Clear deletes the analytics record
func (t *Tracker) Clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data = nil
	return t.repo.Delete(store.KeyAnalytics)
}
