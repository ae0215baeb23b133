package store

import (
	"encoding/json"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StoredSettings is the persisted settings record.
// Temperature is a pointer so that a saved 0 is distinguishable from a
// record that never carried a temperature.
type StoredSettings struct {
	APIKey      string   `json:"apiKey"`
	Model       string   `json:"model"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Repository provides typed, whole-value access to the persisted records
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// KV returns the underlying store
func (r *Repository) KV() KV {
	return r.kv
}

// LoadConversations returns the persisted conversation list.
// Read and decode failures are logged and degrade to an empty list.
func (r *Repository) LoadConversations() []prepc.Conversation {
	var conversations []prepc.Conversation
	if err := r.read(KeyConversations, &conversations); err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Msg("Failed to load conversations")
		}
		return []prepc.Conversation{}
	}
	if conversations == nil {
		conversations = []prepc.Conversation{}
	}
	return conversations
}

// SaveConversations overwrites the persisted conversation list
func (r *Repository) SaveConversations(conversations []prepc.Conversation) error {
	if conversations == nil {
		conversations = []prepc.Conversation{}
	}
	return r.write(KeyConversations, conversations)
}

// LoadSettings returns the persisted settings, or nil when none are stored
// or the record is unreadable
func (r *Repository) LoadSettings() *StoredSettings {
	var settings StoredSettings
	if err := r.read(KeySettings, &settings); err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Msg("Failed to load settings")
		}
		return nil
	}
	return &settings
}

// SaveSettings overwrites the persisted settings record
func (r *Repository) SaveSettings(settings prepc.Settings) error {
	temperature := settings.Temperature
	return r.write(KeySettings, StoredSettings{
		APIKey:      settings.APIKey,
		Model:       settings.Model,
		Temperature: &temperature,
	})
}

// ReadJSON decodes the record stored under key into v
func (r *Repository) ReadJSON(key string, v interface{}) error {
	return r.read(key, v)
}

// WriteJSON encodes v and overwrites the record stored under key
func (r *Repository) WriteJSON(key string, v interface{}) error {
	return r.write(key, v)
}

// Delete removes the record stored under key
func (r *Repository) Delete(key string) error {
	if err := r.kv.Delete(key); err != nil {
		return &StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (r *Repository) read(key string, v interface{}) error {
	data, err := r.kv.Get(key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return &StorageError{Op: "read", Key: key, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &StorageError{Op: "decode", Key: key, Err: err}
	}
	return nil
}

func (r *Repository) write(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := r.kv.Put(key, data); err != nil {
		return &StorageError{Op: "write", Key: key, Err: err}
	}
	return nil
}
