// Package store persists the client's state as whole-value JSON blobs
// addressed by key. Several interchangeable backends implement KV; the
// Repository layers typed access for conversations and settings on top.
package store

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Record keys
const (
	KeyConversations = "conversations"
	KeySettings      = "settings"
	KeyAnalytics     = "analytics"
)

// Supported drivers
const (
	DriverFile   = "file"
	DriverBolt   = "bolt"
	DriverPebble = "pebble"
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ErrNotFound is returned by Get when no value is stored under the key
var ErrNotFound = errors.New("key not found")

// KV is a durable key to blob store. Every Put fully overwrites the value.
type KV interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	Close() error
}

// StorageError describes a failed read or write of a persisted record
type StorageError struct {
	Op  string // "read", "write", "decode", "encode" or "delete"
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Drivers returns the names accepted by Open
func Drivers() []string {
	return []string{DriverFile, DriverBolt, DriverPebble, DriverSQLite, DriverMemory}
}

// Open creates the KV backend for driver rooted at path.
// path is a directory for file and pebble, a database file for bolt and sqlite,
// and ignored for memory.
func Open(driver, path string) (KV, error) {
	var kv KV
	var err error

	switch strings.ToLower(driver) {
	case DriverFile, "":
		kv, err = NewFileStore(path)
	case DriverBolt:
		kv, err = NewBoltStore(path)
	case DriverPebble:
		kv, err = NewPebbleStore(path)
	case DriverSQLite:
		kv, err = NewSQLiteStore(path)
	case DriverMemory:
		kv = NewMemoryStore()
	default:
		return nil, errors.Errorf("unknown storage driver %q (supported: %s)", driver, strings.Join(Drivers(), ", "))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s store", driver)
	}
	return kv, nil
}
