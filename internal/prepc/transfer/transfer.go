// Package transfer exports the conversation list to a JSON file and imports
// it back, merging by conversation ID.
package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/pkg/errors"
)

// ValidationError is returned when an import file is malformed.
// Imports are all-or-nothing: nothing is merged when it is returned.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return "invalid file format or corrupted data: " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// FileName returns the default export file name for the given day
func FileName(now time.Time) string {
	return fmt.Sprintf("prepc-backup-%s.json", now.Format("2006-01-02"))
}

// Write serializes conversations as an indented JSON array
func Write(w io.Writer, conversations []prepc.Conversation) error {
	if conversations == nil {
		conversations = []prepc.Conversation{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(conversations); err != nil {
		return errors.Wrap(err, "failed to export conversations")
	}
	return nil
}

// requiredFields mirrors the checks applied to every imported element
type requiredFields struct {
	ID       *string          `json:"id"`
	Title    *string          `json:"title"`
	Messages *json.RawMessage `json:"messages"`
}

// Read parses an export file. It fails with *ValidationError when the data
// is not a JSON array or any element lacks an id, a title or a messages array.
func Read(r io.Reader) ([]prepc.Conversation, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ValidationError{Reason: "expected an array of conversations", Err: err}
		}
		return nil, &ValidationError{Reason: "malformed JSON", Err: err}
	}
	if elements == nil {
		return nil, &ValidationError{Reason: "expected an array of conversations"}
	}

	conversations := make([]prepc.Conversation, 0, len(elements))
	for i, raw := range elements {
		var fields requiredFields
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("conversation %d: invalid structure", i), Err: err}
		}
		if fields.ID == nil || *fields.ID == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("conversation %d: missing id", i)}
		}
		if fields.Title == nil || *fields.Title == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("conversation %d: missing title", i)}
		}
		if fields.Messages == nil || !bytes.HasPrefix(bytes.TrimSpace(*fields.Messages), []byte("[")) {
			return nil, &ValidationError{Reason: fmt.Sprintf("conversation %d: messages must be an array", i)}
		}

		var conv prepc.Conversation
		if err := json.Unmarshal(raw, &conv); err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("conversation %d: invalid structure", i), Err: err}
		}
		conversations = append(conversations, conv)
	}
	return conversations, nil
}

// Merge prepends the imported conversations whose IDs are not already present.
// Duplicate IDs within the imported set keep their first occurrence.
// It returns the merged list and the number of conversations added.
func Merge(existing, imported []prepc.Conversation) ([]prepc.Conversation, int) {
	seen := make(map[string]bool, len(existing)+len(imported))
	for _, c := range existing {
		seen[c.ID] = true
	}

	var added []prepc.Conversation
	for _, c := range imported {
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		added = append(added, c)
	}

	merged := make([]prepc.Conversation, 0, len(added)+len(existing))
	merged = append(merged, added...)
	merged = append(merged, existing...)
	return merged, len(added)
}
