package session

import (
	"fmt"
	"strings"

	"github.com/longkey1/prepc/internal/prepc"
	"github.com/pkg/errors"
)

// LatestAlias selects the most recently active conversation
const LatestAlias = "latest"

// MinPrefixLength is the shortest ID prefix accepted by Resolve
const MinPrefixLength = 4

// AmbiguousIDError is returned when multiple conversations match a prefix
type AmbiguousIDError struct {
	Prefix  string
	Matches []prepc.Conversation
}

func (e *AmbiguousIDError) Error() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Ambiguous conversation ID %q. Multiple matches found:", e.Prefix))
	for _, match := range e.Matches {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s, %d messages)",
			match.ShortID(),
			match.Title,
			match.CreatedAt().Format("2006-01-02"),
			match.MessageCount()))
	}
	lines = append(lines, "")
	lines = append(lines, "Please use a longer prefix or run 'prepc conversations list'.")
	return strings.Join(lines, "\n")
}

// Resolve finds a conversation by full ID, unique ID prefix, or LatestAlias
func (c *Controller) Resolve(prefix string) (prepc.Conversation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prefix == LatestAlias {
		return c.latestLocked()
	}

	if i := c.indexOf(prefix); i >= 0 {
		return c.conversations[i].Clone(), nil
	}

	if len(prefix) < MinPrefixLength {
		return prepc.Conversation{}, errors.Errorf("conversation ID prefix must be at least %d characters (got %d)", MinPrefixLength, len(prefix))
	}

	var matches []prepc.Conversation
	for _, conv := range c.conversations {
		if strings.HasPrefix(conv.ID, prefix) {
			matches = append(matches, conv.Clone())
		}
	}

	if len(matches) == 0 {
		return prepc.Conversation{}, errors.Wrapf(ErrConversationNotFound, "%s", prefix)
	}
	if len(matches) > 1 {
		return prepc.Conversation{}, &AmbiguousIDError{
			Prefix:  prefix,
			Matches: matches,
		}
	}
	return matches[0], nil
}

func (c *Controller) latestLocked() (prepc.Conversation, error) {
	if len(c.conversations) == 0 {
		return prepc.Conversation{}, ErrConversationNotFound
	}
	latest := 0
	for i := range c.conversations {
		if c.conversations[i].LastTimestamp() > c.conversations[latest].LastTimestamp() {
			latest = i
		}
	}
	return c.conversations[latest].Clone(), nil
}
