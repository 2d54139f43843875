package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "familytree"

// Topics builds topic names under a common prefix.
//
//	topics := mqtt.NewTopics("familytree")
//	topics.Event("auth", "login")   // familytree/events/auth/login
//	topics.SystemStatus()           // familytree/system/status
type Topics struct {
	prefix string
}

// NewTopics returns a builder for prefix. Surrounding slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root segment.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

// Event returns the topic for one domain event.
//
// Example: familytree/events/family/family_join
func (t Topics) Event(category, action string) string {
	return fmt.Sprintf("%s/events/%s/%s", t.Prefix(), category, action)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: familytree/system/status
func (t Topics) SystemStatus() string {
	return t.Prefix() + "/system/status"
}

// AllEvents returns a pattern matching every event in one category,
// for consumers.
//
// Pattern: familytree/events/auth/+
func (t Topics) AllEvents(category string) string {
	return fmt.Sprintf("%s/events/%s/+", t.Prefix(), category)
}
