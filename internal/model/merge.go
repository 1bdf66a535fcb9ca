// ABOUTME: Same-role message merging for providers requiring strict alternation
// ABOUTME: Applied at the gateway boundary only; persisted history is never rewritten

package model

import "strings"

// MergeAlternating collapses consecutive messages sharing a role into one
// message, joining contents with a blank line. Some providers reject
// histories where two user (or two assistant) messages are adjacent; the
// engine's persisted history keeps every contribution separate and this
// merge happens only on the way out.
func MergeAlternating(messages []ChatMessage) []ChatMessage {
	if len(messages) < 2 {
		return messages
	}

	merged := make([]ChatMessage, 0, len(messages))
	for _, msg := range messages {
		if n := len(merged); n > 0 && merged[n-1].Role == msg.Role {
			merged[n-1].Content = merged[n-1].Content + "\n\n" + msg.Content
			continue
		}
		merged = append(merged, msg)
	}
	return merged
}

// FormatSpeaker prefixes content with the speaker's name so participants
// can tell each other apart inside a merged user-role history.
func FormatSpeaker(name, content string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return content
	}
	return name + ": " + content
}
