// ABOUTME: Human hand-off detection over a conversation's message history
// ABOUTME: Any message from someone other than the visitor, bot or system is an agent

package conversation

import "github.com/2389/coven-desk/internal/store"

// HasHumanAgent reports whether any message was sent by someone other than
// the visitor, the bot, or the system.
func HasHumanAgent(visitorID string, msgs []store.Message) bool {
	for _, msg := range msgs {
		if msg.Role(visitorID) == store.RoleAgent {
			return true
		}
	}
	return false
}
