// ABOUTME: Widget state value and its pure transitions
// ABOUTME: Every transition returns a new State plus the side effects the caller must run

package widget

import (
	"slices"
	"strings"
	"time"

	"github.com/2389/coven-desk/internal/conversation"
	"github.com/2389/coven-desk/internal/store"
)

// Phase is the visibility state of the widget
type Phase int

const (
	PhaseClosed Phase = iota
	PhaseExpanded
	PhaseMinimized
)

func (p Phase) String() string {
	switch p {
	case PhaseClosed:
		return "closed"
	case PhaseExpanded:
		return "expanded"
	case PhaseMinimized:
		return "minimized"
	default:
		return "unknown"
	}
}

// Effect is a side effect requested by a transition
type Effect int

const (
	// EffectRequestFocus asks the host to focus the compose input.
	EffectRequestFocus Effect = iota
	// EffectCancelAutoReply asks the orchestrator to drop any pending bot reply.
	EffectCancelAutoReply
)

func (e Effect) String() string {
	switch e {
	case EffectRequestFocus:
		return "request_focus"
	case EffectCancelAutoReply:
		return "cancel_auto_reply"
	default:
		return "unknown"
	}
}

// Delivery tracks a locally sent message through persistence
type Delivery string

const (
	DeliveryPending Delivery = "pending"
	DeliverySent    Delivery = "sent"
	DeliveryUnsent  Delivery = "unsent"
)

// Entry is a message as displayed by one widget
type Entry struct {
	Message  store.Message
	Role     store.SenderRole
	Delivery Delivery
}

// State is the ephemeral UI state of one widget instance. It is a value:
// transitions never modify the receiver.
type State struct {
	Phase          Phase
	VisitorID      string
	ConversationID string
	ComposeBuffer  string
	IsSending      bool
	IsAgentTyping  bool
	HasHumanAgent  bool
	Messages       []Entry

	focusRequested bool
}

// New returns the initial state for a visitor: closed and empty.
func New(visitorID string) State {
	return State{Phase: PhaseClosed, VisitorID: visitorID}
}

func (s State) IsOpen() bool      { return s.Phase != PhaseClosed }
func (s State) IsMinimized() bool { return s.Phase == PhaseMinimized }

// Open expands a closed widget.
func (s State) Open(autoFocus bool) (State, []Effect) {
	if s.Phase != PhaseClosed {
		return s, nil
	}
	return s.expand(autoFocus)
}

// Minimize collapses an expanded widget.
func (s State) Minimize() (State, []Effect) {
	if s.Phase != PhaseExpanded {
		return s, nil
	}
	s.Phase = PhaseMinimized
	return s, nil
}

// Restore expands a minimized widget.
func (s State) Restore(autoFocus bool) (State, []Effect) {
	if s.Phase != PhaseMinimized {
		return s, nil
	}
	return s.expand(autoFocus)
}

// Close hides an open widget and cancels any pending auto-reply.
func (s State) Close() (State, []Effect) {
	if s.Phase == PhaseClosed {
		return s, nil
	}
	s.Phase = PhaseClosed
	s.IsAgentTyping = false
	return s, []Effect{EffectCancelAutoReply}
}

// expand enters PhaseExpanded; focus is requested on the first entry only.
func (s State) expand(autoFocus bool) (State, []Effect) {
	s.Phase = PhaseExpanded
	if s.focusRequested || !autoFocus {
		return s, nil
	}
	s.focusRequested = true
	return s, []Effect{EffectRequestFocus}
}

// Type replaces the compose buffer.
func (s State) Type(text string) State {
	s.ComposeBuffer = text
	return s
}

// Submit appends the compose buffer as a pending visitor message with the
// given id and clears the buffer. It is a no-op (ok false) when the buffer
// is blank or a send is already in flight.
func (s State) Submit(id string, now time.Time) (State, store.Message, bool) {
	body := strings.TrimSpace(s.ComposeBuffer)
	if body == "" || s.IsSending {
		return s, store.Message{}, false
	}

	msg := store.Message{
		ID:             id,
		ConversationID: s.ConversationID,
		SenderID:       s.VisitorID,
		Body:           body,
		SentAt:         now,
	}
	s.Messages = insertOrdered(slices.Clone(s.Messages), Entry{
		Message:  msg,
		Role:     store.RoleVisitor,
		Delivery: DeliveryPending,
	})
	s.ComposeBuffer = ""
	s.IsSending = true
	return s, msg, true
}

// Resubmit moves an unsent message back to pending so it can be sent again.
// Messages that are pending or sent, and any message while a send is in
// flight, are refused.
func (s State) Resubmit(id string) (State, store.Message, bool) {
	i := s.indexOf(id)
	if i < 0 || s.IsSending || s.Messages[i].Delivery != DeliveryUnsent {
		return s, store.Message{}, false
	}
	s.Messages = slices.Clone(s.Messages)
	s.Messages[i].Delivery = DeliveryPending
	if s.Messages[i].Message.ConversationID == "" {
		s.Messages[i].Message.ConversationID = s.ConversationID
	}
	s.IsSending = true
	return s, s.Messages[i].Message, true
}

// SetDelivery updates the delivery status of a local message and ends the
// in-flight send once it is no longer pending.
func (s State) SetDelivery(id string, d Delivery) State {
	i := s.indexOf(id)
	if i < 0 {
		return s
	}
	s.Messages = slices.Clone(s.Messages)
	s.Messages[i].Delivery = d
	if d != DeliveryPending {
		s.IsSending = false
	}
	return s
}

// AttachConversation binds the state to a conversation and stamps the
// conversation id on local messages that were appended before it existed.
func (s State) AttachConversation(conversationID string) State {
	s.ConversationID = conversationID
	s.Messages = slices.Clone(s.Messages)
	for i := range s.Messages {
		if s.Messages[i].Message.ConversationID == "" {
			s.Messages[i].Message.ConversationID = conversationID
		}
	}
	return s
}

// SwitchConversation starts over on another conversation. The hand-off flag
// belongs to the conversation and is reset with it.
func (s State) SwitchConversation(conversationID string) State {
	s.ConversationID = conversationID
	s.Messages = nil
	s.HasHumanAgent = false
	s.IsAgentTyping = false
	s.IsSending = false
	return s
}

// Detach unbinds the state from a conversation that ended remotely. The
// displayed messages stay; those not yet persisted lose their conversation id
// so the next AttachConversation claims them.
func (s State) Detach() State {
	s.ConversationID = ""
	s.HasHumanAgent = false
	s.IsAgentTyping = false
	s.Messages = slices.Clone(s.Messages)
	for i := range s.Messages {
		if s.Messages[i].Delivery != DeliverySent {
			s.Messages[i].Message.ConversationID = ""
		}
	}
	return s
}

// LoadHistory replaces the message list with persisted history of the
// current conversation, keeping local messages the history does not know yet.
func (s State) LoadHistory(history []store.Message) State {
	msgs := make([]Entry, 0, len(history)+len(s.Messages))
	known := make(map[string]bool, len(history))
	for _, m := range history {
		if known[m.ID] {
			continue
		}
		known[m.ID] = true
		msgs = insertOrdered(msgs, Entry{Message: m, Role: m.Role(s.VisitorID), Delivery: DeliverySent})
	}
	for _, e := range s.Messages {
		if !known[e.Message.ID] {
			msgs = insertOrdered(msgs, e)
		}
	}
	s.Messages = msgs
	s.HasHumanAgent = s.HasHumanAgent || conversation.HasHumanAgent(s.VisitorID, history)
	return s
}

// Receive merges a message that arrived from the store or the real-time
// channel. A message already shown under the same id is reconciled in place.
func (s State) Receive(msg store.Message) State {
	if s.ConversationID != "" && msg.ConversationID != s.ConversationID {
		return s
	}
	if i := s.indexOf(msg.ID); i >= 0 {
		s.Messages = slices.Clone(s.Messages)
		s.Messages[i].Delivery = DeliverySent
		return s
	}

	role := msg.Role(s.VisitorID)
	s.Messages = insertOrdered(slices.Clone(s.Messages), Entry{Message: msg, Role: role, Delivery: DeliverySent})
	if role == store.RoleAgent {
		s.HasHumanAgent = true
	}
	return s
}

// SetAgentTyping toggles the typing indicator.
func (s State) SetAgentTyping(typing bool) State {
	s.IsAgentTyping = typing
	return s
}

// Lookup returns the entry with the given message id.
func (s State) Lookup(id string) (Entry, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return Entry{}, false
	}
	return s.Messages[i], true
}

// History returns the displayed messages in order.
func (s State) History() []store.Message {
	out := make([]store.Message, len(s.Messages))
	for i, e := range s.Messages {
		out[i] = e.Message
	}
	return out
}

func (s State) indexOf(id string) int {
	return slices.IndexFunc(s.Messages, func(e Entry) bool { return e.Message.ID == id })
}

// insertOrdered places e after every entry sent at or before it.
func insertOrdered(msgs []Entry, e Entry) []Entry {
	i := len(msgs)
	for i > 0 && msgs[i-1].Message.SentAt.After(e.Message.SentAt) {
		i--
	}
	return slices.Insert(msgs, i, e)
}
