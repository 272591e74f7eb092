// ABOUTME: Tests for widget state transitions
// ABOUTME: Covers phases, focus and cancel effects, send guards and message reconciliation

package widget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-desk/internal/store"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestPhaseTransitions(t *testing.T) {
	s := New("visitor-1")
	assert.False(t, s.IsOpen())

	s, _ = s.Open(false)
	assert.Equal(t, PhaseExpanded, s.Phase)
	assert.True(t, s.IsOpen())

	s, _ = s.Minimize()
	assert.Equal(t, PhaseMinimized, s.Phase)
	assert.True(t, s.IsMinimized())

	s, _ = s.Restore(false)
	assert.Equal(t, PhaseExpanded, s.Phase)

	s, effects := s.Close()
	assert.Equal(t, PhaseClosed, s.Phase)
	assert.Equal(t, []Effect{EffectCancelAutoReply}, effects)
}

func TestInvalidTransitionsAreNoOps(t *testing.T) {
	closed := New("visitor-1")

	s, effects := closed.Minimize()
	assert.Equal(t, closed, s)
	assert.Empty(t, effects)

	s, effects = closed.Restore(true)
	assert.Equal(t, closed, s)
	assert.Empty(t, effects)

	s, effects = closed.Close()
	assert.Equal(t, closed, s)
	assert.Empty(t, effects)

	expanded, _ := closed.Open(false)
	s, effects = expanded.Open(true)
	assert.Equal(t, expanded, s)
	assert.Empty(t, effects)

	s, _ = expanded.Restore(true)
	assert.Equal(t, expanded, s)
}

func TestMinimizedCanClose(t *testing.T) {
	s, _ := New("visitor-1").Open(false)
	s, _ = s.Minimize()

	s, effects := s.Close()
	assert.Equal(t, PhaseClosed, s.Phase)
	assert.Equal(t, []Effect{EffectCancelAutoReply}, effects)
}

func TestFocusRequestedOnFirstExpandOnly(t *testing.T) {
	s, effects := New("visitor-1").Open(true)
	assert.Equal(t, []Effect{EffectRequestFocus}, effects)

	s, _ = s.Minimize()
	s, effects = s.Restore(true)
	assert.Empty(t, effects)

	s, _ = s.Close()
	_, effects = s.Open(true)
	assert.Empty(t, effects)
}

func TestFocusNotRequestedWithoutAutoFocus(t *testing.T) {
	_, effects := New("visitor-1").Open(false)
	assert.Empty(t, effects)
}

func TestTransitionsDoNotModifyReceiver(t *testing.T) {
	s := New("visitor-1").Type("hello")
	s1, _, ok := s.Submit("m1", t0)
	require.True(t, ok)

	assert.Empty(t, s.Messages)
	assert.Equal(t, "hello", s.ComposeBuffer)

	s2 := s1.SetDelivery("m1", DeliveryUnsent)
	assert.Equal(t, DeliveryPending, s1.Messages[0].Delivery)
	assert.Equal(t, DeliveryUnsent, s2.Messages[0].Delivery)
}

func TestSubmit(t *testing.T) {
	s := New("visitor-1").AttachConversation("conv-1").Type("  Oi, bom dia  ")

	s, msg, ok := s.Submit("m1", t0)
	require.True(t, ok)
	assert.Equal(t, "Oi, bom dia", msg.Body)
	assert.Equal(t, "visitor-1", msg.SenderID)
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.Empty(t, s.ComposeBuffer)
	assert.True(t, s.IsSending)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, DeliveryPending, s.Messages[0].Delivery)
	assert.Equal(t, store.RoleVisitor, s.Messages[0].Role)
}

func TestSubmit_BlankIsNoOp(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		s := New("visitor-1").Type(text)
		next, _, ok := s.Submit("m1", t0)
		assert.False(t, ok)
		assert.Equal(t, s, next)
	}
}

func TestSubmit_WhileSendingIsNoOp(t *testing.T) {
	s, _, ok := New("visitor-1").Type("first").Submit("m1", t0)
	require.True(t, ok)

	s = s.Type("second")
	next, _, ok := s.Submit("m2", t0.Add(time.Second))
	assert.False(t, ok)
	assert.Len(t, next.Messages, 1)
	assert.Equal(t, "second", next.ComposeBuffer, "buffer kept when the send is refused")
}

func TestSetDelivery_EndsSending(t *testing.T) {
	s, _, _ := New("visitor-1").Type("hi").Submit("m1", t0)

	s = s.SetDelivery("m1", DeliverySent)
	assert.False(t, s.IsSending)
	assert.Equal(t, DeliverySent, s.Messages[0].Delivery)
}

func TestResubmit_OnlyUnsent(t *testing.T) {
	s, _, _ := New("visitor-1").Type("hi").Submit("m1", t0)

	_, _, ok := s.Resubmit("m1")
	assert.False(t, ok, "pending message is not resubmitted")

	sent := s.SetDelivery("m1", DeliverySent)
	_, _, ok = sent.Resubmit("m1")
	assert.False(t, ok, "sent message is not resubmitted")

	unsent := s.SetDelivery("m1", DeliveryUnsent).AttachConversation("conv-1")
	again, msg, ok := unsent.Resubmit("m1")
	require.True(t, ok)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "conv-1", msg.ConversationID)
	assert.True(t, again.IsSending)
	assert.Equal(t, DeliveryPending, again.Messages[0].Delivery)

	_, _, ok = unsent.Resubmit("missing")
	assert.False(t, ok)
}

func TestReceive_ReconcilesEcho(t *testing.T) {
	s, msg, _ := New("visitor-1").AttachConversation("conv-1").Type("hi").Submit("m1", t0)

	s = s.Receive(msg)
	require.Len(t, s.Messages, 1)
	assert.Equal(t, DeliverySent, s.Messages[0].Delivery)
}

func TestReceive_OrdersBySentAt(t *testing.T) {
	s := New("visitor-1").AttachConversation("conv-1")
	s = s.Receive(store.Message{ID: "b", ConversationID: "conv-1", SenderID: "bot", SentAt: t0.Add(2 * time.Second)})
	s = s.Receive(store.Message{ID: "a", ConversationID: "conv-1", SenderID: "bot", SentAt: t0})
	s = s.Receive(store.Message{ID: "c", ConversationID: "conv-1", SenderID: "bot", SentAt: t0.Add(2 * time.Second)})

	var ids []string
	for _, e := range s.Messages {
		ids = append(ids, e.Message.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestReceive_IgnoresOtherConversation(t *testing.T) {
	s := New("visitor-1").AttachConversation("conv-1")
	s = s.Receive(store.Message{ID: "x", ConversationID: "conv-2", SenderID: "agent-1", SentAt: t0})

	assert.Empty(t, s.Messages)
	assert.False(t, s.HasHumanAgent)
}

func TestReceive_AgentHandsOff(t *testing.T) {
	s := New("visitor-1").AttachConversation("conv-1")
	s = s.Receive(store.Message{ID: "b1", ConversationID: "conv-1", SenderID: store.SenderBot, SentAt: t0})
	s = s.Receive(store.Message{ID: "s1", ConversationID: "conv-1", SenderID: store.SenderSystem, SentAt: t0})
	assert.False(t, s.HasHumanAgent)

	s = s.Receive(store.Message{ID: "a1", ConversationID: "conv-1", SenderID: "agent-7", SentAt: t0})
	assert.True(t, s.HasHumanAgent)

	s = s.Receive(store.Message{ID: "b2", ConversationID: "conv-1", SenderID: store.SenderBot, SentAt: t0})
	assert.True(t, s.HasHumanAgent, "hand-off never reverts")
}

func TestLoadHistory(t *testing.T) {
	history := []store.Message{
		{ID: "m1", ConversationID: "conv-1", SenderID: "visitor-1", Body: "oi", SentAt: t0},
		{ID: "m2", ConversationID: "conv-1", SenderID: store.SenderBot, Body: "olá", SentAt: t0.Add(time.Second)},
		{ID: "m3", ConversationID: "conv-1", SenderID: "agent-1", Body: "posso ajudar?", SentAt: t0.Add(2 * time.Second)},
	}

	s := New("visitor-1").AttachConversation("conv-1").LoadHistory(history)
	require.Len(t, s.Messages, 3)
	assert.Equal(t, history, s.History())
	assert.True(t, s.HasHumanAgent)
	assert.Equal(t, store.RoleAgent, s.Messages[2].Role)

	again := s.LoadHistory(history)
	assert.Len(t, again.Messages, 3, "reloading the same history does not duplicate")
}

func TestLoadHistory_KeepsLocalPending(t *testing.T) {
	s, _, _ := New("visitor-1").AttachConversation("conv-1").Type("new").Submit("local", t0.Add(time.Minute))

	s = s.LoadHistory([]store.Message{
		{ID: "m1", ConversationID: "conv-1", SenderID: store.SenderBot, SentAt: t0},
	})
	require.Len(t, s.Messages, 2)
	assert.Equal(t, "m1", s.Messages[0].Message.ID)
	assert.Equal(t, "local", s.Messages[1].Message.ID)
	assert.False(t, s.HasHumanAgent)
}

func TestSwitchConversation_Resets(t *testing.T) {
	s := New("visitor-1").AttachConversation("conv-1")
	s = s.Receive(store.Message{ID: "a1", ConversationID: "conv-1", SenderID: "agent-1", SentAt: t0})
	s = s.SetAgentTyping(true)

	s = s.SwitchConversation("conv-2")
	assert.Equal(t, "conv-2", s.ConversationID)
	assert.Empty(t, s.Messages)
	assert.False(t, s.HasHumanAgent)
	assert.False(t, s.IsAgentTyping)
}

func TestDetach_KeepsMessagesAndReleasesUnsent(t *testing.T) {
	s := New("visitor-1").AttachConversation("conv-1")
	s = s.Receive(store.Message{ID: "a1", ConversationID: "conv-1", SenderID: "agent-1", SentAt: t0})
	s, _, _ = s.Type("still there?").Submit("local", t0.Add(time.Minute))
	require.True(t, s.HasHumanAgent)

	s = s.Detach()
	assert.Empty(t, s.ConversationID)
	assert.False(t, s.HasHumanAgent)
	assert.True(t, s.IsSending)
	require.Len(t, s.Messages, 2)

	s = s.AttachConversation("conv-2")
	agent, _ := s.Lookup("a1")
	assert.Equal(t, "conv-1", agent.Message.ConversationID)
	local, _ := s.Lookup("local")
	assert.Equal(t, "conv-2", local.Message.ConversationID)
}

func TestAttachConversation_StampsLocalMessages(t *testing.T) {
	s, msg, _ := New("visitor-1").Type("hi").Submit("m1", t0)
	assert.Empty(t, msg.ConversationID)

	s = s.AttachConversation("conv-1")
	e, ok := s.Lookup("m1")
	require.True(t, ok)
	assert.Equal(t, "conv-1", e.Message.ConversationID)
}

func TestCloseClearsTyping(t *testing.T) {
	s, _ := New("visitor-1").Open(false)
	s = s.SetAgentTyping(true)

	s, _ = s.Close()
	assert.False(t, s.IsAgentTyping)
}
