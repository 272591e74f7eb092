// ABOUTME: Tests for the widget render projection and option validation
// ABOUTME: Covers visibility flags, Markdown rendering and configuration errors

package widget

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-desk/internal/store"
)

func testOptions() Options {
	return Options{
		Title:        "Fale conosco",
		Subtitle:     "Respondemos em minutos",
		PrimaryColor: "#0055ff",
		Position:     PositionBottomRight,
		Greeting:     "Olá! Como podemos ajudar?",
		AutoFocus:    true,
	}
}

func TestRender_Visibility(t *testing.T) {
	opts := testOptions()

	closed := Render(New("visitor-1"), opts)
	assert.True(t, closed.ShowLauncher)
	assert.False(t, closed.ShowPanel)

	s, _ := New("visitor-1").Open(true)
	open := Render(s, opts)
	assert.False(t, open.ShowLauncher)
	assert.True(t, open.ShowPanel)
	assert.Equal(t, "Fale conosco", open.Title)
	assert.Equal(t, PositionBottomRight, open.Position)

	s, _ = s.Minimize()
	minimized := Render(s, opts)
	assert.True(t, minimized.Minimized)
	assert.True(t, minimized.ShowLauncher)
	assert.False(t, minimized.ShowPanel)
}

func TestRender_GreetingOnlyWhenEmpty(t *testing.T) {
	opts := testOptions()
	s := New("visitor-1").AttachConversation("conv-1")
	assert.Equal(t, opts.Greeting, Render(s, opts).Greeting)

	s = s.Receive(store.Message{ID: "b1", ConversationID: "conv-1", SenderID: store.SenderBot, Body: "oi", SentAt: time.Now()})
	assert.Empty(t, Render(s, opts).Greeting)
}

func TestRender_Markdown(t *testing.T) {
	s := New("visitor-1").AttachConversation("conv-1")
	s = s.Receive(store.Message{ID: "a1", ConversationID: "conv-1", SenderID: "agent-1", Body: "Veja o **edital**", SentAt: time.Now()})
	s = s.Receive(store.Message{ID: "a2", ConversationID: "conv-1", SenderID: "agent-1", Body: "<script>alert(1)</script>", SentAt: time.Now()})

	v := Render(s, testOptions())
	require.Len(t, v.Messages, 2)
	assert.Contains(t, string(v.Messages[0].HTML), "<strong>edital</strong>")
	assert.Equal(t, "agent", v.Messages[0].Role)
	assert.NotContains(t, string(v.Messages[1].HTML), "<script>")
	assert.True(t, v.HandedOff)
}

func TestRender_SendAndRetryFlags(t *testing.T) {
	s := New("visitor-1").Type("hi")
	assert.True(t, Render(s, testOptions()).SendEnabled)

	s, _, _ = s.Submit("m1", time.Now())
	v := Render(s, testOptions())
	assert.False(t, v.SendEnabled)
	assert.False(t, v.Messages[0].CanRetry)

	s = s.SetDelivery("m1", DeliveryUnsent)
	v = Render(s, testOptions())
	assert.True(t, v.Messages[0].CanRetry)
	assert.Equal(t, DeliveryUnsent, v.Messages[0].Delivery)
}

func TestRender_TypingIndicator(t *testing.T) {
	s := New("visitor-1").SetAgentTyping(true)
	assert.True(t, Render(s, testOptions()).TypingVisible)
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, testOptions().Validate())

	left := testOptions()
	left.Position = PositionBottomLeft
	left.PrimaryColor = "#abc"
	assert.NoError(t, left.Validate())

	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"missing title", func(o *Options) { o.Title = "" }},
		{"missing position", func(o *Options) { o.Position = "" }},
		{"bad position", func(o *Options) { o.Position = "top-center" }},
		{"bad color", func(o *Options) { o.PrimaryColor = "blue" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := testOptions()
			tt.mutate(&o)
			assert.ErrorIs(t, o.Validate(), ErrConfiguration)
		})
	}
}
