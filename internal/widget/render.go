// ABOUTME: Pure render projection from widget state and options to a view model
// ABOUTME: Message bodies are rendered from Markdown to HTML with goldmark

package widget

import (
	"bytes"
	"html"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// View is everything a host needs to draw the widget
type View struct {
	Title        string
	Subtitle     string
	PrimaryColor string
	LogoURL      string
	Position     Position

	ShowLauncher bool
	ShowPanel    bool
	Minimized    bool

	Greeting       string
	Messages       []MessageView
	TypingVisible  bool
	HandedOff      bool
	ComposeBuffer  string
	SendEnabled    bool
	ConversationID string
}

// MessageView is one rendered message
type MessageView struct {
	ID       string
	Role     string
	Text     string // raw body, for hosts that do not draw HTML
	HTML     template.HTML
	SentAt   time.Time
	Delivery Delivery
	CanRetry bool
}

// Render projects state into a View. It has no side effects.
func Render(s State, o Options) View {
	v := View{
		Title:          o.Title,
		Subtitle:       o.Subtitle,
		PrimaryColor:   o.PrimaryColor,
		LogoURL:        o.LogoURL,
		Position:       o.Position,
		ShowLauncher:   s.Phase != PhaseExpanded,
		ShowPanel:      s.Phase == PhaseExpanded,
		Minimized:      s.IsMinimized(),
		TypingVisible:  s.IsAgentTyping,
		HandedOff:      s.HasHumanAgent,
		ComposeBuffer:  s.ComposeBuffer,
		SendEnabled:    !s.IsSending && strings.TrimSpace(s.ComposeBuffer) != "",
		ConversationID: s.ConversationID,
	}
	if len(s.Messages) == 0 {
		v.Greeting = o.Greeting
	}

	v.Messages = make([]MessageView, 0, len(s.Messages))
	for _, e := range s.Messages {
		v.Messages = append(v.Messages, MessageView{
			ID:       e.Message.ID,
			Role:     string(e.Role),
			Text:     e.Message.Body,
			HTML:     renderBody(e.Message.Body),
			SentAt:   e.Message.SentAt,
			Delivery: e.Delivery,
			CanRetry: e.Delivery == DeliveryUnsent && !s.IsSending,
		})
	}
	return v
}

// renderBody converts Markdown to HTML. Raw HTML in the body is omitted by
// goldmark's default renderer.
func renderBody(body string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		return template.HTML("<p>" + html.EscapeString(body) + "</p>")
	}
	return template.HTML(buf.String())
}
