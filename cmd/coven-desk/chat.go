// ABOUTME: Terminal widget for coven-desk driven by the auto-response orchestrator
// ABOUTME: Prints rendered views as chat lines and maps slash commands to widget actions

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/coven-desk/internal/autoreply"
	"github.com/2389/coven-desk/internal/conversation"
	"github.com/2389/coven-desk/internal/identity"
	"github.com/2389/coven-desk/internal/localstate"
	"github.com/2389/coven-desk/internal/realtime"
	"github.com/2389/coven-desk/internal/routing"
	"github.com/2389/coven-desk/internal/store"
	"github.com/2389/coven-desk/internal/widget"
)

const chatHelp = `Commands:
  /retry               resend unsent messages
  /new                 start a new conversation
  /close               close the widget (cancels a pending bot reply)
  /open                reopen the widget
  /min                 minimize the widget
  /name NAME [EMAIL]   save your name and email
  /quit                leave`

func runChat(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr so they do not interleave with the conversation
	logger := setupLogger(cfg.Logging, os.Stderr)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	kv, err := localstate.OpenSQLite(cfg.LocalState.Path)
	if err != nil {
		return fmt.Errorf("opening local state: %w", err)
	}
	defer kv.Close()

	transport, closeTransport, err := openTransport(ctx, cfg.Realtime, logger)
	if err != nil {
		return err
	}
	defer closeTransport()

	ids := identity.NewManager(kv, logger)
	visitor := ids.GetOrCreate(ctx)
	sessions := conversation.NewManager(realtime.NewPublishingStore(db, transport, logger), kv, "widget", logger)
	syncer := realtime.NewSyncClient(transport, cfg.Realtime.ResubscribeBackoff, logger)

	term := newTerminal(os.Stdout)
	orch, err := autoreply.New(autoreply.Config{
		TypingDelay: cfg.AutoReply.TypingDelay,
		Widget:      cfg.Widget,
		OnRender:    term.render,
	}, visitor, sessions, syncer, routing.NewRouter(cfg.Routing.Departments), logger)
	if err != nil {
		return err
	}

	term.header(cfg.Widget, visitor)
	if err := orch.Start(ctx); err != nil {
		term.notice("não foi possível carregar a conversa anterior")
	}
	defer orch.Stop()

	if err := orch.Open(); err != nil {
		return err
	}

	lines := readLines(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleChatLine(ctx, orch, ids, term, strings.TrimSpace(line))
			if err != nil {
				return err
			}
			if quit {
				return nil
			}
		}
	}
}

// handleChatLine runs one input line. It reports whether the user asked to quit.
func handleChatLine(ctx context.Context, orch *autoreply.Orchestrator, ids *identity.Manager, term *terminal, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		_, err := orch.SendText(ctx, line)
		if conversation.IsTransient(err) {
			term.notice("mensagem não enviada, use /retry")
			return false, nil
		}
		return false, err
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		term.notice(chatHelp)
	case "/open":
		if err := orch.Open(); err != nil {
			return false, err
		}
		return false, orch.Restore()
	case "/min":
		return false, orch.Minimize()
	case "/close":
		term.notice("widget fechado, use /open para voltar")
		return false, orch.Close()
	case "/new":
		if err := orch.NewConversation(ctx); err != nil {
			return false, err
		}
		term.notice("nova conversa")
		return false, orch.Open()
	case "/retry":
		return false, retryUnsent(ctx, orch, term)
	case "/name":
		if len(fields) < 2 {
			term.notice("uso: /name NOME [EMAIL]")
			return false, nil
		}
		email := ""
		if len(fields) > 2 {
			email = fields[len(fields)-1]
			fields = fields[:len(fields)-1]
		}
		if err := ids.SetProfile(ctx, strings.Join(fields[1:], " "), email); err != nil {
			term.notice("não foi possível salvar o perfil")
		}
	default:
		term.notice("comando desconhecido, use /help")
	}
	return false, nil
}

func retryUnsent(ctx context.Context, orch *autoreply.Orchestrator, term *terminal) error {
	state, err := orch.Snapshot()
	if err != nil {
		return err
	}
	retried := 0
	for _, e := range state.Messages {
		if e.Delivery != widget.DeliveryUnsent {
			continue
		}
		err := orch.Retry(ctx, e.Message.ID)
		switch {
		case err == nil:
			retried++
		case conversation.IsTransient(err):
			term.notice("ainda sem conexão, tente novamente")
			return nil
		case errors.Is(err, autoreply.ErrNotRetryable):
		default:
			return err
		}
	}
	if retried == 0 {
		term.notice("nada para reenviar")
	}
	return nil
}

// readLines feeds stdin lines to a channel until EOF.
func readLines(r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

// terminal draws widget views as an append-only transcript.
type terminal struct {
	mu  sync.Mutex
	out io.Writer

	printed   map[string]widget.Delivery
	greeted   bool
	typing    bool
	handedOff bool
	convID    string
}

func newTerminal(out io.Writer) *terminal {
	return &terminal{out: out, printed: make(map[string]widget.Delivery)}
}

func (t *terminal) header(opts widget.Options, visitor identity.Visitor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	color.New(color.FgCyan, color.Bold).Fprintln(t.out, opts.Title)
	if opts.Subtitle != "" {
		color.New(color.FgHiBlack).Fprintln(t.out, opts.Subtitle)
	}
	color.New(color.FgHiBlack).Fprintf(t.out, "visitante %s, /help para comandos\n\n", visitor.ID)
}

func (t *terminal) notice(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	color.New(color.FgHiBlack).Fprintln(t.out, text)
}

// render prints what changed since the previous view.
func (t *terminal) render(v widget.View) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v.ConversationID != t.convID {
		t.convID = v.ConversationID
		if v.ConversationID == "" {
			t.greeted = false
			t.handedOff = false
		}
	}

	if v.Greeting != "" && v.ShowPanel && !t.greeted {
		t.greeted = true
		t.line(string(store.RoleBot), v.Greeting)
	}

	for _, m := range v.Messages {
		prev, seen := t.printed[m.ID]
		t.printed[m.ID] = m.Delivery
		if !seen {
			// The visitor already sees what they typed; history arrives sent
			if m.Role != string(store.RoleVisitor) || m.Delivery == widget.DeliverySent {
				t.line(m.Role, m.Text)
			}
		}
		if m.Delivery == widget.DeliveryUnsent && prev != widget.DeliveryUnsent {
			color.New(color.FgRed).Fprintf(t.out, "  ✗ não enviada: %s\n", m.Text)
		}
	}

	if v.HandedOff && !t.handedOff {
		t.handedOff = true
		color.New(color.FgGreen).Fprintln(t.out, "  um atendente entrou na conversa")
	}

	if v.TypingVisible && !t.typing {
		color.New(color.FgHiBlack).Fprintln(t.out, "  digitando...")
	}
	t.typing = v.TypingVisible
}

func (t *terminal) line(role, text string) {
	var label *color.Color
	switch role {
	case string(store.RoleBot):
		label = color.New(color.FgCyan)
	case string(store.RoleAgent):
		label = color.New(color.FgGreen, color.Bold)
	default:
		label = color.New(color.FgYellow)
	}
	label.Fprintf(t.out, "%-9s", role+":")
	fmt.Fprintln(t.out, text)
}
