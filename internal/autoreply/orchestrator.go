// ABOUTME: Auto-response orchestrator driving one widget instance
// ABOUTME: A single loop owns the widget state; create and persist run outside it

package autoreply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-desk/internal/classify"
	"github.com/2389/coven-desk/internal/identity"
	"github.com/2389/coven-desk/internal/routing"
	"github.com/2389/coven-desk/internal/store"
	"github.com/2389/coven-desk/internal/widget"
)

// DefaultTypingDelay is how long the bot "types" before its reply lands.
const DefaultTypingDelay = 1500 * time.Millisecond

var (
	ErrNotStarted    = errors.New("orchestrator not started")
	ErrStopped       = errors.New("orchestrator stopped")
	ErrNothingToSend = errors.New("compose buffer is empty")
	ErrSendInFlight  = errors.New("a message is already being sent")
	ErrNotRetryable  = errors.New("message is not unsent")
)

// Sessions is the conversation session surface the orchestrator drives.
type Sessions interface {
	StoredID(ctx context.Context) (string, bool)
	Resume(ctx context.Context, id string) (*store.Conversation, []store.Message, error)
	Create(ctx context.Context, visitor identity.Visitor, departmentOverride string) (*store.Conversation, error)
	Persist(ctx context.Context, msg *store.Message) error
	AssignDepartment(ctx context.Context, conversationID, departmentID string) error
	Forget(ctx context.Context) error
}

// Syncer delivers messages written by others to this widget.
type Syncer interface {
	Subscribe(ctx context.Context, conversationID, visitorID string) error
	Unsubscribe()
	Events() <-chan store.Message
}

// Config configures one orchestrator.
type Config struct {
	TypingDelay time.Duration
	Widget      widget.Options

	// OnRender receives the projected view after every transition. It runs
	// on the orchestrator loop and must not call back into the Orchestrator.
	OnRender func(widget.View)

	// OnFocus runs when the widget asks the host to focus the input.
	OnFocus func()
}

type pendingReply struct {
	token          uint64
	conversationID string
	result         classify.Result
	timer          *time.Timer
}

// Orchestrator ties identity, session, sync, classification and routing
// together for one widget instance. Its methods are safe for concurrent use.
type Orchestrator struct {
	cfg      Config
	visitor  identity.Visitor
	sessions Sessions
	sync     Syncer
	router   *routing.Router
	logger   *slog.Logger
	classify func(string) classify.Result

	cmds  chan func()
	fired chan uint64

	started  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
	stopOnce sync.Once

	// Owned by the loop goroutine
	state      widget.State
	department string
	pending    *pendingReply
	nextToken  uint64
}

// New validates the widget options and builds an orchestrator. Call Start
// before anything else. Pass nil logger for default.
func New(cfg Config, visitor identity.Visitor, sessions Sessions, syncer Syncer, router *routing.Router, logger *slog.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "autoreply", "visitor_id", visitor.ID)

	if err := cfg.Widget.Validate(); err != nil {
		logger.Error("widget not started", "error", err)
		return nil, err
	}
	if cfg.TypingDelay <= 0 {
		cfg.TypingDelay = DefaultTypingDelay
	}
	if router == nil {
		router = routing.NewRouter(nil)
	}

	return &Orchestrator{
		cfg:      cfg,
		visitor:  visitor,
		sessions: sessions,
		sync:     syncer,
		router:   router,
		logger:   logger,
		classify: classify.Classify,
		cmds:     make(chan func()),
		fired:    make(chan uint64),
		done:     make(chan struct{}),
		state:    widget.New(visitor.ID),
	}, nil
}

// Start runs the loop until ctx is cancelled or Stop is called, then resumes
// the stored conversation. Call it once, before any other method. A resume
// error is retryable with Resume; the widget stays usable either way.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.started.Load() {
		return nil
	}
	o.ctx, o.cancel = context.WithCancel(ctx)
	o.started.Store(true)
	go o.run()
	return o.Resume(ctx)
}

// Stop ends the loop, cancels any pending reply and drops the subscription.
func (o *Orchestrator) Stop() {
	if !o.started.Load() {
		return
	}
	o.stopOnce.Do(func() {
		o.cancel()
		<-o.done
		o.inflight.Wait()
		o.sync.Unsubscribe()
		o.logger.Debug("orchestrator stopped")
	})
}

func (o *Orchestrator) run() {
	defer close(o.done)
	events := o.sync.Events()

	for {
		select {
		case <-o.ctx.Done():
			o.cancelReply()
			return
		case fn := <-o.cmds:
			fn()
		case msg := <-events:
			o.onInbound(msg)
			o.render()
		case token := <-o.fired:
			o.onFired(token)
			o.render()
		}
	}
}

func (o *Orchestrator) render() {
	if o.cfg.OnRender != nil {
		o.cfg.OnRender(widget.Render(o.state, o.cfg.Widget))
	}
}

// do runs fn on the loop goroutine, renders, and waits for both.
func (o *Orchestrator) do(fn func()) error {
	if !o.started.Load() {
		return ErrNotStarted
	}
	finished := make(chan struct{})
	cmd := func() {
		fn()
		o.render()
		close(finished)
	}
	select {
	case o.cmds <- cmd:
	case <-o.done:
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

// Snapshot returns a copy of the current widget state.
func (o *Orchestrator) Snapshot() (widget.State, error) {
	var s widget.State
	err := o.do(func() { s = o.state })
	return s, err
}

// View returns the current render projection.
func (o *Orchestrator) View() (widget.View, error) {
	var v widget.View
	err := o.do(func() { v = widget.Render(o.state, o.cfg.Widget) })
	return v, err
}

func (o *Orchestrator) Open() error {
	return o.do(func() { o.apply(o.state.Open(o.cfg.Widget.AutoFocus)) })
}

func (o *Orchestrator) Minimize() error {
	return o.do(func() { o.apply(o.state.Minimize()) })
}

func (o *Orchestrator) Restore() error {
	return o.do(func() { o.apply(o.state.Restore(o.cfg.Widget.AutoFocus)) })
}

// Close hides the widget and cancels a pending auto-reply before it fires.
func (o *Orchestrator) Close() error {
	return o.do(func() { o.apply(o.state.Close()) })
}

func (o *Orchestrator) Type(text string) error {
	return o.do(func() { o.state = o.state.Type(text) })
}

func (o *Orchestrator) apply(next widget.State, effects []widget.Effect) {
	o.state = next
	for _, e := range effects {
		switch e {
		case widget.EffectCancelAutoReply:
			o.cancelReply()
		case widget.EffectRequestFocus:
			if o.cfg.OnFocus != nil {
				o.cfg.OnFocus()
			}
		}
	}
}

// Resume loads the stored conversation's history and subscribes to it. An
// id that was minted locally but never created is left for the next send,
// and a closed conversation is dropped so the next send starts a new one.
func (o *Orchestrator) Resume(ctx context.Context) error {
	id, ok := o.sessions.StoredID(ctx)
	if !ok {
		return nil
	}

	conv, history, err := o.sessions.Resume(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		o.logger.Debug("stored conversation not created yet", "conversation_id", id)
		return nil
	}
	if errors.Is(err, store.ErrConversationClosed) {
		o.logger.Info("stored conversation was closed", "conversation_id", id)
		return nil
	}
	if err != nil {
		o.logger.Warn("resume failed", "conversation_id", id, "error", err)
		return err
	}

	if err := o.do(func() {
		o.state = o.state.AttachConversation(conv.ID).LoadHistory(history)
		o.department = conv.DepartmentID
	}); err != nil {
		return err
	}
	o.subscribe(conv.ID)
	o.logger.Info("conversation resumed", "conversation_id", conv.ID, "messages", len(history))
	return nil
}

// NewConversation forgets the current conversation so the next message
// starts a fresh one. A pending auto-reply is cancelled.
func (o *Orchestrator) NewConversation(ctx context.Context) error {
	if err := o.sessions.Forget(ctx); err != nil {
		return fmt.Errorf("forgetting conversation: %w", err)
	}
	if err := o.do(func() {
		o.cancelReply()
		o.state = o.state.SwitchConversation("")
		o.department = ""
	}); err != nil {
		return err
	}
	o.sync.Unsubscribe()
	return nil
}

// Send submits the compose buffer. It returns the local message id; on a
// create or persist failure the message is left unsent and the returned
// error is a *conversation.TransientError.
func (o *Orchestrator) Send(ctx context.Context) (string, error) {
	var msg store.Message
	var refused error
	if err := o.do(func() {
		next, m, ok := o.state.Submit(uuid.NewString(), time.Now())
		if !ok {
			refused = ErrNothingToSend
			if o.state.IsSending {
				refused = ErrSendInFlight
			}
			return
		}
		o.state = next
		msg = m
	}); err != nil {
		return "", err
	}
	if refused != nil {
		return "", refused
	}
	return msg.ID, o.deliver(ctx, msg)
}

// SendText types text and sends it.
func (o *Orchestrator) SendText(ctx context.Context, text string) (string, error) {
	if err := o.Type(text); err != nil {
		return "", err
	}
	return o.Send(ctx)
}

// Retry re-sends an unsent message under its original id. Pending and sent
// messages are refused with ErrNotRetryable.
func (o *Orchestrator) Retry(ctx context.Context, id string) error {
	var msg store.Message
	var refused bool
	if err := o.do(func() {
		next, m, ok := o.state.Resubmit(id)
		if !ok {
			refused = true
			return
		}
		o.state = next
		msg = m
	}); err != nil {
		return err
	}
	if refused {
		return ErrNotRetryable
	}
	return o.deliver(ctx, msg)
}

// deliver ensures the conversation exists and persists msg. It runs on the
// caller's goroutine. A conversation found closed is left once and the
// message goes to a new one.
func (o *Orchestrator) deliver(ctx context.Context, msg store.Message) error {
	for restarted := false; ; restarted = true {
		err := o.persist(ctx, &msg)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConversationClosed) || restarted {
			o.markUnsent(msg.ID, err)
			return err
		}
		if err := o.leaveClosed(ctx, msg.ConversationID); err != nil {
			o.markUnsent(msg.ID, err)
			return err
		}
		msg.ConversationID = ""
	}

	return o.do(func() {
		o.state = o.state.SetDelivery(msg.ID, widget.DeliverySent)
		o.afterPersist(msg)
	})
}

func (o *Orchestrator) persist(ctx context.Context, msg *store.Message) error {
	if msg.ConversationID == "" {
		id, err := o.ensureConversation(ctx)
		msg.ConversationID = id
		if err != nil {
			return err
		}
	}
	return o.sessions.Persist(ctx, msg)
}

// ensureConversation creates the conversation, or finds the stored one, and
// loads its history before the first message goes in. A human agent already
// in the history must suppress the auto-reply to that message.
func (o *Orchestrator) ensureConversation(ctx context.Context) (string, error) {
	created, err := o.sessions.Create(ctx, o.visitor, o.cfg.Widget.DepartmentID)
	if err != nil {
		return "", err
	}
	conv, history, err := o.sessions.Resume(ctx, created.ID)
	if err != nil {
		return created.ID, err
	}
	if err := o.do(func() {
		if o.state.ConversationID == "" {
			o.state = o.state.AttachConversation(conv.ID).LoadHistory(history)
			o.department = conv.DepartmentID
		}
	}); err != nil {
		return "", err
	}
	o.subscribe(conv.ID)
	return conv.ID, nil
}

// leaveClosed forgets a conversation that was closed remotely and detaches
// the widget from it. Displayed messages stay on screen.
func (o *Orchestrator) leaveClosed(ctx context.Context, id string) error {
	o.logger.Info("conversation closed, starting a new one", "conversation_id", id)
	if stored, ok := o.sessions.StoredID(ctx); ok && stored == id {
		if err := o.sessions.Forget(ctx); err != nil {
			return fmt.Errorf("forgetting conversation: %w", err)
		}
	}
	detached := false
	if err := o.do(func() {
		if o.state.ConversationID == id {
			o.cancelReply()
			o.state = o.state.Detach()
			o.department = ""
			detached = true
		}
	}); err != nil {
		return err
	}
	if detached {
		o.sync.Unsubscribe()
	}
	return nil
}

func (o *Orchestrator) markUnsent(id string, cause error) {
	o.logger.Warn("message not sent", "message_id", id, "error", cause)
	_ = o.do(func() { o.state = o.state.SetDelivery(id, widget.DeliveryUnsent) })
}

func (o *Orchestrator) subscribe(conversationID string) {
	if err := o.sync.Subscribe(o.ctx, conversationID, o.visitor.ID); err != nil {
		o.logger.Debug("subscription pending", "conversation_id", conversationID, "error", err)
	}
}

// afterPersist classifies a delivered visitor message and schedules the
// bot reply. Once a human agent has joined nothing is classified.
func (o *Orchestrator) afterPersist(msg store.Message) {
	if o.state.HasHumanAgent {
		o.logger.Debug("human agent present, no auto-reply", "message_id", msg.ID)
		return
	}
	if msg.ConversationID != o.state.ConversationID {
		return
	}

	result := o.classify(msg.Body)
	o.logger.Debug("message classified",
		"message_id", msg.ID,
		"category", result.Category,
		"requires_human", result.RequiresHuman)

	// A newer message replaces the pending reply: one reply per burst
	o.cancelReply()
	o.nextToken++
	token := o.nextToken
	o.pending = &pendingReply{
		token:          token,
		conversationID: msg.ConversationID,
		result:         result,
		timer: time.AfterFunc(o.cfg.TypingDelay, func() {
			select {
			case o.fired <- token:
			case <-o.done:
			}
		}),
	}
	o.state = o.state.SetAgentTyping(true)
}

func (o *Orchestrator) cancelReply() {
	if o.pending == nil {
		return
	}
	o.pending.timer.Stop()
	o.logger.Debug("auto-reply cancelled", "conversation_id", o.pending.conversationID)
	o.pending = nil
	o.state = o.state.SetAgentTyping(false)
}

func (o *Orchestrator) onFired(token uint64) {
	p := o.pending
	if p == nil || p.token != token {
		return
	}
	o.pending = nil

	if o.state.HasHumanAgent || p.conversationID != o.state.ConversationID {
		o.state = o.state.SetAgentTyping(false)
		return
	}

	department := ""
	if p.result.RequiresHuman {
		override := o.cfg.Widget.DepartmentID
		if o.department != "" {
			override = o.department
		}
		department = o.router.Route(p.result.Category, override)
	}
	current := o.department

	reply := store.Message{
		ID:             uuid.NewString(),
		ConversationID: p.conversationID,
		SenderID:       store.SenderBot,
		Body:           CanonicalReply(p.result.Category, department),
		SentAt:         time.Now(),
	}
	o.inflight.Go(func() {
		o.sendReply(reply, department, current)
	})
}

// sendReply persists the bot reply and records an escalation route.
func (o *Orchestrator) sendReply(reply store.Message, department, current string) {
	if err := o.sessions.Persist(o.ctx, &reply); err != nil {
		o.logger.Warn("auto-reply not persisted", "conversation_id", reply.ConversationID, "error", err)
		_ = o.do(func() {
			if o.pending == nil {
				o.state = o.state.SetAgentTyping(false)
			}
		})
		return
	}

	routed := department != "" && department != current
	if routed {
		if err := o.sessions.AssignDepartment(o.ctx, reply.ConversationID, department); err != nil {
			o.logger.Warn("department not assigned",
				"conversation_id", reply.ConversationID,
				"department_id", department,
				"error", err)
			routed = false
		}
	}

	_ = o.do(func() {
		o.state = o.state.Receive(reply)
		if o.pending == nil {
			o.state = o.state.SetAgentTyping(false)
		}
		if routed {
			o.department = department
		}
	})
}

func (o *Orchestrator) onInbound(msg store.Message) {
	if o.state.ConversationID == "" || msg.ConversationID != o.state.ConversationID {
		return
	}
	handedOff := o.state.HasHumanAgent
	o.state = o.state.Receive(msg)

	if !handedOff && o.state.HasHumanAgent {
		o.logger.Info("conversation handed off to agent",
			"conversation_id", msg.ConversationID,
			"agent_id", msg.SenderID)
		o.cancelReply()
	}
}
