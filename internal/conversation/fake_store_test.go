// ABOUTME: In-memory SessionStore fake shared by conversation tests
// ABOUTME: Supports injected failures and a gate to hold CreateConversation open

package conversation

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/2389/coven-desk/internal/store"
)

type fakeStore struct {
	mu            sync.Mutex
	conversations map[string]*store.Conversation
	messages      map[string][]*store.Message

	createCalls atomic.Int32
	createGate  chan struct{} // when non-nil, CreateConversation waits on it
	failCreate  error
	failList    error
	failSave    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*store.Conversation),
		messages:      make(map[string][]*store.Message),
	}
}

func (f *fakeStore) CreateConversation(ctx context.Context, conv *store.Conversation) error {
	f.createCalls.Add(1)
	if f.createGate != nil {
		<-f.createGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return f.failCreate
	}
	c := *conv
	f.conversations[conv.ID] = &c
	return nil
}

func (f *fakeStore) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) AssignDepartment(ctx context.Context, id, departmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.DepartmentID = departmentID
	return nil
}

func (f *fakeStore) SaveMessage(ctx context.Context, msg *store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave != nil {
		return f.failSave
	}
	if c, ok := f.conversations[msg.ConversationID]; ok && c.Status == store.StatusClosed {
		return store.ErrConversationClosed
	}
	for _, m := range f.messages[msg.ConversationID] {
		if m.ID == msg.ID {
			return store.ErrDuplicateMessage
		}
	}
	m := *msg
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], &m)
	return nil
}

func (f *fakeStore) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList != nil {
		return nil, f.failList
	}
	out := append([]*store.Message(nil), f.messages[conversationID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (f *fakeStore) close(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[id].Status = store.StatusClosed
}
