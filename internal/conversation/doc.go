// Package conversation manages the durable conversation identity of a widget.
//
// # Overview
//
// The Manager sits between the widget orchestrator and the store of record:
//
//	mgr := conversation.NewManager(store, localKV, "widget", logger)
//
// Key operations:
//
//   - StoredID(ctx): the id left by a previous session, if any
//   - Resume(ctx, id): conversation + history, oldest first
//   - Create(ctx, visitor, dept): create (or return) the visitor's conversation
//   - Persist(ctx, msg): save a message; duplicates count as success
//   - AssignDepartment(ctx, id, dept): record an escalation route
//
// # Identity Rules
//
// The conversation id is minted locally and written to the local key-value
// store before the remote create call. A failed create therefore leaves a
// stable id behind and the retry creates the same conversation. Concurrent
// Create calls for one visitor share a single in-flight creation.
//
// # Hand-off
//
// HasHumanAgent is true when any message comes from a sender other than the
// visitor, "bot" or "system". The widget keeps the flag monotonic per
// conversation.
//
// # Errors
//
// Store failures surface as *TransientError; the caller may retry. Resume of
// an id that was never created remotely returns store.ErrNotFound. A closed
// conversation is never reused: Create starts a new one, Resume forgets it and
// returns store.ErrConversationClosed, Persist returns that error too.
package conversation
