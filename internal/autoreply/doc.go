// Package autoreply drives one support widget end to end.
//
// # Loop
//
// An Orchestrator owns a widget.State and mutates it from a single
// goroutine that drains three sources:
//
//   - commands from UI actions (Open, Type, Send, Close, ...)
//   - messages from the real-time sync client
//   - auto-reply timer firings
//
// Creating the conversation and persisting messages block, so they run on
// the caller's goroutine between two loop commands.
//
// # Sending
//
// Send appends the visitor message locally, ensures the conversation exists,
// then persists the message under the same id. A failure leaves the message
// unsent and returns a *conversation.TransientError; Retry resends it.
//
// While no human agent has joined, a persisted visitor message is
// classified and a single canonical bot reply is scheduled after the typing
// delay. A newer visitor message replaces the pending reply. Escalations are
// routed to a department and recorded on the conversation. Closing the
// widget, switching conversations or an arriving agent message cancel the
// pending reply.
package autoreply
