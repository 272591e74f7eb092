// Package widget holds the state machine of one embedded support widget.
//
// # State
//
// State is a plain value owned by exactly one widget instance. Transitions
// are methods with value receivers that return a new State, and for UI
// actions a list of Effects:
//
//	closed --Open--> expanded --Minimize--> minimized --Restore--> expanded
//	expanded|minimized --Close--> closed
//
// Any other action is a no-op. The first entry into expanded requests focus
// when auto focus is configured; Close requests cancellation of a pending
// auto-reply.
//
// # Sending
//
// Submit appends the compose buffer as a pending message and clears the
// buffer in one step. It refuses blank input and refuses while IsSending.
// Delivery moves pending to sent or unsent; only unsent messages can be
// resubmitted.
//
// # Rendering
//
// Render is a pure projection of State and Options into a View, run after
// every transition. Message bodies are Markdown rendered by goldmark.
package widget
