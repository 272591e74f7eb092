// Package realtime delivers conversation messages to live widgets.
//
// # Transports
//
// A Transport is a push channel keyed by conversation id:
//
//   - Broadcaster: in-process fan-out, used by a single server and in tests
//   - RedisTransport: Redis pub/sub on "coven_desk:conversation:<id>" with
//     JSON-encoded store.Message payloads
//
// PublishingStore wraps the store of record so every saved message is
// published to its conversation.
//
// # Sync Client
//
// SyncClient keeps exactly one active subscription per widget. Inbound
// messages are emitted on Events() after three filters:
//
//  1. messages of another conversation are dropped
//  2. messages sent by the visitor themself are dropped
//  3. repeated message ids are dropped (bounded seen set)
//
// When the transport closes a channel without being asked to, the client
// resubscribes with exponential backoff. Messages published during the gap
// are not replayed.
package realtime
