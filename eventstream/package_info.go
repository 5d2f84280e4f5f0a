// Package eventstream implements the subscription side of the backend's real-time
// notifications: one Server-Sent Events connection per simulated user, decoded into typed
// event records and kept in an append-only log that callers can snapshot or await.
//
// Each Connection owns a single receive goroutine, which is the only writer to its log. Every
// other goroutine only reads, either by taking a point-in-time copy (Events, EventsOfType) or
// by blocking until a record satisfying a predicate has been appended (Await).
package eventstream
