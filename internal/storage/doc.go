// Package storage persists notices, subscribers and the operator audit log.
//
// Two backends implement the same Store port:
//   - "sqlite": modernc.org/sqlite through sqlx (default)
//   - "file":   in-memory tables persisted as a JSON snapshot + JSONL journal
//
// Listing order is defined once by NoticeQuery and shared by both backends.
package storage
