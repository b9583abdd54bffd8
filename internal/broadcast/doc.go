// Package broadcast delivers one message to many recipients.
//
// A single worker drains a bounded job queue, so deliveries never run
// concurrently and the process-wide rate limiter is the only pacing needed.
// A flood-wait answer from Telegram suspends the worker for the requested
// time plus a margin and retries that recipient exactly once.
package broadcast
