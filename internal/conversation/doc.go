// Package conversation is the per-user dialogue engine: it interprets text and
// button tokens against the user's pending flow, performs the resulting store
// and broadcast calls, and answers with a presentation-neutral Reply.
package conversation
