// Package store provides persistence for symposium sessions.
//
// # Overview
//
// The store is the single authoritative record of dialogue state. Every
// mutation flows through the tool dispatch boundary or the orchestration
// engine, both of which treat the Store interface as ground truth.
//
// # Records
//
//   - Session: a named, moderated conversation with a lifecycle status
//   - Participant: one model voice, ordered by insertion position
//   - Message: an immutable contribution with optional generation metadata
//   - AnalysisSnapshot: an append-only analysis timeline entry
//   - APIError: one failed model call attempt, kept for error-rate math
//
// # Implementations
//
// SQLiteStore is the durable implementation (modernc.org/sqlite, WAL mode,
// schema bootstrapped on open). MemStore backs tests and ephemeral runs.
//
// Both serialize writes so that a manual session update and the engine's
// automatic message append cannot produce a lost update.
package store
