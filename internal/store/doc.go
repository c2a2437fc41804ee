// Package store persists episodes, scenes, characters, scheduled jobs, and
// the API usage ledger in SQLite.
//
// The database is the single source of truth for pipeline state: every phase
// boundary and per-scene transition is flushed immediately, so a crashed run
// resumes from the last committed status rather than replaying finished work.
// Scene retry counters live here, not in loop variables, for the same reason.
package store
