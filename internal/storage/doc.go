// Package storage is the durable record of pending delayed jobs.
//
// A job row exists from the moment Submit commits it until the job is
// delivered successfully or cancelled. Insert and Delete return only after
// the change is committed to disk, so a crash right after either call never
// loses or duplicates a record.
//
// Drivers:
//   - sqlite: SQLite database file (default)
//   - file:   JSON Lines journal + snapshot
//   - redis:  one JSON key per job + sorted set by run_at (durability follows the server's AOF setting)
package storage
