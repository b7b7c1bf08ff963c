// Package storage keeps the notification history: one record per fired
// alarm.
//
// Drivers:
//   - "memory": bounded in-process ring (default)
//   - "file": append-only JSON Lines
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
//   - "postgres": PostgreSQL through pgx's database/sql driver
package storage
