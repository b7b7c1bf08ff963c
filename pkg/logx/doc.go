// Package logx configures smartalarm's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Level and sinks swappable at runtime (config hot reload)
//
// The alarm snapshot journal is NOT written through this package; it owns
// its own append-only file (see internal/journal).
package logx
