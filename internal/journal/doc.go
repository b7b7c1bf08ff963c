// Package journal is the durable record of the active alarm set.
//
// Every store mutation appends one line holding a full snapshot:
//
//	2024-01-31 09:12:03,417 - smartalarm.snapshot - CRITICAL - Alarms list : @[{"date_time":"31/01/2024 10:00","event_name":"standup","event_period":"Daily"}]
//
// Only the last line matters. Restore reads it backwards from the end of
// the file and re-arms what it describes; it never appends.
package journal
