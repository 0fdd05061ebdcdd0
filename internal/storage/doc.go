// Package storage persists the recipient registry and the broadcast audit log.
//
// Drivers:
//   - file:   newline-delimited recipient ids (append-only) + <prefix>.audit.jsonl
//   - sqlite: recipients/audit tables in one database file
//   - redis:  set + insertion-order list, capped audit list
//   - memory: process-local, nothing survives a restart
//
// Callers that must never fail because of storage use Recipients, which logs
// backend errors and degrades to a no-op / empty snapshot.
package storage
