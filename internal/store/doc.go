// Package store guards the live retrospective board and persists it.
//
// Store is the exclusive-access gate: every read takes a read lock, every
// mutation takes the write lock and, while still holding it, publishes the
// resulting snapshot and queues a copy for persistence. Persistence happens
// on the WriteBehind goroutine through one of the Gateway implementations
// (JSON file, SQLite, Redis), never inside the lock.
package store
