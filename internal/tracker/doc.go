// Package tracker provides the tracking store: the durable ledger of
// downloaded artifacts and discovered secrets shared by the crawler and the
// download manager.
//
// The store is backed by a single JSON document. All mutations go through one
// critical section, and persistence always replaces the file atomically
// (write to a temporary file in the same directory, fsync, rename, fsync the
// directory), so the document on disk is either the previous valid state or
// the new one and never a partial write.
//
// # Failure semantics
//
// A flush failure is returned to the caller but never rolls back the
// in-memory state. The store stays dirty and the next flush retries. After
// repeated failures the condition is logged at error level; crawling goes on
// and only the data written since the last good flush is at risk.
//
// A document that exists but cannot be parsed is never overwritten: Open
// returns ErrCorruptDocument and the caller is expected to stop.
package tracker
