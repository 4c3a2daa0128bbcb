package core

import (
	"fmt"

	"github.com/jalakoo/neo4j-transfer/internal/core/model"
)

// ConnectivityError means the source or target database could not be
// reached. Raised before any write, so no partial state exists.
type ConnectivityError struct {
	Side string // "source" or "target"
	Err  error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s database unreachable: %v", e.Side, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// ValidationError covers malformed selectors and provenance key collisions.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BatchWriteError is a batch that still failed after retry exhaustion. The
// enclosing transfer is aborted; committed batches stay in the target.
type BatchWriteError struct {
	Phase    model.Kind
	Batch    int
	Attempts int
	Err      error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("%s batch %d failed after %d attempts: %v", e.Phase, e.Batch, e.Attempts, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

// UndoMismatchWarning reports an expected-vs-actual deletion count gap during
// revert. It is a recoverable condition (the usual cause is a transfer that
// was already reverted or purged), surfaced for operator awareness, not an
// operation failure.
type UndoMismatchWarning struct {
	TransferID string
	Expected   model.Counts
	Deleted    model.Counts
}

func (w *UndoMismatchWarning) Error() string {
	return fmt.Sprintf("revert of %s deleted %d nodes / %d relationships, expected %d / %d",
		w.TransferID, w.Deleted.Nodes, w.Deleted.Rels, w.Expected.Nodes, w.Expected.Rels)
}

// PurgeError is fatal: the purge is destructive, so it is never retried.
type PurgeError struct {
	Err error
}

func (e *PurgeError) Error() string {
	return fmt.Sprintf("purge failed: %v", e.Err)
}

func (e *PurgeError) Unwrap() error { return e.Err }
