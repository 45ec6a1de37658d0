// Package storage defines the durable key-value contract that session state is committed to.
//
// Every record carries a revision. Writers state the revision they read, and a backend refuses
// the write when the stored revision differs. Within one process the per-chat lock makes a
// refusal impossible; a refusal therefore means another process wrote the same key.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key holds no record.
	ErrNotFound = errors.New("storage: record not found")
	// ErrConflict is returned when the stored revision is not the expected one.
	ErrConflict = errors.New("storage: revision conflict")
)

// Record is a stored value and its revision. Revisions start at 1; 0 means absent.
type Record struct {
	Value    []byte
	Revision int64
}

type KV interface {
	Get(ctx context.Context, key string) (Record, error)
	// Put stores value if the current revision equals revision and returns the new revision.
	Put(ctx context.Context, key string, value []byte, revision int64) (int64, error)
	// Delete removes the record if the current revision equals revision.
	// Deleting an absent key with revision 0 is a no-op.
	Delete(ctx context.Context, key string, revision int64) error
	Ping(ctx context.Context) error
	Close() error
}
