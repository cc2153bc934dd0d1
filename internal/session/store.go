// Package session wraps one scheduler run in an isolated change-tracking
// branch. Checkpoints accumulate on the branch and become visible on the
// base only through a single atomic merge at finish; every other outcome
// leaves the base untouched.
package session

import (
	"context"
	"errors"
)

// ErrSessionConflict is returned when a session is already open for the
// requested base reference.
var ErrSessionConflict = errors.New("session already open for base")

// Store is the external persistence boundary. It only needs the four
// version-control-like primitives; everything else is session bookkeeping.
type Store interface {
	// CreateBranch creates an isolated branch from base.
	CreateBranch(ctx context.Context, base, branch string) error
	// Commit records one atomic unit on the branch and returns its id.
	Commit(ctx context.Context, branch, message string, payload []byte) (string, error)
	// Merge publishes the branch onto base.
	Merge(ctx context.Context, branch, base string) error
	// DeleteBranch discards the branch without touching base.
	DeleteBranch(ctx context.Context, branch string) error
}
