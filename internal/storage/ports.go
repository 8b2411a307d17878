package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Backend.Load when no document has been stored yet.
var ErrNotFound = errors.New("document not found")

// Ports for document persistence.
type (
	// Backend stores the serialized ledger document as a single blob. The
	// whole document is read and overwritten on every call.
	Backend interface {
		Load(ctx context.Context) ([]byte, error)
		Save(ctx context.Context, data []byte) error
	}

	// Describer is implemented by backends that can report where they keep
	// the document, for logs and readiness checks.
	Describer interface {
		Describe() string
	}
)
