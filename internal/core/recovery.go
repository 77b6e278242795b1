package core

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotExists is returned when a snapshot is saved twice for one session.
var ErrSnapshotExists = errors.New("snapshot already exists")

// SnapshotStore is the Recovery Store: one immutable copy of the loaded
// dataset per session, kept apart from the live working table.
type SnapshotStore interface {
	// Save persists ds under id. It must refuse to overwrite an existing
	// snapshot with ErrSnapshotExists.
	Save(ctx context.Context, id string, ds Dataset) error
	// Load returns the dataset saved under id, or ErrNotFound.
	Load(ctx context.Context, id string) (Dataset, error)
	Delete(ctx context.Context, id string) error
	// Sweep deletes snapshots created before olderThan and reports how many.
	Sweep(ctx context.Context, olderThan time.Time) (int, error)
}

// SessionState is the recovery state of a session's working table.
type SessionState int

const (
	// StateMissing means no working table is held for the session.
	StateMissing SessionState = iota
	// StateRehydrating means the table is being rebuilt from its snapshot.
	StateRehydrating
	// StateReady means the working table is live.
	StateReady
)

func (s SessionState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateRehydrating:
		return "rehydrating"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// rehydrateTable rebuilds the working table for id from its snapshot,
// assigning row ids exactly as the original load did.
func rehydrateTable(ctx context.Context, store SnapshotStore, id string) (*Table, Dataset, error) {
	if store == nil {
		return nil, Dataset{}, sessionf("session expired: no recovery store")
	}
	ds, err := store.Load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, Dataset{}, sessionf("session expired: no snapshot for %s", id)
	}
	if err != nil {
		return nil, Dataset{}, storageErr("load snapshot", err)
	}
	if err := ds.Validate(); err != nil {
		return nil, Dataset{}, sessionf("session expired: snapshot for %s is unusable", id)
	}
	return NewTable(ds), ds, nil
}
