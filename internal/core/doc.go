// Package core provides the business logic for invoice working sessions.
//
// This package holds all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Table: the live working table of a session, with row ids that are
//     assigned once and never reused.
//   - Rule engine: [ApplyRules] assigns a priority and reason to every row,
//     first from the pay-group heuristic and then from user rules in stored
//     order. A later matching rule overwrites an earlier one.
//   - Mutations: every edit goes through [Service] and records its inverse
//     in a bounded [History] before a full recompute of priorities.
//   - Sessions: a [Session] is passed explicitly into every call. The
//     [SessionManager] creates it on load, rehydrates it from its snapshot
//     when live state is missing, and destroys it on teardown.
//
// # History Storage
//
// Bulk deletes above the configured threshold keep their removed rows in a
// [BlobStore] instead of memory. A failed blob write keeps the rows inline.
// Evicting, committing or undoing an external entry deletes its blob.
//
// # Session Recovery
//
// Each load saves the dataset to a [SnapshotStore]. A lookup miss moves the
// session through Missing, Rehydrating and Ready, rebuilding the table with
// the same row ids as the original load.
//
// # Error Handling
//
// Every failure wraps one of [ErrValidation], [ErrSession], [ErrEmptyHistory],
// [ErrStorage] or [ErrComputation]. [MapError] turns errors into user-facing
// messages with support codes.
//
// # Audit Logging
//
// Applied mutations append to the session's [AuditLog], exportable as TSV.
package core
