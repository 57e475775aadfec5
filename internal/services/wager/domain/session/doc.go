// Package session models the two-party wagering session aggregate.
//
// A session is created optimistically under a locally generated key while the
// ledger transaction that stakes the creator's wager is still in flight. Once
// the ledger observes the creation, the session gains its permanent ledger key
// and advances through the join, resolve, and settle phases.
//
// The package holds:
//   - the Side and Status enumerations and their transition table,
//   - guarded transition methods that emit events and never perform I/O,
//   - snapshot copies handed to readers outside the mutation boundary.
//
// All I/O around sessions belongs to the reconcile engine; keeping this
// package pure keeps every transition unit-testable.
package session
