// Package timeouts defines shared timeout constants used across the service.
// Centralizing these values prevents drift between boundaries and makes the
// durations discoverable.
package timeouts

import "time"

// LedgerCall caps the wait time for a single mutating ledger call. Expiry is
// reported as an ambiguous result, never as a failure: the call may still have
// succeeded on the ledger and reconciliation owns finding out.
const LedgerCall = 5 * time.Second

// LedgerQuery caps the wait time for a reconciliation poll query.
const LedgerQuery = 3 * time.Second

// Persist caps the fire-and-forget write of a completed session record.
const Persist = 2 * time.Second

// Shutdown limits how long the runtime waits for in-flight work during
// graceful shutdown.
const Shutdown = 5 * time.Second
