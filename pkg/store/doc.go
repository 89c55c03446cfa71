// Package store implements the Tabula store engine: an in-memory table store
// keyed by table, row, and cell, with schema enforcement, atomic multi-row
// transactions, and fine-grained change notification.
//
// Derived structures declared on a store (indexes, relationships, queries,
// metrics) are updated on the write path: by the time a transaction's
// finished notification fires, every derived structure agrees with the base
// tables. Readers never observe a torn state.
//
// Listeners run synchronously after commit while the store lock is held, so
// a listener must not write back into the store it observes. Writing into a
// different store (the change ledger does this) is fine.
package store
