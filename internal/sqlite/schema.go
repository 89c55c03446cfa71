// Package sqlite implements the local persistence adapter: each store's full
// serialized table state lives in one row of a local SQLite database, keyed
// by store id.
package sqlite

// Schema DDL for the snapshot table. One row per store id; the state column
// holds the serialized tables of that store.
const createStores = `CREATE TABLE IF NOT EXISTS stores (
    id TEXT PRIMARY KEY,
    state TEXT NOT NULL,
    saved_at TEXT NOT NULL
);`
