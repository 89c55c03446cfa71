package store

// Ledger records every row-level insert, update, and delete of a source
// store as first-class rows in a target store's changes table, so external
// consumers (search indexing, sync diffing) can read deltas instead of
// re-scanning the store.
//
// Records are keyed "<table>:<row_id>"; a later change to the same entity
// overwrites the pending record. The ledger is the most recent pending
// change per entity, not an append-only history. Consumers process a record
// and then Ack it.
type Ledger struct {
	target *Store
	table  string
	unsub  Unsubscribe
}

// LedgerRowID returns the composite change-record key for a (table, row).
func LedgerRowID(table, rowID string) string {
	return table + ":" + rowID
}

// NewLedger starts recording source's transactions into target's changes
// table. Source and target must be different stores; the ledger writes from
// inside source's commit notification.
func NewLedger(source, target *Store, table string) *Ledger {
	l := &Ledger{target: target, table: table}
	l.unsub = source.OnTransaction(func(changes *Changes) {
		for tableID, rows := range changes.Tables {
			for rowID, rc := range rows {
				// Errors here are schema violations on the ledger
				// table itself, a wiring bug; the write is dropped
				// rather than poisoning the source commit.
				_ = target.SetRow(l.table, LedgerRowID(tableID, rowID), Cells{
					"row_id":  rowID,
					"table":   tableID,
					"deleted": rc.Deleted(),
					"updated": !rc.Deleted(),
				})
			}
		}
	})
	return l
}

// Pending returns the current change records keyed by composite id.
func (l *Ledger) Pending() map[string]Cells {
	return l.target.GetTable(l.table)
}

// Ack removes a processed change record. Acking an absent record is a no-op.
func (l *Ledger) Ack(compositeID string) error {
	return l.target.DelRow(l.table, compositeID)
}

// Close stops recording. The accumulated records stay in the target store.
func (l *Ledger) Close() {
	if l.unsub != nil {
		l.unsub()
		l.unsub = nil
	}
}
