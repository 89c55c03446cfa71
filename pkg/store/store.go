package store

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dukaforge/tabula/pkg/schema"
)

// Cells maps column names to scalar cell values (string, float64, bool).
type Cells map[string]any

// ErrRowNotFound rejects a partial write against a row that does not exist.
var ErrRowNotFound = errors.New("row not found")

// Store holds table/row/cell state for one schema. All mutation goes through
// the transactional API; reads reflect the latest committed transaction and
// never block writers for longer than a map copy.
type Store struct {
	mu     sync.RWMutex
	schema schema.Schema
	tables map[string]map[string]Cells

	indexes       map[string]*indexDef
	relationships map[string]*relationshipDef
	queries       map[string]*queryDef
	metrics       map[string]*metricDef

	txnListeners  map[int]func(*Changes)
	cellListeners map[int]*cellListener
	rowListeners  map[int]*rowListener
	tabListeners  map[int]*tableListener
	nextListener  int
}

// New creates an empty store enforcing the given schema.
func New(s schema.Schema) *Store {
	return &Store{
		schema:        s,
		tables:        make(map[string]map[string]Cells),
		indexes:       make(map[string]*indexDef),
		relationships: make(map[string]*relationshipDef),
		queries:       make(map[string]*queryDef),
		metrics:       make(map[string]*metricDef),
		txnListeners:  make(map[int]func(*Changes)),
		cellListeners: make(map[int]*cellListener),
		rowListeners:  make(map[int]*rowListener),
		tabListeners:  make(map[int]*tableListener),
	}
}

// Schema returns the schema the store enforces.
func (s *Store) Schema() schema.Schema { return s.schema }

// NewRowID generates a fresh UUID v7 row id.
func NewRowID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// RowChange records one row's before/after state within a transaction.
// Old nil means the row was inserted; New nil means it was deleted.
type RowChange struct {
	Old Cells
	New Cells
}

// Changes is the aggregate diff of one committed transaction, keyed by
// table then row id.
type Changes struct {
	Tables map[string]map[string]RowChange
}

// Deleted reports whether the change removed the row.
func (c RowChange) Deleted() bool { return c.New == nil }

// Inserted reports whether the change created the row.
func (c RowChange) Inserted() bool { return c.Old == nil }

// Tx stages mutations for one transaction. Staged state is visible to the
// Tx's own reads but not to the store until commit.
type Tx struct {
	store *Store
	// staged rows per table; a nil Cells marks a staged delete.
	staged map[string]map[string]Cells
}

// Transaction runs fn and applies its staged mutations atomically. If fn
// returns an error, nothing is applied and the error is returned. On commit
// all derived structures update and listeners fire exactly once with the
// aggregate diff.
func (s *Store) Transaction(fn func(*Tx) error) error {
	tx := &Tx{store: s, staged: make(map[string]map[string]Cells)}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}
	s.commitLocked(tx)
	return nil
}

// SetRow creates or fully replaces a row in its own transaction.
func (s *Store) SetRow(table, rowID string, cells Cells) error {
	return s.Transaction(func(tx *Tx) error { return tx.SetRow(table, rowID, cells) })
}

// AddRow creates a row with a generated UUID v7 id and returns the id.
func (s *Store) AddRow(table string, cells Cells) (string, error) {
	rowID := NewRowID()
	if err := s.SetRow(table, rowID, cells); err != nil {
		return "", err
	}
	return rowID, nil
}

// SetPartialRow merges cells into an existing row in its own transaction.
func (s *Store) SetPartialRow(table, rowID string, cells Cells) error {
	return s.Transaction(func(tx *Tx) error { return tx.SetPartialRow(table, rowID, cells) })
}

// DelRow removes a row in its own transaction. Deleting an absent row is a
// no-op.
func (s *Store) DelRow(table, rowID string) error {
	return s.Transaction(func(tx *Tx) error { return tx.DelRow(table, rowID) })
}

// SetRow validates and stages a full-row write.
func (tx *Tx) SetRow(table, rowID string, cells Cells) error {
	validated, err := tx.store.schema.ValidateRow(table, cells)
	if err != nil {
		return err
	}
	tx.stage(table, rowID, validated)
	return nil
}

// SetPartialRow validates and stages a patch. The row must already exist
// (committed or staged earlier in this transaction); create-or-update is
// never implicit.
func (tx *Tx) SetPartialRow(table, rowID string, cells Cells) error {
	validated, err := tx.store.schema.ValidatePartial(table, cells)
	if err != nil {
		return err
	}
	current, ok := tx.lookup(table, rowID)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrRowNotFound, table, rowID)
	}
	merged := make(Cells, len(current)+len(validated))
	for k, v := range current {
		merged[k] = v
	}
	for k, v := range validated {
		merged[k] = v
	}
	tx.stage(table, rowID, merged)
	return nil
}

// DelRow stages a row delete. Absent rows are ignored.
func (tx *Tx) DelRow(table, rowID string) error {
	if _, err := tx.store.schema.Table(table); err != nil {
		return err
	}
	if _, ok := tx.lookup(table, rowID); !ok {
		return nil
	}
	tx.stage(table, rowID, nil)
	return nil
}

// GetRow returns the row as this transaction sees it (staged over committed).
func (tx *Tx) GetRow(table, rowID string) (Cells, bool) {
	c, ok := tx.lookup(table, rowID)
	if !ok {
		return nil, false
	}
	return copyCells(c), true
}

// GetCell returns one cell as this transaction sees it.
func (tx *Tx) GetCell(table, rowID, column string) (any, bool) {
	c, ok := tx.lookup(table, rowID)
	if !ok {
		return nil, false
	}
	v, ok := c[column]
	return v, ok
}

func (tx *Tx) stage(table, rowID string, cells Cells) {
	rows, ok := tx.staged[table]
	if !ok {
		rows = make(map[string]Cells)
		tx.staged[table] = rows
	}
	rows[rowID] = cells
}

// lookup resolves a row through the staged overlay, then committed state.
// The caller holds the store lock.
func (tx *Tx) lookup(table, rowID string) (Cells, bool) {
	if rows, ok := tx.staged[table]; ok {
		if c, staged := rows[rowID]; staged {
			if c == nil {
				return nil, false
			}
			return c, true
		}
	}
	c, ok := tx.store.tables[table][rowID]
	return c, ok
}

// commitLocked applies staged rows, updates derived structures, and fires
// listeners. The caller holds the write lock.
func (s *Store) commitLocked(tx *Tx) {
	changes := &Changes{Tables: make(map[string]map[string]RowChange)}

	for table, rows := range tx.staged {
		for rowID, cells := range rows {
			old, hadOld := s.tables[table][rowID]
			if cells == nil {
				if !hadOld {
					continue
				}
				delete(s.tables[table], rowID)
				recordChange(changes, table, rowID, RowChange{Old: old})
				continue
			}
			if hadOld && reflect.DeepEqual(old, cells) {
				continue
			}
			if s.tables[table] == nil {
				s.tables[table] = make(map[string]Cells)
			}
			s.tables[table][rowID] = cells
			var oldCopy Cells
			if hadOld {
				oldCopy = old
			}
			recordChange(changes, table, rowID, RowChange{Old: oldCopy, New: copyCells(cells)})
		}
	}

	if len(changes.Tables) == 0 {
		return
	}

	s.updateDerivedLocked(changes)
	s.notifyLocked(changes)
}

func recordChange(c *Changes, table, rowID string, rc RowChange) {
	rows, ok := c.Tables[table]
	if !ok {
		rows = make(map[string]RowChange)
		c.Tables[table] = rows
	}
	rows[rowID] = rc
}

// updateDerivedLocked brings indexes, relationships, queries, and metrics in
// line with the just-applied diff. Index and relationship updates are
// incremental; queries and metrics re-derive for affected tables.
func (s *Store) updateDerivedLocked(changes *Changes) {
	for _, def := range s.indexes {
		s.applyIndexChanges(def, changes)
	}
	for _, def := range s.relationships {
		s.applyRelationshipChanges(def, changes)
	}
	for _, def := range s.queries {
		if def.touchedBy(changes) {
			s.deriveQueryLocked(def)
		}
	}
	for _, def := range s.metrics {
		if _, ok := changes.Tables[def.table]; ok {
			s.deriveMetricLocked(def)
		}
	}
}

// Read API. All reads return copies; callers own the result.

// GetRow returns a copy of the row's cells, or false if absent.
func (s *Store) GetRow(table, rowID string) (Cells, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.tables[table][rowID]
	if !ok {
		return nil, false
	}
	return copyCells(c), true
}

// GetCell returns a single cell value, or false if the row or cell is absent.
func (s *Store) GetCell(table, rowID, column string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.tables[table][rowID]
	if !ok {
		return nil, false
	}
	v, ok := c[column]
	return v, ok
}

// HasRow reports whether the row exists.
func (s *Store) HasRow(table, rowID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tables[table][rowID]
	return ok
}

// GetTable returns a copy of the full table contents.
func (s *Store) GetTable(table string) map[string]Cells {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyTable(s.tables[table])
}

// RowIDs returns the table's row ids in ascending order.
func (s *Store) RowIDs(table string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.tables[table]))
	for id := range s.tables[table] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RowCount returns the number of rows in the table.
func (s *Store) RowCount(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// Tables returns a deep copy of the whole store (every table's rows). Used
// by the persistence adapter and the synchronizer's state export.
func (s *Store) Tables() map[string]map[string]Cells {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]Cells, len(s.tables))
	for name, rows := range s.tables {
		out[name] = copyTable(rows)
	}
	return out
}

// SetTables replaces the whole store contents in one transaction. Rows
// failing schema validation reject the whole load.
func (s *Store) SetTables(tables map[string]map[string]Cells) error {
	return s.Transaction(func(tx *Tx) error {
		for table, rows := range s.tables {
			for rowID := range rows {
				if err := tx.DelRow(table, rowID); err != nil {
					return err
				}
			}
		}
		for table, rows := range tables {
			for rowID, cells := range rows {
				if err := tx.SetRow(table, rowID, cells); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func copyCells(c Cells) Cells {
	out := make(Cells, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func copyTable(rows map[string]Cells) map[string]Cells {
	out := make(map[string]Cells, len(rows))
	for id, c := range rows {
		out[id] = copyCells(c)
	}
	return out
}

// cellString renders a cell value for use as an index or sort key.
func cellString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
