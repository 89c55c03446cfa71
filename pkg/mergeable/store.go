package mergeable

import (
	"sync"

	"github.com/dukaforge/tabula/pkg/store"
)

// CellState is one stamped cell value.
type CellState struct {
	Value any   `json:"v"`
	Stamp Stamp `json:"s"`
}

// RowState is one row's stamped cells plus its delete tombstone, if any.
// A row is effectively deleted when the tombstone outranks every cell stamp;
// a newer cell write resurrects it.
type RowState struct {
	Cells     map[string]CellState `json:"cells,omitempty"`
	Tombstone Stamp                `json:"tombstone,omitzero"`
}

// State is a mergeable snapshot or delta of a store, keyed by table then row.
type State struct {
	Tables map[string]map[string]RowState `json:"tables"`
}

// Store wraps a base store with per-cell stamps so its state can be merged
// with other peers' states without data loss. Local commits are stamped from
// the wrapping clock; merged-in remote changes keep their original stamps.
type Store struct {
	mu    sync.Mutex
	base  *store.Store
	clock *Clock
	state map[string]map[string]*RowState

	// mergeMu serializes Merge calls with each other. It is never taken
	// from the commit path, so local commits only contend on mu.
	mergeMu sync.Mutex

	// pendingMerge marks rows an in-flight Merge is writing through the
	// base store, so onCommit keeps their remote stamps instead of
	// minting local ones. Rows not listed here stamp normally even when
	// a merge is mid-flight.
	pendingMerge map[string]map[string]bool

	unsub store.Unsubscribe
}

// NewStore wraps base, stamping its current contents as local state of the
// given node.
func NewStore(base *store.Store, node string) *Store {
	m := &Store{
		base:         base,
		clock:        NewClock(node),
		state:        make(map[string]map[string]*RowState),
		pendingMerge: make(map[string]map[string]bool),
	}
	for table, rows := range base.Tables() {
		for rowID, cells := range rows {
			rs := &RowState{Cells: make(map[string]CellState, len(cells))}
			for col, v := range cells {
				rs.Cells[col] = CellState{Value: v, Stamp: m.clock.Now()}
			}
			m.rowState(table, rowID, rs)
		}
	}
	m.unsub = base.OnTransaction(m.onCommit)
	return m
}

// Base returns the wrapped store.
func (m *Store) Base() *store.Store { return m.base }

// Clock returns the wrapping clock.
func (m *Store) Clock() *Clock { return m.clock }

// Close detaches the wrapper from the base store's notifications.
func (m *Store) Close() {
	if m.unsub != nil {
		m.unsub()
		m.unsub = nil
	}
}

func (m *Store) rowState(table, rowID string, rs *RowState) {
	rows, ok := m.state[table]
	if !ok {
		rows = make(map[string]*RowState)
		m.state[table] = rows
	}
	rows[rowID] = rs
}

// onCommit stamps the cells a local transaction changed. It runs inside the
// base store's commit, so it must not call back into the base store.
func (m *Store) onCommit(changes *store.Changes) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for table, rows := range changes.Tables {
		for rowID, rc := range rows {
			if m.pendingMerge[table][rowID] {
				// Written by the in-flight Merge; it carries the
				// remote stamps itself.
				continue
			}
			rs := m.lookupRow(table, rowID)
			if rs == nil {
				rs = &RowState{}
				m.rowState(table, rowID, rs)
			}
			if rc.Deleted() {
				rs.Tombstone = m.clock.Now()
				continue
			}
			if rs.Cells == nil {
				rs.Cells = make(map[string]CellState, len(rc.New))
			}
			for col, v := range rc.New {
				if oldV, had := rowCell(rc.Old, col); had && oldV == v {
					// Unchanged cell keeps its stamp.
					continue
				}
				rs.Cells[col] = CellState{Value: v, Stamp: m.clock.Now()}
			}
			// Cells removed by a full-row replace are stamped as
			// tombstoned at cell level via the row's rewrite: a cell
			// present in Old but not New gets a fresh stamp with nil
			// value so the removal propagates.
			for col := range rc.Old {
				if _, ok := rc.New[col]; !ok {
					rs.Cells[col] = CellState{Value: nil, Stamp: m.clock.Now()}
				}
			}
		}
	}
}

func rowCell(c store.Cells, col string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c[col]
	return v, ok
}

func (m *Store) lookupRow(table, rowID string) *RowState {
	if rows, ok := m.state[table]; ok {
		return rows[rowID]
	}
	return nil
}

// State exports the full mergeable state, tombstones included.
func (m *Store) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exportLocked(Stamp{})
}

// ChangesSince exports only state stamped after since, for catch-up after a
// reconnect. A zero since exports everything.
func (m *Store) ChangesSince(since Stamp) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exportLocked(since)
}

// MaxStamp returns the greatest stamp in the current state.
func (m *Store) MaxStamp() Stamp {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max Stamp
	for _, rows := range m.state {
		for _, rs := range rows {
			max = maxStamp(max, rs.Tombstone)
			for _, cs := range rs.Cells {
				max = maxStamp(max, cs.Stamp)
			}
		}
	}
	return max
}

func (m *Store) exportLocked(since Stamp) State {
	out := State{Tables: make(map[string]map[string]RowState)}
	for table, rows := range m.state {
		for rowID, rs := range rows {
			exp := RowState{}
			if since.Less(rs.Tombstone) {
				exp.Tombstone = rs.Tombstone
			}
			for col, cs := range rs.Cells {
				if since.Less(cs.Stamp) {
					if exp.Cells == nil {
						exp.Cells = make(map[string]CellState)
					}
					exp.Cells[col] = cs
				}
			}
			if exp.Cells == nil && exp.Tombstone.IsZero() {
				continue
			}
			if out.Tables[table] == nil {
				out.Tables[table] = make(map[string]RowState)
			}
			out.Tables[table][rowID] = exp
		}
	}
	return out
}

// Merge folds a peer's state (or delta) into this store. Per cell the higher
// stamp wins; a tombstone deletes the row unless some cell write outranks
// it. Applying the same state twice is a no-op, and merge order does not
// affect the result. A failed merge leaves both the stamped state and the
// base store unchanged.
func (m *Store) Merge(remote State) error {
	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	// All work happens inside the base transaction. Local commits hold
	// the base store's write lock when they call onCommit, which takes
	// m.mu, so m.mu is only ever taken under that lock and never across
	// a base-store call.
	err := m.base.Transaction(func(tx *store.Tx) error {
		m.mu.Lock()
		defer m.mu.Unlock()

		// Fold remote stamps into the clock first so later local
		// writes order after everything merged here.
		for _, rows := range remote.Tables {
			for _, rr := range rows {
				if !rr.Tombstone.IsZero() {
					m.clock.Observe(rr.Tombstone)
				}
				for _, cs := range rr.Cells {
					m.clock.Observe(cs.Stamp)
				}
			}
		}

		// Stage every write before touching the stamped state, so a
		// rejected row leaves stamps and base store agreeing.
		type stagedRow struct {
			table, rowID string
			rs           *RowState
		}
		var staged []stagedRow
		for table, rows := range remote.Tables {
			for rowID, rr := range rows {
				merged := m.lookupRow(table, rowID).merge(rr)
				if cells, alive := merged.effective(); alive {
					if err := tx.SetRow(table, rowID, cells); err != nil {
						return err
					}
				} else if err := tx.DelRow(table, rowID); err != nil {
					return err
				}
				staged = append(staged, stagedRow{table: table, rowID: rowID, rs: merged})
			}
		}

		for _, sr := range staged {
			m.rowState(sr.table, sr.rowID, sr.rs)
			if m.pendingMerge[sr.table] == nil {
				m.pendingMerge[sr.table] = make(map[string]bool)
			}
			m.pendingMerge[sr.table][sr.rowID] = true
		}
		return nil
	})

	m.mu.Lock()
	m.pendingMerge = make(map[string]map[string]bool)
	m.mu.Unlock()
	return err
}

// merge returns a copy of rs with the remote row folded in per cell. A nil
// receiver merges into an empty row.
func (rs *RowState) merge(rr RowState) *RowState {
	out := &RowState{}
	if rs != nil {
		out.Tombstone = rs.Tombstone
		if rs.Cells != nil {
			out.Cells = make(map[string]CellState, len(rs.Cells))
			for col, cs := range rs.Cells {
				out.Cells[col] = cs
			}
		}
	}
	out.Tombstone = maxStamp(out.Tombstone, rr.Tombstone)
	for col, remoteCell := range rr.Cells {
		local, ok := out.Cells[col]
		if !ok || local.Stamp.Less(remoteCell.Stamp) {
			if out.Cells == nil {
				out.Cells = make(map[string]CellState)
			}
			out.Cells[col] = remoteCell
		}
	}
	return out
}

// effective computes the row's visible cells under the tombstone: cells
// stamped after the tombstone survive, nil-valued cell tombstones drop out.
// The second result is false when the row is deleted.
func (rs *RowState) effective() (store.Cells, bool) {
	cells := make(store.Cells)
	alive := false
	for col, cs := range rs.Cells {
		if !rs.Tombstone.IsZero() && !rs.Tombstone.Less(cs.Stamp) {
			continue
		}
		if cs.Value == nil {
			continue
		}
		alive = true
		cells[col] = cs.Value
	}
	if !alive {
		return nil, false
	}
	return cells, true
}
