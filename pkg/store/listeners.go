package store

// Unsubscribe removes a previously registered listener. Safe to call more
// than once.
type Unsubscribe func()

type cellListener struct {
	table, rowID, column string
	fn                   func(old, new any)
}

type rowListener struct {
	table, rowID string
	fn           func(RowChange)
}

type tableListener struct {
	table string
	fn    func(map[string]RowChange)
}

// OnTransaction registers a listener receiving the aggregate diff of every
// committed transaction. One notification per transaction, regardless of how
// many rows it touched.
func (s *Store) OnTransaction(fn func(*Changes)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.txnListeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.txnListeners, id)
	}
}

// OnCell registers a listener firing when the given cell changes value.
// Deletes deliver a nil new value.
func (s *Store) OnCell(table, rowID, column string, fn func(old, new any)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.cellListeners[id] = &cellListener{table: table, rowID: rowID, column: column, fn: fn}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.cellListeners, id)
	}
}

// OnRow registers a listener firing when the given row is inserted, updated,
// or deleted.
func (s *Store) OnRow(table, rowID string, fn func(RowChange)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.rowListeners[id] = &rowListener{table: table, rowID: rowID, fn: fn}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.rowListeners, id)
	}
}

// OnTable registers a listener firing with the per-row diff whenever any row
// of the table changes.
func (s *Store) OnTable(table string, fn func(map[string]RowChange)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.tabListeners[id] = &tableListener{table: table, fn: fn}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.tabListeners, id)
	}
}

// notifyLocked delivers change notifications. The write lock is held, so
// listeners must not call back into this store.
func (s *Store) notifyLocked(changes *Changes) {
	for _, l := range s.tabListeners {
		if rows, ok := changes.Tables[l.table]; ok {
			l.fn(rows)
		}
	}
	for _, l := range s.rowListeners {
		if rc, ok := changes.Tables[l.table][l.rowID]; ok {
			l.fn(rc)
		}
	}
	for _, l := range s.cellListeners {
		rc, ok := changes.Tables[l.table][l.rowID]
		if !ok {
			continue
		}
		oldV := cellOf(rc.Old, l.column)
		newV := cellOf(rc.New, l.column)
		if oldV != newV {
			l.fn(oldV, newV)
		}
	}
	for _, fn := range s.txnListeners {
		fn(changes)
	}
}

func cellOf(c Cells, column string) any {
	if c == nil {
		return nil
	}
	return c[column]
}
