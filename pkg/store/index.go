package store

import "sort"

// RowGetter reads cells of the row being sliced.
type RowGetter func(column string) any

// KeyFn maps a row to its slice key.
type KeyFn func(get RowGetter) string

// Comparator orders two keys. Negative means a before b.
type Comparator func(a, b string) int

// IndexOptions configure ordering within and across slices.
type IndexOptions struct {
	// SortColumn orders rows within a slice by that cell's value. Empty
	// sorts by row id.
	SortColumn string
	// RowCompare overrides the default ascending comparison of sort keys.
	RowCompare Comparator
	// SliceCompare overrides the default ascending comparison of slice ids.
	SliceCompare Comparator
}

type indexDef struct {
	name  string
	table string
	key   KeyFn
	opts  IndexOptions

	// slices holds row ids per slice id, kept in sort order.
	slices map[string][]string
	// rowSlice remembers each row's current slice for incremental removal.
	rowSlice map[string]string
}

func compareAsc(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ColumnKey returns a KeyFn slicing by a literal column value.
func ColumnKey(column string) KeyFn {
	return func(get RowGetter) string { return cellString(get(column)) }
}

// SetIndexDefinition declares (or replaces) an index grouping the table's
// rows by the computed slice key. The index is derived immediately and kept
// consistent on every commit.
func (s *Store) SetIndexDefinition(name, table string, key KeyFn, opts IndexOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := &indexDef{
		name:     name,
		table:    table,
		key:      key,
		opts:     opts,
		slices:   make(map[string][]string),
		rowSlice: make(map[string]string),
	}
	s.indexes[name] = def
	for rowID, cells := range s.tables[table] {
		s.indexInsert(def, rowID, cells)
	}
}

// SliceIDs returns the index's current slice keys in their defined order.
func (s *Store) SliceIDs(index string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.indexes[index]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(def.slices))
	for id := range def.slices {
		ids = append(ids, id)
	}
	cmp := def.opts.SliceCompare
	if cmp == nil {
		cmp = compareAsc
	}
	sort.Slice(ids, func(i, j int) bool { return cmp(ids[i], ids[j]) < 0 })
	return ids
}

// SliceRowIDs returns the row ids in a slice, in the index's sort order.
func (s *Store) SliceRowIDs(index, sliceID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.indexes[index]
	if !ok {
		return nil
	}
	rows := def.slices[sliceID]
	out := make([]string, len(rows))
	copy(out, rows)
	return out
}

// applyIndexChanges updates one index from a commit diff: changed rows are
// pulled from their old slice and re-inserted under their new key.
func (s *Store) applyIndexChanges(def *indexDef, changes *Changes) {
	rows, ok := changes.Tables[def.table]
	if !ok {
		return
	}
	for rowID, rc := range rows {
		s.indexRemove(def, rowID)
		if rc.New != nil {
			s.indexInsert(def, rowID, rc.New)
		}
	}
}

func (s *Store) indexInsert(def *indexDef, rowID string, cells Cells) {
	getter := func(column string) any { return cells[column] }
	sliceID := def.key(getter)
	def.slices[sliceID] = append(def.slices[sliceID], rowID)
	def.rowSlice[rowID] = sliceID
	s.sortSlice(def, sliceID)
}

func (s *Store) indexRemove(def *indexDef, rowID string) {
	sliceID, ok := def.rowSlice[rowID]
	if !ok {
		return
	}
	delete(def.rowSlice, rowID)
	rows := def.slices[sliceID]
	for i, id := range rows {
		if id == rowID {
			rows = append(rows[:i], rows[i+1:]...)
			break
		}
	}
	if len(rows) == 0 {
		delete(def.slices, sliceID)
	} else {
		def.slices[sliceID] = rows
	}
}

// sortSlice re-sorts one slice by the sort column's rendered value, row id
// as tiebreak so ordering is total.
func (s *Store) sortSlice(def *indexDef, sliceID string) {
	rows := def.slices[sliceID]
	if len(rows) < 2 {
		return
	}
	cmp := def.opts.RowCompare
	if cmp == nil {
		cmp = compareAsc
	}
	key := func(rowID string) string {
		if def.opts.SortColumn == "" {
			return rowID
		}
		return cellString(s.tables[def.table][rowID][def.opts.SortColumn])
	}
	sort.SliceStable(rows, func(i, j int) bool {
		ki, kj := key(rows[i]), key(rows[j])
		if c := cmp(ki, kj); c != 0 {
			return c < 0
		}
		return rows[i] < rows[j]
	})
}
