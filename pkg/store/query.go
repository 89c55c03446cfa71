package store

// TableCellGetter reads a cell of the base row or one of its joined rows,
// addressed by table name. An unresolved join yields nil cells.
type TableCellGetter func(table, column string) any

// ComputeFn derives a cell value for a computed select.
type ComputeFn func(get TableCellGetter) any

type selectDef struct {
	table   string // source table for plain selects; empty for computed
	column  string
	compute ComputeFn
	alias   string
}

type joinDef struct {
	table    string
	fkColumn string
}

// queryDef is a named derived result table: a select/join/compute pipeline
// over a base table, re-derived whenever a reachable table changes.
type queryDef struct {
	name      string
	baseTable string
	selects   []*selectDef
	joins     []joinDef

	result map[string]Cells
}

// QueryBuilder composes a query definition inside SetQueryDefinition.
type QueryBuilder struct {
	def *queryDef
}

// Select adds a column of the base table to the result.
func (b *QueryBuilder) Select(column string) *SelectRef {
	sel := &selectDef{table: b.def.baseTable, column: column, alias: column}
	b.def.selects = append(b.def.selects, sel)
	return &SelectRef{sel}
}

// SelectFrom adds a column of a joined table to the result.
func (b *QueryBuilder) SelectFrom(table, column string) *SelectRef {
	sel := &selectDef{table: table, column: column, alias: column}
	b.def.selects = append(b.def.selects, sel)
	return &SelectRef{sel}
}

// SelectComputed adds a computed cell. Call As to name it.
func (b *QueryBuilder) SelectComputed(fn ComputeFn) *SelectRef {
	sel := &selectDef{compute: fn}
	b.def.selects = append(b.def.selects, sel)
	return &SelectRef{sel}
}

// Join makes otherTable's columns addressable in later selects, resolved
// through the base row's foreign-key column.
func (b *QueryBuilder) Join(otherTable, fkColumn string) {
	b.def.joins = append(b.def.joins, joinDef{table: otherTable, fkColumn: fkColumn})
}

// SelectRef names a select's result column.
type SelectRef struct {
	sel *selectDef
}

// As sets the result column alias.
func (r *SelectRef) As(alias string) { r.sel.alias = alias }

// SetQueryDefinition declares (or replaces) a named derived result table.
// The builder runs once; the resulting pipeline re-derives on every commit
// touching the base table or a joined table.
func (s *Store) SetQueryDefinition(name, baseTable string, build func(*QueryBuilder)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := &queryDef{name: name, baseTable: baseTable}
	build(&QueryBuilder{def: def})
	s.queries[name] = def
	s.deriveQueryLocked(def)
}

// ResultTable returns a copy of the query's current result rows, keyed by
// the base table's row ids.
func (s *Store) ResultTable(query string) map[string]Cells {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.queries[query]
	if !ok {
		return nil
	}
	return copyTable(def.result)
}

// ResultRow returns one result row of the query.
func (s *Store) ResultRow(query, rowID string) (Cells, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.queries[query]
	if !ok {
		return nil, false
	}
	c, ok := def.result[rowID]
	if !ok {
		return nil, false
	}
	return copyCells(c), true
}

func (d *queryDef) touchedBy(changes *Changes) bool {
	if _, ok := changes.Tables[d.baseTable]; ok {
		return true
	}
	for _, j := range d.joins {
		if _, ok := changes.Tables[j.table]; ok {
			return true
		}
	}
	return false
}

// deriveQueryLocked rebuilds the query's result table from current state.
func (s *Store) deriveQueryLocked(def *queryDef) {
	def.result = make(map[string]Cells, len(s.tables[def.baseTable]))
	for rowID, base := range s.tables[def.baseTable] {
		// Resolve joined rows for this base row. A dangling or empty
		// foreign key leaves the join unresolved, never fails the row.
		joined := map[string]Cells{def.baseTable: base}
		for _, j := range def.joins {
			fk, _ := base[j.fkColumn].(string)
			if fk == "" {
				continue
			}
			if remote, ok := s.tables[j.table][fk]; ok {
				joined[j.table] = remote
			}
		}
		get := func(table, column string) any {
			if cells, ok := joined[table]; ok {
				return cells[column]
			}
			return nil
		}
		row := make(Cells, len(def.selects))
		for _, sel := range def.selects {
			var v any
			if sel.compute != nil {
				v = sel.compute(get)
			} else {
				v = get(sel.table, sel.column)
			}
			if v != nil {
				row[sel.alias] = v
			}
		}
		def.result[rowID] = row
	}
}
