package store

import "sort"

// relationshipDef links rows of a local table to rows of a remote table via
// a foreign-key cell on the local row. Forward lookup resolves a local row's
// remote row id; reverse lookup answers "which local rows point here".
type relationshipDef struct {
	name        string
	localTable  string
	remoteTable string
	fkColumn    string

	forward map[string]string
	reverse map[string]map[string]struct{}
}

// SetRelationshipDefinition declares (or replaces) a named many-to-one link
// from localTable rows to remoteTable rows through the given foreign-key
// column. An empty or absent foreign-key cell means no relation.
func (s *Store) SetRelationshipDefinition(name, localTable, remoteTable, fkColumn string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def := &relationshipDef{
		name:        name,
		localTable:  localTable,
		remoteTable: remoteTable,
		fkColumn:    fkColumn,
		forward:     make(map[string]string),
		reverse:     make(map[string]map[string]struct{}),
	}
	s.relationships[name] = def
	for rowID, cells := range s.tables[localTable] {
		def.link(rowID, cells)
	}
}

// RemoteRowID resolves the remote row id a local row's foreign key points
// at. The second result is false when the local row is absent or its foreign
// key is empty. The remote row is not checked for existence; a dangling key
// still resolves and the caller degrades gracefully on the missing row.
func (s *Store) RemoteRowID(relationship, localRowID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.relationships[relationship]
	if !ok {
		return "", false
	}
	remote, ok := def.forward[localRowID]
	return remote, ok
}

// LocalRowIDs returns, in ascending order, the local rows whose foreign key
// points at the given remote row.
func (s *Store) LocalRowIDs(relationship, remoteRowID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.relationships[relationship]
	if !ok {
		return nil
	}
	set := def.reverse[remoteRowID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *Store) applyRelationshipChanges(def *relationshipDef, changes *Changes) {
	rows, ok := changes.Tables[def.localTable]
	if !ok {
		return
	}
	for rowID, rc := range rows {
		def.unlink(rowID)
		if rc.New != nil {
			def.link(rowID, rc.New)
		}
	}
}

func (d *relationshipDef) link(rowID string, cells Cells) {
	remote, _ := cells[d.fkColumn].(string)
	if remote == "" {
		return
	}
	d.forward[rowID] = remote
	set, ok := d.reverse[remote]
	if !ok {
		set = make(map[string]struct{})
		d.reverse[remote] = set
	}
	set[rowID] = struct{}{}
}

func (d *relationshipDef) unlink(rowID string) {
	remote, ok := d.forward[rowID]
	if !ok {
		return
	}
	delete(d.forward, rowID)
	if set := d.reverse[remote]; set != nil {
		delete(set, rowID)
		if len(set) == 0 {
			delete(d.reverse, remote)
		}
	}
}
