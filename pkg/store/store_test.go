package store

import (
	"errors"
	"testing"

	"github.com/dukaforge/tabula/pkg/schema"
)

// testStore builds a store with a small two-table schema shared by the
// package tests: notes reference folders through folder_id.
func testStore() *Store {
	str := schema.Column{Type: schema.CellString}
	num := schema.Column{Type: schema.CellNumber}
	return New(schema.Schema{
		"notes": schema.TableSchema{
			"title":      {Type: schema.CellString, Required: true},
			"folder_id":  str,
			"created_at": str,
			"words":      num,
		},
		"folders": schema.TableSchema{
			"name": {Type: schema.CellString, Required: true},
		},
	})
}

func TestSetRowGetRow(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "first"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	got, ok := s.GetRow("notes", "n1")
	if !ok {
		t.Fatal("row not found after SetRow")
	}
	if got["title"] != "first" {
		t.Errorf("title = %v, want first", got["title"])
	}
	if _, ok := s.GetRow("notes", "missing"); ok {
		t.Error("absent row reported present")
	}
}

func TestSetRowReplacesWholeRow(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "first", "folder_id": "f1"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := s.SetRow("notes", "n1", Cells{"title": "second"}); err != nil {
		t.Fatalf("SetRow replace failed: %v", err)
	}
	got, _ := s.GetRow("notes", "n1")
	if _, ok := got["folder_id"]; ok {
		t.Error("full-row write must drop unmentioned cells")
	}
}

func TestSetPartialRowPreservesCells(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "first", "folder_id": "f1"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := s.SetPartialRow("notes", "n1", Cells{"title": "renamed"}); err != nil {
		t.Fatalf("SetPartialRow failed: %v", err)
	}
	got, _ := s.GetRow("notes", "n1")
	if got["title"] != "renamed" || got["folder_id"] != "f1" {
		t.Errorf("row = %v, want renamed title and preserved folder_id", got)
	}
}

func TestSetPartialRowAbsentRow(t *testing.T) {
	s := testStore()
	err := s.SetPartialRow("notes", "missing", Cells{"title": "x"})
	if !errors.Is(err, ErrRowNotFound) {
		t.Errorf("error = %v, want ErrRowNotFound", err)
	}
}

func TestDelRowIdempotent(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "first"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := s.DelRow("notes", "n1"); err != nil {
		t.Fatalf("DelRow failed: %v", err)
	}
	if s.HasRow("notes", "n1") {
		t.Error("row still present after DelRow")
	}

	// Deleting again must be a silent no-op that fires no listeners.
	fired := 0
	s.OnTransaction(func(*Changes) { fired++ })
	if err := s.DelRow("notes", "n1"); err != nil {
		t.Fatalf("second DelRow failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("listener fired %d times on no-op delete", fired)
	}
}

func TestTransactionAtomicRollback(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "keep"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}

	boom := errors.New("boom")
	err := s.Transaction(func(tx *Tx) error {
		if err := tx.SetRow("notes", "n2", Cells{"title": "staged"}); err != nil {
			return err
		}
		if err := tx.DelRow("notes", "n1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}
	if s.HasRow("notes", "n2") {
		t.Error("staged insert applied despite rollback")
	}
	if !s.HasRow("notes", "n1") {
		t.Error("staged delete applied despite rollback")
	}
}

func TestTransactionStagedReads(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "old"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	err := s.Transaction(func(tx *Tx) error {
		if err := tx.SetRow("notes", "n1", Cells{"title": "new"}); err != nil {
			return err
		}
		got, ok := tx.GetRow("notes", "n1")
		if !ok || got["title"] != "new" {
			t.Errorf("staged read = %v, %v, want new", got, ok)
		}
		if err := tx.DelRow("notes", "n1"); err != nil {
			return err
		}
		if _, ok := tx.GetRow("notes", "n1"); ok {
			t.Error("staged delete visible as present")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
}

func TestTransactionAggregateDiff(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "old", Cells{"title": "old"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}

	var got *Changes
	fired := 0
	s.OnTransaction(func(c *Changes) { got = c; fired++ })

	err := s.Transaction(func(tx *Tx) error {
		if err := tx.SetRow("notes", "new", Cells{"title": "new"}); err != nil {
			return err
		}
		if err := tx.SetPartialRow("notes", "old", Cells{"title": "renamed"}); err != nil {
			return err
		}
		return tx.DelRow("notes", "old")
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("listener fired %d times, want 1", fired)
	}

	rows := got.Tables["notes"]
	if len(rows) != 2 {
		t.Fatalf("diff rows = %d, want 2", len(rows))
	}
	if rc := rows["new"]; !rc.Inserted() || rc.New["title"] != "new" {
		t.Errorf("insert change = %+v", rc)
	}
	// The update then delete of "old" collapses to a single delete.
	if rc := rows["old"]; !rc.Deleted() || rc.Old["title"] != "old" {
		t.Errorf("delete change = %+v", rc)
	}
}

func TestNoOpWriteFiresNoListeners(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "same"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	fired := 0
	s.OnTransaction(func(*Changes) { fired++ })
	if err := s.SetRow("notes", "n1", Cells{"title": "same"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("listener fired %d times on identical rewrite", fired)
	}
}

func TestSchemaViolationRejectsTransaction(t *testing.T) {
	s := testStore()
	err := s.Transaction(func(tx *Tx) error {
		if err := tx.SetRow("notes", "n1", Cells{"title": "ok"}); err != nil {
			return err
		}
		return tx.SetRow("notes", "n2", Cells{"bogus": "x"})
	})
	if !errors.Is(err, schema.ErrColumnUnknown) {
		t.Fatalf("error = %v, want ErrColumnUnknown", err)
	}
	if s.HasRow("notes", "n1") {
		t.Error("partial transaction state applied")
	}
}

func TestAddRowGeneratesUniqueIDs(t *testing.T) {
	s := testStore()
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := s.AddRow("folders", Cells{"name": "f"})
		if err != nil {
			t.Fatalf("AddRow failed: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate generated id %s", id)
		}
		seen[id] = true
	}
	if s.RowCount("folders") != 50 {
		t.Errorf("RowCount = %d, want 50", s.RowCount("folders"))
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "orig"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	got, _ := s.GetRow("notes", "n1")
	got["title"] = "mutated"
	again, _ := s.GetRow("notes", "n1")
	if again["title"] != "orig" {
		t.Error("caller mutation leaked into store state")
	}
}

func TestSetTablesReplacesContents(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "gone", Cells{"title": "gone"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	err := s.SetTables(map[string]map[string]Cells{
		"folders": {"f1": {"name": "inbox"}},
	})
	if err != nil {
		t.Fatalf("SetTables failed: %v", err)
	}
	if s.HasRow("notes", "gone") {
		t.Error("previous contents survived SetTables")
	}
	if !s.HasRow("folders", "f1") {
		t.Error("loaded row missing")
	}
}

func TestSetTablesRejectsInvalidLoad(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "keep", Cells{"title": "keep"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	err := s.SetTables(map[string]map[string]Cells{
		"folders": {"f1": {"bogus": "x"}},
	})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !s.HasRow("notes", "keep") {
		t.Error("failed load must leave state untouched")
	}
}

func TestCellListener(t *testing.T) {
	s := testStore()
	if err := s.SetRow("notes", "n1", Cells{"title": "a", "folder_id": "f1"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}

	var gotOld, gotNew any
	fired := 0
	s.OnCell("notes", "n1", "title", func(old, new any) {
		gotOld, gotNew = old, new
		fired++
	})

	// Changing an unrelated cell must not fire the title listener.
	if err := s.SetPartialRow("notes", "n1", Cells{"folder_id": "f2"}); err != nil {
		t.Fatalf("SetPartialRow failed: %v", err)
	}
	if fired != 0 {
		t.Fatalf("listener fired on unrelated cell change")
	}

	if err := s.SetPartialRow("notes", "n1", Cells{"title": "b"}); err != nil {
		t.Fatalf("SetPartialRow failed: %v", err)
	}
	if fired != 1 || gotOld != "a" || gotNew != "b" {
		t.Errorf("fired=%d old=%v new=%v", fired, gotOld, gotNew)
	}

	// Delete delivers a nil new value.
	if err := s.DelRow("notes", "n1"); err != nil {
		t.Fatalf("DelRow failed: %v", err)
	}
	if fired != 2 || gotNew != nil {
		t.Errorf("delete notification: fired=%d new=%v", fired, gotNew)
	}
}

func TestRowAndTableListeners(t *testing.T) {
	s := testStore()
	var rowFires, tableFires int
	s.OnRow("notes", "n1", func(RowChange) { rowFires++ })
	s.OnTable("notes", func(rows map[string]RowChange) { tableFires += len(rows) })

	if err := s.SetRow("notes", "n1", Cells{"title": "a"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := s.SetRow("notes", "n2", Cells{"title": "b"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if rowFires != 1 {
		t.Errorf("row listener fired %d times, want 1", rowFires)
	}
	if tableFires != 2 {
		t.Errorf("table listener saw %d row changes, want 2", tableFires)
	}
}

func TestUnsubscribe(t *testing.T) {
	s := testStore()
	fired := 0
	unsub := s.OnTransaction(func(*Changes) { fired++ })
	unsub()
	unsub() // double unsubscribe is safe
	if err := s.SetRow("notes", "n1", Cells{"title": "a"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("unsubscribed listener fired %d times", fired)
	}
}

func TestRowIDsSorted(t *testing.T) {
	s := testStore()
	for _, id := range []string{"c", "a", "b"} {
		if err := s.SetRow("folders", id, Cells{"name": id}); err != nil {
			t.Fatalf("SetRow failed: %v", err)
		}
	}
	ids := s.RowIDs("folders")
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("RowIDs = %v, want [a b c]", ids)
	}
}
