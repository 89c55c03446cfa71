package store

import (
	"testing"

	"github.com/dukaforge/tabula/pkg/schema"
)

func ledgerTarget() *Store {
	return New(schema.Schema{
		"changes": schema.TableSchema{
			"row_id":  {Type: schema.CellString, Required: true},
			"table":   {Type: schema.CellString, Required: true},
			"deleted": {Type: schema.CellBool, Required: true},
			"updated": {Type: schema.CellBool, Required: true},
		},
	})
}

func TestLedgerRecordsWrites(t *testing.T) {
	source := testStore()
	target := ledgerTarget()
	l := NewLedger(source, target, "changes")
	defer l.Close()

	if err := source.SetRow("notes", "n1", Cells{"title": "a"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}

	rec, ok := target.GetRow("changes", LedgerRowID("notes", "n1"))
	if !ok {
		t.Fatal("insert not recorded")
	}
	if rec["row_id"] != "n1" || rec["table"] != "notes" {
		t.Errorf("record = %v", rec)
	}
	if rec["deleted"] != false || rec["updated"] != true {
		t.Errorf("insert flags = deleted:%v updated:%v", rec["deleted"], rec["updated"])
	}
}

func TestLedgerDeleteOverwritesUpdate(t *testing.T) {
	source := testStore()
	target := ledgerTarget()
	l := NewLedger(source, target, "changes")
	defer l.Close()

	if err := source.SetRow("notes", "n1", Cells{"title": "a"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := source.DelRow("notes", "n1"); err != nil {
		t.Fatalf("DelRow failed: %v", err)
	}

	// One pending record per entity: the delete replaced the insert.
	pending := l.Pending()
	if len(pending) != 1 {
		t.Fatalf("pending = %d records, want 1", len(pending))
	}
	rec := pending[LedgerRowID("notes", "n1")]
	if rec["deleted"] != true || rec["updated"] != false {
		t.Errorf("delete flags = deleted:%v updated:%v", rec["deleted"], rec["updated"])
	}
}

func TestLedgerAck(t *testing.T) {
	source := testStore()
	target := ledgerTarget()
	l := NewLedger(source, target, "changes")
	defer l.Close()

	if err := source.SetRow("notes", "n1", Cells{"title": "a"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	if err := l.Ack(LedgerRowID("notes", "n1")); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}
	if len(l.Pending()) != 0 {
		t.Error("record still pending after Ack")
	}
	// Acking an absent record is a no-op.
	if err := l.Ack("notes:ghost"); err != nil {
		t.Errorf("Ack of absent record failed: %v", err)
	}
}

func TestLedgerClose(t *testing.T) {
	source := testStore()
	target := ledgerTarget()
	l := NewLedger(source, target, "changes")

	if err := source.SetRow("notes", "n1", Cells{"title": "a"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}
	l.Close()
	if err := source.SetRow("notes", "n2", Cells{"title": "b"}); err != nil {
		t.Fatalf("SetRow failed: %v", err)
	}

	if len(l.Pending()) != 1 {
		t.Errorf("pending = %d, want only the pre-close record", len(l.Pending()))
	}
}

func TestLedgerMultiRowTransaction(t *testing.T) {
	source := testStore()
	target := ledgerTarget()
	l := NewLedger(source, target, "changes")
	defer l.Close()

	err := source.Transaction(func(tx *Tx) error {
		if err := tx.SetRow("notes", "n1", Cells{"title": "a"}); err != nil {
			return err
		}
		return tx.SetRow("folders", "f1", Cells{"name": "inbox"})
	})
	if err != nil {
		t.Fatalf("Transaction failed: %v", err)
	}

	pending := l.Pending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d records, want 2", len(pending))
	}
	if _, ok := pending[LedgerRowID("folders", "f1")]; !ok {
		t.Error("folders record missing")
	}
}
