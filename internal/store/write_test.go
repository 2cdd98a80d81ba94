package store

import (
	"context"
	"errors"
	"testing"

	"github.com/roach88/connect/internal/commit"
	"github.com/roach88/connect/internal/ir"
)

func TestApply_InsertUpdateDelete(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	n, err := r.Apply(ctx, ir.ChangeSet{Inserted: []ir.Record{
		user("u1", "a@example.com", "A"),
		user("u2", "b@example.com", "B"),
	}})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if n != 2 {
		t.Errorf("affected = %d, expected 2", n)
	}

	if _, err := r.Apply(ctx, ir.ChangeSet{Updated: []ir.Record{
		{ID: "u1", Resource: "User", Attributes: ir.Object{"role": ir.String("admin")}},
	}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	got, err := r.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Attributes["name"] != ir.String("A") || got.Attributes["role"] != ir.String("admin") {
		t.Errorf("attributes not merged: %v", got.Attributes)
	}
	if got.Seq != 2 {
		t.Errorf("seq = %d, expected 2", got.Seq)
	}

	if _, err := r.Apply(ctx, ir.ChangeSet{Deleted: []ir.Record{{ID: "u2", Resource: "User"}}}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := r.Get(ctx, "u2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestExecute_ReportsMergedInsert(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()
	save := commit.Request{Kind: commit.RequestSave}

	res, err := r.Execute(ctx, save, ir.ChangeSet{Inserted: []ir.Record{user("id-a", "a@x", "A")}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Merged) != 0 {
		t.Errorf("fresh insert reported as merged: %v", res.Merged)
	}

	res, err = r.Execute(ctx, save, ir.ChangeSet{Inserted: []ir.Record{user("id-b", "a@x", "B")}})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Merged["id-b"]; got != "id-a" {
		t.Fatalf("Merged[id-b] = %q, expected id-a", got)
	}

	if _, err := r.Execute(ctx, save, ir.ChangeSet{Updated: []ir.Record{
		{ID: res.Merged["id-b"], Resource: "User", Attributes: ir.Object{"name": ir.String("C")}},
	}}); err != nil {
		t.Fatalf("update of surviving row failed: %v", err)
	}
	got, err := r.Get(ctx, "id-a")
	if err != nil {
		t.Fatal(err)
	}
	if got.Attributes["name"] != ir.String("C") {
		t.Errorf("name = %v, expected C", got.Attributes["name"])
	}
}

func TestApply_InsertWithExistingKeyMerges(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, ir.ChangeSet{Inserted: []ir.Record{user("u1", "a@example.com", "A")}}); err != nil {
		t.Fatal(err)
	}
	dup := user("u9", "a@example.com", "Renamed")
	dup.Attributes["age"] = ir.Int(30)
	if _, err := r.Apply(ctx, ir.ChangeSet{Inserted: []ir.Record{dup}}); err != nil {
		t.Fatalf("duplicate-key insert failed: %v", err)
	}

	records, err := r.Fetch(ctx, "User", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID != "u1" {
		t.Errorf("existing row keeps its id, got %q", rec.ID)
	}
	if rec.Attributes["name"] != ir.String("Renamed") || rec.Attributes["age"] != ir.Int(30) {
		t.Errorf("last writer should win per attribute: %v", rec.Attributes)
	}
}

func TestApply_UnkeyedRecordsNeverCollide(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	logs := []ir.Record{
		{ID: "l1", Resource: "Log", Attributes: ir.Object{"message": ir.String("same")}},
		{ID: "l2", Resource: "Log", Attributes: ir.Object{"message": ir.String("same")}},
	}
	if _, err := r.Apply(ctx, ir.ChangeSet{Inserted: logs}); err != nil {
		t.Fatal(err)
	}
	n, err := r.Count(ctx, "Log")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("count = %d, expected 2", n)
	}
}

func TestApply_UpdateMissingRecordRollsBack(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	_, err := r.Apply(ctx, ir.ChangeSet{
		Inserted: []ir.Record{user("u1", "a@example.com", "A")},
		Updated:  []ir.Record{{ID: "ghost", Resource: "User", Attributes: ir.Object{"name": ir.String("X")}}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	n, err := r.Count(ctx, "User")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("failed change set must not partially apply, found %d records", n)
	}
}

func TestApply_UpdateRecomputesKey(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	if _, err := r.Apply(ctx, ir.ChangeSet{Inserted: []ir.Record{
		user("u1", "a@example.com", "A"),
		user("u2", "b@example.com", "B"),
	}}); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Apply(ctx, ir.ChangeSet{Updated: []ir.Record{
		{ID: "u1", Resource: "User", Attributes: ir.Object{"email": ir.String("c@example.com")}},
	}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	got, err := r.Get(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Key != `["c@example.com"]` {
		t.Errorf("key = %q, expected recomputed key", got.Key)
	}

	// Moving onto another record's key violates uniqueness.
	if _, err := r.Apply(ctx, ir.ChangeSet{Updated: []ir.Record{
		{ID: "u1", Resource: "User", Attributes: ir.Object{"email": ir.String("b@example.com")}},
	}}); err == nil {
		t.Error("expected unique constraint violation")
	}
}

func TestApply_BatchUpdate(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	a := user("u1", "a@example.com", "A")
	a.Attributes["active"] = ir.Bool(false)
	b := user("u2", "b@example.com", "B")
	b.Attributes["active"] = ir.Bool(true)
	if _, err := r.Apply(ctx, ir.ChangeSet{Inserted: []ir.Record{a, b}}); err != nil {
		t.Fatal(err)
	}

	res, err := r.Execute(ctx, commit.Request{Kind: commit.RequestBatchUpdate}, ir.ChangeSet{
		Batch: &ir.BatchUpdate{
			Resource: "User",
			Filter:   ir.Object{"active": ir.Bool(false)},
			Values:   ir.Object{"archived": ir.Bool(true)},
		},
	})
	if err != nil {
		t.Fatalf("batch update failed: %v", err)
	}
	if res.Affected != 1 {
		t.Errorf("affected = %d, expected 1", res.Affected)
	}

	archived, err := r.Fetch(ctx, "User", ir.Object{"archived": ir.Bool(true)})
	if err != nil {
		t.Fatal(err)
	}
	if len(archived) != 1 || archived[0].ID != "u1" {
		t.Errorf("expected only u1 archived, got %v", archived)
	}
}

func TestFetch_OrderedBySeq(t *testing.T) {
	r := createTestRecords(t)
	ctx := context.Background()

	for _, rec := range []ir.Record{
		user("u3", "c@example.com", "C"),
		user("u1", "a@example.com", "A"),
		user("u2", "b@example.com", "B"),
	} {
		if _, err := r.Apply(ctx, ir.ChangeSet{Inserted: []ir.Record{rec}}); err != nil {
			t.Fatal(err)
		}
	}

	records, err := r.Fetch(ctx, "User", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"u3", "u1", "u2"}
	if len(records) != len(want) {
		t.Fatalf("got %d records, expected %d", len(records), len(want))
	}
	for i, id := range want {
		if records[i].ID != id {
			t.Errorf("records[%d] = %s, expected %s", i, records[i].ID, id)
		}
	}
}
