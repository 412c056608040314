package memdb

import (
	"testing"

	"github.com/roach88/docbind"
)

func collectIDs(snap docbind.QuerySnapshot) []string {
	var ids []string
	for _, doc := range snap.Docs() {
		ids = append(ids, doc.ID())
	}
	return ids
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func seedMessages(t *testing.T, d *DB) {
	t.Helper()
	mustSet(t, d, "rooms/r1/messages/m1", map[string]any{"text": "one", "ts": int64(10), "pinned": false})
	mustSet(t, d, "rooms/r1/messages/m2", map[string]any{"text": "two", "ts": int64(20), "pinned": true})
	mustSet(t, d, "rooms/r1/messages/m3", map[string]any{"text": "three", "ts": int64(30), "pinned": false})
}

func TestQuery_InitialSnapshotAllAdded(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var snaps []docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").Snapshots(func(s docbind.QuerySnapshot) {
		snaps = append(snaps, s)
	})
	defer unsub()

	if len(snaps) != 1 {
		t.Fatalf("expected 1 initial snapshot, got %d", len(snaps))
	}
	snap := snaps[0]
	if got := collectIDs(snap); !equalIDs(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("docs = %v, want [m1 m2 m3]", got)
	}
	if len(snap.Changes()) != len(snap.Docs()) {
		t.Errorf("initial changes = %d, want %d", len(snap.Changes()), len(snap.Docs()))
	}
	for i, c := range snap.Changes() {
		if c.Kind != docbind.ChangeAdded {
			t.Errorf("change %d kind = %v, want added", i, c.Kind)
		}
		if c.NewIndex != i || c.OldIndex != -1 {
			t.Errorf("change %d indices = (%d, %d), want (-1, %d)", i, c.OldIndex, c.NewIndex, i)
		}
	}
}

func TestQuery_DefaultOrderIsDocID(t *testing.T) {
	d := openTestDB(t)
	mustSet(t, d, "rooms/r1/messages/zz", map[string]any{"ts": int64(1)})
	mustSet(t, d, "rooms/r1/messages/aa", map[string]any{"ts": int64(2)})

	var last docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").Snapshots(func(s docbind.QuerySnapshot) {
		last = s
	})
	defer unsub()

	if got := collectIDs(last); !equalIDs(got, []string{"aa", "zz"}) {
		t.Errorf("docs = %v, want [aa zz]", got)
	}
}

func TestQuery_WhereFilters(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var last docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").
		Where("pinned", "==", true).
		Snapshots(func(s docbind.QuerySnapshot) { last = s })
	defer unsub()

	if got := collectIDs(last); !equalIDs(got, []string{"m2"}) {
		t.Errorf("docs = %v, want [m2]", got)
	}
}

func TestQuery_WhereComparison(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var last docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").
		Where("ts", ">=", int64(20)).
		Snapshots(func(s docbind.QuerySnapshot) { last = s })
	defer unsub()

	if got := collectIDs(last); !equalIDs(got, []string{"m2", "m3"}) {
		t.Errorf("docs = %v, want [m2 m3]", got)
	}
}

func TestQuery_OrderByDescAndLimit(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var last docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").
		OrderBy("ts", true).
		Limit(2).
		Snapshots(func(s docbind.QuerySnapshot) { last = s })
	defer unsub()

	if got := collectIDs(last); !equalIDs(got, []string{"m3", "m2"}) {
		t.Errorf("docs = %v, want [m3 m2]", got)
	}
}

func TestQuery_BuilderIsImmutable(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	base := d.Collection("rooms/r1/messages")
	narrowed := base.Where("pinned", "==", true)

	var baseSnap, narrowedSnap docbind.QuerySnapshot
	unsub1 := base.Snapshots(func(s docbind.QuerySnapshot) { baseSnap = s })
	defer unsub1()
	unsub2 := narrowed.Snapshots(func(s docbind.QuerySnapshot) { narrowedSnap = s })
	defer unsub2()

	if got := collectIDs(baseSnap); !equalIDs(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("base docs = %v, want [m1 m2 m3]", got)
	}
	if got := collectIDs(narrowedSnap); !equalIDs(got, []string{"m2"}) {
		t.Errorf("narrowed docs = %v, want [m2]", got)
	}
}

func TestQuery_AddDeliversIncrementalChange(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var snaps []docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").Snapshots(func(s docbind.QuerySnapshot) {
		snaps = append(snaps, s)
	})
	defer unsub()

	mustSet(t, d, "rooms/r1/messages/m0", map[string]any{"text": "zero", "ts": int64(5)})

	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	snap := snaps[1]
	if got := collectIDs(snap); !equalIDs(got, []string{"m0", "m1", "m2", "m3"}) {
		t.Errorf("docs = %v, want [m0 m1 m2 m3]", got)
	}
	if len(snap.Changes()) != 1 {
		t.Fatalf("expected 1 change, got %d", len(snap.Changes()))
	}
	c := snap.Changes()[0]
	if c.Kind != docbind.ChangeAdded || c.OldIndex != -1 || c.NewIndex != 0 {
		t.Errorf("change = %+v, want added at index 0", c)
	}
}

func TestQuery_RemoveDeliversIncrementalChange(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var snaps []docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").Snapshots(func(s docbind.QuerySnapshot) {
		snaps = append(snaps, s)
	})
	defer unsub()

	if err := d.Delete("rooms/r1/messages/m2"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	snap := snaps[len(snaps)-1]
	if got := collectIDs(snap); !equalIDs(got, []string{"m1", "m3"}) {
		t.Errorf("docs = %v, want [m1 m3]", got)
	}
	if len(snap.Changes()) != 1 {
		t.Fatalf("expected 1 change, got %d", len(snap.Changes()))
	}
	c := snap.Changes()[0]
	if c.Kind != docbind.ChangeRemoved || c.OldIndex != 1 || c.NewIndex != -1 {
		t.Errorf("change = %+v, want removed from index 1", c)
	}
}

func TestQuery_ModifyInPlace(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var snaps []docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").Snapshots(func(s docbind.QuerySnapshot) {
		snaps = append(snaps, s)
	})
	defer unsub()

	mustSet(t, d, "rooms/r1/messages/m2", map[string]any{"text": "two!", "ts": int64(20), "pinned": true})

	snap := snaps[len(snaps)-1]
	if len(snap.Changes()) != 1 {
		t.Fatalf("expected 1 change, got %d", len(snap.Changes()))
	}
	c := snap.Changes()[0]
	if c.Kind != docbind.ChangeModified || c.OldIndex != 1 || c.NewIndex != 1 {
		t.Errorf("change = %+v, want modified in place at index 1", c)
	}
	if c.Doc.Data()["text"] != "two!" {
		t.Errorf("changed doc text = %v, want two!", c.Doc.Data()["text"])
	}
}

func TestQuery_ModifyMovesWithOrdering(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	var snaps []docbind.QuerySnapshot
	unsub := d.Collection("rooms/r1/messages").
		OrderBy("ts", false).
		Snapshots(func(s docbind.QuerySnapshot) { snaps = append(snaps, s) })
	defer unsub()

	// m1 jumps from the front to the back.
	mustSet(t, d, "rooms/r1/messages/m1", map[string]any{"text": "one", "ts": int64(99), "pinned": false})

	snap := snaps[len(snaps)-1]
	if got := collectIDs(snap); !equalIDs(got, []string{"m2", "m3", "m1"}) {
		t.Errorf("docs = %v, want [m2 m3 m1]", got)
	}
	if len(snap.Changes()) != 1 {
		t.Fatalf("expected 1 change, got %d", len(snap.Changes()))
	}
	c := snap.Changes()[0]
	if c.Kind != docbind.ChangeModified || c.OldIndex != 0 || c.NewIndex != 2 {
		t.Errorf("change = %+v, want modified moving 0 -> 2", c)
	}
}

func TestQuery_WriteOutsideFilterNoDelivery(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	delivered := 0
	unsub := d.Collection("rooms/r1/messages").
		Where("pinned", "==", true).
		Snapshots(func(docbind.QuerySnapshot) { delivered++ })
	defer unsub()

	// m1 stays unpinned, so the filtered result set is unchanged.
	mustSet(t, d, "rooms/r1/messages/m1", map[string]any{"text": "edited", "ts": int64(10), "pinned": false})

	if delivered != 1 {
		t.Errorf("expected only the initial delivery, got %d", delivered)
	}
}

func TestQuery_WriteInOtherCollectionNoDelivery(t *testing.T) {
	d := openTestDB(t)
	seedMessages(t, d)

	delivered := 0
	unsub := d.Collection("rooms/r1/messages").Snapshots(func(docbind.QuerySnapshot) {
		delivered++
	})
	defer unsub()

	mustSet(t, d, "rooms/r2/messages/x", map[string]any{"text": "elsewhere"})

	if delivered != 1 {
		t.Errorf("expected only the initial delivery, got %d", delivered)
	}
}

func TestQuery_InvalidFieldPanics(t *testing.T) {
	d := openTestDB(t)
	coll := d.Collection("rooms/r1/messages")

	cases := []struct {
		name string
		fn   func()
	}{
		{"sql injection field", func() { coll.Where("ts') OR 1=1 --", "==", 1) }},
		{"bad operator", func() { coll.Where("ts", "~=", 1) }},
		{"bad order field", func() { coll.OrderBy("a b", false) }},
		{"zero limit", func() { coll.Limit(0) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			tc.fn()
		})
	}
}
