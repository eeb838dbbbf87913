package vm

import "testing"

func TestStringTable(t *testing.T) {
	tbl := NewStringTable()
	if tbl.Len() != 0 {
		t.Fatalf("new table Len = %d", tbl.Len())
	}

	a, b, c := "alpha", "beta", "gamma"
	tbl.Insert(30, &c)
	tbl.Insert(10, &a)
	tbl.Insert(20, &b)

	if tbl.Len() != 3 {
		t.Fatalf("Len = %d, want 3", tbl.Len())
	}
	for _, tt := range []struct {
		id   int32
		want string
	}{{10, "alpha"}, {20, "beta"}, {30, "gamma"}} {
		s, ok := tbl.Get(tt.id)
		if !ok {
			t.Errorf("Get(%d): missing", tt.id)
			continue
		}
		if *s != tt.want {
			t.Errorf("Get(%d) = %q, want %q", tt.id, *s, tt.want)
		}
	}

	if _, ok := tbl.Get(15); ok {
		t.Error("Get(15) found a phantom entry")
	}

	// Inserting an existing id replaces the entry.
	d := "delta"
	tbl.Insert(20, &d)
	if tbl.Len() != 3 {
		t.Errorf("Len after replace = %d, want 3", tbl.Len())
	}
	if s, _ := tbl.Get(20); *s != "delta" {
		t.Errorf("Get(20) after replace = %q", *s)
	}
}
