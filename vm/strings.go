package vm

import "sort"

// StringTable maps string ids to shared backing text. Ids are the byte
// offsets assigned by the program image, so the table is sparse; entries are
// kept sorted by id and looked up by binary search.
//
// Every Value holding a resolved string shares the *string stored here, so
// resolving the same id twice never copies the text.
type StringTable struct {
	entries []stringEntry
}

type stringEntry struct {
	id  int32
	str *string
}

// NewStringTable creates an empty table.
func NewStringTable() *StringTable {
	return &StringTable{}
}

// Insert adds or replaces the string with the given id.
func (t *StringTable) Insert(id int32, s *string) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].id >= id
	})
	if i < len(t.entries) && t.entries[i].id == id {
		t.entries[i].str = s
		return
	}
	t.entries = append(t.entries, stringEntry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = stringEntry{id: id, str: s}
}

// Get returns the shared string for id, or false if the id is absent.
func (t *StringTable) Get(id int32) (*string, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].id >= id
	})
	if i < len(t.entries) && t.entries[i].id == id {
		return t.entries[i].str, true
	}
	return nil, false
}

// Len returns the number of entries.
func (t *StringTable) Len() int {
	return len(t.entries)
}
