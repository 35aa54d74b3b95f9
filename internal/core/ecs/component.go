package ecs

// Table is a dense slot-indexed component store. Rows live in a slice
// addressed by EntityID.Index, so pointers returned by Get are only valid
// until the next Set that grows the table.
type Table[T any] struct {
	rows  []T
	owner []EntityID
	count int
}

func NewTable[T any](capacity int) *Table[T] {
	return &Table[T]{
		rows:  make([]T, 0, capacity),
		owner: make([]EntityID, 0, capacity),
	}
}

// Set stores v for id, replacing whatever the slot held before.
func (t *Table[T]) Set(id EntityID, v T) *T {
	idx := int(id.Index())
	if idx >= len(t.rows) {
		n := idx + 1
		if n <= cap(t.rows) {
			t.rows = t.rows[:n]
			t.owner = t.owner[:n]
		} else {
			t.rows = append(t.rows, make([]T, n-len(t.rows))...)
			t.owner = append(t.owner, make([]EntityID, n-len(t.owner))...)
		}
	}
	if t.owner[idx].IsZero() {
		t.count++
	}
	t.owner[idx] = id
	t.rows[idx] = v
	return &t.rows[idx]
}

// Get returns the row for id. Stale handles whose slot has been reused
// by a newer generation are reported as missing.
func (t *Table[T]) Get(id EntityID) (*T, bool) {
	idx := int(id.Index())
	if id.IsZero() || idx >= len(t.rows) || t.owner[idx] != id {
		return nil, false
	}
	return &t.rows[idx], true
}

func (t *Table[T]) Remove(id EntityID) {
	idx := int(id.Index())
	if id.IsZero() || idx >= len(t.rows) || t.owner[idx] != id {
		return
	}
	var zero T
	t.rows[idx] = zero
	t.owner[idx] = 0
	t.count--
}

func (t *Table[T]) Has(id EntityID) bool {
	_, ok := t.Get(id)
	return ok
}

func (t *Table[T]) Len() int {
	return t.count
}

// Each visits occupied rows in slot order.
func (t *Table[T]) Each(fn func(EntityID, *T)) {
	for i := range t.rows {
		if !t.owner[i].IsZero() {
			fn(t.owner[i], &t.rows[i])
		}
	}
}
