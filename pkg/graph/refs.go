package graph

import (
	"fmt"
	"slices"
)

// RefList is the live read form of a sequence reference. It reads the
// record's stored ids on every call, and every edit rewrites them as a new
// sequence and emits a single replace patch.
type RefList struct {
	record *Record
	key    string
}

func (l *RefList) ids() []any {
	if l == nil {
		return nil
	}
	raw, _ := l.record.data[l.key].([]any)
	return raw
}

func (l *RefList) target() string {
	return l.record.refs[l.key].Model
}

// Len returns the number of stored ids, resolvable or not.
func (l *RefList) Len() int { return len(l.ids()) }

// IDs returns a copy of the stored ids.
func (l *RefList) IDs() []any { return slices.Clone(l.ids()) }

// At resolves the element at i. Out of range or unresolvable ids yield nil.
func (l *RefList) At(i int) *Record {
	ids := l.ids()
	if i < 0 || i >= len(ids) || l.record.owner == nil {
		return nil
	}
	return l.record.owner.lookup(l.target(), ids[i])
}

// Records resolves every element; unresolvable ids yield nil entries.
func (l *RefList) Records() []*Record {
	ids := l.ids()
	out := make([]*Record, len(ids))
	for i := range ids {
		out[i] = l.At(i)
	}
	return out
}

// IndexOf returns the position of rec, compared by identity, or -1.
func (l *RefList) IndexOf(rec *Record) int {
	if rec == nil {
		return -1
	}
	for i := range l.ids() {
		if l.At(i) == rec {
			return i
		}
	}
	return -1
}

// Contains reports whether rec is referenced by the list.
func (l *RefList) Contains(rec *Record) bool { return l.IndexOf(rec) >= 0 }

// Set overwrites element i. Setting at Len appends.
func (l *RefList) Set(i int, value any) error {
	n := l.Len()
	if i < 0 || i > n {
		return l.record.fieldError(l.key, fmt.Errorf("index %d out of range [0,%d]", i, n))
	}
	deleteCount := 1
	if i == n {
		deleteCount = 0
	}
	_, err := l.Splice(i, deleteCount, value)
	return err
}

// Append adds values at the end.
func (l *RefList) Append(values ...any) error {
	_, err := l.Splice(l.Len(), 0, values...)
	return err
}

// RemoveAt removes element i and returns its resolved record.
func (l *RefList) RemoveAt(i int) (*Record, error) {
	n := l.Len()
	if i < 0 || i >= n {
		return nil, l.record.fieldError(l.key, fmt.Errorf("index %d out of range [0,%d)", i, n))
	}
	removed, err := l.Splice(i, 1)
	if err != nil {
		return nil, err
	}
	return removed[0], nil
}

// Splice removes deleteCount elements at start and inserts values there. A
// negative start counts from the end; both bounds are clamped. Inserted values
// follow the reference assignment rules: plain objects are upserted and
// records are type checked. It returns the resolved removed elements.
func (l *RefList) Splice(start, deleteCount int, values ...any) ([]*Record, error) {
	if l == nil {
		return nil, fmt.Errorf("splice: nil reference list")
	}
	ids := l.ids()
	n := len(ids)
	if start < 0 {
		start = max(n+start, 0)
	}
	start = min(start, n)
	deleteCount = min(max(deleteCount, 0), n-start)

	inserted := make([]any, 0, len(values))
	for _, v := range values {
		id, err := l.record.refID(l.key, l.target(), v)
		if err != nil {
			return nil, err
		}
		inserted = append(inserted, id)
	}

	removed := make([]*Record, 0, deleteCount)
	for i := start; i < start+deleteCount; i++ {
		removed = append(removed, l.At(i))
	}

	if deleteCount == 0 && len(inserted) == 0 {
		return removed, nil
	}
	next := make([]any, 0, n-deleteCount+len(inserted))
	next = append(next, ids[:start]...)
	next = append(next, inserted...)
	next = append(next, ids[start+deleteCount:]...)

	l.record.writeRef(l.key, next)
	return removed, nil
}
