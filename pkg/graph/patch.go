package graph

import (
	"slices"
	"strings"
)

// PatchOp is the kind of a committed mutation.
type PatchOp string

const (
	PatchAdd     PatchOp = "add"
	PatchReplace PatchOp = "replace"
	PatchRemove  PatchOp = "remove"
)

// Patch describes one committed field mutation. Reference fields carry their
// raw id form so patches stay serializable and can be replayed elsewhere.
type Patch struct {
	Op       PatchOp `json:"op"`
	Path     string  `json:"path"`
	Value    any     `json:"value,omitempty"`
	OldValue any     `json:"oldValue,omitempty"`
}

// Field returns the field name addressed by the patch path.
func (p Patch) Field() string { return strings.TrimPrefix(p.Path, "/") }

func fieldPath(key string) string { return "/" + key }

// PatchListener observes committed mutations of rec.
type PatchListener func(p Patch, rec *Record)

type listenerEntry struct {
	id int
	fn PatchListener
}

// listeners keeps registration order and supports removal while a dispatch is
// in progress.
type listeners struct {
	nextID  int
	entries []listenerEntry
}

func (l *listeners) add(fn PatchListener) func() {
	l.nextID++
	id := l.nextID
	l.entries = append(l.entries, listenerEntry{id: id, fn: fn})
	return func() {
		for i, e := range l.entries {
			if e.id == id {
				l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
				return
			}
		}
	}
}

func (l *listeners) dispatch(p Patch, rec *Record) {
	if len(l.entries) == 0 {
		return
	}
	snapshot := append([]listenerEntry(nil), l.entries...)
	for _, e := range snapshot {
		e.fn(p, rec)
	}
}

// AddListener observes records as they are inserted into a registry.
type AddListener func(rec *Record)

type addHooks struct {
	nextID  int
	entries map[int]AddListener
	order   []int
}

func (h *addHooks) add(fn AddListener) func() {
	if h.entries == nil {
		h.entries = make(map[int]AddListener)
	}
	h.nextID++
	id := h.nextID
	h.entries[id] = fn
	h.order = append(h.order, id)
	return func() {
		delete(h.entries, id)
		if i := slices.Index(h.order, id); i >= 0 {
			h.order = slices.Delete(h.order, i, i+1)
		}
	}
}

func (h *addHooks) dispatch(rec *Record) {
	for _, id := range slices.Clone(h.order) {
		if fn, ok := h.entries[id]; ok {
			fn(rec)
		}
	}
}
