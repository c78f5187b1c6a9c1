package observability

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"graphstore/pkg/graph"
)

// OpCreate marks an entry that carries a whole record inserted after seeding.
// Its value is the serialized record.
const OpCreate graph.PatchOp = "create"

// JournalEntry is one committed patch together with the record it targeted.
type JournalEntry struct {
	Type     string        `json:"type"`
	ID       any           `json:"id"`
	Op       graph.PatchOp `json:"op"`
	Path     string        `json:"path"`
	Value    any           `json:"value,omitempty"`
	OldValue any           `json:"old_value,omitempty"`
	At       time.Time     `json:"at"`
}

// Patch returns the patch carried by the entry.
func (e JournalEntry) Patch() graph.Patch {
	return graph.Patch{Op: e.Op, Path: e.Path, Value: e.Value, OldValue: e.OldValue}
}

// Journal writes patches as JSON lines and retains them for inspection. Its
// Record method is a graph.PatchListener and its RecordCreate method is a
// graph.AddListener.
type Journal struct {
	mu      sync.Mutex
	entries []JournalEntry
	enc     *json.Encoder
	err     error
	nowFn   func() time.Time
}

// NewJournal constructs a journal that writes entries to w. A nil writer only
// retains entries in memory.
func NewJournal(w io.Writer) *Journal {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &Journal{
		enc:   enc,
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

// Record appends p for rec.
func (j *Journal) Record(p graph.Patch, rec *graph.Record) {
	j.append(JournalEntry{
		Type:     rec.Type(),
		ID:       rec.ID(),
		Op:       p.Op,
		Path:     p.Path,
		Value:    p.Value,
		OldValue: p.OldValue,
		At:       j.nowFn(),
	})
}

// RecordCreate appends the serialized form of a newly inserted record, so
// targets created by reference write-through reach replicas before the
// patches that point at them.
func (j *Journal) RecordCreate(rec *graph.Record) {
	j.append(JournalEntry{
		Type:  rec.Type(),
		ID:    rec.ID(),
		Op:    OpCreate,
		Value: rec.Serialize(),
		At:    j.nowFn(),
	})
}

func (j *Journal) append(entry JournalEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
	if j.enc != nil && j.err == nil {
		if err := j.enc.Encode(entry); err != nil {
			j.err = fmt.Errorf("journal %s %v %s: %w", entry.Type, entry.ID, entry.Path, err)
		}
	}
}

// Entries returns a copy of all recorded entries.
func (j *Journal) Entries() []JournalEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Err returns the first write failure. Entries keep being retained after a
// failure but are no longer written.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// ReadJournal decodes JSON-lines entries from r. Numbers decode as float64,
// which the registry resolves to the same records as their integer forms.
func ReadJournal(r io.Reader) ([]JournalEntry, error) {
	dec := json.NewDecoder(bufio.NewReader(r))
	var out []JournalEntry
	for {
		var e JournalEntry
		err := dec.Decode(&e)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("journal entry %d: %w", len(out), err)
		}
		out = append(out, e)
	}
}

// Replay applies entries in order to the matching records of reg inside one
// batch. Create entries are added, upserting into a record that already
// exists. It fails on the first entry whose record is absent or rejects the
// patch.
func Replay(reg *graph.Registry, entries []JournalEntry) error {
	return reg.Batch(func() error {
		for i, e := range entries {
			if e.Op == OpCreate {
				data, ok := e.Value.(map[string]any)
				if !ok {
					return fmt.Errorf("replay entry %d: create %s %v: value is %T, not an object", i, e.Type, e.ID, e.Value)
				}
				if _, err := reg.Add(data, e.Type); err != nil {
					return fmt.Errorf("replay entry %d: %w", i, err)
				}
				continue
			}
			rec := reg.Find(e.Type, e.ID)
			if rec == nil || !graph.SameID(rec.ID(), e.ID) {
				return fmt.Errorf("replay entry %d: %s %v not found", i, e.Type, e.ID)
			}
			if err := rec.ApplyPatch(e.Patch()); err != nil {
				return fmt.Errorf("replay entry %d: %w", i, err)
			}
		}
		return nil
	})
}
