package graph

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"graphstore/internal/reactive"
)

// Registry owns a set of records unique by (type, id), kept in insertion order
// and indexed by type and id.
type Registry struct {
	schema  *Schema
	records []*Record
	index   map[string]map[string]*Record
	views   *reactive.Views[[]*Record]
	batcher *reactive.Batch
	patches listeners
	adds    addHooks
	seeding bool
	logger  *slog.Logger
	metrics MetricsRecorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the instrumentation sink.
func WithMetrics(m MetricsRecorder) Option {
	return func(r *Registry) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithPatchHook registers fn for the patches of every owned record.
func WithPatchHook(fn PatchListener) Option {
	return func(r *Registry) {
		if fn != nil {
			r.patches.add(fn)
		}
	}
}

// WithAddHook registers fn for every record inserted after seeding.
func WithAddHook(fn AddListener) Option {
	return func(r *Registry) {
		if fn != nil {
			r.adds.add(fn)
		}
	}
}

// NewRegistry builds a registry and seeds it with plain records. Each seed's
// type comes from its type tag. Seeds are added in one batch, so references
// between them resolve regardless of order. Add hooks do not see seeds.
func NewRegistry(schema *Schema, seed []map[string]any, opts ...Option) (*Registry, error) {
	if schema == nil {
		var err error
		if schema, err = NewSchema(); err != nil {
			return nil, err
		}
	}
	r := &Registry{
		schema:  schema,
		index:   make(map[string]map[string]*Record),
		views:   reactive.NewViews[[]*Record](),
		batcher: reactive.NewBatch(),
		logger:  slog.New(slog.DiscardHandler),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(seed) == 0 {
		return r, nil
	}
	start := time.Now()
	r.seeding = true
	err := r.batch(func() error {
		for i, data := range seed {
			if _, err := r.upsert(data, ""); err != nil {
				return fmt.Errorf("seed record %d: %w", i, err)
			}
		}
		return nil
	})
	r.seeding = false
	r.observe("seed", err, start)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Schema returns the registration table used to construct records.
func (r *Registry) Schema() *Schema { return r.schema }

// Add inserts a plain map[string]any or a *Record. typ overrides the type tag
// of plain data. When a record with the same (type, id) is already held, the
// input is merged into it and the existing record is returned.
func (r *Registry) Add(input any, typ string) (*Record, error) {
	start := time.Now()
	var out *Record
	err := r.batch(func() error {
		var err error
		out, err = r.upsert(input, typ)
		return err
	})
	r.observe("add", err, start)
	return out, err
}

// AddAll adds every input in order inside one batch and returns the resulting
// records. It stops at the first failure.
func (r *Registry) AddAll(inputs []any, typ string) ([]*Record, error) {
	start := time.Now()
	out := make([]*Record, 0, len(inputs))
	err := r.batch(func() error {
		for i, in := range inputs {
			rec, err := r.upsert(in, typ)
			if err != nil {
				return fmt.Errorf("add item %d: %w", i, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	r.observe("add_all", err, start)
	return out, err
}

// Find returns the record of typ with id. An empty id returns the first record
// of typ in insertion order. Absent records yield nil.
func (r *Registry) Find(typ string, id any) *Record {
	if isEmptyID(id) {
		if all := r.members(typ); len(all) > 0 {
			return all[0]
		}
		return nil
	}
	return r.lookup(typ, id)
}

// FindAll returns the records of typ in insertion order. The underlying view
// is memoized until a record of typ is added or removed.
func (r *Registry) FindAll(typ string) []*Record {
	return slices.Clone(r.members(typ))
}

// Count returns the number of records of typ.
func (r *Registry) Count(typ string) int { return len(r.members(typ)) }

// Len returns the number of records held.
func (r *Registry) Len() int { return len(r.records) }

// Records returns every record in insertion order.
func (r *Registry) Records() []*Record { return slices.Clone(r.records) }

// Types returns the types that currently have records, in first-insertion order.
func (r *Registry) Types() []string {
	var out []string
	for _, rec := range r.records {
		if !slices.Contains(out, rec.Type()) {
			out = append(out, rec.Type())
		}
	}
	return out
}

// Remove detaches the record of typ with id (first of typ for an empty id)
// and returns it, or nil when nothing matched.
func (r *Registry) Remove(typ string, id any) *Record {
	rec := r.Find(typ, id)
	if rec == nil {
		return nil
	}
	start := time.Now()
	_ = r.batch(func() error {
		r.detach(rec)
		return nil
	})
	r.observe("remove", nil, start)
	return rec
}

// RemoveAll detaches every record of typ.
func (r *Registry) RemoveAll(typ string) []*Record {
	removed := r.FindAll(typ)
	if len(removed) == 0 {
		return nil
	}
	start := time.Now()
	_ = r.batch(func() error {
		for _, rec := range removed {
			r.detach(rec)
		}
		return nil
	})
	r.observe("remove_all", nil, start)
	return removed
}

// Reset detaches every record.
func (r *Registry) Reset() {
	if len(r.records) == 0 {
		return
	}
	start := time.Now()
	_ = r.batch(func() error {
		for _, rec := range slices.Clone(r.records) {
			r.detach(rec)
		}
		return nil
	})
	r.views.Flush()
	r.observe("reset", nil, start)
}

// Serialize returns every record's serialized form in insertion order.
func (r *Registry) Serialize() []map[string]any {
	out := make([]map[string]any, len(r.records))
	for i, rec := range r.records {
		out[i] = rec.Serialize()
	}
	return out
}

// MarshalJSON encodes the serialized form.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Serialize())
}

// PatchListen registers fn for the patches of every owned record and returns a
// func that removes it.
func (r *Registry) PatchListen(fn PatchListener) func() {
	return r.patches.add(fn)
}

// OnAdd registers fn for every record inserted from now on, including records
// upserted through nested data, and returns a func that removes it.
func (r *Registry) OnAdd(fn AddListener) func() {
	return r.adds.add(fn)
}

// OnSettle registers fn to run once after each outermost mutation batch that
// changed the registry.
func (r *Registry) OnSettle(fn func()) func() {
	return r.batcher.Subscribe(fn)
}

// Batch runs fn as one mutation batch: settle observers run once, after fn.
func (r *Registry) Batch(fn func() error) error {
	return r.batch(fn)
}

func (r *Registry) batch(fn func() error) error {
	return r.batcher.Run(fn)
}

func (r *Registry) upsert(input any, typ string) (*Record, error) {
	switch v := input.(type) {
	case nil:
		return nil, nil
	case *Record:
		if v == nil {
			return nil, nil
		}
		return r.adopt(v)
	case map[string]any:
		return r.addData(v, typ)
	default:
		return nil, fmt.Errorf("add: unsupported input %T", input)
	}
}

func (r *Registry) addData(data map[string]any, typ string) (*Record, error) {
	if typ == "" {
		typ = r.schema.TypeOf(data)
	}
	model := r.schema.Model(typ)
	if err := model.prepare(); err != nil {
		return nil, err
	}
	// The hook may supply or rewrite the id, so it runs before the lookup.
	pre, err := model.preprocess(data)
	if err != nil {
		r.logger.Warn("record rejected", "type", model.Type, "error", err)
		return nil, err
	}
	if id := pre[model.IDAttribute]; !isEmptyID(id) {
		if existing := r.lookup(model.Type, id); existing != nil {
			r.logger.Debug("upsert", "type", model.Type, "id", id)
			if _, err := existing.Update(pre); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}
	rec, err := newPreprocessedRecord(model, pre, r, nil)
	if err != nil {
		r.logger.Warn("record rejected", "type", model.Type, "error", err)
		return nil, err
	}
	// Nested data may already have upserted a record under the same key. Only
	// the incoming fields are merged; defaults and unset references are not.
	if existing := r.lookup(rec.Type(), rec.ID()); existing != nil {
		r.logger.Debug("upsert", "type", model.Type, "id", rec.ID())
		if _, err := existing.Update(rec.incoming(pre)); err != nil {
			return nil, err
		}
		return existing, nil
	}
	r.insert(rec)
	return rec, nil
}

// adopt inserts an existing record. A record held by another registry is
// moved out of it first.
func (r *Registry) adopt(rec *Record) (*Record, error) {
	if cur := rec.Registry(); cur != nil && cur != r {
		_ = cur.batch(func() error {
			cur.detach(rec)
			return nil
		})
	}
	if existing := r.lookup(rec.Type(), rec.ID()); existing != nil {
		if existing != rec {
			r.logger.Debug("upsert", "type", rec.Type(), "id", rec.ID())
			if _, err := existing.UpdateFrom(rec); err != nil {
				return nil, err
			}
		}
		return existing, nil
	}
	if isEmptyID(rec.ID()) {
		return nil, MissingIDError{Type: rec.Type(), Attribute: rec.model.IDAttribute}
	}
	rec.owner = r
	r.insert(rec)
	return rec, nil
}

func (r *Registry) insert(rec *Record) {
	typ := rec.Type()
	byID, ok := r.index[typ]
	if !ok {
		byID = make(map[string]*Record)
		r.index[typ] = byID
	}
	byID[idKey(rec.ID())] = rec
	r.records = append(r.records, rec)
	r.changed(typ)
	r.logger.Debug("record added", "type", typ, "id", rec.ID())
	if !r.seeding {
		r.adds.dispatch(rec)
	}
}

func (r *Registry) detach(rec *Record) {
	i := slices.Index(r.records, rec)
	if i < 0 {
		return
	}
	typ := rec.Type()
	r.records = slices.Delete(r.records, i, i+1)
	if byID := r.index[typ]; byID != nil {
		delete(byID, idKey(rec.ID()))
		if len(byID) == 0 {
			delete(r.index, typ)
		}
	}
	rec.owner = nil
	r.changed(typ)
	r.logger.Debug("record removed", "type", typ, "id", rec.ID())
}

func (r *Registry) changed(typ string) {
	r.views.Invalidate(typ)
	r.metrics.SetRecordCount(typ, len(r.index[typ]))
	r.batcher.Touch()
}

func (r *Registry) lookup(typ string, id any) *Record {
	if isEmptyID(id) {
		return nil
	}
	return r.index[typ][idKey(id)]
}

func (r *Registry) members(typ string) []*Record {
	return r.views.Get(typ, func() []*Record {
		var out []*Record
		for _, rec := range r.records {
			if rec.Type() == typ {
				out = append(out, rec)
			}
		}
		return out
	})
}

func (r *Registry) onPatch(p Patch, rec *Record) {
	r.metrics.RecordPatch(rec.Type(), p.Op)
	r.patches.dispatch(p, rec)
	r.batcher.Touch()
}

func (r *Registry) observe(op string, err error, start time.Time) {
	r.metrics.Observe(op, err == nil, time.Since(start))
}
