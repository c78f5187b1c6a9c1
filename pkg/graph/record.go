package graph

import (
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"slices"
)

// owner is the view a record has of the registry holding it.
type owner interface {
	upsert(input any, typ string) (*Record, error)
	lookup(typ string, id any) *Record
	members(typ string) []*Record
	batch(fn func() error) error
	onPatch(p Patch, rec *Record)
}

// Record is one typed entity. Attributes are stored as given; reference fields
// are stored as ids and resolved through the owning registry on every read.
type Record struct {
	model     *ModelType
	data      map[string]any
	keys      []string
	refs      map[string]RefSpec
	owner     owner
	listeners listeners
	silent    bool
}

type recordConfig struct {
	registry *Registry
	listener PatchListener
}

// RecordOption configures NewRecord.
type RecordOption func(*recordConfig)

// InRegistry binds the new record to reg for reference resolution and id
// collision checks. The record is not inserted until it is passed to reg.Add.
func InRegistry(reg *Registry) RecordOption {
	return func(c *recordConfig) { c.registry = reg }
}

// WithPatchListener registers fn once construction has completed, so it never
// observes the initial field population.
func WithPatchListener(fn PatchListener) RecordOption {
	return func(c *recordConfig) { c.listener = fn }
}

// NewRecord constructs a record of model from data. Defaults are merged under
// the preprocessed data and an id is generated when missing.
func NewRecord(model *ModelType, data map[string]any, opts ...RecordOption) (*Record, error) {
	var cfg recordConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	var o owner
	if cfg.registry != nil {
		o = cfg.registry
	}
	return newRecord(model, data, o, cfg.listener)
}

func newRecord(model *ModelType, data map[string]any, o owner, listener PatchListener) (*Record, error) {
	if model == nil {
		return nil, fmt.Errorf("new record: nil model")
	}
	if err := model.prepare(); err != nil {
		return nil, err
	}
	pre, err := model.preprocess(data)
	if err != nil {
		return nil, err
	}
	return newPreprocessedRecord(model, pre, o, listener)
}

// newPreprocessedRecord builds a record from data that already went through
// the model's preprocess hook.
func newPreprocessedRecord(model *ModelType, pre map[string]any, o owner, listener PatchListener) (*Record, error) {
	initial := model.withDefaults(pre)
	r := &Record{
		model:  model,
		data:   make(map[string]any, len(initial)+len(model.Refs)),
		refs:   make(map[string]RefSpec, len(model.Refs)),
		owner:  o,
		silent: true,
	}
	maps.Copy(r.refs, model.Refs)

	id, err := r.ensureID(initial[model.IDAttribute])
	if err != nil {
		return nil, err
	}
	r.store(model.IDAttribute, id)
	for _, key := range model.RefKeys() {
		if _, ok := initial[key]; !ok {
			r.store(key, nil)
		}
	}
	if _, err := r.Update(initial); err != nil {
		return nil, err
	}
	if listener != nil {
		r.listeners.add(listener)
	}
	r.silent = false
	return r, nil
}

func (r *Record) ensureID(id any) (any, error) {
	if !isEmptyID(id) {
		return id, nil
	}
	if r.model.DisableAutoID {
		return nil, MissingIDError{Type: r.model.Type, Attribute: r.model.IDAttribute}
	}
	for range maxIDAttempts {
		candidate := r.model.IDGenerator.NextID()
		if isEmptyID(candidate) {
			return nil, fmt.Errorf("%s: id generator returned an empty id: %w", r.model.Type, ErrMissingID)
		}
		if r.owner == nil || r.owner.lookup(r.model.Type, candidate) == nil {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("%s: no free id after %d attempts: %w", r.model.Type, maxIDAttempts, ErrMissingID)
}

// Type returns the record's model type.
func (r *Record) Type() string { return r.model.Type }

// Model returns the record's model declaration.
func (r *Record) Model() *ModelType { return r.model }

// ID returns the record's id.
func (r *Record) ID() any { return r.data[r.model.IDAttribute] }

// Registry returns the owning registry, or nil when the record is detached.
func (r *Record) Registry() *Registry {
	reg, _ := r.owner.(*Registry)
	return reg
}

// Get returns the raw stored value of key. Reference fields yield their ids.
func (r *Record) Get(key string) any { return cloneValue(r.data[key]) }

// Has reports whether key holds a stored value.
func (r *Record) Has(key string) bool {
	_, ok := r.data[key]
	return ok
}

// Keys returns the stored fields in first-assignment order.
func (r *Record) Keys() []string { return slices.Clone(r.keys) }

// Attributes returns the stored fields that are not references.
func (r *Record) Attributes() map[string]any {
	out := make(map[string]any, len(r.data))
	for k, v := range r.data {
		if _, isRef := r.refs[k]; isRef {
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// IsRef reports whether key is a local reference, declared or added at runtime.
func (r *Record) IsRef(key string) bool {
	_, ok := r.refs[key]
	return ok
}

// RefSpec returns the declaration of the local reference key.
func (r *Record) RefSpec(key string) (RefSpec, bool) {
	spec, ok := r.refs[key]
	return spec, ok
}

// RefID returns the raw id form of the reference key.
func (r *Record) RefID(key string) any {
	if !r.IsRef(key) {
		return nil
	}
	return cloneValue(r.data[key])
}

// Resolve returns the read form of key: the referenced *Record for a single
// reference, a *RefList for a sequence, the back-referencing records for an
// external reference and the stored value otherwise.
func (r *Record) Resolve(key string) any {
	if _, ok := r.model.ExternalRefs[key]; ok {
		return r.External(key)
	}
	spec, ok := r.refs[key]
	if !ok {
		return r.data[key]
	}
	if r.owner == nil {
		return nil
	}
	switch raw := r.data[key].(type) {
	case nil:
		return nil
	case []any:
		return &RefList{record: r, key: key}
	default:
		if rec := r.owner.lookup(spec.Model, raw); rec != nil {
			return rec
		}
		return nil
	}
}

// Ref resolves a single reference. It returns nil when the id does not
// resolve, the record is detached or key holds a sequence.
func (r *Record) Ref(key string) *Record {
	rec, _ := r.Resolve(key).(*Record)
	return rec
}

// RefList resolves a sequence reference. A declared many-reference that is
// still unset yields an empty list that can be appended to. Detached records
// yield nil.
func (r *Record) RefList(key string) *RefList {
	spec, ok := r.refs[key]
	if !ok || r.owner == nil {
		return nil
	}
	switch r.data[key].(type) {
	case []any:
		return &RefList{record: r, key: key}
	case nil:
		if spec.Many {
			return &RefList{record: r, key: key}
		}
	}
	return nil
}

// External scans the owning registry for records of the declared model whose
// property references r. Detached records have no back-references.
func (r *Record) External(key string) []*Record {
	ext, ok := r.model.ExternalRefs[key]
	if !ok || r.owner == nil {
		return nil
	}
	var out []*Record
	for _, cand := range r.owner.members(ext.Model) {
		switch v := cand.Resolve(ext.Property).(type) {
		case *Record:
			if v == r {
				out = append(out, cand)
			}
		case *RefList:
			if v.Contains(r) {
				out = append(out, cand)
			}
		}
	}
	return out
}

// Update applies every field of data except the type tag and, once set, the
// id. It returns the applied fields mapped to their read form. Fields are
// applied in sorted order inside one mutation batch; the first failure stops
// the update and is returned alongside what was applied so far.
func (r *Record) Update(data map[string]any) (map[string]any, error) {
	applied := make(map[string]any, len(data))
	err := r.inBatch(func() error {
		for _, key := range slices.Sorted(maps.Keys(data)) {
			if r.reserved(key) {
				continue
			}
			if key == r.model.IDAttribute && !isEmptyID(r.data[key]) {
				continue
			}
			val, err := r.Assign(key, data[key])
			if err != nil {
				return err
			}
			applied[key] = val
		}
		return nil
	})
	return applied, err
}

// UpdateFrom merges the fields of other into r. Runtime references of other
// are carried over as references. Updating a record from itself is a no-op.
func (r *Record) UpdateFrom(other *Record) (map[string]any, error) {
	if other == nil || other == r {
		return map[string]any{}, nil
	}
	applied := make(map[string]any, len(other.data))
	err := r.inBatch(func() error {
		for _, key := range other.keys {
			if other.reserved(key) || key == other.model.IDAttribute {
				continue
			}
			val := cloneValue(other.data[key])
			var (
				out any
				err error
			)
			if spec, isRef := other.refs[key]; isRef && !r.IsRef(key) {
				out, err = r.AssignRef(key, val, spec.Model)
			} else {
				out, err = r.Assign(key, val)
			}
			if err != nil {
				return err
			}
			applied[key] = out
		}
		return nil
	})
	return applied, err
}

// Assign stores value under key and returns its read form. References are
// translated to ids, upserting nested objects into the owning registry. A
// replace with an equal value emits no patch.
func (r *Record) Assign(key string, value any) (any, error) {
	if _, ok := r.model.ExternalRefs[key]; ok {
		return nil, r.fieldError(key, ErrImmutableExternalRef)
	}
	if r.reserved(key) {
		return nil, nil
	}
	if spec, ok := r.refs[key]; ok {
		return r.setRef(key, spec, value)
	}
	if key == r.model.IDAttribute {
		if cur := r.data[key]; !isEmptyID(cur) {
			if !SameID(cur, value) {
				return nil, r.fieldError(key, ErrImmutableID)
			}
			return cur, nil
		}
	}
	old, existed := r.data[key]
	r.store(key, value)
	if existed && reflect.DeepEqual(old, value) {
		return value, nil
	}
	op := PatchAdd
	if existed {
		op = PatchReplace
	}
	r.emit(Patch{Op: op, Path: fieldPath(key), Value: cloneValue(value), OldValue: old})
	return value, nil
}

// AssignRef declares key as a reference at runtime and assigns value to it.
// The target type is taken from the first record in value, falling back to
// typ. Declared references behave exactly like Assign.
func (r *Record) AssignRef(key string, value any, typ string) (any, error) {
	if _, ok := r.model.ExternalRefs[key]; ok {
		return nil, r.fieldError(key, ErrImmutableExternalRef)
	}
	if _, ok := r.refs[key]; ok {
		return r.Assign(key, value)
	}
	if key == r.model.IDAttribute || r.reserved(key) {
		return nil, r.fieldError(key, ErrImmutableID)
	}
	target := typ
	if first, ok := firstItem(value).(*Record); ok && first != nil {
		target = first.Type()
	}
	if target == "" {
		return nil, r.fieldError(key, ErrUnknownTarget)
	}
	_, many := asSlice(value)
	spec := RefSpec{Model: target, Many: many}
	raw, err := r.refIDs(key, spec, value)
	if err != nil {
		return nil, err
	}
	old := r.data[key]
	r.refs[key] = spec
	r.store(key, raw)
	r.emit(Patch{Op: PatchAdd, Path: fieldPath(key), Value: cloneValue(raw), OldValue: old})
	return r.Resolve(key), nil
}

// Unassign deletes key and emits a remove patch with the prior value. Absent
// keys are ignored. The id, the type tag and external references cannot be
// removed.
func (r *Record) Unassign(key string) error {
	if _, ok := r.model.ExternalRefs[key]; ok {
		return r.fieldError(key, ErrImmutableExternalRef)
	}
	if key == r.model.IDAttribute {
		return r.fieldError(key, ErrImmutableID)
	}
	old, ok := r.data[key]
	if !ok {
		return nil
	}
	delete(r.data, key)
	if i := slices.Index(r.keys, key); i >= 0 {
		r.keys = slices.Delete(r.keys, i, i+1)
	}
	r.emit(Patch{Op: PatchRemove, Path: fieldPath(key), OldValue: old})
	return nil
}

// Serialize flattens the record to plain data: attributes, reference ids and
// the type tag. External references are not included.
func (r *Record) Serialize() map[string]any {
	out := make(map[string]any, len(r.data)+1)
	for _, k := range r.keys {
		out[k] = cloneValue(r.data[k])
	}
	out[r.model.TypeAttribute] = r.model.Type
	return out
}

// MarshalJSON encodes the serialized form.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Serialize())
}

// PatchListen registers fn for every committed mutation and returns a func
// that removes it.
func (r *Record) PatchListen(fn PatchListener) func() {
	return r.listeners.add(fn)
}

// ApplyPatch replays p: add and replace assign the value, remove unassigns.
func (r *Record) ApplyPatch(p Patch) error {
	field := p.Field()
	switch p.Op {
	case PatchAdd, PatchReplace:
		_, err := r.Assign(field, p.Value)
		return err
	case PatchRemove:
		return r.Unassign(field)
	default:
		return r.fieldError(field, fmt.Errorf("unknown patch op %q", p.Op))
	}
}

func (r *Record) setRef(key string, spec RefSpec, value any) (any, error) {
	raw, err := r.refIDs(key, spec, value)
	if err != nil {
		return nil, err
	}
	r.writeRef(key, raw)
	if raw == nil {
		return nil, nil
	}
	return r.Resolve(key), nil
}

// writeRef stores raw ids and emits a patch chosen by presence: both absent
// emits nothing, otherwise add, remove or replace, with equal ids suppressed.
func (r *Record) writeRef(key string, raw any) {
	old := r.data[key]
	r.store(key, raw)
	var op PatchOp
	switch {
	case old == nil && raw == nil:
		return
	case old == nil:
		op = PatchAdd
	case raw == nil:
		op = PatchRemove
	default:
		if reflect.DeepEqual(old, raw) {
			return
		}
		op = PatchReplace
	}
	r.emit(Patch{Op: op, Path: fieldPath(key), Value: cloneValue(raw), OldValue: old})
}

// refIDs converts a reference value to its stored form: nil, an id or []any.
func (r *Record) refIDs(key string, spec RefSpec, value any) (any, error) {
	if list, ok := value.(*RefList); ok {
		if list == nil {
			return nil, nil
		}
		value = list.IDs()
	}
	if items, ok := asSlice(value); ok {
		ids := make([]any, 0, len(items))
		for _, item := range items {
			id, err := r.refID(key, spec.Model, item)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}
	id, err := r.refID(key, spec.Model, value)
	if err != nil || id == nil {
		return nil, err
	}
	if spec.Many {
		return []any{id}, nil
	}
	return id, nil
}

// refID reduces one reference element to an id. Plain objects are upserted
// into the owning registry under target, records are type checked and
// adopted by the registry, primitives pass through.
func (r *Record) refID(key, target string, item any) (any, error) {
	switch v := item.(type) {
	case nil:
		return nil, nil
	case *Record:
		if v == nil {
			return nil, nil
		}
		if target != "" && v.Type() != target {
			return nil, r.fieldError(key, TypeMismatchError{Field: key, Want: target, Got: v.Type()})
		}
		if r.owner != nil && v.owner != r.owner {
			if _, err := r.owner.upsert(v, target); err != nil {
				return nil, err
			}
		}
		return v.ID(), nil
	case map[string]any:
		if r.owner == nil {
			if id := v[DefaultIDAttribute]; !isEmptyID(id) {
				return id, nil
			}
			return nil, r.fieldError(key, ErrDetached)
		}
		rec, err := r.owner.upsert(v, target)
		if err != nil {
			return nil, err
		}
		if target != "" && rec.Type() != target {
			return nil, r.fieldError(key, TypeMismatchError{Field: key, Want: target, Got: rec.Type()})
		}
		return rec.ID(), nil
	default:
		return v, nil
	}
}

// incoming returns the stored form of the fields named by data, so references
// that were already upserted carry their ids instead of nested objects.
func (r *Record) incoming(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key := range data {
		if v, ok := r.data[key]; ok {
			out[key] = v
		}
	}
	return out
}

func (r *Record) store(key string, value any) {
	if _, ok := r.data[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.data[key] = value
}

func (r *Record) reserved(key string) bool {
	return key == r.model.TypeAttribute || (r.model.schemaTag != "" && key == r.model.schemaTag)
}

func (r *Record) emit(p Patch) {
	if r.silent {
		return
	}
	r.listeners.dispatch(p, r)
	if r.owner != nil {
		r.owner.onPatch(p, r)
	}
}

func (r *Record) inBatch(fn func() error) error {
	if r.owner == nil {
		return fn()
	}
	return r.owner.batch(fn)
}

func (r *Record) fieldError(key string, err error) error {
	return FieldError{Type: r.model.Type, ID: r.ID(), Field: key, Err: err}
}

// asSlice expands slices and arrays, except byte slices, into []any.
func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case nil, []byte, string:
		return nil, false
	case []any:
		return t, true
	case []*Record:
		out := make([]any, len(t))
		for i, rec := range t {
			out[i] = rec
		}
		return out, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func firstItem(v any) any {
	if items, ok := asSlice(v); ok {
		if len(items) == 0 {
			return nil
		}
		return items[0]
	}
	return v
}
