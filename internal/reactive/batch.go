// Package reactive provides the mutation batching and memoized views the graph
// registry builds on.
package reactive

// maxSettleRounds bounds how often observers are re-run when they keep
// mutating the graph from inside a settle callback.
const maxSettleRounds = 100

// Batch groups mutations so observers see one settle point per outermost scope.
// Nested Run calls collapse into the enclosing one. A Batch is not safe for
// concurrent use.
type Batch struct {
	depth     int
	dirty     bool
	settling  bool
	nextID    int
	observers []observer
}

type observer struct {
	id int
	fn func()
}

// NewBatch returns an idle batch with no observers.
func NewBatch() *Batch {
	return &Batch{}
}

// Run executes fn inside a batch scope. Observers fire after the outermost
// scope returns, and only when something inside it called Touch. The error of
// fn is returned unchanged; observers still run when fn fails part way.
func (b *Batch) Run(fn func() error) error {
	b.depth++
	err := func() error {
		defer func() { b.depth-- }()
		return fn()
	}()
	if b.depth == 0 {
		b.settle()
	}
	return err
}

// Touch marks the current scope as changed. Outside of any scope the
// observers run immediately.
func (b *Batch) Touch() {
	b.dirty = true
	if b.depth == 0 {
		b.settle()
	}
}

// Active reports whether a Run scope is open.
func (b *Batch) Active() bool { return b.depth > 0 }

// Subscribe registers fn as a settle observer and returns its cancel func.
func (b *Batch) Subscribe(fn func()) func() {
	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, observer{id: id, fn: fn})
	return func() {
		for i, o := range b.observers {
			if o.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

func (b *Batch) settle() {
	if b.settling {
		return
	}
	b.settling = true
	defer func() { b.settling = false }()
	for round := 0; b.dirty && round < maxSettleRounds; round++ {
		b.dirty = false
		snapshot := append([]observer(nil), b.observers...)
		for _, o := range snapshot {
			o.fn()
		}
	}
	b.dirty = false
}
