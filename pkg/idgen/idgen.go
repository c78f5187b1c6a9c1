// Package idgen provides id generators for records created without an id.
// Every generator satisfies graph.IDGenerator.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Generator produces candidate ids.
type Generator interface {
	NextID() any
}

// Counter yields increasing integers starting at the configured value.
type Counter struct {
	next atomic.Int64
}

// NewCounter returns a counter whose first id is start.
func NewCounter(start int) *Counter {
	c := &Counter{}
	c.next.Store(int64(start))
	return c
}

func (c *Counter) NextID() any {
	return int(c.next.Add(1) - 1)
}

// UUID yields random RFC 4122 version 4 strings.
type UUID struct{}

func (UUID) NextID() any { return uuid.NewString() }

// ULID yields lexically sortable ULID strings.
type ULID struct{}

func (ULID) NextID() any { return ulid.Make().String() }

// Hex yields 32 character random hex strings.
type Hex struct{}

func (Hex) NextID() any {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

var factories = map[string]func() Generator{
	"counter": func() Generator { return NewCounter(1) },
	"uuid":    func() Generator { return UUID{} },
	"ulid":    func() Generator { return ULID{} },
	"hex":     func() Generator { return Hex{} },
}

// New returns a fresh generator by name: counter, uuid, ulid or hex.
func New(name string) (Generator, error) {
	f, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown id generator %q (want one of %v)", name, Names())
	}
	return f(), nil
}

// Names lists the generator names accepted by New.
func Names() []string {
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
