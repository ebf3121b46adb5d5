// Package idgen provides the unique id sources a cart store draws line item
// ids from.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator returns a fresh unique id on every call.
type Generator interface {
	NewID() string
}

// UUID generates random version 4 UUIDs.
type UUID struct{}

// NewID implements Generator.
func (UUID) NewID() string {
	return uuid.New().String()
}

// Sequence generates monotonically increasing ids, optionally prefixed.
// The zero value starts at 1 with no prefix and is safe for concurrent use.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

// NewSequence creates a Sequence whose ids look like "<prefix><n>".
func NewSequence(prefix string) *Sequence {
	return &Sequence{Prefix: prefix}
}

// NewID implements Generator.
func (s *Sequence) NewID() string {
	return s.Prefix + strconv.FormatUint(s.n.Add(1), 10)
}

// Func adapts an ordinary function to a Generator.
type Func func() string

// NewID implements Generator.
func (f Func) NewID() string {
	return f()
}

// maxDraws bounds how many ids Unique takes from a generator before it
// falls back to random UUIDs.
const maxDraws = 10000

// Unique draws ids from g until one is not taken. A Sequence restarted
// against a persisted cart simply skips past the ids already in use.
func Unique(g Generator, taken func(id string) bool) string {
	for i := 0; i < maxDraws; i++ {
		if id := g.NewID(); id != "" && !taken(id) {
			return id
		}
	}
	for {
		if id := (UUID{}).NewID(); !taken(id) {
			return id
		}
	}
}

// ByName returns the generator configured by ID_GENERATOR.
func ByName(name string) Generator {
	if name == "sequence" {
		return NewSequence("item-")
	}
	return UUID{}
}
