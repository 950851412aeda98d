// Package delta implements rich-text content as an ordered sequence of
// insert/retain/delete operations, with structural diff and apply.
//
// A document is a delta made only of inserts. Lengths are counted in runes.
package delta

import (
	"encoding/json"
	"math"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Delta is an ordered list of operations.
type Delta struct {
	Ops []Op `json:"ops"`
}

// New builds a delta by pushing ops one at a time, so the result is
// canonical regardless of how the input was split.
func New(ops ...Op) Delta {
	var d Delta
	for _, op := range ops {
		d.Push(op)
	}
	return d
}

// Text is shorthand for a document holding a single unformatted text run.
func Text(s string) Delta {
	var d Delta
	d.Insert(s, nil)
	return d
}

// Insert appends a text insert.
func (d *Delta) Insert(text string, attrs AttributeMap) *Delta {
	if text == "" {
		return d
	}
	return d.Push(Op{Insert: text, Attributes: attrs})
}

// InsertEmbed appends an embed insert.
func (d *Delta) InsertEmbed(embed map[string]any, attrs AttributeMap) *Delta {
	if embed == nil {
		return d
	}
	return d.Push(Op{Embed: embed, Attributes: attrs})
}

// Retain appends a retain.
func (d *Delta) Retain(n int, attrs AttributeMap) *Delta {
	if n <= 0 {
		return d
	}
	return d.Push(Op{Retain: n, Attributes: attrs})
}

// Delete appends a delete.
func (d *Delta) Delete(n int) *Delta {
	if n <= 0 {
		return d
	}
	return d.Push(Op{Delete: n})
}

// Push appends op, merging it into the previous op when both have the same
// kind and attributes. An insert following a delete is placed before it.
func (d *Delta) Push(op Op) *Delta {
	if op.Length() == 0 {
		return d
	}
	op.Attributes = op.Attributes.Clone()

	index := len(d.Ops)
	if index > 0 {
		last := &d.Ops[index-1]
		if op.Kind() == KindDelete && last.Kind() == KindDelete {
			last.Delete += op.Delete
			return d
		}
		if last.Kind() == KindDelete && op.Kind() == KindInsert {
			index--
			if index == 0 {
				d.Ops = append([]Op{op}, d.Ops...)
				return d
			}
			last = &d.Ops[index-1]
		}
		if attributesEqual(op.Attributes, last.Attributes) {
			switch {
			case op.Kind() == KindInsert && !op.IsEmbed() &&
				last.Kind() == KindInsert && !last.IsEmbed():
				last.Insert += op.Insert
				return d
			case op.Kind() == KindRetain && last.Kind() == KindRetain:
				last.Retain += op.Retain
				return d
			}
		}
	}

	if index == len(d.Ops) {
		d.Ops = append(d.Ops, op)
		return d
	}
	d.Ops = append(d.Ops, Op{})
	copy(d.Ops[index+1:], d.Ops[index:])
	d.Ops[index] = op
	return d
}

// Chop drops a trailing attribute-less retain.
func (d *Delta) Chop() *Delta {
	if n := len(d.Ops); n > 0 {
		last := d.Ops[n-1]
		if last.Kind() == KindRetain && len(last.Attributes) == 0 {
			d.Ops = d.Ops[:n-1]
		}
	}
	return d
}

// Length is the total length of all ops.
func (d Delta) Length() int {
	total := 0
	for _, op := range d.Ops {
		total += op.Length()
	}
	return total
}

// IsDocument reports whether every op is an insert.
func (d Delta) IsDocument() bool {
	for _, op := range d.Ops {
		if op.Kind() != KindInsert {
			return false
		}
	}
	return true
}

// Iterator returns an iterator positioned at the first op.
func (d Delta) Iterator() *Iterator {
	return &Iterator{ops: d.Ops}
}

// Concat appends other, merging at the seam.
func (d Delta) Concat(other Delta) Delta {
	out := Delta{Ops: append([]Op(nil), d.Ops...)}
	for _, op := range other.Ops {
		out.Push(op)
	}
	return out
}

// Normalize returns the canonical form of d.
func (d Delta) Normalize() Delta {
	return New(d.Ops...)
}

// Equal compares two deltas structurally after normalization.
func Equal(a, b Delta) bool {
	return cmp.Equal(a.Normalize().Ops, b.Normalize().Ops, cmpopts.EquateEmpty())
}

// MarshalJSON always emits an ops array.
func (d Delta) MarshalJSON() ([]byte, error) {
	ops := d.Ops
	if ops == nil {
		ops = []Op{}
	}
	return json.Marshal(struct {
		Ops []Op `json:"ops"`
	}{Ops: ops})
}

const infinity = math.MaxInt
