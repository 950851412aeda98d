package delta

// Iterator walks a delta, handing out ops split to a requested length.
// Past the end it yields an unbounded retain.
type Iterator struct {
	ops    []Op
	index  int
	offset int
}

// HasNext reports whether ops remain.
func (it *Iterator) HasNext() bool {
	return it.PeekLength() < infinity
}

// PeekLength returns the remaining length of the current op.
func (it *Iterator) PeekLength() int {
	if it.index < len(it.ops) {
		return it.ops[it.index].Length() - it.offset
	}
	return infinity
}

// PeekKind returns the kind of the current op.
func (it *Iterator) PeekKind() OpKind {
	if it.index < len(it.ops) {
		return it.ops[it.index].Kind()
	}
	return KindRetain
}

// Peek returns the current op without consuming it.
func (it *Iterator) Peek() (Op, bool) {
	if it.index < len(it.ops) {
		return it.ops[it.index], true
	}
	return Op{}, false
}

// Next consumes up to length from the current op. A non-positive length
// consumes the rest of it.
func (it *Iterator) Next(length int) Op {
	if length <= 0 {
		length = infinity
	}
	if it.index >= len(it.ops) {
		return Op{Retain: infinity}
	}

	next := it.ops[it.index]
	offset := it.offset
	opLength := next.Length()
	if length >= opLength-offset {
		length = opLength - offset
		it.index++
		it.offset = 0
	} else {
		it.offset += length
	}

	switch next.Kind() {
	case KindDelete:
		return Op{Delete: length}
	case KindRetain:
		return Op{Retain: length, Attributes: next.Attributes.Clone()}
	default:
		if next.IsEmbed() {
			return Op{Embed: next.Embed, Attributes: next.Attributes.Clone()}
		}
		runes := []rune(next.Insert)
		return Op{Insert: string(runes[offset : offset+length]), Attributes: next.Attributes.Clone()}
	}
}

// Rest returns the unconsumed ops, splitting the current one if needed.
func (it *Iterator) Rest() []Op {
	if !it.HasNext() {
		return nil
	}
	if it.offset == 0 {
		return append([]Op(nil), it.ops[it.index:]...)
	}
	index, offset := it.index, it.offset
	first := it.Next(0)
	rest := append([]Op{first}, it.ops[it.index:]...)
	it.index, it.offset = index, offset
	return rest
}
