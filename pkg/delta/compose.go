package delta

// Compose returns the delta equivalent to applying d and then other.
func (d Delta) Compose(other Delta) Delta {
	thisIter := d.Iterator()
	otherIter := other.Iterator()

	var out Delta
	if first, ok := otherIter.Peek(); ok && first.Kind() == KindRetain && len(first.Attributes) == 0 {
		firstLeft := first.Retain
		for thisIter.PeekKind() == KindInsert && thisIter.PeekLength() <= firstLeft {
			firstLeft -= thisIter.PeekLength()
			out.Ops = append(out.Ops, thisIter.Next(0))
		}
		if first.Retain-firstLeft > 0 {
			otherIter.Next(first.Retain - firstLeft)
		}
	}

	for thisIter.HasNext() || otherIter.HasNext() {
		switch {
		case otherIter.PeekKind() == KindInsert:
			out.Push(otherIter.Next(0))
		case thisIter.PeekKind() == KindDelete:
			out.Push(thisIter.Next(0))
		default:
			length := min(thisIter.PeekLength(), otherIter.PeekLength())
			thisOp := thisIter.Next(length)
			otherOp := otherIter.Next(length)

			switch otherOp.Kind() {
			case KindRetain:
				var newOp Op
				if thisOp.Kind() == KindRetain {
					newOp.Retain = length
				} else {
					newOp.Insert = thisOp.Insert
					newOp.Embed = thisOp.Embed
				}
				newOp.Attributes = ComposeAttributes(thisOp.Attributes, otherOp.Attributes, thisOp.Kind() == KindRetain)
				out.Push(newOp)

				if !otherIter.HasNext() && len(out.Ops) > 0 && opsEqual(out.Ops[len(out.Ops)-1], newOp) {
					rest := Delta{Ops: thisIter.Rest()}
					out = out.Concat(rest)
					out.Chop()
					return out
				}
			case KindDelete:
				// A delete over an insert cancels both.
				if thisOp.Kind() == KindRetain {
					out.Push(otherOp)
				}
			}
		}
	}

	out.Chop()
	return out
}

// Apply applies patch to content. It is total: when content is a document,
// any part of the patch reaching past its end is ignored and the result is
// again a document.
func Apply(content, patch Delta) Delta {
	out := content.Compose(patch)
	if !content.IsDocument() {
		return out
	}
	var doc Delta
	for _, op := range out.Ops {
		if op.Kind() == KindInsert {
			doc.Push(op)
		}
	}
	return doc
}

func opsEqual(a, b Op) bool {
	return a.Insert == b.Insert &&
		a.Retain == b.Retain &&
		a.Delete == b.Delete &&
		valuesEqual(a.Embed, b.Embed) &&
		attributesEqual(a.Attributes, b.Attributes)
}
