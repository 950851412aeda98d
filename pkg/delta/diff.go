package delta

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrNotDocument is returned by Diff when an input contains retain or delete.
var ErrNotDocument = errors.New("delta: diff called on non-document")

const embedPlaceholder = "\x00"

// Diff computes the patch turning a into b, so that Apply(a, Diff(a, b))
// equals b. Text runs are diffed character by character; embeds compare by
// value and unchanged spans turn into retains carrying attribute changes.
func Diff(a, b Delta) (Delta, error) {
	if !a.IsDocument() || !b.IsDocument() {
		return Delta{}, ErrNotDocument
	}
	if Equal(a, b) {
		return Delta{}, nil
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	diffs := dmp.DiffMain(flatten(a), flatten(b), false)

	thisIter := a.Iterator()
	otherIter := b.Iterator()
	var out Delta
	for _, d := range diffs {
		length := utf8.RuneCountInString(d.Text)
		for length > 0 {
			var opLength int
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				opLength = min(otherIter.PeekLength(), length)
				out.Push(otherIter.Next(opLength))
			case diffmatchpatch.DiffDelete:
				opLength = min(length, thisIter.PeekLength())
				thisIter.Next(opLength)
				out.Delete(opLength)
			default:
				opLength = min(thisIter.PeekLength(), otherIter.PeekLength(), length)
				thisOp := thisIter.Next(opLength)
				otherOp := otherIter.Next(opLength)
				if sameInsert(thisOp, otherOp) {
					out.Retain(opLength, DiffAttributes(thisOp.Attributes, otherOp.Attributes))
				} else {
					out.Push(otherOp)
					out.Delete(opLength)
				}
			}
			length -= opLength
		}
	}

	out.Chop()
	return out, nil
}

func flatten(d Delta) string {
	var sb strings.Builder
	for _, op := range d.Ops {
		if op.IsEmbed() {
			sb.WriteString(embedPlaceholder)
			continue
		}
		sb.WriteString(op.Insert)
	}
	return sb.String()
}

func sameInsert(a, b Op) bool {
	if a.IsEmbed() || b.IsEmbed() {
		return a.IsEmbed() && b.IsEmbed() && valuesEqual(a.Embed, b.Embed)
	}
	return a.Insert == b.Insert
}
