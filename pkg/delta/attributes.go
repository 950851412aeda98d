package delta

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// AttributeMap holds formatting attributes. A nil value in a retain means
// "remove this attribute".
type AttributeMap map[string]any

// Clone returns a shallow copy, or nil for an empty map.
func (a AttributeMap) Clone() AttributeMap {
	if len(a) == 0 {
		return nil
	}
	out := make(AttributeMap, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func attributesEqual(a, b AttributeMap) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

func valuesEqual(a, b any) bool {
	return cmp.Equal(a, b, cmpopts.EquateEmpty())
}

// ComposeAttributes layers b over a. Nil values in b are dropped unless
// keepNull is set, which is the case when the result is itself a retain.
func ComposeAttributes(a, b AttributeMap, keepNull bool) AttributeMap {
	out := AttributeMap{}
	for k, v := range b {
		if v == nil && !keepNull {
			continue
		}
		out[k] = v
	}
	for k, v := range a {
		if _, ok := b[k]; !ok {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// DiffAttributes returns the attribute change turning a into b.
func DiffAttributes(a, b AttributeMap) AttributeMap {
	out := AttributeMap{}
	for k, av := range a {
		bv, ok := b[k]
		if !ok {
			out[k] = nil
			continue
		}
		if !valuesEqual(av, bv) {
			out[k] = bv
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok {
			out[k] = bv
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
