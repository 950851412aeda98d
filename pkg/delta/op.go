package delta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// OpKind identifies which of the three operations an Op carries.
type OpKind int

const (
	KindRetain OpKind = iota
	KindInsert
	KindDelete
)

func (k OpKind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindDelete:
		return "delete"
	default:
		return "retain"
	}
}

// Op is a single rich-text operation. Exactly one of Insert/Embed, Retain or
// Delete is meaningful. Embed holds opaque descriptors such as
// {"image": "https://..."} and always has length 1.
type Op struct {
	Insert     string
	Embed      map[string]any
	Retain     int
	Delete     int
	Attributes AttributeMap
}

// Kind reports the operation kind.
func (o Op) Kind() OpKind {
	switch {
	case o.Embed != nil || o.Insert != "":
		return KindInsert
	case o.Delete > 0:
		return KindDelete
	default:
		return KindRetain
	}
}

// IsEmbed reports whether the op inserts an embed.
func (o Op) IsEmbed() bool {
	return o.Embed != nil
}

// Length returns the op length in runes; embeds count as one.
func (o Op) Length() int {
	switch o.Kind() {
	case KindInsert:
		if o.Embed != nil {
			return 1
		}
		return utf8.RuneCountInString(o.Insert)
	case KindDelete:
		return o.Delete
	default:
		return o.Retain
	}
}

type wireOp struct {
	Insert     json.RawMessage `json:"insert,omitempty"`
	Retain     *int            `json:"retain,omitempty"`
	Delete     *int            `json:"delete,omitempty"`
	Attributes AttributeMap    `json:"attributes,omitempty"`
}

// MarshalJSON encodes the op in the rich-text editor wire shape.
func (o Op) MarshalJSON() ([]byte, error) {
	var w wireOp
	switch o.Kind() {
	case KindInsert:
		var (
			raw []byte
			err error
		)
		if o.Embed != nil {
			raw, err = json.Marshal(o.Embed)
		} else {
			raw, err = json.Marshal(o.Insert)
		}
		if err != nil {
			return nil, err
		}
		w.Insert = raw
		if len(o.Attributes) > 0 {
			w.Attributes = o.Attributes
		}
	case KindDelete:
		n := o.Delete
		w.Delete = &n
	default:
		n := o.Retain
		w.Retain = &n
		if len(o.Attributes) > 0 {
			w.Attributes = o.Attributes
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes an op, accepting a text or object insert.
func (o *Op) UnmarshalJSON(data []byte) error {
	var w wireOp
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*o = Op{Attributes: w.Attributes}
	switch {
	case len(w.Insert) > 0:
		trimmed := bytes.TrimSpace(w.Insert)
		switch {
		case len(trimmed) > 0 && trimmed[0] == '"':
			if err := json.Unmarshal(trimmed, &o.Insert); err != nil {
				return err
			}
			if o.Insert == "" {
				return fmt.Errorf("delta: empty text insert")
			}
		case len(trimmed) > 0 && trimmed[0] == '{':
			o.Embed = map[string]any{}
			if err := json.Unmarshal(trimmed, &o.Embed); err != nil {
				return err
			}
		default:
			return fmt.Errorf("delta: unsupported insert payload %s", string(trimmed))
		}
	case w.Delete != nil:
		if *w.Delete <= 0 {
			return fmt.Errorf("delta: delete length must be positive")
		}
		o.Delete = *w.Delete
	case w.Retain != nil:
		if *w.Retain <= 0 {
			return fmt.Errorf("delta: retain length must be positive")
		}
		o.Retain = *w.Retain
	default:
		return fmt.Errorf("delta: op has no insert, retain or delete")
	}
	return nil
}
