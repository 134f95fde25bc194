// Package manifest reads npm manifest and lockfile documents into a generic,
// order-preserving JSON tree.
package manifest

import (
	"bytes"
	"encoding/json"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return "null"
	}
}

// Member is one key/value pair of an object.
type Member struct {
	Key   string
	Value *Value
}

// Value is a JSON node. Objects keep their members in document order; a
// duplicated key keeps its first position and its last value.
type Value struct {
	kind    Kind
	boolean bool
	number  json.Number
	str     string
	items   []*Value
	members []Member
	index   map[string]int
}

// NewString builds a string node.
func NewString(s string) *Value { return &Value{kind: String, str: s} }

// NewNumber builds a number node from its literal text.
func NewNumber(n json.Number) *Value { return &Value{kind: Number, number: n} }

// NewBool builds a boolean node.
func NewBool(b bool) *Value { return &Value{kind: Bool, boolean: b} }

// NewNull builds a null node.
func NewNull() *Value { return &Value{kind: Null} }

// NewArray builds an array node.
func NewArray(items ...*Value) *Value { return &Value{kind: Array, items: items} }

// NewObject builds an empty object node.
func NewObject() *Value { return &Value{kind: Object, index: make(map[string]int)} }

// Set assigns key on an object node.
func (v *Value) Set(key string, val *Value) *Value {
	if i, ok := v.index[key]; ok {
		v.members[i].Value = val
		return v
	}
	v.index[key] = len(v.members)
	v.members = append(v.members, Member{Key: key, Value: val})
	return v
}

// Kind returns the node kind. A nil Value is Null.
func (v *Value) Kind() Kind {
	if v == nil {
		return Null
	}
	return v.kind
}

// IsObject reports whether v is an object.
func (v *Value) IsObject() bool { return v.Kind() == Object }

// Get returns the member value for key on an object node.
func (v *Value) Get(key string) (*Value, bool) {
	if v.Kind() != Object {
		return nil, false
	}
	i, ok := v.index[key]
	if !ok {
		return nil, false
	}
	return v.members[i].Value, true
}

// Has reports whether an object node has key.
func (v *Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Members returns the object members in document order.
func (v *Value) Members() []Member {
	if v.Kind() != Object {
		return nil
	}
	return v.members
}

// Keys returns the object keys in document order.
func (v *Value) Keys() []string {
	members := v.Members()
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = m.Key
	}
	return keys
}

// Items returns the elements of an array node.
func (v *Value) Items() []*Value {
	if v.Kind() != Array {
		return nil
	}
	return v.items
}

// Str returns the string payload and whether v is a string.
func (v *Value) Str() (string, bool) {
	if v.Kind() != String {
		return "", false
	}
	return v.str, true
}

// Truthy reports whether v is the boolean true.
func (v *Value) Truthy() bool {
	return v.Kind() == Bool && v.boolean
}

// StringField returns obj[key] when it is a string, or nil.
func (v *Value) StringField(key string) *string {
	f, ok := v.Get(key)
	if !ok {
		return nil
	}
	s, ok := f.Str()
	if !ok {
		return nil
	}
	return &s
}

// ObjectField returns obj[key] when it is an object, or nil.
func (v *Value) ObjectField(key string) *Value {
	f, ok := v.Get(key)
	if !ok || !f.IsObject() {
		return nil
	}
	return f
}

// UnmarshalJSON decodes data into v, keeping object member order.
func (v *Value) UnmarshalJSON(data []byte) error {
	d, err := Decode(data)
	if err != nil {
		return err
	}
	*v = *d
	return nil
}

// MarshalJSON writes v back out, keeping object member order.
func (v *Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Value) encode(buf *bytes.Buffer) error {
	switch v.Kind() {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.boolean {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(v.number.String())
	case String:
		if err := quote(buf, v.str); err != nil {
			return err
		}
	case Array:
		buf.WriteByte('[')
		for i, item := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := quote(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// quote writes s as a JSON string. Range specs such as ">=1 <2" are common,
// so HTML characters are left unescaped.
func quote(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
