package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
)

// ValueKind identifies which member of the Value union is populated.
type ValueKind int

const (
	// KindUndefined is the zero Value: no value was supplied at all.
	KindUndefined ValueKind = iota
	KindNull
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// String returns the JSON type name of the kind.
func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "array"
	case KindMap:
		return "object"
	default:
		return "undefined"
	}
}

// MapEntry is a single key of an ordered map value.
type MapEntry struct {
	Key   string
	Value Value
}

// Value is the payload of a config entry. It is a tagged union over the JSON data model.
// Maps keep their keys in document order and numbers keep their literal text, so a value
// read from JSON is written back unchanged.
type Value struct {
	kind    ValueKind
	boolean bool
	number  json.Number
	str     string
	list    []Value
	entries []MapEntry
}

// NullValue returns the JSON null value.
func NullValue() Value { return Value{kind: KindNull} }

// BoolValue returns a boolean value.
func BoolValue(b bool) Value { return Value{kind: KindBool, boolean: b} }

// StringValue returns a string value.
func StringValue(s string) Value { return Value{kind: KindString, str: s} }

// IntValue returns an integral number value.
func IntValue(i int64) Value {
	return Value{kind: KindNumber, number: json.Number(strconv.FormatInt(i, 10))}
}

// NumberValue returns a number value. NaN and infinities have no JSON form and become null.
func NumberValue(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return NullValue()
	}
	return Value{kind: KindNumber, number: json.Number(strconv.FormatFloat(f, 'g', -1, 64))}
}

// ListValue returns an array value.
func ListValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// MapValue returns an object value with the given entries in order. A repeated key keeps its
// first position and its last value.
func MapValue(entries ...MapEntry) Value {
	v := Value{kind: KindMap, entries: make([]MapEntry, 0, len(entries))}
	for _, e := range entries {
		v = v.set(e.Key, e.Value)
	}
	return v
}

func (v Value) set(key string, val Value) Value {
	for i := range v.entries {
		if v.entries[i].Key == key {
			v.entries[i].Value = val
			return v
		}
	}
	v.entries = append(v.entries, MapEntry{Key: key, Value: val})
	return v
}

// Kind returns the populated member.
func (v Value) Kind() ValueKind { return v.kind }

// IsDefined reports whether a value was supplied; an explicit null is defined.
func (v Value) IsDefined() bool { return v.kind != KindUndefined }

// IsNull reports whether the value is JSON null.
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) AsBool() (bool, bool) { return v.boolean, v.kind == KindBool }

func (v Value) AsString() (string, bool) { return v.str, v.kind == KindString }

func (v Value) AsNumber() (json.Number, bool) { return v.number, v.kind == KindNumber }

// AsFloat64 returns the number as a float64.
func (v Value) AsFloat64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	f, err := v.number.Float64()
	return f, err == nil
}

// AsList returns a copy of the array items.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	out := make([]Value, len(v.list))
	copy(out, v.list)
	return out, true
}

// AsMap returns a copy of the object entries in document order.
func (v Value) AsMap() ([]MapEntry, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	out := make([]MapEntry, len(v.entries))
	copy(out, v.entries)
	return out, true
}

// Get looks up a key of an object value.
func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	for _, e := range v.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return Value{}, false
}

// Equal reports structural equality. Object key order is not significant; numbers compare by value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.boolean == o.boolean
	case KindNumber:
		if v.number == o.number {
			return true
		}
		a, errA := v.number.Float64()
		b, errB := o.number.Float64()
		return errA == nil && errB == nil && a == b
	case KindString:
		return v.str == o.str
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(o.entries) {
			return false
		}
		for _, e := range v.entries {
			other, ok := o.Get(e.Key)
			if !ok || !e.Value.Equal(other) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Interface converts the value to plain Go data: nil, bool, float64, string, []interface{}
// and map[string]interface{}. Object key order is lost.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.boolean
	case KindNumber:
		f, _ := v.number.Float64()
		return f
	case KindString:
		return v.str
	case KindList:
		out := make([]interface{}, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.entries))
		for _, e := range v.entries {
			out[e.Key] = e.Value.Interface()
		}
		return out
	default:
		return nil
	}
}

// ValueFromInterface converts plain Go data into a Value.
func ValueFromInterface(in interface{}) (Value, error) {
	switch t := in.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return t, nil
	case bool:
		return BoolValue(t), nil
	case string:
		return StringValue(t), nil
	case json.Number:
		if _, err := t.Float64(); err != nil {
			return Value{}, fmt.Errorf("invalid number %q", t)
		}
		return Value{kind: KindNumber, number: t}, nil
	case float64:
		return NumberValue(t), nil
	case float32:
		return NumberValue(float64(t)), nil
	case int:
		return IntValue(int64(t)), nil
	case int32:
		return IntValue(int64(t)), nil
	case int64:
		return IntValue(t), nil
	case []interface{}:
		items := make([]Value, 0, len(t))
		for _, item := range t {
			iv, err := ValueFromInterface(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, iv)
		}
		return ListValue(items...), nil
	case map[string]interface{}:
		entries := make([]MapEntry, 0, len(t))
		for k, item := range t {
			iv, err := ValueFromInterface(item)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, MapEntry{Key: k, Value: iv})
		}
		return MapValue(entries...), nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", in)
	}
}

// MarshalJSON implements json.Marshaler. An undefined value encodes as null.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.boolean))
	case KindNumber:
		buf.WriteString(v.number.String())
	case KindString:
		b, err := json.Marshal(v.str)
		if err != nil {
			return err
		}
		buf.Write(b)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		buf.WriteByte('{')
		for i, e := range v.entries {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(e.Key)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := e.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		buf.WriteString("null")
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	out, err := decodeValue(dec)
	if err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("unexpected data after value")
	}
	*v = out
	return nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}
	switch t := tok.(type) {
	case nil:
		return NullValue(), nil
	case bool:
		return BoolValue(t), nil
	case json.Number:
		return Value{kind: KindNumber, number: t}, nil
	case string:
		return StringValue(t), nil
	case json.Delim:
		switch t {
		case '[':
			items := []Value{}
			for dec.More() {
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return ListValue(items...), nil
		case '{':
			out := Value{kind: KindMap, entries: []MapEntry{}}
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := kt.(string)
				if !ok {
					return Value{}, fmt.Errorf("invalid object key %v", kt)
				}
				item, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				out = out.set(key, item)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return out, nil
		}
	}
	return Value{}, fmt.Errorf("unexpected JSON token %v", tok)
}
