package nodegraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DataType is the declared type of a port and the tag carried by every Value.
type DataType int

// Supported data types.
const (
	TypeInvalid DataType = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeBytes
	TypeList
	TypeMap
	// TypeAny accepts values of every other type. It is only valid as a
	// declared port type, never as the tag of a Value.
	TypeAny
)

var dataTypeNames = map[DataType]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeBytes:   "bytes",
	TypeList:    "list",
	TypeMap:     "map",
	TypeAny:     "any",
}

// String returns the lowercase type name.
func (t DataType) String() string {
	if name, ok := dataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("DataType(%d)", int(t))
}

// ParseDataType converts a type name ("int", "float", ...) into a DataType.
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range dataTypeNames {
		if t != TypeInvalid && name == s {
			return t, nil
		}
	}
	return TypeInvalid, fmt.Errorf("unknown data type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t DataType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *DataType) UnmarshalText(text []byte) error {
	parsed, err := ParseDataType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value is a tagged union over the supported data types.
//
// The zero Value is invalid and represents "no value". Values are immutable:
// List and Map copy their input and accessors return copies.
type Value struct {
	typ  DataType
	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	list []Value
	m    map[string]Value
}

// Bool returns a bool Value.
func Bool(v bool) Value { return Value{typ: TypeBool, b: v} }

// Int returns an int Value.
func Int(v int64) Value { return Value{typ: TypeInt, i: v} }

// Float returns a float Value.
func Float(v float64) Value { return Value{typ: TypeFloat, f: v} }

// String returns a string Value.
func String(v string) Value { return Value{typ: TypeString, s: v} }

// Bytes returns a bytes Value holding a copy of v.
func Bytes(v []byte) Value {
	cp := make([]byte, len(v))
	copy(cp, v)
	return Value{typ: TypeBytes, raw: cp}
}

// List returns a list Value holding a copy of items.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{typ: TypeList, list: cp}
}

// Map returns a map Value holding a copy of entries.
func Map(entries map[string]Value) Value {
	cp := make(map[string]Value, len(entries))
	for k, v := range entries {
		cp[k] = v
	}
	return Value{typ: TypeMap, m: cp}
}

// ValueOf converts a native Go value into a Value.
//
// Accepts bool, all integer kinds, float32/float64, string, []byte, []any,
// []Value, map[string]any, map[string]Value and Value itself. Nested slices
// and maps are converted recursively.
func ValueOf(x any) (Value, error) {
	switch v := x.(type) {
	case Value:
		return v, nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(int64(v)), nil
	case int8:
		return Int(int64(v)), nil
	case int16:
		return Int(int64(v)), nil
	case int32:
		return Int(int64(v)), nil
	case int64:
		return Int(v), nil
	case uint:
		return Int(int64(v)), nil
	case uint8:
		return Int(int64(v)), nil
	case uint16:
		return Int(int64(v)), nil
	case uint32:
		return Int(int64(v)), nil
	case float32:
		return Float(float64(v)), nil
	case float64:
		return Float(v), nil
	case string:
		return String(v), nil
	case []byte:
		return Bytes(v), nil
	case []Value:
		return List(v...), nil
	case []any:
		items := make([]Value, 0, len(v))
		for i, item := range v {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("list index %d: %w", i, err)
			}
			items = append(items, iv)
		}
		return Value{typ: TypeList, list: items}, nil
	case map[string]Value:
		return Map(v), nil
	case map[string]any:
		entries := make(map[string]Value, len(v))
		for k, item := range v {
			iv, err := ValueOf(item)
			if err != nil {
				return Value{}, fmt.Errorf("map key %q: %w", k, err)
			}
			entries[k] = iv
		}
		return Value{typ: TypeMap, m: entries}, nil
	}
	return Value{}, fmt.Errorf("unsupported value type %T", x)
}

// MustValueOf is like ValueOf but panics on unsupported input.
func MustValueOf(x any) Value {
	v, err := ValueOf(x)
	if err != nil {
		panic("nodegraph: " + err.Error())
	}
	return v
}

// Type returns the value's type tag. The zero Value reports TypeInvalid.
func (v Value) Type() DataType { return v.typ }

// IsValid reports whether v holds a value.
func (v Value) IsValid() bool { return v.typ != TypeInvalid }

// AsBool returns the bool payload.
func (v Value) AsBool() (bool, bool) { return v.b, v.typ == TypeBool }

// AsInt returns the int payload.
func (v Value) AsInt() (int64, bool) { return v.i, v.typ == TypeInt }

// AsFloat returns the float payload. Int values are widened.
func (v Value) AsFloat() (float64, bool) {
	switch v.typ {
	case TypeFloat:
		return v.f, true
	case TypeInt:
		return float64(v.i), true
	}
	return 0, false
}

// AsString returns the string payload.
func (v Value) AsString() (string, bool) { return v.s, v.typ == TypeString }

// AsBytes returns a copy of the bytes payload.
func (v Value) AsBytes() ([]byte, bool) {
	if v.typ != TypeBytes {
		return nil, false
	}
	cp := make([]byte, len(v.raw))
	copy(cp, v.raw)
	return cp, true
}

// AsList returns a copy of the list payload.
func (v Value) AsList() ([]Value, bool) {
	if v.typ != TypeList {
		return nil, false
	}
	cp := make([]Value, len(v.list))
	copy(cp, v.list)
	return cp, true
}

// AsMap returns a copy of the map payload.
func (v Value) AsMap() (map[string]Value, bool) {
	if v.typ != TypeMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.m))
	for k, item := range v.m {
		cp[k] = item
	}
	return cp, true
}

// Interface returns the payload as a native Go value.
// Lists become []any and maps become map[string]any.
func (v Value) Interface() any {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeInt:
		return v.i
	case TypeFloat:
		return v.f
	case TypeString:
		return v.s
	case TypeBytes:
		b, _ := v.AsBytes()
		return b
	case TypeList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case TypeMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	}
	return nil
}

// Equal reports whether two values have the same type and payload.
func (v Value) Equal(other Value) bool {
	if v.typ != other.typ {
		return false
	}
	switch v.typ {
	case TypeInvalid:
		return true
	case TypeBool:
		return v.b == other.b
	case TypeInt:
		return v.i == other.i
	case TypeFloat:
		return v.f == other.f
	case TypeString:
		return v.s == other.s
	case TypeBytes:
		return string(v.raw) == string(other.raw)
	case TypeList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, item := range v.m {
			o, ok := other.m[k]
			if !ok || !item.Equal(o) {
				return false
			}
		}
		return true
	}
	return false
}

// String formats the value for logs and reports.
func (v Value) String() string {
	switch v.typ {
	case TypeInvalid:
		return "<none>"
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeInt:
		return strconv.FormatInt(v.i, 10)
	case TypeFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case TypeString:
		return v.s
	case TypeBytes:
		return fmt.Sprintf("<%d bytes>", len(v.raw))
	case TypeList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case TypeMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.m[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return "<unknown>"
}

// valueJSON is the wire form of a Value: an explicit type tag plus payload.
type valueJSON struct {
	Type  DataType        `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes the value with its type tag so it round-trips exactly.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.typ {
	case TypeInvalid:
		return []byte("null"), nil
	case TypeList:
		payload = v.list
	case TypeMap:
		payload = v.m
	case TypeBytes:
		payload = v.raw
	default:
		payload = v.Interface()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(valueJSON{Type: v.typ, Value: raw})
}

// UnmarshalJSON decodes a value produced by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var w valueJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out := Value{typ: w.Type}
	var err error
	switch w.Type {
	case TypeBool:
		err = json.Unmarshal(w.Value, &out.b)
	case TypeInt:
		err = json.Unmarshal(w.Value, &out.i)
	case TypeFloat:
		err = json.Unmarshal(w.Value, &out.f)
	case TypeString:
		err = json.Unmarshal(w.Value, &out.s)
	case TypeBytes:
		err = json.Unmarshal(w.Value, &out.raw)
	case TypeList:
		err = json.Unmarshal(w.Value, &out.list)
	case TypeMap:
		err = json.Unmarshal(w.Value, &out.m)
	default:
		return fmt.Errorf("cannot decode value of type %s", w.Type)
	}
	if err != nil {
		return fmt.Errorf("decode %s value: %w", w.Type, err)
	}
	*v = out
	return nil
}

// Compatible reports whether a value or output of type from may be stored in
// a port declared as to. Exact matches are compatible, TypeAny accepts
// everything, and int is coerced to float. Nothing else is.
func Compatible(from, to DataType) bool {
	if from == TypeInvalid || to == TypeInvalid {
		return false
	}
	if from == to || to == TypeAny {
		return true
	}
	return from == TypeInt && to == TypeFloat
}

// Coerce converts v into the declared type to.
// Returns a *TypeMismatchError when the types are not Compatible.
func Coerce(v Value, to DataType) (Value, error) {
	if !Compatible(v.typ, to) {
		return Value{}, &TypeMismatchError{Want: to, Got: v.typ}
	}
	if v.typ == TypeInt && to == TypeFloat {
		return Float(float64(v.i)), nil
	}
	return v, nil
}
