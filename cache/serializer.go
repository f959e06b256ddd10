package cache

import (
	"cmp"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strconv"
	"unicode/utf8"
	"unsafe"

	"github.com/cockroachdb/errors"
)

// Shape tells Deserialize how stored text should be read back.
type Shape int

const (
	// PlainText returns the stored string verbatim.
	PlainText Shape = iota
	// Structured parses the stored string as JSON.
	Structured
)

func (s Shape) String() string {
	switch s {
	case PlainText:
		return "plain text"
	case Structured:
		return "structured"
	default:
		return "Shape(" + strconv.Itoa(int(s)) + ")"
	}
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

// Serialize turns v into the text stored by both cache tiers.
//
// A string is stored as is. A []byte is stored as its text when it is valid
// UTF-8 and as "<binary data: N bytes>" otherwise. Everything else is
// encoded as JSON: maps keyed by strings or integers, slices, arrays and
// pointers are walked element by element, sets (map[K]struct{}) become
// arrays sorted when K is a number or string, and structs or types with
// their own JSON or text marshaler are handed to encoding/json unchanged.
// Channels, functions, complex numbers and non-finite floats fail with a
// *SerializationError.
func Serialize(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return bytesToText(x), nil
	}
	tree, err := newWalker().normalize(reflect.ValueOf(v))
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return "", &SerializationError{Type: fmt.Sprintf("%T", v), Err: err}
	}
	return string(data), nil
}

func bytesToText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return fmt.Sprintf("<binary data: %d bytes>", len(b))
}

func unsupported(t reflect.Type, err error) error {
	return &SerializationError{Type: t.String(), Err: err}
}

// visit identifies a map, slice or pointer being walked. Slices sharing a
// backing array differ by length.
type visit struct {
	ptr unsafe.Pointer
	len int
	typ reflect.Type
}

// walker converts a value into a tree encoding/json can marshal. It tracks
// the containers on the current path so a value that contains itself fails
// instead of recursing forever.
type walker struct {
	path map[visit]struct{}
}

func newWalker() *walker {
	return &walker{path: map[visit]struct{}{}}
}

func visitOf(v reflect.Value) visit {
	k := visit{ptr: v.UnsafePointer(), typ: v.Type()}
	if v.Kind() == reflect.Slice {
		k.len = v.Len()
	}
	return k
}

func (w *walker) enter(v reflect.Value) error {
	k := visitOf(v)
	if _, ok := w.path[k]; ok {
		return unsupported(v.Type(), errors.New("encountered a cycle"))
	}
	w.path[k] = struct{}{}
	return nil
}

func (w *walker) leave(v reflect.Value) {
	delete(w.path, visitOf(v))
}

func (w *walker) normalize(v reflect.Value) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}
	t := v.Type()
	if t.Implements(jsonMarshalerType) || t.Implements(textMarshalerType) {
		if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
			return nil, nil
		}
		return marshalRaw(v)
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Interface(), nil
	case reflect.Float32, reflect.Float64:
		if f := v.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, unsupported(t, errors.Newf("non-finite value %v", f))
		}
		return v.Interface(), nil
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		if v.Kind() == reflect.Pointer {
			if err := w.enter(v); err != nil {
				return nil, err
			}
			defer w.leave(v)
		}
		return w.normalize(v.Elem())
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		if t.Elem().Kind() == reflect.Uint8 {
			return bytesToText(v.Bytes()), nil
		}
		if err := w.enter(v); err != nil {
			return nil, err
		}
		defer w.leave(v)
		return w.normalizeSeq(v)
	case reflect.Array:
		return w.normalizeSeq(v)
	case reflect.Map:
		if v.IsNil() {
			return nil, nil
		}
		if err := w.enter(v); err != nil {
			return nil, err
		}
		defer w.leave(v)
		if elem := t.Elem(); elem.Kind() == reflect.Struct && elem.NumField() == 0 {
			return w.normalizeSet(v)
		}
		return w.normalizeMap(v)
	case reflect.Struct:
		return marshalRaw(v)
	}
	return nil, unsupported(t, nil)
}

func marshalRaw(v reflect.Value) (any, error) {
	if !v.CanInterface() {
		return nil, unsupported(v.Type(), errors.New("unexported value"))
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, unsupported(v.Type(), err)
	}
	return json.RawMessage(data), nil
}

func (w *walker) normalizeSeq(v reflect.Value) (any, error) {
	out := make([]any, v.Len())
	for i := range out {
		item, err := w.normalize(v.Index(i))
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func (w *walker) normalizeMap(v reflect.Value) (any, error) {
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		key, err := mapKey(iter.Key(), v.Type())
		if err != nil {
			return nil, err
		}
		item, err := w.normalize(iter.Value())
		if err != nil {
			return nil, err
		}
		out[key] = item
	}
	return out, nil
}

func mapKey(k reflect.Value, mapType reflect.Type) (string, error) {
	if k.Kind() == reflect.String {
		return k.String(), nil
	}
	if tm, ok := k.Interface().(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err != nil {
			return "", unsupported(mapType, err)
		}
		return string(text), nil
	}
	switch k.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(k.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(k.Uint(), 10), nil
	}
	return "", unsupported(mapType, errors.Newf("unsupported key type %s", k.Type()))
}

func (w *walker) normalizeSet(v reflect.Value) (any, error) {
	keys := v.MapKeys()
	if ordered(v.Type().Key().Kind()) {
		slices.SortFunc(keys, compareValues)
	}
	out := make([]any, len(keys))
	for i, k := range keys {
		item, err := w.normalize(k)
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func ordered(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.String:
		return true
	}
	return false
}

// compareValues orders two values of the same ordered kind.
func compareValues(a, b reflect.Value) int {
	switch a.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cmp.Compare(a.Int(), b.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return cmp.Compare(a.Uint(), b.Uint())
	case reflect.Float32, reflect.Float64:
		return cmp.Compare(a.Float(), b.Float())
	default:
		return cmp.Compare(a.String(), b.String())
	}
}

// Deserialize reads back text produced by Serialize. PlainText returns s
// verbatim; Structured parses it as JSON and fails with a
// *DeserializationError instead of returning partial data.
func Deserialize(s string, shape Shape) (any, error) {
	switch shape {
	case PlainText:
		return s, nil
	case Structured:
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, &DeserializationError{Target: shape.String(), Err: err}
		}
		return out, nil
	}
	return nil, &DeserializationError{Target: shape.String(), Err: errors.New("unknown shape")}
}

// Decode reads back text produced by Serialize into a T. String and []byte
// targets receive the text verbatim; anything else is parsed as JSON.
func Decode[T any](s string) (T, error) {
	var out T
	switch p := any(&out).(type) {
	case *string:
		*p = s
		return out, nil
	case *[]byte:
		*p = []byte(s)
		return out, nil
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		var zero T
		return zero, &DeserializationError{Target: reflect.TypeFor[T]().String(), Err: err}
	}
	return out, nil
}
