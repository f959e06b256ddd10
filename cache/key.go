package cache

import (
	"fmt"
	"reflect"
	"strings"
)

// Attr is one named component of a cache key. Attributes keep the order in
// which they are given.
type Attr struct {
	Name  string
	Value any
}

// KeyParts describes a cache key before it is rendered.
type KeyParts struct {
	Namespace string
	Base      string
	Attrs     []Attr
}

func (k KeyParts) String() string {
	return BuildKey(k.Namespace, k.Base, k.Attrs...)
}

// BuildKey renders namespace:base followed by :name-value for every
// attribute whose value is set. Attributes holding nil, "", false, zero, a
// nil pointer or an empty slice or map are left out, so a call with only
// such attributes yields the same key as a call with none. An empty
// namespace drops the leading segment.
func BuildKey(namespace, base string, attrs ...Attr) string {
	var sb strings.Builder
	if namespace != "" {
		sb.WriteString(namespace)
		sb.WriteByte(':')
	}
	sb.WriteString(base)
	for _, attr := range attrs {
		value, ok := attrValue(attr.Value)
		if !ok {
			continue
		}
		sb.WriteByte(':')
		sb.WriteString(attr.Name)
		sb.WriteByte('-')
		sb.WriteString(value)
	}
	return sb.String()
}

func attrValue(value any) (string, bool) {
	v := reflect.ValueOf(value)
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return "", false
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return "", false
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		if v.Len() == 0 {
			return "", false
		}
	case reflect.Chan, reflect.Func:
		if v.IsNil() {
			return "", false
		}
	default:
		if v.IsZero() {
			return "", false
		}
	}
	return fmt.Sprint(v.Interface()), true
}
