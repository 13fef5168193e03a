package cache

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// defaultKeySerializer implements KeySerializer using reflection-based serialization.
// Maps are rendered with sorted keys and structs with fields sorted by name, so two
// structurally equal parameter values always produce the same string.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a cache key from a resource name and args using reflection.
func (s *defaultKeySerializer) SerializeKey(resource string, args ...any) string {
	if len(args) == 0 {
		return strconv.Quote(resource)
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, strconv.Quote(resource))

	for _, arg := range args {
		parts = append(parts, s.serializeValue(arg))
	}

	return strings.Join(parts, KeySeparator)
}

// serializeValue handles individual argument serialization based on type.
func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := rv.Type()

	if rt.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	}

	// time.Time and friends carry their state in unexported fields
	if tm, ok := v.(encoding.TextMarshaler); ok {
		text, err := tm.MarshalText()
		if err == nil {
			return "text:" + strconv.Quote(string(text))
		}
	}

	switch rt.Kind() {
	case reflect.Func:
		return fmt.Sprintf("func:%p", v)
	case reflect.Chan:
		return fmt.Sprintf("chan:%p", v)
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)
	case reflect.Array:
		return s.serializeList("array", rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv, rt)
	case reflect.Interface:
		if rv.IsNil() {
			return "interface:nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.String:
		return strconv.Quote(rv.String())
	}

	if s.isBasicType(rt.Kind()) {
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeList(kind string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ","))
}

// serializeMap renders key=value pairs sorted by the rendered key.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	type pair struct{ key, value string }

	pairs := make([]pair, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		pairs = append(pairs, pair{
			key:   s.serializeValue(iter.Key().Interface()),
			value: s.serializeValue(iter.Value().Interface()),
		})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	rendered := make([]string, len(pairs))
	for i, p := range pairs {
		rendered[i] = p.key + "=" + p.value
	}

	return fmt.Sprintf("map[%d]:{%s}", len(rendered), strings.Join(rendered, ","))
}

// serializeStruct renders exported fields sorted by field name.
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		parts = append(parts, field.Name+":"+s.serializeValue(fieldValue.Interface()))
	}

	sort.Strings(parts)

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

func (s *defaultKeySerializer) isBasicType(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return true
	default:
		return false
	}
}

// jsonFallback provides JSON serialization as a last resort
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("fallback:%s", reflect.TypeOf(v).String())
	}
	return fmt.Sprintf("json:%s", string(data))
}
