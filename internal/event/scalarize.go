package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"
)

// Underlying is satisfied by enum-like wrapper types so Scalarize can
// extract their wire value instead of stringifying the Go type name.
type Underlying interface {
	Underlying() any
}

// Entity is satisfied by aggregates/entities so Scalarize can reduce them
// to their id instead of recursing into every field.
type Entity interface {
	EntityID() any
}

// Scalarize recursively reduces v into a value made only of nil, bool,
// numbers, strings, []any, and map[string]any — safe to marshal as the
// outbox's stored payload. It implements the recursive scalarization rules:
// entities become their id, enums become their underlying value, times
// become ISO-8601, json.Marshaler types become their JSON form, and
// collections recurse; anything else falls back to its default textual
// form.
func Scalarize(v any) any {
	if v == nil {
		return nil
	}
	switch t := v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case Entity:
		return t.EntityID()
	case Underlying:
		return Scalarize(t.Underlying())
	case json.Marshaler:
		raw, err := t.MarshalJSON()
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		var out any
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Sprintf("%v", v)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Scalarize(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Scalarize(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			out[fmt.Sprintf("%v", key.Interface())] = Scalarize(rv.MapIndex(key).Interface())
		}
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ScalarizeMap applies Scalarize to every value in m, returning a new map
// safe to json.Marshal as an outbox payload.
func ScalarizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Scalarize(v)
	}
	return out
}
