package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type idEntity struct{ id int }

func (e idEntity) EntityID() any { return e.id }

type statusEnum struct{ v string }

func (s statusEnum) Underlying() any { return s.v }

type wireValue struct{ v string }

func (w wireValue) MarshalJSON() ([]byte, error) { return []byte(`"` + w.v + `"`), nil }

type plainStruct struct{ X int }

func TestScalarize_PrimitivesPassThrough(t *testing.T) {
	assert.Equal(t, true, Scalarize(true))
	assert.Equal(t, "hi", Scalarize("hi"))
	assert.Equal(t, 42, Scalarize(42))
	assert.Equal(t, 3.14, Scalarize(3.14))
}

func TestScalarize_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Scalarize(nil))
}

func TestScalarize_TimeBecomesRFC3339Nano(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := Scalarize(ts)
	assert.Equal(t, ts.Format(time.RFC3339Nano), got)
}

func TestScalarize_EntityReducesToID(t *testing.T) {
	assert.Equal(t, 7, Scalarize(idEntity{id: 7}))
}

func TestScalarize_UnderlyingUnwrapsEnum(t *testing.T) {
	assert.Equal(t, "active", Scalarize(statusEnum{v: "active"}))
}

func TestScalarize_JSONMarshalerUsesMarshalledForm(t *testing.T) {
	assert.Equal(t, "wire", Scalarize(wireValue{v: "wire"}))
}

func TestScalarize_NilPointerBecomesNil(t *testing.T) {
	var p *int
	assert.Nil(t, Scalarize(p))
}

func TestScalarize_PointerDereferences(t *testing.T) {
	v := 9
	assert.Equal(t, 9, Scalarize(&v))
}

func TestScalarize_SliceRecurses(t *testing.T) {
	in := []idEntity{{id: 1}, {id: 2}}
	got := Scalarize(in)
	assert.Equal(t, []any{1, 2}, got)
}

func TestScalarize_MapRecursesAndStringifiesKeys(t *testing.T) {
	in := map[string]idEntity{"a": {id: 1}}
	got := Scalarize(in).(map[string]any)
	assert.Equal(t, 1, got["a"])
}

func TestScalarize_UnknownTypeFallsBackToTextualForm(t *testing.T) {
	got := Scalarize(plainStruct{X: 5})
	assert.Equal(t, "{5}", got)
}

func TestScalarizeMap_AppliesToEveryValue(t *testing.T) {
	out := ScalarizeMap(map[string]any{"when": time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "n": 3})
	assert.Equal(t, 3, out["n"])
	assert.IsType(t, "", out["when"])
}
