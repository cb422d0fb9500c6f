package longprocess

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Tagged is implemented by any concrete payload or checkpoint type that
// wants a stable wire tag independent of its Go type name (§9: "Never
// embed language-specific class names in persisted data").
type Tagged interface {
	PayloadTag() string
}

// envelope is the persisted {_class, _data} polymorphic wrapper, renamed
// to tag/data to avoid suggesting a language-specific class name.
type envelope struct {
	Tag  string          `json:"tag"`
	Data json.RawMessage `json:"data"`
}

// PayloadCodec dispatches tagged union (de)serialization for step
// payloads and checkpoints, replacing the source's class-lookup envelope
// per the design note in §9.
type PayloadCodec struct {
	types map[string]reflect.Type
}

// NewPayloadCodec builds an empty codec.
func NewPayloadCodec() *PayloadCodec {
	return &PayloadCodec{types: make(map[string]reflect.Type)}
}

// RegisterType associates a wire tag with the Go type of sample (a zero
// value used only to learn its reflect.Type).
func (c *PayloadCodec) RegisterType(tag string, sample any) {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c.types[tag] = t
}

// Encode wraps v in a tagged envelope. A v implementing Tagged is stored
// under its tag; any other value is stored untagged and decodes back as
// map[string]any / the JSON primitive. A nil v encodes to "".
func (c *PayloadCodec) Encode(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	tag := ""
	if t, ok := v.(Tagged); ok {
		tag = t.PayloadTag()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	env := envelope{Tag: tag, Data: data}
	out, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(out), nil
}

// Decode reconstructs the tagged value. An untagged envelope decodes into
// a generic map[string]any or JSON primitive.
func (c *PayloadCodec) Decode(raw string) (any, error) {
	if raw == "" {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Tag == "" {
		var generic any
		if err := json.Unmarshal(env.Data, &generic); err != nil {
			return nil, fmt.Errorf("unmarshal untagged payload: %w", err)
		}
		return generic, nil
	}
	t, ok := c.types[env.Tag]
	if !ok {
		return nil, fmt.Errorf("longprocess: unknown payload tag %q", env.Tag)
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(env.Data, ptr.Interface()); err != nil {
		return nil, fmt.Errorf("unmarshal tagged payload %q: %w", env.Tag, err)
	}
	return ptr.Interface(), nil
}
