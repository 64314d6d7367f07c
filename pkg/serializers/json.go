package serializers

import (
	json "github.com/goccy/go-json"
)

// TypeJSON is the type tag of JSONSerializer.
const TypeJSON = "json"

// JSONSerializer encodes values as JSON.
//
// Decoding into *any yields the generic JSON shapes (map[string]any,
// []any, float64, string, bool, nil). Decode into a concrete type to get
// the original Go type back.
type JSONSerializer struct{}

// NewJSONSerializer creates a JSON serializer.
func NewJSONSerializer() *JSONSerializer {
	return &JSONSerializer{}
}

func (s *JSONSerializer) Type() string { return TypeJSON }

func (s *JSONSerializer) Dumps(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (s *JSONSerializer) Loads(data []byte, out any) error {
	return json.Unmarshal(data, out)
}

func (s *JSONSerializer) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"json"}`), nil
}
