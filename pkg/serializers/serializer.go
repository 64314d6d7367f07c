// Package serializers turns result values into byte payloads and back.
//
// Every serializer is identified by a type tag. A serializer also marshals
// itself to a small JSON descriptor (at minimum {"type": "..."}) so that a
// record's metadata carries enough information to decode its payload later.
package serializers

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
)

// Serializer encodes values to bytes and decodes them back.
// Implementations must be safe for concurrent use.
type Serializer interface {
	// Type returns the serializer's type tag, e.g. "json".
	Type() string

	// Dumps encodes v. The output of every built-in serializer is valid
	// UTF-8 text so payloads can be embedded in JSON documents.
	Dumps(v any) ([]byte, error)

	// Loads decodes data into out, which must be a non-nil pointer.
	Loads(data []byte, out any) error
}

// Factory builds a serializer from its JSON descriptor.
type Factory func(descriptor []byte) (Serializer, error)

// ErrUnknownSerializer is returned when a type tag has no registered factory.
var ErrUnknownSerializer = errors.New("unknown serializer type")

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a serializer type resolvable by tag and by descriptor.
// Registering the same tag twice replaces the earlier factory.
func Register(typ string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typ] = factory
}

// Types lists registered type tags in sorted order.
func Types() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for typ := range registry {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func lookup(typ string) (Factory, error) {
	registryMu.RLock()
	f, ok := registry[typ]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSerializer, typ)
	}
	return f, nil
}

// Resolve builds a serializer from a short name. Besides registered tags it
// understands "compressed/<inner>", which wraps <inner> in zstd compression.
func Resolve(name string) (Serializer, error) {
	if inner, ok := strings.CutPrefix(name, "compressed/"); ok {
		s, err := Resolve(inner)
		if err != nil {
			return nil, err
		}
		return NewCompressedSerializer(s, CompressionZstd), nil
	}
	f, err := lookup(name)
	if err != nil {
		return nil, err
	}
	return f([]byte(fmt.Sprintf(`{"type":%q}`, name)))
}

// FromDescriptor rebuilds a serializer from the JSON written by
// MarshalDescriptor.
func FromDescriptor(descriptor []byte) (Serializer, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(descriptor, &head); err != nil {
		return nil, fmt.Errorf("invalid serializer descriptor: %w", err)
	}
	if head.Type == "" {
		return nil, errors.New("invalid serializer descriptor: missing type")
	}
	f, err := lookup(head.Type)
	if err != nil {
		return nil, err
	}
	return f(descriptor)
}

// MarshalDescriptor returns the JSON descriptor for s.
func MarshalDescriptor(s Serializer) ([]byte, error) {
	if m, ok := s.(json.Marshaler); ok {
		return m.MarshalJSON()
	}
	return json.Marshal(map[string]string{"type": s.Type()})
}

// Default returns the serializer used when nothing else is configured.
func Default() Serializer {
	return NewJSONSerializer()
}

func init() {
	Register(TypeJSON, func(descriptor []byte) (Serializer, error) {
		return NewJSONSerializer(), nil
	})
	Register(TypeCompressed, compressedFromDescriptor)
	Register(TypeProtobuf, func(descriptor []byte) (Serializer, error) {
		return NewProtobufSerializer(), nil
	})
}
