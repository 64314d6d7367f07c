package results

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
)

// ResultReference is a handle to a task or flow result. Concrete kinds are
// distinguished by the "type" field of their JSON form.
type ResultReference interface {
	// ReferenceType returns the type tag written to the "type" field.
	ReferenceType() string

	// Get returns the result value.
	Get(ctx context.Context, opts ...GetOption) (any, error)

	// HasCachedObject reports whether the value is held in memory.
	HasCachedObject() bool
}

// GetOption configures ResultReference.Get.
type GetOption func(*getOptions)

type getOptions struct {
	ignoreCache bool
}

// IgnoreCache makes Get read from storage even if a value is cached.
func IgnoreCache() GetOption {
	return func(o *getOptions) {
		o.ignoreCache = true
	}
}

func applyGetOptions(opts []GetOption) getOptions {
	var o getOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

var (
	referenceTypesMu sync.RWMutex
	referenceTypes   = map[string]func() ResultReference{}
)

// RegisterReferenceType makes a reference kind decodable by UnmarshalReference.
// newRef must return a pointer the JSON form can be decoded into.
func RegisterReferenceType(tag string, newRef func() ResultReference) {
	referenceTypesMu.Lock()
	defer referenceTypesMu.Unlock()
	referenceTypes[tag] = newRef
}

// UnmarshalReference decodes a reference of any registered kind. A JSON
// null decodes to a nil reference, which is how serialize-to-none
// references are written.
func UnmarshalReference(data []byte) (ResultReference, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return nil, fmt.Errorf("invalid result reference: %w", err)
	}

	referenceTypesMu.RLock()
	newRef, ok := referenceTypes[head.Type]
	referenceTypesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownReferenceType, head.Type)
	}

	ref := newRef()
	if err := json.Unmarshal(trimmed, ref); err != nil {
		return nil, fmt.Errorf("invalid %s result reference: %w", head.Type, err)
	}
	return ref, nil
}

// MarshalReference encodes a reference. A nil reference encodes as null.
func MarshalReference(ref ResultReference) ([]byte, error) {
	if ref == nil {
		return []byte("null"), nil
	}
	return json.Marshal(ref)
}

func init() {
	RegisterReferenceType(ReferenceTypePersisted, func() ResultReference {
		return &PersistedResult{}
	})
}
