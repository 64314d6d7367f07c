package results

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"resultdock/pkg/serializers"
)

// SchemaVersion is stamped into the metadata of every record this package writes.
const SchemaVersion = "1"

// ResultRecordMetadata is everything needed to locate and decode a
// record's payload.
type ResultRecordMetadata struct {
	// StorageKey locates the payload. Empty only in legacy records.
	StorageKey string

	// Expiration is when the result stops being valid; nil never expires.
	Expiration *time.Time

	// Serializer encoded the payload.
	Serializer serializers.Serializer

	// SchemaVersion identifies the writer of the record.
	SchemaVersion string

	// StorageBlockID is the registered backend holding the payload, if any.
	StorageBlockID *uuid.UUID
}

type metadataWire struct {
	StorageKey     *string         `json:"storage_key"`
	Expiration     *time.Time      `json:"expiration"`
	Serializer     json.RawMessage `json:"serializer"`
	SchemaVersion  string          `json:"schema_version"`
	StorageBlockID *uuid.UUID      `json:"storage_block_id"`
}

func (m *ResultRecordMetadata) serializer() serializers.Serializer {
	if m.Serializer == nil {
		return serializers.Default()
	}
	return m.Serializer
}

func (m *ResultRecordMetadata) MarshalJSON() ([]byte, error) {
	desc, err := serializers.MarshalDescriptor(m.serializer())
	if err != nil {
		return nil, fmt.Errorf("failed to encode serializer descriptor: %w", err)
	}
	w := metadataWire{
		Expiration:     m.Expiration,
		Serializer:     desc,
		SchemaVersion:  m.SchemaVersion,
		StorageBlockID: m.StorageBlockID,
	}
	if m.StorageKey != "" {
		key := m.StorageKey
		w.StorageKey = &key
	}
	return json.Marshal(w)
}

func (m *ResultRecordMetadata) UnmarshalJSON(data []byte) error {
	var w metadataWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	ser := serializers.Default()
	if len(w.Serializer) > 0 && string(w.Serializer) != "null" {
		s, err := serializers.FromDescriptor(w.Serializer)
		if err != nil {
			return err
		}
		ser = s
	}

	*m = ResultRecordMetadata{
		Expiration:     w.Expiration,
		Serializer:     ser,
		SchemaVersion:  w.SchemaVersion,
		StorageBlockID: w.StorageBlockID,
	}
	if w.StorageKey != nil {
		m.StorageKey = *w.StorageKey
	}
	return nil
}

// DumpBytes encodes the metadata as JSON.
func (m *ResultRecordMetadata) DumpBytes() ([]byte, error) {
	return json.Marshal(m)
}

// LoadMetadata decodes metadata written by DumpBytes.
func LoadMetadata(data []byte) (*ResultRecordMetadata, error) {
	var m ResultRecordMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid result metadata: %w", err)
	}
	return &m, nil
}

// Expired reports whether the metadata's expiration has passed at now.
func (m *ResultRecordMetadata) Expired(now time.Time) bool {
	return m.Expiration != nil && !now.Before(*m.Expiration)
}
