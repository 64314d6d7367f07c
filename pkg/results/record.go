package results

import (
	"bytes"
	"fmt"
	"reflect"
	"time"
	"unicode/utf8"

	"dario.cat/mergo"
	json "github.com/goccy/go-json"

	"resultdock/pkg/serializers"
)

// ResultRecord is a result value together with its metadata.
//
// Records read from storage keep their encoded payload, so Decode can
// rebuild a concrete type even when Result only holds the generic form.
// The payload is reused only while Result and the serializer still match
// what was decoded from it.
type ResultRecord struct {
	Metadata *ResultRecordMetadata
	Result   any

	payload        []byte
	payloadValue   any    // separately decoded copy of payload
	payloadEncoder []byte // descriptor of the serializer that wrote payload
}

// NewResultRecord pairs a value with its metadata.
func NewResultRecord(result any, metadata *ResultRecordMetadata) *ResultRecord {
	return &ResultRecord{Metadata: metadata, Result: result}
}

// StorageKey returns the metadata storage key.
func (r *ResultRecord) StorageKey() string { return r.Metadata.StorageKey }

// Expiration returns the metadata expiration.
func (r *ResultRecord) Expiration() *time.Time { return r.Metadata.Expiration }

// Serializer returns the metadata serializer.
func (r *ResultRecord) Serializer() serializers.Serializer { return r.Metadata.serializer() }

// SerializeResult encodes only the value with the record's serializer.
func (r *ResultRecord) SerializeResult() ([]byte, error) {
	if r.payloadCurrent() {
		return append([]byte(nil), r.payload...), nil
	}
	ser := r.Serializer()
	data, err := ser.Dumps(r.Result)
	if err != nil {
		return nil, &SerializationError{
			TypeName:   typeName(r.Result),
			Serializer: ser.Type(),
			Hint:       unserializableHint(r.Result),
			Cause:      err,
		}
	}
	return data, nil
}

// payloadCurrent reports whether the stored payload still encodes Result
// with the record's serializer.
func (r *ResultRecord) payloadCurrent() bool {
	if r.payload == nil {
		return false
	}
	descriptor, err := serializers.MarshalDescriptor(r.Serializer())
	if err != nil || !bytes.Equal(descriptor, r.payloadEncoder) {
		return false
	}
	return reflect.DeepEqual(r.Result, r.payloadValue)
}

// SerializeMetadata encodes only the metadata.
func (r *ResultRecord) SerializeMetadata() ([]byte, error) {
	return r.Metadata.DumpBytes()
}

type recordWire struct {
	Metadata *ResultRecordMetadata `json:"metadata"`
	Result   string                `json:"result"`
}

// Serialize encodes metadata and value into one JSON blob. The value is
// embedded as the serializer's text payload.
func (r *ResultRecord) Serialize() ([]byte, error) {
	payload, err := r.SerializeResult()
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(payload) {
		ser := r.Serializer()
		return nil, &SerializationError{
			TypeName:   typeName(r.Result),
			Serializer: ser.Type(),
			Cause:      fmt.Errorf("serializer %q produced binary output, which cannot be embedded in a record", ser.Type()),
		}
	}
	return json.Marshal(recordWire{Metadata: r.Metadata, Result: string(payload)})
}

// Decode decodes the value into out, which must be a non-nil pointer.
func (r *ResultRecord) Decode(out any) error {
	payload, err := r.SerializeResult()
	if err != nil {
		return err
	}
	return r.Serializer().Loads(payload, out)
}

// DeserializeRecord decodes a blob written by Serialize. Blobs in the
// legacy flat layout are migrated first.
func DeserializeRecord(data []byte) (*ResultRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("invalid result record: %w", err)
	}
	if err := migrateLegacyRecord(doc); err != nil {
		return nil, err
	}
	migrated, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid result record: %w", err)
	}

	var wire struct {
		Metadata *ResultRecordMetadata `json:"metadata"`
		Result   json.RawMessage       `json:"result"`
	}
	if err := json.Unmarshal(migrated, &wire); err != nil {
		return nil, fmt.Errorf("invalid result record: %w", err)
	}
	if wire.Metadata == nil {
		return nil, fmt.Errorf("invalid result record: missing metadata")
	}

	// Combined blobs embed the payload as a string; anything else is an
	// already-decoded value
	payload := []byte(wire.Result)
	if len(wire.Result) > 0 && wire.Result[0] == '"' {
		var s string
		if err := json.Unmarshal(wire.Result, &s); err != nil {
			return nil, fmt.Errorf("invalid result payload: %w", err)
		}
		payload = []byte(s)
	}
	return decodeRecord(wire.Metadata, payload)
}

// DeserializeRecordParts composes a record from a payload written by
// SerializeResult and metadata written by SerializeMetadata.
func DeserializeRecordParts(result, metadata []byte) (*ResultRecord, error) {
	meta, err := LoadMetadata(metadata)
	if err != nil {
		return nil, err
	}
	return decodeRecord(meta, result)
}

func decodeRecord(meta *ResultRecordMetadata, payload []byte) (*ResultRecord, error) {
	ser := meta.serializer()
	descriptor, err := serializers.MarshalDescriptor(ser)
	if err != nil {
		return nil, err
	}
	rec := &ResultRecord{Metadata: meta, payload: payload, payloadEncoder: descriptor}
	if len(payload) == 0 {
		return rec, nil
	}

	// Two decodes, so in-place edits of Result are detected
	var value, snapshot any
	if err := ser.Loads(payload, &value); err != nil {
		return nil, fmt.Errorf("failed to decode result payload with serializer %q: %w", ser.Type(), err)
	}
	if err := ser.Loads(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode result payload with serializer %q: %w", ser.Type(), err)
	}
	rec.Result = value
	rec.payloadValue = snapshot
	return rec, nil
}

// legacyMetadataFields moved from the top level of a record into its metadata.
var legacyMetadataFields = []string{"expiration", "serializer", "schema_version"}

// migrateLegacyRecord rewrites the flat layout
// {"data", "expiration", "serializer", "schema_version"} into
// {"metadata": {...}, "result"} in place.
func migrateLegacyRecord(doc map[string]any) error {
	if data, ok := doc["data"]; ok {
		if _, has := doc["result"]; !has {
			doc["result"] = data
		}
		delete(doc, "data")
	}

	lifted := map[string]any{}
	for _, field := range legacyMetadataFields {
		if v, ok := doc[field]; ok {
			lifted[field] = v
			delete(doc, field)
		}
	}
	if len(lifted) == 0 {
		return nil
	}

	meta, _ := doc["metadata"].(map[string]any)
	if meta == nil {
		meta = map[string]any{}
	}
	if err := mergo.Merge(&meta, lifted, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to migrate legacy result record: %w", err)
	}
	doc["metadata"] = meta
	return nil
}

func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}

// unserializableHint explains values no serializer can encode.
func unserializableHint(v any) string {
	if kind, ok := findUnencodable(reflect.ValueOf(v), 0); ok {
		return fmt.Sprintf("The value contains a %s, which cannot be serialized by any serializer; "+
			"return plain data from the task instead", kind)
	}
	return ""
}

func findUnencodable(v reflect.Value, depth int) (reflect.Kind, bool) {
	if !v.IsValid() || depth > 32 {
		return reflect.Invalid, false
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return v.Kind(), true
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return reflect.Invalid, false
		}
		return findUnencodable(v.Elem(), depth+1)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if !v.Type().Field(i).IsExported() {
				continue
			}
			if k, ok := findUnencodable(v.Field(i), depth+1); ok {
				return k, true
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if k, ok := findUnencodable(v.Index(i), depth+1); ok {
				return k, true
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if k, ok := findUnencodable(iter.Value(), depth+1); ok {
				return k, true
			}
		}
	}
	return reflect.Invalid, false
}
