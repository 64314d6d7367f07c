package results

import (
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resultdock/pkg/serializers"
)

type report struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

func TestRecord_SerializeRoundTrip(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	blockID := uuid.New()
	rec := NewResultRecord(report{Day: "mon", Count: 3}, &ResultRecordMetadata{
		StorageKey:     "reports/mon",
		Expiration:     &exp,
		Serializer:     serializers.NewJSONSerializer(),
		SchemaVersion:  SchemaVersion,
		StorageBlockID: &blockID,
	})

	blob, err := rec.Serialize()
	require.NoError(t, err)

	got, err := DeserializeRecord(blob)
	require.NoError(t, err)
	assert.Equal(t, "reports/mon", got.StorageKey())
	require.NotNil(t, got.Expiration())
	assert.True(t, exp.Equal(*got.Expiration()))
	assert.Equal(t, serializers.TypeJSON, got.Serializer().Type())
	assert.Equal(t, SchemaVersion, got.Metadata.SchemaVersion)
	require.NotNil(t, got.Metadata.StorageBlockID)
	assert.Equal(t, blockID, *got.Metadata.StorageBlockID)

	assert.Equal(t, map[string]any{"day": "mon", "count": float64(3)}, got.Result)

	var decoded report
	require.NoError(t, got.Decode(&decoded))
	assert.Equal(t, report{Day: "mon", Count: 3}, decoded)
}

func TestRecord_WireLayout(t *testing.T) {
	rec := NewResultRecord("hello", &ResultRecordMetadata{
		StorageKey:    "k",
		SchemaVersion: SchemaVersion,
	})
	blob, err := rec.Serialize()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(blob, &doc))
	assert.Equal(t, `"hello"`, doc["result"])

	meta, ok := doc["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "k", meta["storage_key"])
	assert.Nil(t, meta["expiration"])
	assert.Nil(t, meta["storage_block_id"])
	assert.Equal(t, map[string]any{"type": "json"}, meta["serializer"])
}

func TestRecord_SplitParts(t *testing.T) {
	rec := NewResultRecord([]int{1, 2, 3}, &ResultRecordMetadata{
		StorageKey:    "nums",
		Serializer:    serializers.NewCompressedSerializer(serializers.NewJSONSerializer(), serializers.CompressionZstd),
		SchemaVersion: SchemaVersion,
	})

	payload, err := rec.SerializeResult()
	require.NoError(t, err)
	meta, err := rec.SerializeMetadata()
	require.NoError(t, err)

	got, err := DeserializeRecordParts(payload, meta)
	require.NoError(t, err)
	assert.Equal(t, serializers.TypeCompressed, got.Serializer().Type())

	var nums []int
	require.NoError(t, got.Decode(&nums))
	assert.Equal(t, []int{1, 2, 3}, nums)
}

func TestRecord_LegacyFlatLayout(t *testing.T) {
	legacy := []byte(`{
		"data": "{\"day\":\"tue\",\"count\":7}",
		"expiration": "2031-05-06T07:08:09Z",
		"serializer": {"type": "json"},
		"schema_version": "0",
		"metadata": {"storage_key": "old/tue"}
	}`)

	rec, err := DeserializeRecord(legacy)
	require.NoError(t, err)
	assert.Equal(t, "old/tue", rec.StorageKey())
	assert.Equal(t, "0", rec.Metadata.SchemaVersion)
	require.NotNil(t, rec.Expiration())
	assert.Equal(t, 2031, rec.Expiration().Year())

	var r report
	require.NoError(t, rec.Decode(&r))
	assert.Equal(t, report{Day: "tue", Count: 7}, r)
}

func TestRecord_LegacyWithoutMetadata(t *testing.T) {
	rec, err := DeserializeRecord([]byte(`{"data":"42","serializer":{"type":"json"}}`))
	require.NoError(t, err)
	assert.Equal(t, "", rec.StorageKey())
	assert.Equal(t, float64(42), rec.Result)
}

func TestRecord_InvalidBlob(t *testing.T) {
	_, err := DeserializeRecord([]byte(`not json`))
	require.Error(t, err)

	_, err = DeserializeRecord([]byte(`{"result":"1"}`))
	require.Error(t, err)
}

func TestRecord_SerializationError(t *testing.T) {
	rec := NewResultRecord(map[string]any{"events": make(chan int)}, &ResultRecordMetadata{StorageKey: "k"})

	_, err := rec.Serialize()
	require.Error(t, err)

	var serErr *SerializationError
	require.True(t, errors.As(err, &serErr))
	assert.Equal(t, "map[string]interface {}", serErr.TypeName)
	assert.Equal(t, serializers.TypeJSON, serErr.Serializer)
	assert.Contains(t, serErr.Hint, "chan")
	assert.Contains(t, err.Error(), "different serializer")
}

func TestRecord_BinaryPayloadCannotBeCombined(t *testing.T) {
	rec := NewResultRecord("x", &ResultRecordMetadata{
		StorageKey: "k",
		Serializer: binarySerializer{},
	})
	_, err := rec.Serialize()
	var serErr *SerializationError
	require.True(t, errors.As(err, &serErr))

	// Split records carry the payload as-is
	payload, err := rec.SerializeResult()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xfe}, payload)
}

func TestMetadata_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.False(t, (&ResultRecordMetadata{}).Expired(now))
	assert.True(t, (&ResultRecordMetadata{Expiration: &past}).Expired(now))
	assert.False(t, (&ResultRecordMetadata{Expiration: &future}).Expired(now))
}

func TestMetadata_MissingSerializerDefaultsToJSON(t *testing.T) {
	meta, err := LoadMetadata([]byte(`{"storage_key":"k","schema_version":"1"}`))
	require.NoError(t, err)
	assert.Equal(t, serializers.TypeJSON, meta.Serializer.Type())
}

type binarySerializer struct{}

func (binarySerializer) Type() string { return "binary" }
func (binarySerializer) Dumps(v any) ([]byte, error) { return []byte{0xff, 0xfe}, nil }
func (binarySerializer) Loads(data []byte, out any) error { return nil }
func (binarySerializer) MarshalJSON() ([]byte, error) { return []byte(`{"type":"binary"}`), nil }
