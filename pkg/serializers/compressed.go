package serializers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// TypeCompressed is the type tag of CompressedSerializer.
const TypeCompressed = "compressed"

// Compression libraries understood by CompressedSerializer.
const (
	CompressionZstd = "zstd"
	CompressionGzip = "gzip"
)

var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

// zstd encoders and decoders are safe for concurrent EncodeAll/DecodeAll.
func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// CompressedSerializer wraps another serializer and compresses its output.
// Compressed bytes are base64 encoded so the payload stays text.
type CompressedSerializer struct {
	inner Serializer
	lib   string
}

// NewCompressedSerializer wraps inner. An empty lib selects zstd.
func NewCompressedSerializer(inner Serializer, lib string) *CompressedSerializer {
	if lib == "" {
		lib = CompressionZstd
	}
	return &CompressedSerializer{inner: inner, lib: lib}
}

func (s *CompressedSerializer) Type() string { return TypeCompressed }

// Inner returns the wrapped serializer.
func (s *CompressedSerializer) Inner() Serializer { return s.inner }

func (s *CompressedSerializer) Dumps(v any) ([]byte, error) {
	raw, err := s.inner.Dumps(v)
	if err != nil {
		return nil, err
	}
	packed, err := s.compress(raw)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(packed)))
	base64.StdEncoding.Encode(out, packed)
	return out, nil
}

func (s *CompressedSerializer) Loads(data []byte, out any) error {
	packed := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(packed, data)
	if err != nil {
		return fmt.Errorf("compressed payload is not base64: %w", err)
	}
	raw, err := s.decompress(packed[:n])
	if err != nil {
		return err
	}
	return s.inner.Loads(raw, out)
}

func (s *CompressedSerializer) compress(raw []byte) ([]byte, error) {
	switch s.lib {
	case CompressionZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd unavailable: %w", err)
		}
		return enc.EncodeAll(raw, nil), nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression library %q", s.lib)
	}
}

func (s *CompressedSerializer) decompress(packed []byte) ([]byte, error) {
	switch s.lib {
	case CompressionZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, fmt.Errorf("zstd unavailable: %w", err)
		}
		return dec.DecodeAll(packed, nil)
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(packed))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported compression library %q", s.lib)
	}
}

type compressedDescriptor struct {
	Type           string          `json:"type"`
	Serializer     json.RawMessage `json:"serializer"`
	CompressionLib string          `json:"compressionlib"`
}

func (s *CompressedSerializer) MarshalJSON() ([]byte, error) {
	inner, err := MarshalDescriptor(s.inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(compressedDescriptor{
		Type:           TypeCompressed,
		Serializer:     inner,
		CompressionLib: s.lib,
	})
}

func compressedFromDescriptor(descriptor []byte) (Serializer, error) {
	var d compressedDescriptor
	if err := json.Unmarshal(descriptor, &d); err != nil {
		return nil, fmt.Errorf("invalid compressed serializer descriptor: %w", err)
	}
	inner := Default()
	if len(d.Serializer) > 0 && string(d.Serializer) != "null" {
		s, err := FromDescriptor(d.Serializer)
		if err != nil {
			return nil, err
		}
		inner = s
	}
	return NewCompressedSerializer(inner, d.CompressionLib), nil
}
