package serializers

import (
	"encoding/base64"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"
)

// TypeProtobuf is the type tag of ProtobufSerializer.
const TypeProtobuf = "protobuf"

// ProtobufSerializer encodes proto messages wrapped in anypb.Any so the
// message type travels with the payload. Output is base64 text.
type ProtobufSerializer struct{}

// NewProtobufSerializer creates a protobuf serializer.
func NewProtobufSerializer() *ProtobufSerializer {
	return &ProtobufSerializer{}
}

func (s *ProtobufSerializer) Type() string { return TypeProtobuf }

func (s *ProtobufSerializer) Dumps(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("value of type %T is not a proto.Message", v)
	}
	wrapped, err := anypb.New(msg)
	if err != nil {
		return nil, err
	}
	raw, err := proto.Marshal(wrapped)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Loads decodes into a proto.Message of the matching type, or into *any,
// in which case the message type is looked up in the global registry.
func (s *ProtobufSerializer) Loads(data []byte, out any) error {
	raw := make([]byte, base64.StdEncoding.DecodedLen(len(data)))
	n, err := base64.StdEncoding.Decode(raw, data)
	if err != nil {
		return fmt.Errorf("protobuf payload is not base64: %w", err)
	}
	wrapped := &anypb.Any{}
	if err := proto.Unmarshal(raw[:n], wrapped); err != nil {
		return err
	}

	switch target := out.(type) {
	case proto.Message:
		return wrapped.UnmarshalTo(target)
	case *any:
		msg, err := wrapped.UnmarshalNew()
		if err != nil {
			return err
		}
		*target = msg
		return nil
	default:
		return fmt.Errorf("cannot decode protobuf payload into %T", out)
	}
}

func (s *ProtobufSerializer) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"protobuf"}`), nil
}
