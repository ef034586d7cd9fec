package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of every GolfService message.
const CodecName = "json"

// Codec marshals messages as JSON. Raw byte payloads pass through untouched
// so proxies can forward bodies without decoding them.
type Codec struct{}

// Frame is an already-encoded JSON message.
type Frame struct{ Data []byte }

func (Codec) Marshal(v any) ([]byte, error) {
	if f, ok := v.(*Frame); ok {
		if len(f.Data) == 0 {
			return []byte("{}"), nil
		}
		return f.Data, nil
	}
	return json.Marshal(v)
}

func (Codec) Unmarshal(data []byte, v any) error {
	if f, ok := v.(*Frame); ok {
		f.Data = append([]byte(nil), data...)
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %T: %w", v, err)
	}
	return nil
}

func (Codec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(Codec{})
}
