package connectbridge

import (
	"encoding/json"

	"connectrpc.com/connect"
)

// jsonCodec is a connect.Codec that marshals plain Go structs with
// encoding/json. connect-go's built-in "proto" and "json" codecs both
// require messages to implement proto.Message; the commit payloads
// bridged here are the same JSON documents pkg/codec already produces,
// so this package brings its own codec rather than pull protobuf back
// in just to satisfy connect's default registration.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// ClientCodecOption configures a connect.Client to speak the same
// plain-JSON codec NewHandler serves, rather than connect's
// proto.Message-bound defaults.
func ClientCodecOption() connect.ClientOption {
	return connect.WithCodec(jsonCodec{})
}
