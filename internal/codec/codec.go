// Package codec abstracts payload encoding for the messaging adapters.
package codec

import "encoding/json"

// Codec marshals and unmarshals wire payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	ContentType() string
}

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) ContentType() string                { return "application/json" }

// JSON returns the JSON codec.
func JSON() Codec { return jsonCodec{} }
