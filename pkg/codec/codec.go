// Package codec defines the structured-data codec used to encode lazy
// response payloads and decode structured request bodies.
package codec

import "encoding/json"

// Codec encodes values to bytes and decodes bytes into a caller-supplied shape.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSON is the default codec.
type JSON struct{}

// Marshal encodes v as JSON.
func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON data into v, which must be a pointer.
func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Default is used when no codec is injected.
var Default Codec = JSON{}
