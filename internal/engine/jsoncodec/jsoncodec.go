// Package jsoncodec is the single JSON codec for the module: record
// payloads, dead-letter envelopes, and engine REST bodies all go through
// it. It wraps sonic in its stdlib-compatible configuration so field
// matching stays case-insensitive, which row decoding relies on, since the
// engine uppercases unquoted column names.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var codec = sonic.ConfigStd

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return codec.Marshal(v)
}

// MarshalIndent encodes v as indented JSON.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return codec.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes JSON data into v.
func Unmarshal(data []byte, v any) error {
	return codec.Unmarshal(data, v)
}

// Encode writes v as JSON to w.
func Encode(w io.Writer, v any) error {
	return codec.NewEncoder(w).Encode(v)
}

// Decode reads JSON from r into v.
func Decode(r io.Reader, v any) error {
	return codec.NewDecoder(r).Decode(v)
}
