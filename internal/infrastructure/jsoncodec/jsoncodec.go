// Package jsoncodec is the single JSON implementation used across ConsultEase Core.
//
// Bus payloads, HTTP bodies and websocket frames all go through here so the
// encoder can be swapped in one place. It is backed by sonic in std-compatible mode.
package jsoncodec

import (
	"io"

	"github.com/bytedance/sonic"
)

var defaultConfig = sonic.ConfigStd

func Marshal(v any) ([]byte, error) {
	return defaultConfig.Marshal(v)
}

func Unmarshal(data []byte, v any) error {
	return defaultConfig.Unmarshal(data, v)
}

// Encode writes v to w followed by a newline.
func Encode(w io.Writer, v any) error {
	return defaultConfig.NewEncoder(w).Encode(v)
}

// Decode reads one JSON value from r into v, rejecting unknown fields when strict is set.
func Decode(r io.Reader, v any, strict bool) error {
	dec := defaultConfig.NewDecoder(r)
	if strict {
		dec.DisallowUnknownFields()
	}
	return dec.Decode(v)
}
