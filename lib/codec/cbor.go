// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// SelfDescribedTag is the CBOR self-describe tag (RFC 8949 §3.4.6).
// Witnesses and certificates are prefixed with it so that a consumer
// handed an opaque base64 header can recognise the payload as CBOR.
const SelfDescribedTag = 55799

// selfDescribedPrefix is the encoded form of tag 55799 (major type 6,
// two-byte argument 0xd9f7).
var selfDescribedPrefix = []byte{0xd9, 0xd9, 0xf7}

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// Closed enums such as asset.ContentEncoding implement
	// encoding.TextMarshaler and travel as their protocol names
	// ("identity", "gzip", "br") rather than as integers.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Header maps and property maps are always string-keyed.
		// Decoding into any must produce map[string]any rather than
		// the CBOR default map[interface{}]interface{}.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// A listing of a large store can exceed the library default
		// of 131072 array elements.
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
		// Mirrors the TextMarshaler setting above.
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// MarshalSelfDescribed encodes v and prefixes the result with the
// self-describe tag.
func MarshalSelfDescribed(v any) ([]byte, error) {
	body, err := encMode.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(selfDescribedPrefix)+len(body))
	out = append(out, selfDescribedPrefix...)
	return append(out, body...), nil
}

// UnmarshalSelfDescribed decodes data into v, accepting input with
// or without the self-describe tag.
func UnmarshalSelfDescribed(data []byte, v any) error {
	return decMode.Unmarshal(StripSelfDescribed(data), v)
}

// StripSelfDescribed returns data without a leading self-describe
// tag. Input without the tag is returned unchanged.
func StripSelfDescribed(data []byte) []byte {
	if len(data) >= len(selfDescribedPrefix) &&
		data[0] == selfDescribedPrefix[0] &&
		data[1] == selfDescribedPrefix[1] &&
		data[2] == selfDescribedPrefix[2] {
		return data[len(selfDescribedPrefix):]
	}
	return data
}

// Encoder is a CBOR stream encoder. Type alias so consumers import
// only lib/codec, not fxamacker/cbor directly.
type Encoder = cbor.Encoder

// Decoder is a CBOR stream decoder.
type Decoder = cbor.Decoder

// RawMessage is a raw encoded CBOR value, used to delay decoding of
// action-specific request fields until the handler knows their type.
type RawMessage = cbor.RawMessage

// NewEncoder returns a deterministic CBOR encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a CBOR decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}

// Diagnose returns the CBOR diagnostic notation (RFC 8949 §8) for
// data. Used by the CLI to print witnesses in readable form.
func Diagnose(data []byte) (string, error) {
	return cbor.Diagnose(StripSelfDescribed(data))
}
