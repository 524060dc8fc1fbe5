// Package codec holds the shared CBOR encode and decode modes for the NSM
// wire protocol.
//
// Every union variant on the wire is a two-element array [variant-tag, body],
// where the body is a map keyed by small-integer field tags. Encoding follows
// the CBOR Core Deterministic requirements (shortest-form integers, definite
// lengths, bytewise-sorted map keys) so that logically identical values
// always produce identical bytes.
package codec

import (
	"github.com/fxamacker/cbor/v2"
)

var (
	em cbor.EncMode
	dm cbor.DecMode
)

func init() {
	var err error

	em, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	dm, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) {
	return em.Marshal(v)
}

// Unmarshal decodes data into v, rejecting duplicate map keys.
func Unmarshal(data []byte, v any) error {
	return dm.Unmarshal(data, v)
}

type variant struct {
	_    struct{} `cbor:",toarray"`
	Tag  uint64
	Body cbor.RawMessage
}

// MarshalVariant encodes one tagged union variant as [tag, body].
func MarshalVariant(tag uint64, body any) ([]byte, error) {
	raw, err := em.Marshal(body)
	if err != nil {
		return nil, err
	}

	return em.Marshal(&variant{Tag: tag, Body: raw})
}

// UnmarshalVariant splits a tagged union variant into its tag and raw body.
func UnmarshalVariant(data []byte) (uint64, cbor.RawMessage, error) {
	var v variant

	err := dm.Unmarshal(data, &v)
	if err != nil {
		return 0, nil, err
	}

	return v.Tag, v.Body, nil
}
