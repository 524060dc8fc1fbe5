package attestation

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/veilware/nsm/internal/codec"
)

// sign1Tag is the CBOR tag number of a tagged COSE_Sign1 structure
// (RFC 8152 §4.2).
const sign1Tag = 18

type signedWire struct {
	_           struct{} `cbor:",toarray"`
	Protected   []byte
	Unprotected cbor.RawMessage
	Payload     []byte
	Signature   []byte
}

// A Signed is the split structure of the COSE_Sign1 envelope the device
// delivers attestation documents in. The split is structural only; this
// package does not verify the signature.
type Signed struct {
	// Protected is the serialized protected header map, covered by the
	// signature.
	Protected []byte

	// Unprotected is the raw unprotected header map.
	Unprotected cbor.RawMessage

	// Payload is the CBOR-encoded attestation document.
	Payload []byte

	// Signature is the signature over the protected header and payload.
	Signature []byte
}

// ParseSigned splits a COSE_Sign1 envelope into its four fields. Both the
// tagged and the untagged form are accepted.
func ParseSigned(data []byte) (*Signed, error) {
	var tagged cbor.RawTag

	err := codec.Unmarshal(data, &tagged)
	if err == nil {
		if tagged.Number != sign1Tag {
			return nil, &DecodeError{Reason: fmt.Sprintf("unexpected CBOR tag %d on signed document", tagged.Number)}
		}

		data = tagged.Content
	}

	var wire signedWire

	err = codec.Unmarshal(data, &wire)
	if err != nil {
		return nil, &DecodeError{Reason: "document is not a COSE_Sign1 structure", Err: err}
	}

	return &Signed{
		Protected:   wire.Protected,
		Unprotected: wire.Unprotected,
		Payload:     wire.Payload,
		Signature:   wire.Signature,
	}, nil
}

// Document parses the attestation document embedded in the envelope payload.
func (s *Signed) Document() (*Document, error) {
	return ParseDocument(s.Payload)
}
