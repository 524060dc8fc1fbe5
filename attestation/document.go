// Package attestation models the NSM attestation document and the signed
// COSE envelope it is delivered in. Documents are free-standing values with
// no session affinity, so verification tooling can parse them without ever
// opening the device.
package attestation

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/veilware/nsm/internal/codec"
	"github.com/veilware/nsm/response"
)

// Field keys of the document map. Keys are part of the permanent wire
// contract: assigned once, never reused or reordered.
const (
	keyModuleID uint64 = iota
	keyDigest
	keyTimestamp
	keyPCRs
	keyCertificate
	keyCABundle
	keyPublicKey
	keyUserData
	keyNonce
)

// requiredKeys must all be present for document bytes to parse.
var requiredKeys = []uint64{
	keyModuleID,
	keyDigest,
	keyTimestamp,
	keyPCRs,
	keyCertificate,
	keyCABundle,
}

// A DecodeError describes why attestation document bytes failed to parse.
type DecodeError struct {
	Reason string
	Err    error
}

// Error returns the formatted string.
func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decoding attestation document: %s: %v", e.Reason, e.Err)
	}

	return fmt.Sprintf("decoding attestation document: %s", e.Reason)
}

// Unwrap returns the underlying CBOR error, if any.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// A Document is the signed statement produced by the device binding the PCR
// values and optional caller-supplied data. Construction takes explicit
// field values; semantic checks such as certificate chain validity belong to
// an external verifier.
type Document struct {
	// ModuleID identifies the issuing device.
	ModuleID string

	// Digest is the hash algorithm of the PCR bank; it fixes the byte
	// length of every value in PCRs.
	Digest response.Digest

	// Timestamp is the document creation time in milliseconds since the
	// Unix epoch.
	Timestamp uint64

	// PCRs maps each PCR index to its value at the moment the document was
	// generated. It encodes in ascending index order.
	PCRs map[uint16][]byte

	// Certificate is the DER-encoded certificate the document was signed
	// with.
	Certificate []byte

	// CABundle is the issuing CA bundle for Certificate, in order.
	CABundle [][]byte

	// PublicKey is an optional DER-encoded key the attestation consumer
	// can use to encrypt data with.
	PublicKey []byte

	// UserData is optional additional signed user data.
	UserData []byte

	// Nonce is an optional cryptographic nonce provided by the attestation
	// consumer as a proof of authenticity.
	Nonce []byte
}

type docWire struct {
	ModuleID    string            `cbor:"0,keyasint"`
	Digest      response.Digest   `cbor:"1,keyasint"`
	Timestamp   uint64            `cbor:"2,keyasint"`
	PCRs        map[uint16][]byte `cbor:"3,keyasint"`
	Certificate []byte            `cbor:"4,keyasint"`
	CABundle    [][]byte          `cbor:"5,keyasint"`
	PublicKey   []byte            `cbor:"6,keyasint,omitempty"`
	UserData    []byte            `cbor:"7,keyasint,omitempty"`
	Nonce       []byte            `cbor:"8,keyasint,omitempty"`
}

// MarshalBinary produces the canonical encoding of the document. It does not
// fail for any well-formed document.
func (doc *Document) MarshalBinary() ([]byte, error) {
	wire := docWire{
		ModuleID:    doc.ModuleID,
		Digest:      doc.Digest,
		Timestamp:   doc.Timestamp,
		PCRs:        doc.PCRs,
		Certificate: doc.Certificate,
		CABundle:    doc.CABundle,
		PublicKey:   doc.PublicKey,
		UserData:    doc.UserData,
		Nonce:       doc.Nonce,
	}

	// Required fields always appear on the wire, even when empty.
	if wire.PCRs == nil {
		wire.PCRs = map[uint16][]byte{}
	}
	if wire.CABundle == nil {
		wire.CABundle = [][]byte{}
	}

	return codec.Marshal(&wire)
}

// UnmarshalBinary parses document bytes, requiring every non-optional field
// to be present and every map key to be unique.
func (doc *Document) UnmarshalBinary(data []byte) error {
	var fields map[uint64]cbor.RawMessage

	err := codec.Unmarshal(data, &fields)
	if err != nil {
		return &DecodeError{Reason: "document is not a CBOR map", Err: err}
	}

	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return &DecodeError{Reason: fmt.Sprintf("missing required field %d", key)}
		}
	}

	var wire docWire

	err = codec.Unmarshal(data, &wire)
	if err != nil {
		return &DecodeError{Reason: "malformed field", Err: err}
	}

	doc.ModuleID = wire.ModuleID
	doc.Digest = wire.Digest
	doc.Timestamp = wire.Timestamp
	doc.PCRs = wire.PCRs
	doc.Certificate = wire.Certificate
	doc.CABundle = wire.CABundle
	doc.PublicKey = wire.PublicKey
	doc.UserData = wire.UserData
	doc.Nonce = wire.Nonce

	return nil
}

// ParseDocument parses document bytes into a Document.
func ParseDocument(data []byte) (*Document, error) {
	doc := &Document{}

	err := doc.UnmarshalBinary(data)
	if err != nil {
		return nil, err
	}

	return doc, nil
}
