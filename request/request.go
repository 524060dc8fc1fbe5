// Package request defines the request half of the NSM wire schema.
package request

import (
	"fmt"

	"github.com/veilware/nsm/internal/codec"
)

// Variant tags of the request union. Tags are part of the permanent wire
// contract: assigned once, never reused or reordered.
const (
	tagDescribePCR uint64 = 0
	tagExtendPCR   uint64 = 1
	tagLockPCR     uint64 = 2
	tagLockPCRs    uint64 = 3
	tagDescribeNSM uint64 = 4
	tagAttestation uint64 = 5
	tagGetRandom   uint64 = 6
)

// A Request to the NSM device. Each implementation reports its permanent
// variant tag and the body carrying its tagged fields.
type Request interface {
	Wire() (tag uint64, body any)
}

// DescribePCR reads the PCR at Index.
type DescribePCR struct {
	Index uint16 `cbor:"0,keyasint"`
}

// Wire returns the variant tag and body of the request.
func (r *DescribePCR) Wire() (uint64, any) {
	return tagDescribePCR, r
}

// ExtendPCR extends the PCR at Index with Data.
type ExtendPCR struct {
	Index uint16 `cbor:"0,keyasint"`
	Data  []byte `cbor:"1,keyasint"`
}

// Wire returns the variant tag and body of the request.
func (r *ExtendPCR) Wire() (uint64, any) {
	return tagExtendPCR, r
}

// LockPCR locks the PCR at Index from further extension.
type LockPCR struct {
	Index uint16 `cbor:"0,keyasint"`
}

// Wire returns the variant tag and body of the request.
func (r *LockPCR) Wire() (uint64, any) {
	return tagLockPCR, r
}

// LockPCRs locks the PCRs at indexes [0, Range).
type LockPCRs struct {
	Range uint16 `cbor:"0,keyasint"`
}

// Wire returns the variant tag and body of the request.
func (r *LockPCRs) Wire() (uint64, any) {
	return tagLockPCRs, r
}

// DescribeNSM asks for the capabilities and version of the device.
type DescribeNSM struct {
}

// Wire returns the variant tag and body of the request.
func (r *DescribeNSM) Wire() (uint64, any) {
	return tagDescribeNSM, r
}

// Attestation asks the device to produce a signed attestation document. All
// fields are optional and are bound into the document when present.
type Attestation struct {
	UserData  []byte `cbor:"0,keyasint,omitempty"`
	Nonce     []byte `cbor:"1,keyasint,omitempty"`
	PublicKey []byte `cbor:"2,keyasint,omitempty"`
}

// Wire returns the variant tag and body of the request.
func (r *Attestation) Wire() (uint64, any) {
	return tagAttestation, r
}

// GetRandom asks the device for entropy.
type GetRandom struct {
}

// Wire returns the variant tag and body of the request.
func (r *GetRandom) Wire() (uint64, any) {
	return tagGetRandom, r
}

// Marshal encodes a request into its canonical binary form. Two logically
// identical requests always marshal to identical bytes. Marshal does not fail
// for any well-formed request.
func Marshal(req Request) ([]byte, error) {
	tag, body := req.Wire()
	return codec.MarshalVariant(tag, body)
}

// Unmarshal is the mirror decoder of the request schema. It is used by
// in-process device substitutes and verification tooling, not by the client
// exchange path.
func Unmarshal(data []byte) (Request, error) {
	tag, body, err := codec.UnmarshalVariant(data)
	if err != nil {
		return nil, err
	}

	var req Request

	switch tag {
	case tagDescribePCR:
		req = &DescribePCR{}
	case tagExtendPCR:
		req = &ExtendPCR{}
	case tagLockPCR:
		req = &LockPCR{}
	case tagLockPCRs:
		req = &LockPCRs{}
	case tagDescribeNSM:
		req = &DescribeNSM{}
	case tagAttestation:
		req = &Attestation{}
	case tagGetRandom:
		req = &GetRandom{}
	default:
		return nil, fmt.Errorf("unknown request variant tag %d", tag)
	}

	err = codec.Unmarshal(body, req)
	if err != nil {
		return nil, err
	}

	return req, nil
}
