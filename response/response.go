// Package response defines the response half of the NSM wire schema.
package response

import (
	"errors"
	"fmt"

	"github.com/veilware/nsm/internal/codec"
)

// Variant tags of the response union. Tags are part of the permanent wire
// contract: assigned once, never reused or reordered.
const (
	tagDescribePCR uint64 = 0
	tagExtendPCR   uint64 = 1
	tagLockPCR     uint64 = 2
	tagLockPCRs    uint64 = 3
	tagDescribeNSM uint64 = 4
	tagAttestation uint64 = 5
	tagGetRandom   uint64 = 6
	tagError       uint64 = 7
)

// An ErrorCode returned by the device as part of a response.
type ErrorCode uint

// Error codes the device can return.
const (
	// Success - no error.
	Success ErrorCode = iota

	// InvalidArgument - input argument(s) invalid.
	InvalidArgument

	// InvalidIndex - PCR index out of bounds.
	InvalidIndex

	// InvalidResponse - the response does not correspond to the request.
	InvalidResponse

	// ReadOnlyIndex - the PCR is locked and cannot be modified.
	ReadOnlyIndex

	// InvalidOperation - the request cannot be fulfilled due to missing
	// capabilities.
	InvalidOperation

	// BufferTooSmall - the operation succeeded but the provided output
	// buffer is too small.
	BufferTooSmall

	// InputTooLarge - the user-provided input is too large.
	InputTooLarge

	// InternalError - the device cannot fulfill the request due to internal
	// errors.
	InternalError
)

// String returns the name of the error code.
func (c ErrorCode) String() string {
	switch c {
	case Success:
		return "Success"
	case InvalidArgument:
		return "InvalidArgument"
	case InvalidIndex:
		return "InvalidIndex"
	case InvalidResponse:
		return "InvalidResponse"
	case ReadOnlyIndex:
		return "ReadOnlyIndex"
	case InvalidOperation:
		return "InvalidOperation"
	case BufferTooSmall:
		return "BufferTooSmall"
	case InputTooLarge:
		return "InputTooLarge"
	case InternalError:
		return "InternalError"
	}

	return fmt.Sprintf("ErrorCode(%d)", uint(c))
}

// MarshalCBOR encodes the error code as a fieldless enum variant.
func (c ErrorCode) MarshalCBOR() ([]byte, error) {
	return codec.MarshalVariant(uint64(c), struct{}{})
}

// UnmarshalCBOR decodes the error code from its fieldless enum variant.
func (c *ErrorCode) UnmarshalCBOR(data []byte) error {
	tag, body, err := codec.UnmarshalVariant(data)
	if err != nil {
		return err
	}

	var empty struct{}

	err = codec.Unmarshal(body, &empty)
	if err != nil {
		return err
	}

	*c = ErrorCode(tag)
	return nil
}

// A Digest names the hash algorithm of the device's PCR bank. It fixes the
// byte length of every PCR value in a response.
type Digest uint

// Digests a device can report.
const (
	SHA256 Digest = iota
	SHA384
	SHA512
)

// String returns the name of the digest.
func (d Digest) String() string {
	switch d {
	case SHA256:
		return "SHA256"
	case SHA384:
		return "SHA384"
	case SHA512:
		return "SHA512"
	}

	return fmt.Sprintf("Digest(%d)", uint(d))
}

// Size returns the byte length of a PCR value under this digest, or 0 if the
// digest is unknown.
func (d Digest) Size() int {
	switch d {
	case SHA256:
		return 32
	case SHA384:
		return 48
	case SHA512:
		return 64
	}

	return 0
}

// MarshalCBOR encodes the digest as a fieldless enum variant.
func (d Digest) MarshalCBOR() ([]byte, error) {
	return codec.MarshalVariant(uint64(d), struct{}{})
}

// UnmarshalCBOR decodes the digest from its fieldless enum variant.
func (d *Digest) UnmarshalCBOR(data []byte) error {
	tag, body, err := codec.UnmarshalVariant(data)
	if err != nil {
		return err
	}

	var empty struct{}

	err = codec.Unmarshal(body, &empty)
	if err != nil {
		return err
	}

	*d = Digest(tag)
	return nil
}

// A DescribePCR response.
type DescribePCR struct {
	Lock bool   `cbor:"0,keyasint"`
	Data []byte `cbor:"1,keyasint"`
}

// An ExtendPCR response. Data holds the new value of the PCR.
type ExtendPCR struct {
	Data []byte `cbor:"0,keyasint"`
}

// A LockPCR response. Presence on a Response confirms the PCR has been
// locked.
type LockPCR struct {
}

// A LockPCRs response. Presence on a Response confirms the PCRs have been
// locked.
type LockPCRs struct {
}

// A DescribeNSM response.
type DescribeNSM struct {
	VersionMajor uint16   `cbor:"0,keyasint"`
	VersionMinor uint16   `cbor:"1,keyasint"`
	VersionPatch uint16   `cbor:"2,keyasint"`
	ModuleID     string   `cbor:"3,keyasint"`
	MaxPCRs      uint16   `cbor:"4,keyasint"`
	LockedPCRs   []uint16 `cbor:"5,keyasint"`
	Digest       Digest   `cbor:"6,keyasint"`
}

// An Attestation response. Document is a signed COSE_Sign1 envelope carrying
// a CBOR-encoded attestation document as its payload.
type Attestation struct {
	Document []byte `cbor:"0,keyasint"`
}

// A GetRandom response.
type GetRandom struct {
	Random []byte `cbor:"0,keyasint"`
}

type errorBody struct {
	Code ErrorCode `cbor:"0,keyasint"`
}

// A Response from the NSM device. At most one variant field is set at any
// time. Always check the Error field first; it is Success when a variant
// field carries the result.
type Response struct {
	DescribePCR *DescribePCR
	ExtendPCR   *ExtendPCR
	LockPCR     *LockPCR
	LockPCRs    *LockPCRs
	DescribeNSM *DescribeNSM
	Attestation *Attestation
	GetRandom   *GetRandom

	Error ErrorCode
}

// Decode parses exactly one response from the bytes the device wrote. Decode
// is total: any failure, including truncated bytes, malformed structure and
// unknown future variant tags, yields Error(InternalError) rather than a Go
// error.
func Decode(data []byte) Response {
	tag, body, err := codec.UnmarshalVariant(data)
	if err != nil {
		return Response{Error: InternalError}
	}

	res := Response{}
	var target any

	switch tag {
	case tagDescribePCR:
		res.DescribePCR = &DescribePCR{}
		target = res.DescribePCR
	case tagExtendPCR:
		res.ExtendPCR = &ExtendPCR{}
		target = res.ExtendPCR
	case tagLockPCR:
		res.LockPCR = &LockPCR{}
		target = res.LockPCR
	case tagLockPCRs:
		res.LockPCRs = &LockPCRs{}
		target = res.LockPCRs
	case tagDescribeNSM:
		res.DescribeNSM = &DescribeNSM{}
		target = res.DescribeNSM
	case tagAttestation:
		res.Attestation = &Attestation{}
		target = res.Attestation
	case tagGetRandom:
		res.GetRandom = &GetRandom{}
		target = res.GetRandom
	case tagError:
		var eb errorBody

		err = codec.Unmarshal(body, &eb)
		if err != nil {
			return Response{Error: InternalError}
		}

		return Response{Error: eb.Code}
	default:
		return Response{Error: InternalError}
	}

	err = codec.Unmarshal(body, target)
	if err != nil {
		return Response{Error: InternalError}
	}

	return res
}

// Marshal is the peer-side mirror encoder of the response schema. It is used
// by in-process device substitutes and fixtures, not by the client exchange
// path. A Response with no variant set and a Success error code cannot be
// marshaled.
func Marshal(res Response) ([]byte, error) {
	switch {
	case res.DescribePCR != nil:
		return codec.MarshalVariant(tagDescribePCR, res.DescribePCR)
	case res.ExtendPCR != nil:
		return codec.MarshalVariant(tagExtendPCR, res.ExtendPCR)
	case res.LockPCR != nil:
		return codec.MarshalVariant(tagLockPCR, res.LockPCR)
	case res.LockPCRs != nil:
		return codec.MarshalVariant(tagLockPCRs, res.LockPCRs)
	case res.DescribeNSM != nil:
		return codec.MarshalVariant(tagDescribeNSM, res.DescribeNSM)
	case res.Attestation != nil:
		return codec.MarshalVariant(tagAttestation, res.Attestation)
	case res.GetRandom != nil:
		return codec.MarshalVariant(tagGetRandom, res.GetRandom)
	case res.Error != Success:
		return codec.MarshalVariant(tagError, &errorBody{Code: res.Error})
	}

	return nil, errors.New("response has no variant set")
}
