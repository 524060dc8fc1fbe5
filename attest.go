package nsm

import (
	"crypto/x509"
	"fmt"

	"github.com/veilware/nsm/request"
	"github.com/veilware/nsm/response"
)

// AttestationOptions select what the device binds into an attestation
// document beyond the PCR values.
type AttestationOptions struct {
	// Nonce is an optional cryptographic nonce which may be signed as part
	// of the attestation for use by applications in preventing replay
	// attacks.
	Nonce []byte

	// UserData is an optional opaque blob which will be signed as part of
	// the attestation for application-defined purposes.
	UserData []byte

	// PublicKey is an optional public key which will be included in the
	// attestation. Valid types are *rsa.PublicKey, *ecdsa.PublicKey, and
	// ed25519.PublicKey.
	PublicKey any
}

// ErrorAttestationFailed is an error returned when an Attestation request
// has failed with an error code or its response carried no document.
type ErrorAttestationFailed struct {
	ErrorCode response.ErrorCode
}

// Error returns the formatted string.
func (err *ErrorAttestationFailed) Error() string {
	if err.ErrorCode != response.Success {
		return fmt.Sprintf("attestation failed with error code %v", err.ErrorCode)
	}

	return "attestation response did not include a document"
}

// Attest asks the device to produce a signed attestation document binding
// the current PCR values and the supplied optional fields. The returned
// bytes are a COSE_Sign1 envelope; see the attestation package for parsing
// them.
func (sess *Session) Attest(args AttestationOptions) ([]byte, error) {
	var publicKey []byte

	if args.PublicKey != nil {
		der, err := x509.MarshalPKIXPublicKey(args.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("marshaling attestation public key: %w", err)
		}

		publicKey = der
	}

	res := sess.Send(&request.Attestation{
		UserData:  args.UserData,
		Nonce:     args.Nonce,
		PublicKey: publicKey,
	})

	if res.Error != response.Success {
		return nil, &ErrorAttestationFailed{ErrorCode: res.Error}
	}

	if res.Attestation == nil || res.Attestation.Document == nil {
		return nil, &ErrorAttestationFailed{}
	}

	return res.Attestation.Document, nil
}
