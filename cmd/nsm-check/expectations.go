package main

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/veilware/nsm/response"
)

type ValidationError struct {
	Message string
}

func NewValidationError(msg string, a ...any) *ValidationError {
	return &ValidationError{
		Message: fmt.Sprintf(msg, a...),
	}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Expectations describe the device configuration nsm-check verifies against.
type Expectations struct {
	// MaxPCRs is the number of PCRs the device must expose.
	MaxPCRs uint16 `json:"max_pcrs"`

	// LockedRange is the size of the pre-locked low PCR range [0, n).
	LockedRange uint16 `json:"locked_range"`

	// ZeroPCRs lists PCR indexes whose value must be all zero.
	ZeroPCRs []uint16 `json:"zero_pcrs"`

	// Digest names the hash algorithm of the PCR bank.
	Digest string `json:"digest"`
}

// DefaultExpectations match a stock device.
func DefaultExpectations() *Expectations {
	return &Expectations{
		MaxPCRs:     32,
		LockedRange: 16,
		ZeroPCRs:    []uint16{3},
		Digest:      "SHA384",
	}
}

func LoadExpectations(path string) (*Expectations, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	parsed := &Expectations{}

	err = yaml.UnmarshalStrict(raw, parsed)
	if err != nil {
		return nil, err
	}

	err = parsed.Validate()
	if err != nil {
		return nil, err
	}

	return parsed, nil
}

func (e *Expectations) Validate() error {
	if e.MaxPCRs == 0 {
		return NewValidationError("max_pcrs is required")
	}

	if e.LockedRange > e.MaxPCRs {
		return NewValidationError("locked_range %d exceeds max_pcrs %d", e.LockedRange, e.MaxPCRs)
	}

	for _, index := range e.ZeroPCRs {
		if index >= e.MaxPCRs {
			return NewValidationError("zero_pcrs index %d exceeds max_pcrs %d", index, e.MaxPCRs)
		}
	}

	if _, err := e.digest(); err != nil {
		return err
	}

	return nil
}

func (e *Expectations) digest() (response.Digest, error) {
	switch e.Digest {
	case "SHA256":
		return response.SHA256, nil
	case "SHA384":
		return response.SHA384, nil
	case "SHA512":
		return response.SHA512, nil
	}

	return 0, NewValidationError("unknown digest %q", e.Digest)
}
