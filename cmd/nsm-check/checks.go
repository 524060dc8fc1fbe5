package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"go.uber.org/zap"

	"github.com/veilware/nsm"
	"github.com/veilware/nsm/attestation"
	"github.com/veilware/nsm/request"
	"github.com/veilware/nsm/response"
)

type Checker struct {
	logger           *zap.Logger
	session          *nsm.Session
	expect           *Expectations
	mutate           bool
	randomIterations int
}

func (c *Checker) Run() error {
	desc, err := c.checkDescribeNSM()
	if err != nil {
		return err
	}

	err = c.checkPCRs(desc)
	if err != nil {
		return err
	}

	err = c.checkAttestation(desc)
	if err != nil {
		return err
	}

	err = c.checkRandom()
	if err != nil {
		return err
	}

	if c.mutate {
		err = c.checkMutation(desc)
		if err != nil {
			return err
		}
	}

	c.logger.Info("all checks passed")
	return nil
}

func (c *Checker) checkDescribeNSM() (*response.DescribeNSM, error) {
	res := c.session.Send(&request.DescribeNSM{})
	if res.Error != response.Success {
		return nil, fmt.Errorf("DescribeNSM failed with error code %v", res.Error)
	}
	if res.DescribeNSM == nil {
		return nil, fmt.Errorf("DescribeNSM response carried no description")
	}

	desc := res.DescribeNSM
	c.logger.Info("device description",
		zap.Uint16("version_major", desc.VersionMajor),
		zap.Uint16("version_minor", desc.VersionMinor),
		zap.Uint16("version_patch", desc.VersionPatch),
		zap.String("module_id", desc.ModuleID),
		zap.Uint16("max_pcrs", desc.MaxPCRs),
		zap.Uint16s("locked_pcrs", desc.LockedPCRs),
		zap.String("digest", desc.Digest.String()))

	if desc.ModuleID == "" {
		return nil, fmt.Errorf("device reported an empty module id")
	}

	if desc.MaxPCRs != c.expect.MaxPCRs {
		return nil, fmt.Errorf("device exposes %d PCRs, expected %d", desc.MaxPCRs, c.expect.MaxPCRs)
	}

	digest, err := c.expect.digest()
	if err != nil {
		return nil, err
	}
	if desc.Digest != digest {
		return nil, fmt.Errorf("device digest is %v, expected %v", desc.Digest, digest)
	}

	if len(desc.LockedPCRs) != int(c.expect.LockedRange) {
		return nil, fmt.Errorf("device reports %d locked PCRs, expected %d", len(desc.LockedPCRs), c.expect.LockedRange)
	}
	for _, index := range desc.LockedPCRs {
		if index >= c.expect.LockedRange {
			return nil, fmt.Errorf("PCR %d is locked outside the expected range [0, %d)", index, c.expect.LockedRange)
		}
	}

	return desc, nil
}

func (c *Checker) checkPCRs(desc *response.DescribeNSM) error {
	locked := map[uint16]bool{}
	for _, index := range desc.LockedPCRs {
		locked[index] = true
	}

	zero := map[uint16]bool{}
	for _, index := range c.expect.ZeroPCRs {
		zero[index] = true
	}

	for index := uint16(0); index < desc.MaxPCRs; index++ {
		res := c.session.Send(&request.DescribePCR{Index: index})
		if res.Error != response.Success {
			return fmt.Errorf("DescribePCR %d failed with error code %v", index, res.Error)
		}
		if res.DescribePCR == nil {
			return fmt.Errorf("DescribePCR %d response carried no value", index)
		}

		if len(res.DescribePCR.Data) != desc.Digest.Size() {
			return fmt.Errorf("PCR %d holds %d bytes, expected %d for %v",
				index, len(res.DescribePCR.Data), desc.Digest.Size(), desc.Digest)
		}

		if res.DescribePCR.Lock != locked[index] {
			return fmt.Errorf("PCR %d lock state is %t, expected %t", index, res.DescribePCR.Lock, locked[index])
		}

		if zero[index] && !bytes.Equal(res.DescribePCR.Data, make([]byte, desc.Digest.Size())) {
			return fmt.Errorf("PCR %d is not zero", index)
		}
	}

	res := c.session.Send(&request.DescribePCR{Index: desc.MaxPCRs})
	if res.Error != response.InvalidIndex {
		return fmt.Errorf("DescribePCR %d past the bank returned %v, expected InvalidIndex", desc.MaxPCRs, res.Error)
	}

	c.logger.Info("PCR survey passed", zap.Uint16("pcrs", desc.MaxPCRs))
	return nil
}

func (c *Checker) checkAttestation(desc *response.DescribeNSM) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}

	combos := []struct {
		name string
		args nsm.AttestationOptions
	}{
		{"no optional fields", nsm.AttestationOptions{}},
		{"user data", nsm.AttestationOptions{UserData: []byte("nsm-check user data")}},
		{"nonce", nsm.AttestationOptions{Nonce: []byte("nsm-check nonce")}},
		{"all fields", nsm.AttestationOptions{
			UserData:  []byte("nsm-check user data"),
			Nonce:     []byte("nsm-check nonce"),
			PublicKey: &key.PublicKey,
		}},
	}

	for _, combo := range combos {
		raw, err := c.session.Attest(combo.args)
		if err != nil {
			return fmt.Errorf("attestation with %s: %w", combo.name, err)
		}

		signed, err := attestation.ParseSigned(raw)
		if err != nil {
			return fmt.Errorf("attestation with %s: %w", combo.name, err)
		}

		doc, err := signed.Document()
		if err != nil {
			return fmt.Errorf("attestation with %s: %w", combo.name, err)
		}

		if doc.ModuleID != desc.ModuleID {
			return fmt.Errorf("document names module %q, device is %q", doc.ModuleID, desc.ModuleID)
		}
		if doc.Digest != desc.Digest {
			return fmt.Errorf("document digest is %v, device uses %v", doc.Digest, desc.Digest)
		}
		if doc.Timestamp == 0 {
			return fmt.Errorf("document carries no timestamp")
		}
		if len(doc.Certificate) == 0 {
			return fmt.Errorf("document carries no signing certificate")
		}
		if !bytes.Equal(doc.UserData, combo.args.UserData) {
			return fmt.Errorf("document user data does not match the request")
		}
		if !bytes.Equal(doc.Nonce, combo.args.Nonce) {
			return fmt.Errorf("document nonce does not match the request")
		}

		for index, value := range doc.PCRs {
			if len(value) != doc.Digest.Size() {
				return fmt.Errorf("document PCR %d holds %d bytes, expected %d",
					index, len(value), doc.Digest.Size())
			}
		}

		c.logger.Info("attestation check passed",
			zap.String("combination", combo.name),
			zap.Int("document_pcrs", len(doc.PCRs)))
	}

	return nil
}

func (c *Checker) checkRandom() error {
	seen := map[string]bool{}
	zeros := make([]byte, 32)

	for i := 0; i < c.randomIterations; i++ {
		draw := make([]byte, 32)

		_, err := c.session.Read(draw)
		if err != nil {
			return err
		}

		if bytes.Equal(draw, zeros) {
			return fmt.Errorf("GetRandom returned all-zero bytes")
		}
		if seen[string(draw)] {
			return fmt.Errorf("GetRandom returned the same bytes twice in %d draws", c.randomIterations)
		}

		seen[string(draw)] = true
	}

	c.logger.Info("entropy check passed", zap.Int("draws", c.randomIterations))
	return nil
}

// checkMutation extends and locks a PCR above the pre-locked range. It
// permanently changes device state, so it runs only behind the --mutate
// flag.
func (c *Checker) checkMutation(desc *response.DescribeNSM) error {
	if c.expect.LockedRange >= desc.MaxPCRs {
		return fmt.Errorf("no unlocked PCR available for mutation probes")
	}

	index := c.expect.LockedRange

	res := c.session.Send(&request.ExtendPCR{Index: index, Data: []byte("nsm-check mutation probe")})
	if res.Error != response.Success {
		return fmt.Errorf("ExtendPCR %d failed with error code %v", index, res.Error)
	}
	if res.ExtendPCR == nil || len(res.ExtendPCR.Data) != desc.Digest.Size() {
		return fmt.Errorf("ExtendPCR %d returned no usable register value", index)
	}

	res = c.session.Send(&request.LockPCR{Index: index})
	if res.Error != response.Success {
		return fmt.Errorf("LockPCR %d failed with error code %v", index, res.Error)
	}
	if res.LockPCR == nil {
		return fmt.Errorf("LockPCR %d response carried no confirmation", index)
	}

	res = c.session.Send(&request.ExtendPCR{Index: index, Data: []byte("must be rejected")})
	if res.Error != response.ReadOnlyIndex {
		return fmt.Errorf("extending locked PCR %d returned %v, expected ReadOnlyIndex", index, res.Error)
	}

	c.logger.Info("mutation probes passed", zap.Uint16("pcr", index))
	return nil
}
