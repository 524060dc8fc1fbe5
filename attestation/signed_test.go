package attestation_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/veilware/nsm/attestation"
)

// buildEnvelope assembles an untagged COSE_Sign1 array around payload.
func buildEnvelope(t *testing.T, protected, payload, signature []byte) []byte {
	t.Helper()

	bstr := func(data []byte) []byte {
		require.Less(t, len(data), 256)

		if len(data) < 24 {
			return append([]byte{0x40 | byte(len(data))}, data...)
		}

		return append([]byte{0x58, byte(len(data))}, data...)
	}

	env := []byte{0x84}
	env = append(env, bstr(protected)...)
	env = append(env, 0xa0)
	env = append(env, bstr(payload)...)
	env = append(env, bstr(signature)...)

	return env
}

func TestParseSignedUntagged(t *testing.T) {
	payload, err := testDocument().MarshalBinary()
	require.NoError(t, err)

	protected := []byte{0xa1, 0x01, 0x38, 0x22} // {1: -35}, ES384
	signature := make([]byte, 96)

	signed, err := attestation.ParseSigned(buildEnvelope(t, protected, payload, signature))
	require.NoError(t, err)

	require.Equal(t, protected, signed.Protected)
	require.Equal(t, payload, signed.Payload)
	require.Equal(t, signature, signed.Signature)

	doc, err := signed.Document()
	require.NoError(t, err)

	if !cmp.Equal(testDocument(), doc) {
		t.Errorf("documents differ:\n%s", cmp.Diff(testDocument(), doc))
	}
}

func TestParseSignedTagged(t *testing.T) {
	payload, err := testDocument().MarshalBinary()
	require.NoError(t, err)

	env := buildEnvelope(t, []byte{0xa1, 0x01, 0x38, 0x22}, payload, make([]byte, 96))
	tagged := append([]byte{0xd2}, env...)

	signed, err := attestation.ParseSigned(tagged)
	require.NoError(t, err)
	require.Equal(t, payload, signed.Payload)
}

func TestParseSignedWrongTag(t *testing.T) {
	env := buildEnvelope(t, nil, []byte{0xa0}, nil)
	tagged := append([]byte{0xd8, 0x25}, env...)

	_, err := attestation.ParseSigned(tagged)
	require.Error(t, err)
}

func TestParseSignedGarbage(t *testing.T) {
	garbage := [][]byte{
		nil,
		{},
		{0xff},
		{0xa0},             // a map, not an array
		{0x83, 0x40, 0xa0}, // wrong arity
	}

	for _, data := range garbage {
		_, err := attestation.ParseSigned(data)
		require.Error(t, err, "bytes % x should not parse", data)
	}
}
