package request_test

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/veilware/nsm/request"
)

func TestMarshalDescribePCRFixture(t *testing.T) {
	encoded, err := request.Marshal(&request.DescribePCR{Index: 5})
	require.NoError(t, err)

	// [0, {0: 5}]
	require.Equal(t, []byte{0x82, 0x00, 0xa1, 0x00, 0x05}, encoded)
}

func TestMarshalFieldlessFixtures(t *testing.T) {
	encoded, err := request.Marshal(&request.DescribeNSM{})
	require.NoError(t, err)
	require.Equal(t, []byte{0x82, 0x04, 0xa0}, encoded)

	encoded, err = request.Marshal(&request.GetRandom{})
	require.NoError(t, err)
	require.Equal(t, []byte{0x82, 0x06, 0xa0}, encoded)
}

func TestMarshalAttestationFieldOrder(t *testing.T) {
	encoded, err := request.Marshal(&request.Attestation{
		UserData:  []byte{0xaa},
		Nonce:     []byte{0xbb},
		PublicKey: []byte{0xcc},
	})
	require.NoError(t, err)

	// [5, {0: h'AA', 1: h'BB', 2: h'CC'}] with field tags ascending
	// regardless of declaration order.
	require.Equal(t, []byte{
		0x82, 0x05, 0xa3,
		0x00, 0x41, 0xaa,
		0x01, 0x41, 0xbb,
		0x02, 0x41, 0xcc,
	}, encoded)
}

func TestMarshalOmitsAbsentOptionalFields(t *testing.T) {
	encoded, err := request.Marshal(&request.Attestation{Nonce: []byte{0x01, 0x02}})
	require.NoError(t, err)

	// [5, {1: h'0102'}]
	require.Equal(t, []byte{0x82, 0x05, 0xa1, 0x01, 0x42, 0x01, 0x02}, encoded)
}

func TestMarshalIsDeterministic(t *testing.T) {
	req := &request.ExtendPCR{Index: 17, Data: []byte("measurement")}

	first, err := request.Marshal(req)
	require.NoError(t, err)

	second, err := request.Marshal(req)
	require.NoError(t, err)

	require.True(t, bytes.Equal(first, second))
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  request.Request
	}{
		{"DescribePCR", &request.DescribePCR{Index: 5}},
		{"DescribePCRZeroIndex", &request.DescribePCR{Index: 0}},
		{"ExtendPCR", &request.ExtendPCR{Index: 16, Data: []byte{1, 2, 3, 4}}},
		{"LockPCR", &request.LockPCR{Index: 16}},
		{"LockPCRs", &request.LockPCRs{Range: 32}},
		{"DescribeNSM", &request.DescribeNSM{}},
		{"AttestationEmpty", &request.Attestation{}},
		{"AttestationFull", &request.Attestation{
			UserData:  []byte("user data"),
			Nonce:     []byte("nonce"),
			PublicKey: []byte("public key"),
		}},
		{"GetRandom", &request.GetRandom{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			encoded, err := request.Marshal(test.req)
			require.NoError(t, err)

			decoded, err := request.Unmarshal(encoded)
			require.NoError(t, err)

			if !cmp.Equal(test.req, decoded) {
				t.Errorf("want %+v, got %+v:\n%s", test.req, decoded, cmp.Diff(test.req, decoded))
			}
		})
	}
}

func TestUnmarshalUnknownVariant(t *testing.T) {
	// [99, {}]
	_, err := request.Unmarshal([]byte{0x82, 0x18, 0x63, 0xa0})
	require.Error(t, err)
}

func TestUnmarshalMalformed(t *testing.T) {
	malformed := [][]byte{
		nil,
		{},
		{0xff},
		{0x82, 0x00},             // array too short
		{0x82, 0x00, 0xa1, 0x00}, // truncated body
		{0x80},                   // empty array
	}

	for _, data := range malformed {
		_, err := request.Unmarshal(data)
		require.Error(t, err, "bytes % x should not decode", data)
	}
}
