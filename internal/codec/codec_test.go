package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVariantRoundTrip(t *testing.T) {
	type body struct {
		Index uint16 `cbor:"0,keyasint"`
		Data  []byte `cbor:"1,keyasint"`
	}

	encoded, err := MarshalVariant(1, &body{Index: 3, Data: []byte{0xaa}})
	require.NoError(t, err)
	require.Equal(t, []byte{0x82, 0x01, 0xa2, 0x00, 0x03, 0x01, 0x41, 0xaa}, encoded)

	tag, raw, err := UnmarshalVariant(encoded)
	require.NoError(t, err)
	require.Equal(t, uint64(1), tag)

	decoded := body{}
	require.NoError(t, Unmarshal(raw, &decoded))
	require.Equal(t, uint16(3), decoded.Index)
	require.Equal(t, []byte{0xaa}, decoded.Data)
}

func TestMarshalSortsMapKeys(t *testing.T) {
	encoded, err := Marshal(map[uint64][]byte{
		9: {9},
		1: {1},
		4: {4},
	})
	require.NoError(t, err)

	require.Equal(t, []byte{
		0xa3,
		0x01, 0x41, 0x01,
		0x04, 0x41, 0x04,
		0x09, 0x41, 0x09,
	}, encoded)
}

func TestUnmarshalRejectsDuplicateMapKeys(t *testing.T) {
	var m map[uint64]uint64

	// {1: 1, 1: 2}
	err := Unmarshal([]byte{0xa2, 0x01, 0x01, 0x01, 0x02}, &m)
	require.Error(t, err)
}

func TestUnmarshalVariantRejectsWrongArity(t *testing.T) {
	_, _, err := UnmarshalVariant([]byte{0x81, 0x00})
	require.Error(t, err)

	_, _, err = UnmarshalVariant([]byte{0x83, 0x00, 0xa0, 0xa0})
	require.Error(t, err)
}
