package cborval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTripArray(t *testing.T) {
	v := Array(Int(0), Bytes([]byte{1, 2, 3}), Text("hi"), Bool(true))

	encoded, err := Marshal(v)
	require.NoError(t, err)

	decoded, err := Unmarshal(encoded)
	require.NoError(t, err)

	arr, ok := decoded.AsArray()
	require.True(t, ok)
	require.Len(t, arr, 4)

	n, ok := arr[0].IntValue()
	require.True(t, ok)
	require.Equal(t, int64(0), n)
	require.Equal(t, []byte{1, 2, 3}, arr[1].BytesVal())
	require.Equal(t, "hi", arr[2].TextVal())
	require.Equal(t, true, arr[3].BoolVal())
}

func TestEncodeIsDeterministic(t *testing.T) {
	v := Map(
		MapEntry{Key: UInt(4), Val: Array(UInt(764824073), Bool(false))},
		MapEntry{Key: UInt(1), Val: UInt(764824073)},
		MapEntry{Key: UInt(2), Val: UInt(764824073)},
	)
	a, err := Marshal(v)
	require.NoError(t, err)
	b, err := Marshal(v)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestFindTextDepthFirst(t *testing.T) {
	v := Array(UInt(2), Array(UInt(0), UInt(0), Text("VersionMismatch")))
	text, ok := FindText(v)
	require.True(t, ok)
	require.Equal(t, "VersionMismatch", text)
}

func TestFindTextNone(t *testing.T) {
	v := Array(UInt(1), UInt(2))
	_, ok := FindText(v)
	require.False(t, ok)
}

func TestUnmarshalMalformedReturnsError(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, KindMalformed, cerr.Kind)
}

func TestUnmarshalTagIsUnsupportedNotMalformed(t *testing.T) {
	// CBOR tag 1 (0xc1) wrapping the unsigned integer 0 (0x00): a
	// well-formed value this grammar simply doesn't carry tags in.
	_, err := Unmarshal([]byte{0xc1, 0x00})
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, KindUnsupported, cerr.Kind)
}
