package handshake

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AndrewWestberg/cardano-ouroboros-go/cborval"
	"github.com/AndrewWestberg/cardano-ouroboros-go/proto"
)

const mainnetMagic = 764824073

func confirmPayload(t *testing.T, v cborval.Value) []byte {
	t.Helper()
	b, err := cborval.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestProposeThenAccept(t *testing.T) {
	h := New(mainnetMagic)
	require.Equal(t, proto.Client, h.Agency())

	_, err := h.SendNext()
	require.NoError(t, err)
	require.Equal(t, proto.Server, h.Agency())

	confirm := confirmPayload(t, cborval.Array(
		cborval.UInt(1),
		cborval.UInt(MinVersion),
		cborval.Array(cborval.UInt(mainnetMagic), cborval.Bool(false)),
	))
	require.NoError(t, h.Receive(confirm))
	require.Equal(t, proto.None, h.Agency())

	result, err := h.Result()
	require.NoError(t, err)
	require.Equal(t, hex.EncodeToString(confirm), result)
}

func TestVersionTooLow(t *testing.T) {
	h := New(mainnetMagic)
	_, _ = h.SendNext()

	confirm := confirmPayload(t, cborval.Array(
		cborval.UInt(1),
		cborval.UInt(4),
		cborval.Array(cborval.UInt(mainnetMagic), cborval.Bool(false)),
	))
	require.NoError(t, h.Receive(confirm))

	_, err := h.Result()
	require.EqualError(t, err, "Expected protocol version 5, but was 4")
}

func TestMagicMismatch(t *testing.T) {
	h := New(mainnetMagic)
	_, _ = h.SendNext()

	confirm := confirmPayload(t, cborval.Array(
		cborval.UInt(1),
		cborval.UInt(MinVersion),
		cborval.Array(cborval.UInt(42), cborval.Bool(false)),
	))
	require.NoError(t, h.Receive(confirm))

	_, err := h.Result()
	require.EqualError(t, err, "Expected network magic 764824073, but was 42")
}

func TestRefusal(t *testing.T) {
	h := New(mainnetMagic)
	_, _ = h.SendNext()

	confirm := confirmPayload(t, cborval.Array(
		cborval.UInt(2),
		cborval.Array(cborval.UInt(0), cborval.UInt(0), cborval.Text("VersionMismatch")),
	))
	require.NoError(t, h.Receive(confirm))

	_, err := h.Result()
	require.EqualError(t, err, "VersionMismatch")
}

func TestDoneStateNeverSends(t *testing.T) {
	h := New(mainnetMagic)
	_, _ = h.SendNext()
	confirm := confirmPayload(t, cborval.Array(cborval.UInt(7)))
	_ = h.Receive(confirm)

	payload, err := h.SendNext()
	require.NoError(t, err)
	require.Nil(t, payload)
}
