package chainsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AndrewWestberg/cardano-ouroboros-go/cborval"
	"github.com/AndrewWestberg/cardano-ouroboros-go/proto"
)

const mainnetMagic = 764824073

func rawHeaderFields(blockNumber, slotNumber int64, hash, prevHash []byte) []cborval.Value {
	return []cborval.Value{
		cborval.Int(blockNumber),
		cborval.Int(slotNumber),
		cborval.Bytes(hash),
		cborval.Bytes(prevHash),
		cborval.Bytes([]byte("issuer-vkey")),
		cborval.Bytes([]byte("vrf-vkey")),
		cborval.Bytes([]byte("eta-vrf-0")),
		cborval.Bytes([]byte("eta-vrf-1")),
		cborval.Bytes([]byte("leader-vrf-0")),
		cborval.Bytes([]byte("leader-vrf-1")),
		cborval.Int(1234),
		cborval.Bytes([]byte("body-hash")),
		cborval.Bytes([]byte("op-cert")),
		cborval.Int(0),
		cborval.Int(42),
		cborval.Bytes(nil),
		cborval.Int(6),
		cborval.Int(0),
	}
}

func wrappedHeaderMsg(blockNumber, slotNumber, tipBlockNumber int64, hash, tipHash []byte) []byte {
	header := cborval.Array(rawHeaderFields(blockNumber, slotNumber, hash, []byte("prev"))...)
	tip := cborval.Array(cborval.Array(cborval.Int(slotNumber), cborval.Bytes(tipHash)), cborval.Int(tipBlockNumber))
	msg := cborval.Array(cborval.UInt(msgRollForward), header, tip)
	b, err := cborval.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return b
}

type fakeStore struct {
	points   []Point
	pointsOK bool
	saved    [][]BlockHeader
}

func (s *fakeStore) LoadBlocks() ([]Point, bool) { return s.points, s.pointsOK }

func (s *fakeStore) SaveBlock(pending *[]BlockHeader, networkMagic uint32) error {
	cp := make([]BlockHeader, len(*pending))
	copy(cp, *pending)
	s.saved = append(s.saved, cp)
	*pending = (*pending)[:0]
	return nil
}

type fakeNotifier struct {
	tips []Tip
}

func (n *fakeNotifier) NotifyTip(tip Tip, header BlockHeader) {
	n.tips = append(n.tips, tip)
}

func TestIdleAgencyIsClient(t *testing.T) {
	cs := New(Sync, mainnetMagic, &fakeStore{}, nil)
	require.Equal(t, proto.Client, cs.Agency())
	require.Equal(t, "Idle", cs.StateLabel())
}

func TestFindIntersectIncludesByronAnchors(t *testing.T) {
	cs := New(Sync, mainnetMagic, &fakeStore{}, nil)
	payload, err := cs.SendNext()
	require.NoError(t, err)
	require.Equal(t, proto.Server, cs.Agency())

	decoded, err := cborval.Unmarshal(payload)
	require.NoError(t, err)
	arr, ok := decoded.AsArray()
	require.True(t, ok)
	msgID, _ := arr[0].IntValue()
	require.EqualValues(t, msgFindIntersect, msgID)

	points, ok := arr[1].AsArray()
	require.True(t, ok)
	last := points[len(points)-1]
	pair, _ := last.AsArray()
	slot, _ := pair[0].IntValue()
	require.EqualValues(t, byronTestnetSlot, slot)
}

func TestIntersectFoundThenRequestsNext(t *testing.T) {
	cs := New(Sync, mainnetMagic, &fakeStore{}, nil)
	_, _ = cs.SendNext()

	found, _ := cborval.Marshal(cborval.Array(cborval.UInt(msgIntersectFound),
		cborval.Array(cborval.Int(100), cborval.Bytes([]byte("h"))),
		cborval.Array(cborval.Array(cborval.Int(100), cborval.Bytes([]byte("h"))), cborval.Int(1))))
	require.NoError(t, cs.Receive(found))
	require.Equal(t, proto.Client, cs.Agency())

	payload, err := cs.SendNext()
	require.NoError(t, err)
	decoded, _ := cborval.Unmarshal(payload)
	arr, _ := decoded.AsArray()
	msgID, _ := arr[0].IntValue()
	require.EqualValues(t, msgRequestNext, msgID)
}

func TestIntersectNotFoundTreatedAsFound(t *testing.T) {
	cs := New(Sync, mainnetMagic, &fakeStore{}, nil)
	_, _ = cs.SendNext()

	notFound, _ := cborval.Marshal(cborval.Array(cborval.UInt(msgIntersectNotFound),
		cborval.Array(cborval.Array(cborval.Int(1), cborval.Bytes([]byte("h"))), cborval.Int(1))))
	require.NoError(t, cs.Receive(notFound))
	require.True(t, cs.isIntersectFound)
}

func TestRollForwardBatchesIntoStoreAfterInterval(t *testing.T) {
	store := &fakeStore{}
	cs := New(Sync, mainnetMagic, store, nil)
	cs.isIntersectFound = true
	cs.lastInsertTime = cs.lastInsertTime.Add(-batchInterval - time.Second)

	msg := wrappedHeaderMsg(10, 100, 10, []byte("h10"), []byte("h10"))
	require.NoError(t, cs.Receive(msg))

	require.Len(t, store.saved, 1)
	require.Len(t, store.saved[0], 1)
	require.Equal(t, int64(10), store.saved[0][0].BlockNumber)
	require.Equal(t, int64(6), store.saved[0][0].ProtocolMajorVersion)
	require.Equal(t, int64(42), store.saved[0][0].Unknown1)
}

func TestSendTipNotifiesWhenHeaderMatchesTip(t *testing.T) {
	notifier := &fakeNotifier{}
	cs := New(SendTip, mainnetMagic, nil, notifier)
	cs.isIntersectFound = true

	msg := wrappedHeaderMsg(50, 500, 50, []byte("tiphash"), []byte("tiphash"))
	require.NoError(t, cs.Receive(msg))

	require.Len(t, notifier.tips, 1)
	require.Equal(t, int64(500), notifier.tips[0].SlotNumber)
}

func TestDoneTransitionsToNoneAgency(t *testing.T) {
	cs := New(Sync, mainnetMagic, &fakeStore{}, nil)
	done, _ := cborval.Marshal(cborval.Array(cborval.UInt(msgDone)))
	require.NoError(t, cs.Receive(done))
	require.Equal(t, proto.None, cs.Agency())
	result, err := cs.Result()
	require.NoError(t, err)
	require.Equal(t, "Done", result)
}
