package chainsync

import (
	"fmt"

	"github.com/AndrewWestberg/cardano-ouroboros-go/cborval"
)

// wrappedHeaderFieldCount is the number of flat fields a wrapped header
// CBOR array carries, populating BlockHeader in wire order (spec §3):
// block number, slot number, hash, previous hash, issuer vkey, VRF vkey,
// two eta-VRF values, two leader-VRF values, block size, body hash,
// operational certificate, and three further uninterpreted fields,
// followed by the protocol major/minor version. BlockSize, Unknown0,
// Unknown1 and Unknown2 together are the "four uninterpreted fields"
// spec §3 calls for; they are preserved verbatim rather than given
// semantic names, matching original_source/src/lib.rs's BlockHeader, where
// unknown_0 and unknown_1 are i64 and unknown_2 is Vec<u8>.
const wrappedHeaderFieldCount = 18

func parseWrappedHeader(v cborval.Value) (*BlockHeader, error) {
	fields, ok := v.AsArray()
	if !ok || len(fields) != wrappedHeaderFieldCount {
		return nil, fmt.Errorf("wrapped header: expected array of %d fields, got %d", wrappedHeaderFieldCount, len(fields))
	}

	wantInt := func(i int) (int64, error) {
		n, ok := fields[i].IntValue()
		if !ok {
			return 0, fmt.Errorf("wrapped header: field %d is not an integer", i)
		}
		return n, nil
	}

	blockNumber, err := wantInt(0)
	if err != nil {
		return nil, err
	}
	slotNumber, err := wantInt(1)
	if err != nil {
		return nil, err
	}
	blockSize, err := wantInt(10)
	if err != nil {
		return nil, err
	}
	unknown0, err := wantInt(13)
	if err != nil {
		return nil, err
	}
	unknown1, err := wantInt(14)
	if err != nil {
		return nil, err
	}
	protoMajor, err := wantInt(16)
	if err != nil {
		return nil, err
	}
	protoMinor, err := wantInt(17)
	if err != nil {
		return nil, err
	}

	return &BlockHeader{
		BlockNumber:          blockNumber,
		SlotNumber:           slotNumber,
		Hash:                 fields[2].BytesVal(),
		PrevHash:             fields[3].BytesVal(),
		IssuerVkey:           fields[4].BytesVal(),
		VrfVkey:              fields[5].BytesVal(),
		EtaVrf0:              fields[6].BytesVal(),
		EtaVrf1:              fields[7].BytesVal(),
		LeaderVrf0:           fields[8].BytesVal(),
		LeaderVrf1:           fields[9].BytesVal(),
		BlockSize:            blockSize,
		BodyHash:             fields[11].BytesVal(),
		OpCert:               fields[12].BytesVal(),
		Unknown0:             unknown0,
		Unknown1:             unknown1,
		Unknown2:             fields[15].BytesVal(),
		ProtocolMajorVersion: protoMajor,
		ProtocolMinorVersion: protoMinor,
	}, nil
}

// decodePoint parses arr[idx] as a [slot, hash] point (spec §4.6).
func decodePoint(arr []cborval.Value, idx int) (Point, error) {
	if idx >= len(arr) {
		return Point{}, fmt.Errorf("point: missing element %d", idx)
	}
	return parsePoint(arr[idx])
}

func parsePoint(v cborval.Value) (Point, error) {
	pair, ok := v.AsArray()
	if !ok || len(pair) != 2 {
		return Point{}, fmt.Errorf("point: expected [slot, hash]")
	}
	slot, ok := pair[0].IntValue()
	if !ok {
		return Point{}, fmt.Errorf("point: slot is not an integer")
	}
	return Point{Slot: slot, Hash: pair[1].BytesVal()}, nil
}

// decodeTip parses v as a [point, block_number] tip (spec §4.6).
func decodeTip(v cborval.Value) (Tip, error) {
	pair, ok := v.AsArray()
	if !ok || len(pair) != 2 {
		return Tip{}, fmt.Errorf("tip: expected [point, block_number]")
	}
	point, err := parsePoint(pair[0])
	if err != nil {
		return Tip{}, err
	}
	blockNumber, ok := pair[1].IntValue()
	if !ok {
		return Tip{}, fmt.Errorf("tip: block_number is not an integer")
	}
	return Tip{SlotNumber: point.Slot, Hash: point.Hash, BlockNumber: blockNumber}, nil
}
