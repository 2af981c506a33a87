// Package handshake implements the mandatory version/network-magic
// negotiation sub-protocol (spec §4.5), grounded byte-for-byte on
// original_source/src/protocols/handshake.rs.
package handshake

import (
	"fmt"

	"github.com/AndrewWestberg/cardano-ouroboros-go/cborval"
	"github.com/AndrewWestberg/cardano-ouroboros-go/proto"
)

// ProtocolID is Handshake's wire identifier.
const ProtocolID uint16 = 0x0000

// Versions proposed, in ascending order. MinVersion is the lowest
// acceptable version a peer's Confirm may report; versions below it are a
// version error regardless of what params follow.
const (
	versionV1       = 1
	versionV2       = 2
	versionShelley  = 3
	versionShelley2 = 4
	versionAllegra  = 5

	// MinVersion is the build-time constant lowest acceptable version.
	MinVersion = versionAllegra

	acceptMsgID = 1
)

type state int

const (
	statePropose state = iota
	stateConfirm
	stateDone
)

// Handshake is the client-role Handshake sub-protocol.
type Handshake struct {
	networkMagic uint32
	state        state
	result       string
	resultErr    error
}

// New constructs a Handshake proposing networkMagic.
func New(networkMagic uint32) *Handshake {
	return &Handshake{networkMagic: networkMagic, state: statePropose}
}

func (h *Handshake) ProtocolID() uint16 { return ProtocolID }

func (h *Handshake) Role() proto.Role { return proto.RoleClient }

func (h *Handshake) Agency() proto.Agency {
	switch h.state {
	case statePropose:
		return proto.Client
	case stateConfirm:
		return proto.Server
	default:
		return proto.None
	}
}

func (h *Handshake) StateLabel() string {
	switch h.state {
	case statePropose:
		return "Propose"
	case stateConfirm:
		return "Confirm"
	default:
		return "Done"
	}
}

func (h *Handshake) SendNext() ([]byte, error) {
	if h.state != statePropose {
		return nil, nil
	}
	payload, err := cborval.Marshal(h.proposeVersions())
	if err != nil {
		return nil, err
	}
	h.state = stateConfirm
	return payload, nil
}

// proposeVersions builds [0, {v1: magic, v2: magic, v3: magic,
// v4: [magic, false], v5: [magic, false]}] (spec §4.5).
func (h *Handshake) proposeVersions() cborval.Value {
	magic := cborval.UInt(uint64(h.networkMagic))
	pair := cborval.Array(cborval.UInt(uint64(h.networkMagic)), cborval.Bool(false))

	versions := cborval.Map(
		cborval.MapEntry{Key: cborval.UInt(versionV1), Val: magic},
		cborval.MapEntry{Key: cborval.UInt(versionV2), Val: magic},
		cborval.MapEntry{Key: cborval.UInt(versionShelley), Val: magic},
		cborval.MapEntry{Key: cborval.UInt(versionShelley2), Val: pair},
		cborval.MapEntry{Key: cborval.UInt(versionAllegra), Val: pair},
	)

	return cborval.Array(cborval.UInt(0), versions)
}

func (h *Handshake) Receive(data []byte) error {
	defer func() { h.state = stateDone }()

	confirm, err := cborval.Unmarshal(data)
	if err != nil {
		h.resultErr = fmt.Errorf("Unable to parse payload error! %x", data)
		return nil
	}

	arr, ok := confirm.AsArray()
	if !ok || len(arr) == 0 {
		h.resultErr = fmt.Errorf("Unable to parse payload error! %x", data)
		return nil
	}

	msgID, ok := arr[0].IntValue()
	if !ok {
		h.resultErr = fmt.Errorf("Unable to parse payload error! %x", data)
		return nil
	}

	if msgID != acceptMsgID {
		if text, found := cborval.FindText(confirm); found {
			h.resultErr = proto.NewError(proto.KindPeerRejected, "%s", text)
		} else {
			h.resultErr = proto.NewError(proto.KindPeerRejected, "Unable to parse payload error! %x", data)
		}
		return nil
	}

	h.resultErr = h.acceptVersion(arr, data)
	if h.resultErr == nil {
		h.result = fmt.Sprintf("%x", data)
	}
	return nil
}

func (h *Handshake) acceptVersion(arr []cborval.Value, data []byte) error {
	if len(arr) < 3 {
		return fmt.Errorf("Unable to parse payload error! %x", data)
	}
	version, ok := arr[1].IntValue()
	if !ok {
		return fmt.Errorf("Unable to parse payload error! %x", data)
	}
	if version < MinVersion {
		return proto.NewError(proto.KindVersion, "Expected protocol version %d, but was %d", MinVersion, version)
	}

	params, ok := arr[2].AsArray()
	if !ok || len(params) == 0 {
		return fmt.Errorf("Unable to parse payload error! %x", data)
	}
	magic, ok := params[0].IntValue()
	if !ok {
		return fmt.Errorf("Unable to parse payload error! %x", data)
	}
	if uint32(magic) != h.networkMagic {
		return proto.NewError(proto.KindMagic, "Expected network magic %d, but was %d", h.networkMagic, magic)
	}
	return nil
}

func (h *Handshake) Result() (string, error) {
	if h.resultErr != nil {
		return "", h.resultErr
	}
	return h.result, nil
}
