// Package frame implements the multiplexer's 8-byte-header wire framing:
// encode/decode of a single frame, with no interpretation of its payload.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
)

// HeaderLen is the fixed size, in bytes, of a frame header.
const HeaderLen = 8

// MaxPayloadLen is the largest payload a single frame can carry (the
// length field is 16 bits).
const MaxPayloadLen = 0xFFFF

// directionBit distinguishes initiator->responder (0) from
// responder->initiator (1) frames, OR'd into the high bit of SubchannelID.
const directionBit = 0x8000

// Frame is the multiplexer's unit of transfer (spec §3).
type Frame struct {
	// TimestampUs is the micro-seconds elapsed since the owning Channel's
	// start instant, truncated modulo 2^32.
	TimestampUs uint32

	// SubchannelID packs the direction bit (high bit) and the protocol id
	// (low 15 bits).
	SubchannelID uint16

	// Payload is the frame's opaque, protocol-defined content.
	Payload []byte
}

// ProtocolID returns the low 15 bits of SubchannelID: the sub-protocol this
// frame is addressed to or originates from.
func (f Frame) ProtocolID() uint16 {
	return f.SubchannelID &^ directionBit
}

// FromResponder reports whether the direction bit marks this frame as
// having been sent by the responder (server) endpoint.
func (f Frame) FromResponder() bool {
	return f.SubchannelID&directionBit != 0
}

// New builds a Frame with the direction bit set according to fromResponder.
func New(protocolID uint16, fromResponder bool, payload []byte, timestampUs uint32) Frame {
	id := protocolID
	if fromResponder {
		id |= directionBit
	}
	return Frame{TimestampUs: timestampUs, SubchannelID: id, Payload: payload}
}

// Encode serializes f as an 8-byte header followed by its payload.
func Encode(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadLen {
		return nil, fmt.Errorf("frame: payload length %d exceeds %d", len(f.Payload), MaxPayloadLen)
	}
	buf := make([]byte, HeaderLen+len(f.Payload))
	binary.BigEndian.PutUint32(buf[0:4], f.TimestampUs)
	binary.BigEndian.PutUint16(buf[4:6], f.SubchannelID)
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(f.Payload)))
	copy(buf[HeaderLen:], f.Payload)
	return buf, nil
}

// Decode reads exactly one frame from r: an 8-byte header, then exactly
// length bytes of payload. A short read of either section is a ShortRead
// error.
func Decode(r io.Reader) (Frame, error) {
	var header [HeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, &ShortReadError{Section: "header", Err: err}
	}

	timestamp := binary.BigEndian.Uint32(header[0:4])
	subchannelID := binary.BigEndian.Uint16(header[4:6])
	length := binary.BigEndian.Uint16(header[6:8])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, &ShortReadError{Section: "payload", Err: err}
		}
	}

	return Frame{
		TimestampUs:  timestamp,
		SubchannelID: subchannelID,
		Payload:      payload,
	}, nil
}

// ShortReadError indicates a truncated read of a frame header or payload.
type ShortReadError struct {
	Section string
	Err     error
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("frame: short read of %s: %v", e.Section, e.Err)
}

func (e *ShortReadError) Unwrap() error { return e.Err }
