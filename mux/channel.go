// Package mux implements the framed multiplexer: a Channel owns a
// transport, hosts a table of sub-protocols keyed by protocol id, and
// drives a receive/transmit turn loop until the caller's sub-protocol
// reaches terminal agency.
//
// Grounded on original_source/src/mux/tcp.rs's Channel/ChannelShared
// (process_tx, process_rx, the weak-reference protocol table collapsed
// here into a plain slice of interfaces since Go has no equivalent need
// for manual reference counting).
package mux

import (
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"

	"github.com/AndrewWestberg/cardano-ouroboros-go/frame"
	"github.com/AndrewWestberg/cardano-ouroboros-go/handshake"
	"github.com/AndrewWestberg/cardano-ouroboros-go/proto"
	"github.com/AndrewWestberg/cardano-ouroboros-go/transport"
)

// Channel is the single-threaded cooperative multiplexer described in
// spec §4.3. It is not safe for concurrent use; callers wanting parallel
// sub-protocols across threads must supply their own mutual exclusion
// around the transport and table, per spec §5.
type Channel struct {
	transport    transport.Transport
	startInstant time.Time
	log          *charmlog.Logger

	table   []proto.Protocol // indexed by protocol id; nil slot == no live sub-protocol
	anySent bool             // set by transmitPass, read by Execute's deadlock check
}

// New wraps t in a Channel, capturing the start instant used to derive
// every outbound frame's timestamp. The start instant is set once and
// never advanced (spec §3 invariant).
func New(t transport.Transport) *Channel {
	return &Channel{
		transport:    t,
		startInstant: time.Now(),
		log: charmlog.NewWithOptions(os.Stderr, charmlog.Options{
			ReportTimestamp: true,
			Prefix:          "mux",
		}),
	}
}

// Handshake is a convenience that registers and drives a Handshake
// sub-protocol to termination, proposing networkMagic.
func (c *Channel) Handshake(networkMagic uint32) (string, error) {
	return c.Execute(handshake.New(networkMagic))
}

// register assigns p at its ProtocolID, growing the table if necessary.
// Assigning two sub-protocols to the same id overwrites the prior slot;
// per spec §4.3 this is a programming error on the caller's part, logged
// but not fatal.
func (c *Channel) register(p proto.Protocol) {
	id := int(p.ProtocolID())
	if id >= len(c.table) {
		grown := make([]proto.Protocol, id+1)
		copy(grown, c.table)
		c.table = grown
	}
	if c.table[id] != nil {
		c.log.Warnf("overwriting sub-protocol already registered at id %#04x", id)
	}
	c.table[id] = p
	c.log.Debugf("started subchannel %#04x", id)
}

// release drops the table slot for an id once its sub-protocol has
// terminated, so the slot no longer participates in the turn loop. Released
// ids are not remembered: a later register at the same id fills the slot
// again without a warning.
func (c *Channel) release(id int) {
	c.table[id] = nil
}

// Execute registers proto at its ProtocolID, then runs the turn loop to
// completion, returning the sub-protocol's terminal result.
func (c *Channel) Execute(p proto.Protocol) (string, error) {
	c.register(p)

	for p.Agency() != proto.None {
		if err := c.transmitPass(); err != nil {
			return "", err
		}
		receivedAny, err := c.receivePass()
		if err != nil {
			return "", err
		}
		if p.Agency() == proto.None {
			break
		}
		if !receivedAny && !c.anySent {
			return "", proto.ErrDeadlock
		}
	}

	c.release(int(p.ProtocolID()))
	return p.Result()
}

func (c *Channel) elapsedMicros() uint32 {
	return uint32(time.Since(c.startInstant).Microseconds())
}

// transmitPass implements spec §4.3 step 1: for every live sub-protocol in
// id order, if it has agency, ask for its next payload and frame/write it.
func (c *Channel) transmitPass() error {
	c.anySent = false
	for id, p := range c.table {
		if p == nil {
			continue
		}
		if p.Agency() != p.Role().Agency() {
			continue
		}
		payload, err := p.SendNext()
		if err != nil {
			return proto.WrapError(proto.KindTransport, "sub-protocol send failed", err)
		}
		if payload == nil {
			continue
		}
		f := frame.New(uint16(id), p.Role() == proto.RoleServer, payload, c.elapsedMicros())
		encoded, err := frame.Encode(f)
		if err != nil {
			return proto.WrapError(proto.KindTransport, "frame encode failed", err)
		}
		if _, err := c.transport.Write(encoded); err != nil {
			return proto.WrapError(proto.KindTransport, "transport write failed", err)
		}
		c.log.Debugf("tx subchannel %#04x: %d bytes", id, len(payload))
		c.anySent = true
	}
	return nil
}

// receivePass implements spec §4.3 step 2: if any live sub-protocol is
// waiting to receive, read exactly one frame and route it by id. An
// unmatched id is silently discarded (peer error, but recoverable).
func (c *Channel) receivePass() (bool, error) {
	if !c.anyWaiting() {
		return false, nil
	}

	f, err := frame.Decode(c.transport)
	if err != nil {
		return false, proto.WrapError(proto.KindTransport, "frame decode failed", err)
	}

	id := int(f.ProtocolID())
	if id >= len(c.table) || c.table[id] == nil {
		c.log.Warnf("discarding frame for unknown subchannel %#04x", id)
		return true, nil
	}

	if err := c.table[id].Receive(f.Payload); err != nil {
		return false, proto.WrapError(proto.KindTransport, "sub-protocol receive failed", err)
	}
	c.log.Debugf("rx subchannel %#04x: %d bytes", id, len(f.Payload))
	return true, nil
}

func (c *Channel) anyWaiting() bool {
	for _, p := range c.table {
		if p == nil {
			continue
		}
		if p.Agency() != proto.None && p.Agency() != p.Role().Agency() {
			return true
		}
	}
	return false
}
