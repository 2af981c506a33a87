// Package proto defines the contract every Ouroboros mini-protocol
// sub-protocol implements, and the agency/role vocabulary the multiplexer
// uses to decide who may send next.
package proto

import "fmt"

// Agency is the three-valued token attached to a sub-protocol at every
// instant: whose turn it is to send, or None if the sub-protocol has
// terminated.
type Agency int

const (
	// Client means the client endpoint may send next.
	Client Agency = iota
	// Server means the server endpoint may send next.
	Server
	// None means the sub-protocol is terminal.
	None
)

func (a Agency) String() string {
	switch a {
	case Client:
		return "Client"
	case Server:
		return "Server"
	case None:
		return "None"
	default:
		return fmt.Sprintf("Agency(%d)", int(a))
	}
}

// Role is the fixed, per-endpoint property of a sub-protocol: whether this
// side is the initiator (Client) or the responder (Server) of the
// connection. It never changes after construction.
type Role int

const (
	// RoleClient is the initiator.
	RoleClient Role = iota
	// RoleServer is the responder.
	RoleServer
)

func (r Role) String() string {
	if r == RoleClient {
		return "Client"
	}
	return "Server"
}

// Agency returns the Agency value matching this Role, for comparing
// "may this endpoint send" against a sub-protocol's current agency.
func (r Role) Agency() Agency {
	if r == RoleClient {
		return Client
	}
	return Server
}

// Protocol is the uniform contract every sub-protocol hosted on a Channel
// implements. Calls are never concurrent: the Channel's turn loop serializes
// every SendNext/Receive call for a given Protocol.
type Protocol interface {
	// ProtocolID is the sub-protocol's constant wire identifier.
	ProtocolID() uint16

	// Role is this endpoint's fixed role in the sub-protocol.
	Role() Role

	// Agency is the sub-protocol's current agency, derived from state.
	Agency() Agency

	// StateLabel is a human-readable label for the current state, for
	// diagnostics and logging only.
	StateLabel() string

	// SendNext is called only when Agency() == Role(). A nil slice with a
	// nil error means "nothing to send yet"; this is legal but should be
	// rare in a correctly designed state machine.
	SendNext() ([]byte, error)

	// Receive is called with exactly one payload addressed to this
	// sub-protocol. It may mutate state and, on final acceptance or
	// rejection, set a terminal result.
	Receive(payload []byte) error

	// Result is valid only once Agency() == None. It returns the
	// sub-protocol's terminal outcome: a summary string on success, or an
	// error describing why it failed.
	Result() (string, error)
}
