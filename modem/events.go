package modem

import "fmt"

// NcpState is the public power and readiness state of the modem.
type NcpState int32

const (
	NcpStateOff NcpState = iota
	NcpStateOn
	// NcpStateDisabled is a caller forced override. The state it replaced
	// is restored by Enable.
	NcpStateDisabled
)

func (s NcpState) String() string {
	switch s {
	case NcpStateOff:
		return "off"
	case NcpStateOn:
		return "on"
	case NcpStateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("NcpState(%d)", int32(s))
	}
}

// ConnectionState is the aggregate network connection state.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("ConnectionState(%d)", int32(s))
	}
}

// Event is one of NcpStateEvent, ConnectionStateEvent or AuthEvent.
type Event interface {
	isEvent()
}

// NcpStateEvent reports a change of the NCP state.
type NcpStateEvent struct {
	State NcpState
}

// ConnectionStateEvent reports a change of the connection state.
type ConnectionStateEvent struct {
	State ConnectionState
}

// AuthEvent carries the PDP credentials. It is emitted right before the
// ConnectionStateEvent announcing Connected, so the PPP layer can
// authenticate.
type AuthEvent struct {
	User     string
	Password string
}

func (NcpStateEvent) isEvent()        {}
func (ConnectionStateEvent) isEvent() {}
func (AuthEvent) isEvent()            {}

// EventHandler receives client events. It may run on the multiplexer
// goroutine and must not call back into the Client.
type EventHandler func(Event)

// DataHandler receives bytes arriving on the data channel.
type DataHandler func(data []byte)
