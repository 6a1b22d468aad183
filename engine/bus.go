package engine

// ClientMessage is a best-effort notification to the client layer.
type ClientMessage uint8

const (
	// ReconsiderSealing asks the client to re-check whether the current
	// round can be sealed. Missing one notification is tolerated: the next
	// step timeout re-triggers consideration.
	ReconsiderSealing ClientMessage = iota + 1
)

// String returns the message name
func (m ClientMessage) String() string {
	switch m {
	case ReconsiderSealing:
		return "ReconsiderSealing"
	default:
		return "Unknown"
	}
}

// MessageBus delivers client notifications. Send is best-effort: failures
// are logged by the caller and never retried.
type MessageBus interface {
	Send(msg ClientMessage) error
}

// ChanBus is a MessageBus over a buffered channel. Send never blocks; a
// full channel drops the notification and reports ErrBusUnavailable.
type ChanBus struct {
	ch chan ClientMessage
}

// NewChanBus creates a ChanBus with the given buffer size
func NewChanBus(size int) *ChanBus {
	return &ChanBus{ch: make(chan ClientMessage, size)}
}

// Send delivers the message without blocking
func (b *ChanBus) Send(msg ClientMessage) error {
	select {
	case b.ch <- msg:
		return nil
	default:
		return ErrBusUnavailable
	}
}

// Chan returns the receive side of the bus
func (b *ChanBus) Chan() <-chan ClientMessage {
	return b.ch
}

var _ MessageBus = (*ChanBus)(nil)
