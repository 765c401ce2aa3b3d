// Package transport carries messages between the coordinator and the LED
// hardware controller.
package transport

import (
	"errors"

	"github.com/loganrhyne/ledcoord/wire"
)

// ErrNotConnected is returned by Send while the hardware link is down. The
// message has been queued and will be flushed once the link comes back, but
// callers can tell that nothing went over the wire yet.
var ErrNotConnected = errors.New("hardware link not connected")

// Channel is the message pipe to the LED hardware. The real installation
// talks through the websocket client below; simulation mode plugs in an
// in-process engine instead.
type Channel interface {
	Start() error
	Stop()
	// Send wraps data in an envelope of the given type and transmits it.
	Send(msgType string, data any) error
	Connected() bool
	Inbound() <-chan wire.Envelope
}
