package transport

import "net"

// ReceivedMessage is one datagram read from the transport.
type ReceivedMessage struct {
	// Data contains the raw datagram bytes.
	Data []byte
	// Addr is the sender.
	Addr net.Addr
}

// Handler processes one request datagram and returns the reply to send
// back to the sender, or nil to send nothing. Handlers run on the read
// loop, so requests are handled one at a time in arrival order.
type Handler func(msg *ReceivedMessage) []byte
