// Package wire implements the on-the-wire handshake and message framing
// used between swarm peers: a fixed 32-byte handshake followed by a stream
// of length-prefixed messages.
package wire

import (
	"encoding"
	"encoding/binary"
	"errors"
	"io"
)

const (
	handshakeHeader = "P2PFILESHARINGPROJ"
	handshakeLen    = 32
	reservedLen     = 10
)

// ErrBadHandshake is returned for any handshake frame that is the wrong
// length, carries the wrong header, or has non-zero reserved bytes.
var ErrBadHandshake = errors.New("wire: bad handshake")

// Handshake is the first frame exchanged on a new connection. It carries
// nothing but the sender's peer id; the wire format reserves 10 zero bytes
// after the fixed header for future extension flags.
type Handshake struct {
	PeerID uint32
}

var (
	_ encoding.BinaryMarshaler   = Handshake{}
	_ encoding.BinaryUnmarshaler = (*Handshake)(nil)
)

// NewHandshake returns the canonical handshake for peerID.
func NewHandshake(peerID uint32) Handshake {
	return Handshake{PeerID: peerID}
}

// MarshalBinary encodes the handshake into its fixed 32-byte wire form.
func (h Handshake) MarshalBinary() ([]byte, error) {
	buf := make([]byte, handshakeLen)
	copy(buf, handshakeHeader)
	// bytes [18:28] are the reserved zero block, already zero-valued.
	binary.BigEndian.PutUint32(buf[18+reservedLen:], h.PeerID)

	return buf, nil
}

// UnmarshalBinary decodes a handshake frame, validating length, header, and
// reserved bytes.
func (h *Handshake) UnmarshalBinary(b []byte) error {
	if len(b) != handshakeLen {
		return ErrBadHandshake
	}
	if string(b[:len(handshakeHeader)]) != handshakeHeader {
		return ErrBadHandshake
	}

	reserved := b[len(handshakeHeader) : len(handshakeHeader)+reservedLen]
	for _, z := range reserved {
		if z != 0 {
			return ErrBadHandshake
		}
	}

	h.PeerID = binary.BigEndian.Uint32(b[len(handshakeHeader)+reservedLen:])
	return nil
}

// WriteHandshake writes h to w in wire format.
func WriteHandshake(w io.Writer, h Handshake) error {
	b, _ := h.MarshalBinary()
	_, err := w.Write(b)
	return err
}

// ReadHandshake reads a full 32-byte handshake frame from r.
func ReadHandshake(r io.Reader) (Handshake, error) {
	buf := make([]byte, handshakeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Handshake{}, err
	}

	var h Handshake
	if err := h.UnmarshalBinary(buf); err != nil {
		return Handshake{}, err
	}

	return h, nil
}
