package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MessageType enumerates the fixed eight-member message alphabet. There is
// no keep-alive frame in this protocol — every frame has id+payload.
type MessageType uint8

const (
	Choke MessageType = iota
	Unchoke
	Interested
	NotInterested
	Have
	BitfieldMsg
	Request
	Piece
)

func (t MessageType) String() string {
	switch t {
	case Choke:
		return "CHOKE"
	case Unchoke:
		return "UNCHOKE"
	case Interested:
		return "INTERESTED"
	case NotInterested:
		return "NOT_INTERESTED"
	case Have:
		return "HAVE"
	case BitfieldMsg:
		return "BITFIELD"
	case Request:
		return "REQUEST"
	case Piece:
		return "PIECE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

var (
	// ErrShortFrame is returned when a length-prefixed frame is truncated.
	ErrShortFrame = errors.New("wire: short frame")
	// ErrUnknownType is returned for a message type outside 0..7.
	ErrUnknownType = errors.New("wire: unknown message type")
	// ErrBadPayload is returned when a fixed-size message carries the
	// wrong payload length.
	ErrBadPayload = errors.New("wire: bad payload size")
)

// Message is a single decoded protocol frame: a type plus its payload.
type Message struct {
	Type    MessageType
	Payload []byte
}

func NewChoke() Message         { return Message{Type: Choke} }
func NewUnchoke() Message       { return Message{Type: Unchoke} }
func NewInterested() Message    { return Message{Type: Interested} }
func NewNotInterested() Message { return Message{Type: NotInterested} }

func NewHave(index uint32) Message {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, index)
	return Message{Type: Have, Payload: p}
}

func NewBitfield(packed []byte) Message {
	cp := make([]byte, len(packed))
	copy(cp, packed)
	return Message{Type: BitfieldMsg, Payload: cp}
}

func NewRequest(index uint32) Message {
	p := make([]byte, 4)
	binary.BigEndian.PutUint32(p, index)
	return Message{Type: Request, Payload: p}
}

func NewPiece(index uint32, data []byte) Message {
	p := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(p[:4], index)
	copy(p[4:], data)
	return Message{Type: Piece, Payload: p}
}

// ParseIndex extracts the 4-byte big-endian piece index carried by HAVE and
// REQUEST messages.
func (m Message) ParseIndex() (uint32, bool) {
	if len(m.Payload) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(m.Payload), true
}

// ParsePiece splits a PIECE payload into its index and data block.
func (m Message) ParsePiece() (index uint32, data []byte, ok bool) {
	if len(m.Payload) < 4 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint32(m.Payload[:4]), m.Payload[4:], true
}

// validatePayloadSize checks fixed-size message types carry exactly the
// payload length the wire format requires.
func validatePayloadSize(t MessageType, payload []byte) error {
	switch t {
	case Choke, Unchoke, Interested, NotInterested:
		if len(payload) != 0 {
			return ErrBadPayload
		}
	case Have, Request:
		if len(payload) != 4 {
			return ErrBadPayload
		}
	case Piece:
		if len(payload) < 4 {
			return ErrBadPayload
		}
	}
	return nil
}

// WriteMessage writes m to w as <length:4><type:1><payload>.
func WriteMessage(w io.Writer, m Message) error {
	length := 1 + len(m.Payload)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[:4], uint32(length))
	buf[4] = byte(m.Type)
	copy(buf[5:], m.Payload)

	_, err := w.Write(buf)
	return err
}

// ReadMessage reads one complete frame from r, looping on partial reads
// until length+type+payload are all in hand.
func ReadMessage(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrShortFrame
		}
		return Message{}, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length < 1 {
		return Message{}, ErrShortFrame
	}

	rest := make([]byte, length)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Message{}, ErrShortFrame
		}
		return Message{}, err
	}

	t := MessageType(rest[0])
	if t > Piece {
		return Message{}, ErrUnknownType
	}

	payload := rest[1:]
	if err := validatePayloadSize(t, payload); err != nil {
		return Message{}, err
	}

	return Message{Type: t, Payload: payload}, nil
}
