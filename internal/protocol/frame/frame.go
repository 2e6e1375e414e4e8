// Package frame implements the 16-byte wire header defined by the runtime's
// binary framing protocol: encode/decode, version and type validation, and
// payload checksum verification.
package frame

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/polycall-go/polycall/internal/checksum"
)

// HeaderLen is the fixed size, in bytes, of every frame header.
const HeaderLen = 16

// Version is the only wire version this runtime speaks.
const Version uint8 = 1

// Type identifies the kind of message carried by a frame.
type Type uint8

const (
	TypeHandshake Type = 0x01
	TypeAuth      Type = 0x02
	TypeCommand   Type = 0x03
	TypeResponse  Type = 0x04
	TypeError     Type = 0x05
	TypeHeartbeat Type = 0x06
)

func (t Type) Valid() bool {
	switch t {
	case TypeHandshake, TypeAuth, TypeCommand, TypeResponse, TypeError, TypeHeartbeat:
		return true
	default:
		return false
	}
}

func (t Type) String() string {
	switch t {
	case TypeHandshake:
		return "HANDSHAKE"
	case TypeAuth:
		return "AUTH"
	case TypeCommand:
		return "COMMAND"
	case TypeResponse:
		return "RESPONSE"
	case TypeError:
		return "ERROR"
	case TypeHeartbeat:
		return "HEARTBEAT"
	default:
		return "UNKNOWN"
	}
}

// Flags is a bitfield carried in every header. Unknown bits must be
// preserved by an implementation and never rejected.
type Flags uint16

const (
	FlagEncrypted  Flags = 0x01
	FlagCompressed Flags = 0x02
	FlagUrgent     Flags = 0x04
	FlagReliable   Flags = 0x08
	// FlagReply disambiguates a peer's HANDSHAKE reply from an initial
	// HANDSHAKE frame when the caller wants an explicit marker instead
	// of relying on protocol-state context.
	FlagReply Flags = 0x10
)

func (f Flags) Has(bit Flags) bool {
	return f&bit != 0
}

var (
	// ErrShortRead means fewer than HeaderLen bytes, or fewer than the
	// declared payload_length bytes, are currently available. The caller
	// should buffer more bytes and retry; it is not a framing error.
	ErrShortRead = errors.New("frame: short read")
	// ErrVersionMismatch means the header's version field is not the
	// version this runtime speaks.
	ErrVersionMismatch = errors.New("frame: version mismatch")
	// ErrUnknownType means the header's type field is outside the
	// enumerated message types.
	ErrUnknownType = errors.New("frame: unknown type")
	// ErrChecksumMismatch means the recomputed payload checksum does not
	// match the header's checksum field.
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	// ErrPayloadTooLarge means payload_length exceeds the configured cap.
	ErrPayloadTooLarge = errors.New("frame: payload too large")
)

// Header is the fixed 16-byte, little-endian wire header.
//
//	offset 0  size 1  version
//	offset 1  size 1  type
//	offset 2  size 2  flags
//	offset 4  size 4  sequence
//	offset 8  size 4  payload_length
//	offset 12 size 4  checksum (of payload only)
type Header struct {
	Version       uint8
	Type          Type
	Flags         Flags
	Sequence      uint32
	PayloadLength uint32
	Checksum      uint32
}

// Frame is one complete on-wire message: header plus payload.
type Frame struct {
	Header  Header
	Payload []byte
}

// Encode builds wire bytes for (typ, flags, payload) at the given sequence.
// The caller supplies the sequence; the protocol context is responsible for
// assigning and incrementing it.
func Encode(typ Type, flags Flags, sequence uint32, payload []byte) []byte {
	h := Header{
		Version:       Version,
		Type:          typ,
		Flags:         flags,
		Sequence:      sequence,
		PayloadLength: uint32(len(payload)),
		Checksum:      checksum.Sum(payload),
	}
	buf := make([]byte, HeaderLen+len(payload))
	encodeHeader(buf[:HeaderLen], h)
	copy(buf[HeaderLen:], payload)
	return buf
}

func encodeHeader(buf []byte, h Header) {
	buf[0] = h.Version
	buf[1] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(h.Flags))
	binary.LittleEndian.PutUint32(buf[4:8], h.Sequence)
	binary.LittleEndian.PutUint32(buf[8:12], h.PayloadLength)
	binary.LittleEndian.PutUint32(buf[12:16], h.Checksum)
}

func decodeHeader(buf []byte) Header {
	return Header{
		Version:       buf[0],
		Type:          Type(buf[1]),
		Flags:         Flags(binary.LittleEndian.Uint16(buf[2:4])),
		Sequence:      binary.LittleEndian.Uint32(buf[4:8]),
		PayloadLength: binary.LittleEndian.Uint32(buf[8:12]),
		Checksum:      binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// Decode parses a single frame out of buf. It returns the frame, the number
// of bytes consumed from buf, and an error. ErrShortRead means buf does not
// yet hold a complete frame and the caller should buffer more bytes before
// retrying; it is the only error for which the caller should not treat the
// stream as broken.
func Decode(buf []byte, maxPayloadLen uint32) (Frame, int, error) {
	if len(buf) < HeaderLen {
		return Frame{}, 0, ErrShortRead
	}
	h := decodeHeader(buf[:HeaderLen])
	if h.Version != Version {
		return Frame{}, 0, ErrVersionMismatch
	}
	if !h.Type.Valid() {
		return Frame{}, 0, ErrUnknownType
	}
	if maxPayloadLen > 0 && h.PayloadLength > maxPayloadLen {
		return Frame{}, 0, ErrPayloadTooLarge
	}
	total := HeaderLen + int(h.PayloadLength)
	if len(buf) < total {
		return Frame{}, 0, ErrShortRead
	}
	payload := make([]byte, h.PayloadLength)
	copy(payload, buf[HeaderLen:total])
	if checksum.Sum(payload) != h.Checksum {
		return Frame{}, total, ErrChecksumMismatch
	}
	return Frame{Header: h, Payload: payload}, total, nil
}

// ReadFrame reads exactly one frame from r, blocking until the header and
// full payload have arrived. Unlike Decode, it never returns ErrShortRead:
// io.ReadFull absorbs partial reads on a blocking stream transport.
func ReadFrame(r io.Reader, maxPayloadLen uint32) (Frame, error) {
	hb := make([]byte, HeaderLen)
	if _, err := io.ReadFull(r, hb); err != nil {
		return Frame{}, err
	}
	h := decodeHeader(hb)
	if h.Version != Version {
		return Frame{}, ErrVersionMismatch
	}
	if !h.Type.Valid() {
		return Frame{}, ErrUnknownType
	}
	if maxPayloadLen > 0 && h.PayloadLength > maxPayloadLen {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLength)
	if h.PayloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, err
		}
	}
	if checksum.Sum(payload) != h.Checksum {
		return Frame{}, ErrChecksumMismatch
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame encodes and writes one frame to w.
func WriteFrame(w io.Writer, typ Type, flags Flags, sequence uint32, payload []byte) error {
	_, err := w.Write(Encode(typ, flags, sequence, payload))
	return err
}

// DefaultMaxPayloadLen is the default hard cap on payload_length, matching
// max_message_size in the configuration surface.
const DefaultMaxPayloadLen = 4096
