// Package handshake encodes and decodes the 8-byte HANDSHAKE frame payload:
// a magic constant identifying the protocol followed by a reserved word.
package handshake

import (
	"encoding/binary"
	"errors"
)

// Magic is the 24-bit constant "PLC" carried by every handshake payload.
const Magic uint32 = 0x504C43

// PayloadLen is the fixed size of a handshake payload.
const PayloadLen = 8

var (
	ErrShort      = errors.New("handshake: payload too short")
	ErrBadMagic   = errors.New("handshake: magic mismatch")
	ErrBadVersion = errors.New("handshake: incompatible remote version")
)

// Payload is the decoded handshake body.
type Payload struct {
	Magic    uint32
	Reserved uint32
}

// Encode serializes a handshake payload with the standard magic and a zero
// reserved word.
func Encode() []byte {
	buf := make([]byte, PayloadLen)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], 0)
	return buf
}

// Decode parses and validates a handshake payload against the expected
// magic. remoteVersion is the frame header's version field, already
// validated by the frame codec to equal 1; Decode re-checks it here because
// the handshake is also where a caller wants an explicit compatibility
// error distinct from a raw frame decode failure.
func Decode(b []byte, remoteVersion uint8) (Payload, error) {
	if len(b) < PayloadLen {
		return Payload{}, ErrShort
	}
	p := Payload{
		Magic:    binary.LittleEndian.Uint32(b[0:4]),
		Reserved: binary.LittleEndian.Uint32(b[4:8]),
	}
	if p.Magic != Magic {
		return Payload{}, ErrBadMagic
	}
	if remoteVersion != 1 {
		return Payload{}, ErrBadVersion
	}
	return p, nil
}
