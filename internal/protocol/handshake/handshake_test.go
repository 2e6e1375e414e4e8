package handshake

import (
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	p, err := Decode(Encode(), 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Magic != Magic || p.Reserved != 0 {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestDecodeBadMagic(t *testing.T) {
	buf := Encode()
	buf[0] ^= 0xff
	if _, err := Decode(buf, 1); !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestDecodeShort(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}, 1); !errors.Is(err, ErrShort) {
		t.Fatalf("expected ErrShort, got %v", err)
	}
}

func TestDecodeVersionIncompatible(t *testing.T) {
	if _, err := Decode(Encode(), 2); !errors.Is(err, ErrBadVersion) {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}
