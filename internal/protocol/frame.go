package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Opcode identifies the frame type in the low four bits of the first header
// byte.
type Opcode byte

const (
	OpcodeContinuation Opcode = 0x0
	OpcodeText         Opcode = 0x1
	OpcodeBinary       Opcode = 0x2
	OpcodeClose        Opcode = 0x8
	OpcodePing         Opcode = 0x9
	OpcodePong         Opcode = 0xA
)

const (
	finBit  = 0x80
	maskBit = 0x80

	// Payloads up to 125 bytes fit in the base length field; 126 and 127
	// select the 16-bit and 64-bit extended length encodings.
	lenBase16 = 126
	lenBase64 = 127

	// MaxFramePayload bounds inbound payload allocation. Reload and error
	// messages are tiny; anything near this size is not ours.
	MaxFramePayload = 1 << 20
)

// ErrPayloadTooLarge is returned when an inbound frame declares a payload
// larger than MaxFramePayload.
var ErrPayloadTooLarge = errors.New("frame payload exceeds limit")

// Frame is a decoded wire frame. It is not retained beyond the
// encode/decode call that produced it.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// EncodeFrame wraps payload in a single unmasked text frame (FIN=1,
// opcode 0x1). Server-to-client frames are never masked and never
// fragmented.
func EncodeFrame(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(payload) + 10)

	buf.WriteByte(finBit | byte(OpcodeText))

	switch n := len(payload); {
	case n < lenBase16:
		buf.WriteByte(byte(n))
	case n <= 0xFFFF:
		buf.WriteByte(lenBase16)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		buf.Write(ext[:])
	default:
		buf.WriteByte(lenBase64)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		buf.Write(ext[:])
	}

	buf.Write(payload)
	return buf.Bytes()
}

// ReadFrame reads exactly one frame from r, reassembling it across short
// reads, and unmasks the payload when the client set the mask bit. It returns
// io.ErrUnexpectedEOF (or io.EOF before the first header byte) when the
// stream ends mid-frame.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}

	frame := Frame{
		Fin:    header[0]&finBit != 0,
		Opcode: Opcode(header[0] & 0x0F),
	}
	masked := header[1]&maskBit != 0

	length := uint64(header[1] & 0x7F)
	switch length {
	case lenBase16:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, io.ErrUnexpectedEOF
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case lenBase64:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, io.ErrUnexpectedEOF
		}
		length = binary.BigEndian.Uint64(ext[:])
	}

	if length > MaxFramePayload {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}

	var maskKey [4]byte
	if masked {
		if _, err := io.ReadFull(r, maskKey[:]); err != nil {
			return Frame{}, io.ErrUnexpectedEOF
		}
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, io.ErrUnexpectedEOF
	}

	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	frame.Payload = payload
	return frame, nil
}

// DecodeFrame decodes a single frame held entirely in buf.
func DecodeFrame(buf []byte) (Frame, error) {
	return ReadFrame(bytes.NewReader(buf))
}
