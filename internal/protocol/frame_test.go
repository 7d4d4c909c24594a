package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrameLengthBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		payloadLen int
		wantHeader []byte
	}{
		{"empty payload", 0, []byte{0x81, 0x00}},
		{"max single-byte length", 125, []byte{0x81, 0x7D}},
		{"smallest 16-bit length", 126, []byte{0x81, 0x7E, 0x00, 0x7E}},
		{"largest 16-bit length", 65535, []byte{0x81, 0x7E, 0xFF, 0xFF}},
		{"smallest 64-bit length", 65536, []byte{0x81, 0x7F, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := bytes.Repeat([]byte{'x'}, tt.payloadLen)
			frame := EncodeFrame(payload)

			require.GreaterOrEqual(t, len(frame), len(tt.wantHeader))
			assert.Equal(t, tt.wantHeader, frame[:len(tt.wantHeader)])
			assert.Equal(t, len(tt.wantHeader)+tt.payloadLen, len(frame))
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payloads := []string{
		"",
		"hello",
		`{"type":"reload"}`,
		"héllo wörld é世界",
		strings.Repeat("a", 125),
		strings.Repeat("b", 126),
		strings.Repeat("c", 70000),
	}

	for _, payload := range payloads {
		frame, err := DecodeFrame(EncodeFrame([]byte(payload)))
		require.NoError(t, err)
		assert.True(t, frame.Fin)
		assert.Equal(t, OpcodeText, frame.Opcode)
		assert.Equal(t, payload, string(frame.Payload))
	}
}

func TestDecodeMaskedFrame(t *testing.T) {
	// Client-style frame: FIN+text, mask bit set, key 01 02 03 04,
	// payload "test" masked byte-by-byte.
	key := []byte{0x01, 0x02, 0x03, 0x04}
	plaintext := []byte("test")

	masked := make([]byte, len(plaintext))
	for i, b := range plaintext {
		masked[i] = b ^ key[i%4]
	}

	raw := []byte{0x81, 0x80 | byte(len(plaintext))}
	raw = append(raw, key...)
	raw = append(raw, masked...)

	frame, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, OpcodeText, frame.Opcode)
	assert.Equal(t, "test", string(frame.Payload))
}

func TestDecodeCloseFrame(t *testing.T) {
	frame, err := DecodeFrame([]byte{0x88, 0x00})
	require.NoError(t, err)
	assert.Equal(t, OpcodeClose, frame.Opcode)
	assert.Empty(t, frame.Payload)
}

func TestDecodeBinaryOpcodePreserved(t *testing.T) {
	// The connection layer ignores non-text, non-close opcodes; the codec
	// still has to report them faithfully.
	frame, err := DecodeFrame([]byte{0x82, 0x02, 0xDE, 0xAD})
	require.NoError(t, err)
	assert.Equal(t, OpcodeBinary, frame.Opcode)
	assert.Equal(t, []byte{0xDE, 0xAD}, frame.Payload)
}

func TestReadFrameTruncated(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"single header byte", []byte{0x81}},
		{"missing extended length", []byte{0x81, 0x7E, 0x00}},
		{"missing mask key", []byte{0x81, 0x84, 0x01, 0x02}},
		{"payload shorter than declared", []byte{0x81, 0x05, 'h', 'i'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeFrame(tt.raw)
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
		})
	}
}

func TestReadFrameEmptyStream(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedPayload(t *testing.T) {
	// 64-bit length far above the inbound limit; the reader must refuse
	// before allocating.
	raw := []byte{0x81, 0x7F, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00}
	_, err := DecodeFrame(raw)
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}

// splitReader yields one byte per Read call, simulating a frame arriving
// fragmented across many TCP reads.
type splitReader struct {
	data []byte
}

func (r *splitReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestReadFrameReassemblesAcrossShortReads(t *testing.T) {
	payload := `{"type":"error","message":"build failed"}`
	frame, err := ReadFrame(&splitReader{data: EncodeFrame([]byte(payload))})
	require.NoError(t, err)
	assert.Equal(t, payload, string(frame.Payload))
}
