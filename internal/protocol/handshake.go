package protocol

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"
)

// acceptGUID is the fixed GUID from RFC 6455 §1.3 appended to the client key
// before hashing.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

const keyHeader = "Sec-WebSocket-Key"

// ParseHandshake extracts the Sec-WebSocket-Key value from a raw HTTP
// upgrade request. It returns an error when the buffer is not valid UTF-8 or
// the key header is absent, in which case the caller must close the
// connection without upgrading.
func ParseHandshake(request []byte) (string, error) {
	if !utf8.Valid(request) {
		return "", fmt.Errorf("handshake request is not valid UTF-8")
	}

	for _, line := range strings.Split(string(request), "\r\n") {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(name), keyHeader) {
			key := strings.TrimSpace(value)
			if key == "" {
				return "", fmt.Errorf("empty %s header", keyHeader)
			}
			return key, nil
		}
	}

	return "", fmt.Errorf("missing %s header", keyHeader)
}

// AcceptKey computes the Sec-WebSocket-Accept token for a client key:
// SHA-1 over key+GUID, Base64-encoded. The output is bit-exact per
// RFC 6455 §1.3 and is what conformant browsers verify byte-for-byte.
func AcceptKey(key string) string {
	digest := sha1.Sum([]byte(key + acceptGUID))
	return base64.StdEncoding.EncodeToString(digest[:])
}

// BuildResponse renders the 101 Switching Protocols response for the given
// accept token. Header names, casing, and the blank-line terminator are
// exactly what browser clients require.
func BuildResponse(acceptToken string) []byte {
	return []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + acceptToken + "\r\n\r\n")
}
