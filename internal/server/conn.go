package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	devErrors "github.com/conneroisu/liveserve/internal/errors"
	"github.com/conneroisu/liveserve/internal/logging"
	"github.com/conneroisu/liveserve/internal/protocol"
)

const (
	// Time allowed to write a frame to the peer. Bounds broadcast fan-out
	// so one stalled tab cannot wedge the others.
	writeWait = 10 * time.Second

	// Handshake requests larger than this are rejected outright.
	maxHandshakeSize = 8 << 10
)

// Conn owns one accepted socket. It drives the upgrade handshake, then a
// frame receive loop that decodes inbound text frames into messages and
// tears down on a close frame, EOF, or any socket error.
//
// Identity is the integer ID assigned at accept time; the registry keys on
// it, never on connection state.
type Conn struct {
	id      uint64
	netConn net.Conn
	reader  *bufio.Reader
	logger  logging.Logger

	// onMessage receives every decoded inbound message; onClose fires
	// exactly once, after which the connection must not be used.
	onMessage func(*Conn, protocol.Message)
	onClose   func(*Conn)

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(id uint64, netConn net.Conn, logger logging.Logger, onMessage func(*Conn, protocol.Message), onClose func(*Conn)) *Conn {
	return &Conn{
		id:        id,
		netConn:   netConn,
		reader:    bufio.NewReader(netConn),
		logger:    logger,
		onMessage: onMessage,
		onClose:   onClose,
		closed:    make(chan struct{}),
	}
}

// ID returns the opaque connection handle.
func (c *Conn) ID() uint64 {
	return c.id
}

// RemoteAddr returns the peer address for logging.
func (c *Conn) RemoteAddr() string {
	if addr := c.netConn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// serve drives the connection lifecycle: handshake, then the frame receive
// loop. It always ends in teardown.
func (c *Conn) serve(ctx context.Context) {
	defer c.close()

	if err := c.handshake(); err != nil {
		c.logger.Debug(ctx, "handshake rejected",
			"conn_id", c.id,
			"remote", c.RemoteAddr(),
			"reason", err.Error(),
		)
		return
	}

	c.logger.Debug(ctx, "connection open", "conn_id", c.id, "remote", c.RemoteAddr())
	c.receiveLoop(ctx)
}

// handshake reads the HTTP upgrade request, computes the accept token, and
// writes the 101 response.
func (c *Conn) handshake() error {
	request, err := c.readHandshakeRequest()
	if err != nil {
		return devErrors.NewHandshakeError(err)
	}

	key, err := protocol.ParseHandshake(request)
	if err != nil {
		return devErrors.NewHandshakeError(err)
	}

	response := protocol.BuildResponse(protocol.AcceptKey(key))
	_ = c.netConn.SetWriteDeadline(time.Now().Add(writeWait))
	if _, err := c.netConn.Write(response); err != nil {
		return devErrors.NewHandshakeError(err)
	}
	_ = c.netConn.SetWriteDeadline(time.Time{})

	return nil
}

// readHandshakeRequest consumes the upgrade request through the blank-line
// terminator, leaving the reader positioned at the first frame byte.
func (c *Conn) readHandshakeRequest() ([]byte, error) {
	var request bytes.Buffer

	for {
		line, err := c.reader.ReadBytes('\n')
		request.Write(line)
		if err != nil {
			return nil, err
		}
		if request.Len() > maxHandshakeSize {
			return nil, errors.New("handshake request too large")
		}
		if bytes.Equal(line, []byte("\r\n")) {
			return request.Bytes(), nil
		}
	}
}

// receiveLoop decodes inbound frames until the peer closes, the stream ends,
// or a read fails. Malformed payloads and unrecognized opcodes are dropped
// without closing the connection; only transport-level errors are terminal.
func (c *Conn) receiveLoop(ctx context.Context) {
	for {
		frame, err := protocol.ReadFrame(c.reader)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				// Clean end of stream.
			case errors.Is(err, protocol.ErrPayloadTooLarge), errors.Is(err, io.ErrUnexpectedEOF):
				c.logger.Debug(ctx, "closing on undecodable stream",
					"conn_id", c.id,
					"reason", devErrors.NewFrameDecodeError(err).Error(),
				)
			default:
				c.logger.Debug(ctx, "read failed", "conn_id", c.id, "reason", err.Error())
			}
			return
		}

		switch frame.Opcode {
		case protocol.OpcodeClose:
			return
		case protocol.OpcodeText:
			message, ok := protocol.FromWire(frame.Payload)
			if !ok {
				c.logger.Debug(ctx, "dropping undecodable frame", "conn_id", c.id, "bytes", len(frame.Payload))
				continue
			}
			if c.onMessage != nil {
				c.onMessage(c, message)
			}
		default:
			// Binary, continuation, and protocol-level ping/pong
			// frames are outside the reload protocol.
			continue
		}
	}
}

// Send encodes message into a single text frame and writes it. A write
// failure is terminal for the connection.
func (c *Conn) Send(message protocol.Message) error {
	payload, err := message.ToWire()
	if err != nil {
		return err
	}
	frame := protocol.EncodeFrame(payload)

	c.writeMu.Lock()
	_ = c.netConn.SetWriteDeadline(time.Now().Add(writeWait))
	_, err = c.netConn.Write(frame)
	_ = c.netConn.SetWriteDeadline(time.Time{})
	c.writeMu.Unlock()

	if err != nil {
		c.close()
		return err
	}

	return nil
}

// close tears the connection down and fires the close callback exactly once.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.netConn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
}

// Close tears the connection down from the owning side.
func (c *Conn) Close() {
	c.close()
}

// Done is closed once the connection has fully torn down.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}
