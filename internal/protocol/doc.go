// Package protocol implements the subset of RFC 6455 the development server
// speaks: the HTTP upgrade handshake, unfragmented text/close frames, and the
// JSON message envelope exchanged with the browser reload client.
//
// The server never masks outbound frames; inbound frames from browsers are
// always masked and are unmasked during decode. Keep-alive is carried as
// application-level JSON ping/pong messages over text frames, not as
// protocol-level control frames.
package protocol
