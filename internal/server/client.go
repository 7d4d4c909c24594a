package server

import (
	"fmt"
	"strings"
)

// clientScript is the browser-side reload client. It connects once per page
// load, reloads on {"type":"reload"}, logs build errors to the console, and
// keeps the connection warm with JSON ping/pong messages.
const clientScript = `(function () {
  var socket = new WebSocket("ws://%s/");
  socket.onmessage = function (event) {
    var message;
    try {
      message = JSON.parse(event.data);
    } catch (err) {
      return;
    }
    if (message.type === "reload") {
      location.reload();
    } else if (message.type === "error") {
      console.error("[liveserve] " + message.message);
    }
  };
  socket.onopen = function () {
    setInterval(function () {
      if (socket.readyState === WebSocket.OPEN) {
        socket.send(JSON.stringify({ type: "ping" }));
      }
    }, 30000);
  };
})();`

// ClientScript returns the JS snippet pages embed to receive reloads from
// the server at addr.
func ClientScript(addr string) string {
	return fmt.Sprintf(clientScript, strings.TrimSpace(addr))
}
