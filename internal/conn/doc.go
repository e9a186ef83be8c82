// Package conn manages the client's websocket connection to the
// collaboration server.
//
// A Manager owns one transport at a time and moves through the states
// Disconnected, Connecting, Connected and Authenticated. Application
// messages are only written once the server has acknowledged the
// authenticate handshake; anything sent earlier waits in a bounded FIFO
// queue that is flushed in order on authentication.
//
// Unexpected closes trigger reconnection with exponential backoff
// (initial * 2^attempt, capped) until MaxReconnectAttempts is reached.
// Disconnect is the only way to stop reconnection early.
//
// Inbound frames are decoded into protocol.Message values and dispatched
// to handlers registered per message type. Malformed frames are logged and
// dropped. A panicking handler is recovered and does not affect the
// others.
//
// Timers run on a clock.Clock so tests can drive heartbeat and reconnect
// deterministically with testutil.FakeClock.
package conn
