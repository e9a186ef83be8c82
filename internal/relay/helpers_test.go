package relay

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/roach88/coedit/internal/protocol"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startRelay(t *testing.T, cfg Config, opts ...Option) (*Server, string) {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	srv := NewServer(cfg, opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// rawClient speaks the wire protocol directly.
type rawClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dialRaw(t *testing.T, base string) *rawClient {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(wsURL(base), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return &rawClient{t: t, ws: ws}
}

func (c *rawClient) send(msg protocol.Message) {
	c.t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(c.t, err)
	require.NoError(c.t, c.ws.WriteMessage(websocket.TextMessage, data))
}

func (c *rawClient) recv() protocol.Message {
	c.t.Helper()
	require.NoError(c.t, c.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ws.ReadMessage()
	require.NoError(c.t, err)
	msg, err := protocol.Decode(data)
	require.NoError(c.t, err)
	return msg
}

// recvType skips frames until one of type t arrives.
func (c *rawClient) recvType(t protocol.MessageType) protocol.Message {
	c.t.Helper()
	for {
		msg := c.recv()
		if msg.Type == t {
			return msg
		}
	}
}

func (c *rawClient) auth(token, session, user string) protocol.Message {
	c.t.Helper()
	msg := protocol.MustNew(protocol.TypeAuthenticate, protocol.AuthData{Token: token, SessionID: session})
	msg.UserID = user
	c.send(msg)
	return c.recv()
}
