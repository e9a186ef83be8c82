package conn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/coedit/internal/protocol"
)

var errDialRefused = errors.New("connection refused")

// fakeConn is an in-memory transport. Frames pushed with deliver are
// returned by ReadMessage; written frames are recorded.
type fakeConn struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	gate     chan struct{} // when set, writes wait for it to close
	entered  chan struct{} // signalled when a write starts waiting
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	gate, entered := c.gate, c.entered
	c.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) deliver(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		panic(err)
	}
	c.inbound <- data
}

func (c *fakeConn) deliverRaw(data string) {
	c.inbound <- []byte(data)
}

// holdWrites makes every write block until release is called. The
// returned channel receives when a write starts blocking.
func (c *fakeConn) holdWrites() (entered <-chan struct{}, release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gate := make(chan struct{})
	c.gate = gate
	c.entered = make(chan struct{}, 1)
	var once sync.Once
	return c.entered, func() { once.Do(func() { close(gate) }) }
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeErr = err
}

// sent decodes every written frame.
func (c *fakeConn) sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.Message, 0, len(c.written))
	for _, data := range c.written {
		msg, err := protocol.Decode(data)
		if err != nil {
			panic(err)
		}
		out = append(out, msg)
	}
	return out
}

func (c *fakeConn) sentTypes() []protocol.MessageType {
	var types []protocol.MessageType
	for _, m := range c.sent() {
		types = append(types, m.Type)
	}
	return types
}

// fakeDialer hands out prepared connections in order; once exhausted it
// refuses every dial.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
	urls  []string
}

func (d *fakeDialer) Dial(_ context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	d.urls = append(d.urls, url)
	if len(d.conns) == 0 {
		return nil, errDialRefused
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) add(c *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, c)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
