package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/roach88/coedit/internal/conn"
	"github.com/roach88/coedit/internal/protocol"
)

// client is one websocket connection. Writes go through conn.Conn, which
// serializes them, so the feed pump and the read loop both write directly.
type client struct {
	srv  *Server
	conn conn.Conn
	log  *slog.Logger

	// Set once by the read loop on authentication.
	session string
	user    string
	feed    Feed

	mu     sync.Mutex
	joined *protocol.JoinData
}

func (c *client) presence() (protocol.PresenceData, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.joined == nil {
		return protocol.PresenceData{}, false
	}
	online := true
	return protocol.PresenceData{
		UserID:   c.user,
		UserName: c.joined.UserName,
		Color:    c.joined.UserColor,
		IsOnline: &online,
	}, true
}

func (c *client) run(ctx context.Context) {
	defer c.close(ctx)
	for {
		data, err := c.conn.ReadMessage()
		if err != nil {
			c.log.Debug("read ended", "user", c.user, "error", err)
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			c.sendError(CodeBadRequest, err.Error())
			continue
		}
		if !c.handle(ctx, msg) {
			return
		}
	}
}

// handle processes one frame and reports whether to keep reading.
func (c *client) handle(ctx context.Context, msg protocol.Message) bool {
	switch msg.Type {
	case protocol.TypePing:
		c.write(protocol.Message{Type: protocol.TypePong, SessionID: c.session, Timestamp: protocol.Now()})
		return true
	case protocol.TypePong:
		return true
	case protocol.TypeAuthenticate:
		return c.handleAuth(ctx, msg)
	}

	if c.feed == nil {
		c.sendError(CodeUnauthorized, "authenticate first")
		return true
	}

	msg.SessionID = c.session
	msg.UserID = c.user
	if msg.Timestamp == 0 {
		msg.Timestamp = protocol.Now()
	}

	switch msg.Type {
	case protocol.TypeEdit:
		rev, err := c.srv.broker.NextRevision(ctx, c.session)
		if err != nil {
			c.log.Error("revision", "session", c.session, "error", err)
			c.sendError(CodeInternal, "revision unavailable")
			return true
		}
		msg = msg.WithRevision(rev)
	case protocol.TypeJoin:
		var data protocol.JoinData
		if len(msg.Data) > 0 {
			if err := msg.DecodeData(&data); err != nil {
				c.sendError(CodeBadRequest, err.Error())
				return true
			}
		}
		c.mu.Lock()
		c.joined = &data
		c.mu.Unlock()
		c.sendRoster(ctx)
	case protocol.TypeLeave, protocol.TypePresence, protocol.TypeComment:
	default:
		c.sendError(CodeUnsupported, "unsupported message type "+string(msg.Type))
		return true
	}

	c.publish(ctx, msg)
	return true
}

func (c *client) handleAuth(ctx context.Context, msg protocol.Message) bool {
	if c.feed != nil {
		c.sendError(CodeBadRequest, "already authenticated")
		return true
	}
	var data protocol.AuthData
	if err := msg.DecodeData(&data); err != nil {
		c.sendError(CodeBadRequest, err.Error())
		return false
	}
	session := data.SessionID
	if session == "" {
		session = msg.SessionID
	}
	if session == "" {
		c.sendError(CodeBadRequest, "session id is required")
		return false
	}
	user, err := c.srv.authenticate(data.Token, msg.UserID)
	if err != nil {
		c.log.Warn("authentication rejected", "session", session, "error", err)
		c.sendError(CodeUnauthorized, err.Error())
		return false
	}

	feed, err := c.srv.broker.Subscribe(ctx, session)
	if err != nil {
		c.log.Error("subscribe", "session", session, "error", err)
		c.sendError(CodeInternal, "session unavailable")
		return false
	}
	c.session, c.user, c.feed = session, user, feed
	c.log = c.log.With("session", session, "user", user)
	c.srv.join(c)
	go c.pump()

	c.write(protocol.Message{
		Type:      protocol.TypeAuthenticated,
		SessionID: session,
		UserID:    user,
		Timestamp: protocol.Now(),
		Data:      rawData(protocol.AuthenticatedData{UserID: user}),
	})
	rev, err := c.srv.broker.Revision(ctx, session)
	if err != nil {
		c.log.Warn("revision lookup failed", "error", err)
	}
	syncMsg := protocol.Message{
		Type:      protocol.TypeSync,
		SessionID: session,
		Timestamp: protocol.Now(),
		Data:      rawData(protocol.SyncData{SessionID: session}),
	}
	c.write(syncMsg.WithRevision(rev))
	c.log.Info("client authenticated")
	return true
}

// sendRoster tells a joining client who is already present.
func (c *client) sendRoster(ctx context.Context) {
	rev, err := c.srv.broker.Revision(ctx, c.session)
	if err != nil {
		c.log.Warn("revision lookup failed", "error", err)
	}
	c.write(protocol.Message{
		Type:      protocol.TypeJoin,
		SessionID: c.session,
		Timestamp: protocol.Now(),
		Data: rawData(protocol.JoinData{
			SessionID:       c.session,
			Participants:    c.srv.roster(c.session, c),
			DocumentVersion: rev,
		}),
	})
}

// pump forwards session traffic to the client until the feed closes. A
// feed closed by the broker ends the connection so the client reconnects.
func (c *client) pump() {
	defer c.conn.Close()
	for data := range c.feed.C() {
		if err := c.conn.WriteMessage(data); err != nil {
			c.log.Debug("forward failed", "error", err)
			return
		}
	}
	c.log.Debug("feed closed")
}

func (c *client) publish(ctx context.Context, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("encode", "type", msg.Type, "error", err)
		return
	}
	if err := c.srv.broker.Publish(ctx, c.session, data); err != nil {
		c.log.Error("publish", "type", msg.Type, "error", err)
		c.sendError(CodeInternal, "publish failed")
	}
}

func (c *client) write(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.log.Error("encode", "type", msg.Type, "error", err)
		return
	}
	if err := c.conn.WriteMessage(data); err != nil {
		c.log.Debug("write failed", "type", msg.Type, "error", err)
	}
}

func (c *client) sendError(code, text string) {
	c.write(protocol.Message{
		Type:      protocol.TypeError,
		SessionID: c.session,
		Timestamp: protocol.Now(),
		Data:      rawData(protocol.ErrorData{Code: code, Message: text}),
	})
}

// close announces the departure of an authenticated client and releases
// its subscription.
func (c *client) close(ctx context.Context) {
	if c.feed != nil {
		c.srv.part(c)
		_ = c.feed.Close()
		leave := protocol.Message{
			Type:      protocol.TypeLeave,
			SessionID: c.session,
			UserID:    c.user,
			Timestamp: protocol.Now(),
		}
		c.publish(ctx, leave)
		c.log.Info("client left")
	}
	_ = c.conn.Close()
}

// rawData marshals a payload struct, which cannot fail.
func rawData(v any) json.RawMessage {
	raw, _ := json.Marshal(v)
	return raw
}
