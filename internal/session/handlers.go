package session

import (
	"context"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/coedit/internal/ot"
	"github.com/roach88/coedit/internal/protocol"
	"github.com/roach88/coedit/internal/store"
)

func (c *Coordinator) handleEdit(msg protocol.Message) {
	if c.isSelf(msg.UserID) {
		c.acknowledge(msg)
		return
	}

	var data protocol.EditData
	if err := msg.DecodeData(&data); err != nil {
		c.log.Warn("dropping edit", "from", msg.UserID, "error", err)
		return
	}
	if err := data.Operation.Validate(); err != nil {
		c.log.Warn("dropping invalid edit", "from", msg.UserID, "error", err)
		return
	}

	c.mu.Lock()
	remoteRev := msg.RevisionOr(c.engine.Revision())
	op := c.engine.ApplyRemote(data.Operation, remoteRev)
	c.text = ot.ApplyToText(c.text, op)
	if remoteRev > c.serverRevision {
		c.serverRevision = remoteRev
	}
	rev := c.engine.Revision()
	c.mu.Unlock()

	c.recordAs(context.Background(), store.OriginRemote, op, rev, msg.UserID)
	c.render()
}

func (c *Coordinator) handleAck(msg protocol.Message) {
	c.acknowledge(msg)
}

// acknowledge retires the oldest pending operation.
func (c *Coordinator) acknowledge(msg protocol.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.engine.AcknowledgePending(); !ok {
		c.log.Debug("ack without pending operation", "type", msg.Type)
	}
	if msg.Revision != nil && *msg.Revision > c.serverRevision {
		c.serverRevision = *msg.Revision
	}
}

func (c *Coordinator) handleSync(msg protocol.Message) {
	var data protocol.SyncData
	if len(msg.Data) > 0 {
		if err := msg.DecodeData(&data); err != nil {
			c.log.Warn("dropping sync", "error", err)
			return
		}
	}

	// Pending operations stay pending: a sync can arrive right after the
	// offline queue was flushed, before any of it is echoed back.
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg.Revision != nil {
		c.serverRevision = *msg.Revision
		c.info.DocumentVersion = *msg.Revision
	}
	c.info.LastModified = c.messageTime(msg)
}

func (c *Coordinator) handleJoin(msg protocol.Message) {
	var data protocol.JoinData
	if len(msg.Data) > 0 {
		if err := msg.DecodeData(&data); err != nil {
			c.log.Warn("dropping join", "error", err)
			return
		}
	}

	c.mu.Lock()
	at := c.messageTime(msg)
	if data.Title != "" {
		c.info.Title = data.Title
	}
	if data.DocumentVersion > 0 {
		c.info.DocumentVersion = data.DocumentVersion
	}
	if len(data.Participants) > 0 {
		c.participants = make(map[string]*Participant)
		for _, p := range data.Participants {
			if p.UserID == "" || c.isSelf(p.UserID) {
				continue
			}
			c.upsertLocked(p.UserID, p, at)
		}
	}
	if msg.UserID != "" && !c.isSelf(msg.UserID) {
		c.upsertLocked(msg.UserID, protocol.PresenceData{
			UserName: data.UserName,
			Color:    data.UserColor,
		}, at)
	}
	c.mu.Unlock()

	c.render()
}

func (c *Coordinator) handleLeave(msg protocol.Message) {
	c.mu.Lock()
	_, ok := c.participants[msg.UserID]
	delete(c.participants, msg.UserID)
	c.mu.Unlock()

	if ok {
		c.render()
	}
}

func (c *Coordinator) handlePresence(msg protocol.Message) {
	if msg.UserID == "" || c.isSelf(msg.UserID) {
		return
	}
	var data protocol.PresenceData
	if err := msg.DecodeData(&data); err != nil {
		c.log.Warn("dropping presence", "from", msg.UserID, "error", err)
		return
	}

	c.mu.Lock()
	c.upsertLocked(msg.UserID, data, c.messageTime(msg))
	c.mu.Unlock()

	c.render()
}

// upsertLocked merges a presence update into the participant's record,
// creating it with defaults if absent.
func (c *Coordinator) upsertLocked(userID string, d protocol.PresenceData, at time.Time) {
	p, ok := c.participants[userID]
	if !ok {
		p = &Participant{
			UserID:   userID,
			UserName: defaultUserName,
			Color:    defaultColor,
			IsOnline: true,
		}
		c.participants[userID] = p
	}
	if d.UserName != "" {
		p.UserName = d.UserName
	}
	if d.Color != "" {
		p.Color = d.Color
	}
	if d.CursorPosition != nil {
		p.CursorPosition = *d.CursorPosition
	}
	if d.SelectionStart != nil {
		p.SelectionStart = *d.SelectionStart
	}
	if d.SelectionEnd != nil {
		p.SelectionEnd = *d.SelectionEnd
	}
	if d.IsOnline != nil {
		p.IsOnline = *d.IsOnline
	}
	p.LastActivity = at
}

func (c *Coordinator) handleComment(msg protocol.Message) {
	var data protocol.CommentData
	if err := msg.DecodeData(&data); err != nil {
		c.log.Warn("dropping comment", "from", msg.UserID, "error", err)
		return
	}
	if data.CommentID == "" {
		c.log.Warn("dropping comment without id", "from", msg.UserID)
		return
	}

	cm := Comment{
		ID:         data.CommentID,
		UserID:     msg.UserID,
		LineNumber: data.LineNumber,
		Content:    norm.NFC.String(data.Content),
		CreatedAt:  c.messageTime(msg),
	}
	c.mu.Lock()
	added := c.addCommentLocked(cm)
	c.mu.Unlock()

	if added {
		c.recordComment(context.Background(), cm)
	}
}

func (c *Coordinator) handleError(msg protocol.Message) {
	var data protocol.ErrorData
	if err := msg.DecodeData(&data); err != nil {
		c.log.Warn("server error", "raw", string(msg.Data))
		return
	}
	c.log.Warn("server error", "code", data.Code, "message", data.Message)
}

// messageTime is the sender's timestamp, or now when absent.
func (c *Coordinator) messageTime(msg protocol.Message) time.Time {
	if msg.Timestamp > 0 {
		return msg.SentAt()
	}
	return c.clock.Now()
}
