package realtime

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	connectTimeout = 10 * time.Second
)

// Client is one socket session. The principal is fixed by the CONNECT frame and
// kept for the lifetime of the connection.
type Client struct {
	id        string
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	topics    map[string]bool
	attrs     Attributes
	auth      *ChannelAuthenticator
	principal *Principal
	connected bool
	log       logrus.FieldLogger
}

func newClient(hub *Hub, conn *websocket.Conn, auth *ChannelAuthenticator, attrs Attributes, logger logrus.FieldLogger) *Client {
	id := uuid.NewString()
	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		topics: make(map[string]bool),
		attrs:  attrs,
		auth:   auth,
		log:    logger.WithField("client_id", id),
	}
}

// readPump handles inbound frames until the peer goes away, a DISCONNECT
// arrives or the session is rejected.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(connectTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("websocket read error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(errorFrame("malformed frame"))
			continue
		}

		if !c.handle(ctx, &frame) {
			return
		}
	}
}

// handle processes one frame and reports whether the session stays open.
func (c *Client) handle(ctx context.Context, frame *Frame) bool {
	if !c.connected {
		if frame.Command != CommandConnect {
			c.reply(errorFrame("CONNECT expected"))
			return false
		}
		return c.handleConnect(ctx, frame)
	}

	switch frame.Command {
	case CommandSubscribe:
		c.handleSubscribe(frame)
	case CommandUnsubscribe:
		c.hub.Unsubscribe(c, frame.Destination)
		c.receipt(frame)
	case CommandSend:
		c.handleSend(frame)
	case CommandDisconnect:
		c.receipt(frame)
		return false
	default:
		c.reply(errorFrame("unsupported command " + string(frame.Command)))
	}
	return true
}

func (c *Client) handleConnect(ctx context.Context, frame *Frame) bool {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	p, err := c.auth.Connect(ctx, frame.Headers, c.attrs)
	if err != nil {
		c.log.WithError(err).Warn("connect rejected")
		c.reply(errorFrame("authentication required"))
		return false
	}

	c.hub.bind(c, p)
	c.connected = true
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

	user := ""
	if p != nil {
		user = p.UserID
	}
	c.log.WithFields(logrus.Fields{"user_id": user, "anonymous": p == nil}).Info("channel session connected")

	c.reply(&Frame{Command: CommandConnected, Headers: map[string]string{HeaderUser: user}})
	return true
}

func (c *Client) handleSubscribe(frame *Frame) {
	dest := frame.Destination
	switch {
	case !strings.HasPrefix(dest, TopicPrefix) || len(dest) == len(TopicPrefix):
		c.reply(errorFrame("invalid destination " + dest))
	case c.principal == nil && dest != PublicTopic:
		c.reply(errorFrame("authentication required for " + dest))
	default:
		c.hub.Subscribe(c, dest)
		c.receipt(frame)
	}
}

func (c *Client) handleSend(frame *Frame) {
	if c.principal == nil {
		c.reply(errorFrame("authentication required"))
		return
	}

	dest := frame.Destination
	if !(strings.HasPrefix(dest, TopicPrefix) && len(dest) > len(TopicPrefix)) &&
		!(strings.HasPrefix(dest, UserPrefix) && len(dest) > len(UserPrefix)) {
		c.reply(errorFrame("invalid destination " + dest))
		return
	}

	msg := &Frame{
		Command:     CommandMessage,
		Destination: dest,
		Headers:     map[string]string{HeaderSender: c.principal.UserID},
		Body:        frame.Body,
	}
	if !c.hub.Publish(msg) {
		c.reply(errorFrame("message dropped"))
		return
	}
	c.receipt(frame)
}

func (c *Client) receipt(frame *Frame) {
	if id := frame.Header(HeaderReceipt); id != "" {
		c.reply(&Frame{Command: CommandReceipt, Headers: map[string]string{HeaderReceiptID: id}})
	}
}

func (c *Client) reply(frame *Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		c.log.WithError(err).Error("failed to marshal frame")
		return
	}
	c.hub.sendTo(c, data)
}

// writePump owns all writes to the connection. It drains the send queue and
// closes the socket once the hub closes the queue.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.WithError(err).Warn("websocket write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
