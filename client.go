package main

import (
	"bytes"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nzlov/roomsync/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client is a middleman between the websocket connection and the node.
type Client struct {
	node *Node

	id string

	// email is the identity from the last join; only the run loop touches it.
	email string

	log *zap.SugaredLogger

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte
}

// readPump pumps messages from the websocket connection to the node.
//
// The application runs readPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) readPump() {
	defer func() {
		c.node.UnRegister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(c.node.cfg.ReadMessageSizeLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error(err)
			}
			break
		}
		message = bytes.TrimSpace(bytes.ReplaceAll(message, newline, space))
		c.node.ClientHandler(c, message)
	}
}

// ClientHandler decodes one frame and hands it to the run loop. Frames that
// do not decode are logged and dropped; the connection stays open.
func (n *Node) ClientHandler(c *Client, data []byte) {
	defer func() {
		if err := recover(); err != nil {
			c.log.Errorf("handler panic:%v", err)
		}
	}()
	ev, err := event.Decode(data)
	if err != nil {
		c.log.Warnf("handler: %v", err)
		return
	}
	c.log.Debugf("handler: %s %s", ev.Kind(), ev.Room())
	n.Deliver(c, ev)
}

// writePump pumps messages from the node to the websocket connection.
//
// A goroutine running writePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The node closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.log.Errorf("NextWriter:%v", err.Error())
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				c.log.Errorf("NextWriter Close:%v", err.Error())
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Errorf("WriteMessage PingMessage:%v", err.Error())
				return
			}
		}
	}
}
