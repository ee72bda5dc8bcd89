package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nzlov/roomsync/event"
	"github.com/nzlov/roomsync/registry"
	"github.com/nzlov/roomsync/store"
)

var errNodeStopped = errors.New("node stopped")

const defaultSendBuffer = 64

// BlobSource serves uploaded files by path.
type BlobSource interface {
	Get(ctx context.Context, path string) (store.Blob, error)
}

type inbound struct {
	c  *Client
	ev event.Event
}

// Node is the relay hub. The registry and the connection table are owned by
// the goroutine running Run; everything else talks to it over channels.
type Node struct {
	reg     *registry.Registry
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	snapshot   chan chan []registry.Room
	done       chan struct{}

	cfg   ClientConfig
	blobs BlobSource
	log   *zap.SugaredLogger

	upgrader websocket.Upgrader
}

func newNode(reg *registry.Registry, cfg ClientConfig) *Node {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	n := &Node{
		reg:        reg,
		clients:    map[string]*Client{},
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		snapshot:   make(chan chan []registry.Room),
		done:       make(chan struct{}),
		cfg:        cfg,
		log:        zap.S().With("method", "node"),
	}
	n.upgrader = websocket.Upgrader{
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.Compression,
	}
	n.upgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
	return n
}

// Run handles one hub event at a time until ctx ends. All connections are
// closed on return.
func (n *Node) Run(ctx context.Context) {
	defer func() {
		close(n.done)
		for id, c := range n.clients {
			delete(n.clients, id)
			close(c.send)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-n.register:
			n.clients[c.id] = c
			c.log.Info("register")
		case c := <-n.unregister:
			if _, ok := n.clients[c.id]; !ok {
				continue
			}
			delete(n.clients, c.id)
			close(c.send)
			n.disconnect(c)
		case in := <-n.inbound:
			if _, ok := n.clients[in.c.id]; !ok {
				continue
			}
			n.handle(in.c, in.ev)
		case req := <-n.snapshot:
			req <- n.reg.Snapshot()
		}
	}
}

func (n *Node) Register(c *Client) error {
	select {
	case n.register <- c:
		return nil
	case <-n.done:
		return errNodeStopped
	}
}

func (n *Node) UnRegister(c *Client) {
	select {
	case n.unregister <- c:
	case <-n.done:
	}
}

// Deliver queues a decoded frame from c for the run loop.
func (n *Node) Deliver(c *Client, ev event.Event) {
	select {
	case n.inbound <- inbound{c: c, ev: ev}:
	case <-n.done:
	}
}

// Snapshot copies the registry through the run loop.
func (n *Node) Snapshot(ctx context.Context) ([]registry.Room, error) {
	req := make(chan []registry.Room, 1)
	select {
	case n.snapshot <- req:
	case <-n.done:
		return nil, errNodeStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case rooms := <-req:
		return rooms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *Node) handle(c *Client, ev event.Event) {
	defer func() {
		if err := recover(); err != nil {
			c.log.Errorf("handler panic:%v", err)
		}
	}()
	switch ev := ev.(type) {
	case event.Join:
		n.join(c, ev)
	case event.Content, event.Title, event.Cursor:
		n.relay(c, ev)
	default:
		c.log.Warnf("handler: unexpected event %s from client", ev.Kind())
	}
}

func (n *Node) join(c *Client, ev event.Join) {
	if ev.Email != "" {
		c.email = ev.Email
	}
	users := n.reg.Join(ev.RoomID, c.email, c.id)
	c.log.Infow("join", "room", ev.RoomID, "email", c.email, "users", len(users))

	n.broadcast(ev.RoomID, "", event.RoomUsers{RoomID: ev.RoomID, Users: users})
	n.broadcast(ev.RoomID, c.id, event.UserJoined(ev.RoomID, c.email))
}

// relay fans ev out to the other connections of its room. Payloads are not
// rewritten.
func (n *Node) relay(c *Client, ev event.Event) {
	n.broadcast(ev.Room(), c.id, ev)
}

func (n *Node) disconnect(c *Client) {
	changed := n.reg.Remove(c.id)
	c.log.Infow("disconnect", "email", c.email, "rooms", len(changed))
	for roomID, users := range changed {
		n.broadcast(roomID, "", event.RoomUsers{RoomID: roomID, Users: users})
	}

	data := event.MustEncode(event.UserLeft())
	for id, other := range n.clients {
		if id != c.id {
			n.sendTo(other, data)
		}
	}
}

func (n *Node) broadcast(roomID, except string, ev event.Event) {
	data, err := event.Encode(ev)
	if err != nil {
		n.log.Errorf("encode %s: %v", ev.Kind(), err)
		return
	}
	for _, id := range n.reg.Conns(roomID, except) {
		if c, ok := n.clients[id]; ok {
			n.sendTo(c, data)
		}
	}
}

// sendTo never blocks the run loop; a full send buffer drops the frame.
func (n *Node) sendTo(c *Client, data []byte) {
	select {
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, frame dropped")
	}
}

// serveWs handles websocket requests from the peer.
func (n *Node) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		n.log.Error("upgrade:", err)
		return
	}
	id := uuid.NewString()
	client := &Client{
		id:   id,
		node: n,
		conn: conn,
		send: make(chan []byte, n.cfg.SendBuffer),
		log:  zap.S().With("cid", id),
	}
	if n.cfg.Compression {
		client.conn.EnableWriteCompression(true)
		client.conn.SetCompressionLevel(n.cfg.CompressionLevel)
	}
	client.conn.SetCloseHandler(func(code int, text string) error {
		client.log.Info("CloseHandler:", code, text)
		message := websocket.FormatCloseMessage(code, "")
		conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
		return nil
	})
	if err := n.Register(client); err != nil {
		conn.Close()
		return
	}
	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}
