// Package client connects to a relay node: it joins rooms, sends document,
// title and cursor events and dispatches incoming events to scoped listeners.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nzlov/roomsync/event"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	defaultSendBuffer = 64
)

var ErrClosed = errors.New("client: closed")

type Option func(*Client)

func WithLogger(log *zap.SugaredLogger) Option {
	return func(c *Client) { c.log = log }
}

func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// WithSendBuffer sets how many outgoing frames may queue before cursor
// updates are dropped and other sends block.
func WithSendBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.sendBuffer = n
		}
	}
}

type handler struct {
	kind event.Kind
	room string
	fn   func(event.Event)
}

// Client is one relay connection.
type Client struct {
	email      string
	header     http.Header
	sendBuffer int
	log        *zap.SugaredLogger

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	handlers map[int]handler
	next     int
}

// URL turns "host:port" into the node's websocket URL; full ws:// or wss://
// URLs are used as given.
func URL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws"}
	return u.String()
}

// Dial connects as email. The connection lives until Close or until the node
// drops it; Done reports either.
func Dial(ctx context.Context, addr, email string, opts ...Option) (*Client, error) {
	c := &Client{
		email:      email,
		sendBuffer: defaultSendBuffer,
		done:       make(chan struct{}),
		handlers:   map[int]handler{},
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = zap.S()
	}
	c.log = c.log.With("email", email)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, URL(addr), c.header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c.conn = conn
	c.send = make(chan []byte, c.sendBuffer)

	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *Client) Email() string { return c.email }

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.conn.Close()
	})
}

func (c *Client) Join(roomID string) error {
	return c.write(event.Join{RoomID: roomID, Email: c.email})
}

func (c *Client) SendContent(roomID, content string) error {
	return c.write(event.Content{RoomID: roomID, Content: content, UserEmail: c.email})
}

func (c *Client) SendTitle(roomID, title string) error {
	return c.write(event.Title{RoomID: roomID, Title: title, UserEmail: c.email})
}

// MoveCursor never blocks: when the send buffer is full the update is
// dropped.
func (c *Client) MoveCursor(roomID string, x, y float64) error {
	data, err := event.Encode(event.Cursor{RoomID: roomID, UserEmail: c.email, X: x, Y: y})
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
	default:
		c.log.Debug("cursor dropped")
	}
	return nil
}

func (c *Client) write(ev event.Event) error {
	data, err := event.Encode(ev)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// On calls fn for every incoming event of kind scoped to roomID; an empty
// roomID matches every room. fn runs on the read goroutine. The returned
// func removes the listener.
func (c *Client) On(kind event.Kind, roomID string, fn func(event.Event)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.handlers[id] = handler{kind: kind, room: roomID, fn: fn}
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.handlers, id)
		})
	}
}

func (c *Client) dispatch(ev event.Event) {
	c.mu.Lock()
	fns := make([]func(event.Event), 0, 2)
	for id := 0; id < c.next; id++ {
		h, ok := c.handlers[id]
		if !ok || h.kind != ev.Kind() {
			continue
		}
		if h.room != "" && h.room != ev.Room() {
			continue
		}
		fns = append(fns, h.fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (c *Client) readPump() {
	defer c.shutdown()
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.log.Errorf("read: %v", err)
				}
			}
			return
		}
		ev, err := event.Decode(message)
		if err != nil {
			c.log.Warnf("drop frame: %v", err)
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Errorf("write: %v", err)
				c.shutdown()
				return
			}
		}
	}
}
