// Package signalclient is the participant's end of the relay websocket.
//
// It correlates requests with their replies, turns room broadcasts into engine events and hands
// negotiation messages to a handler.
package signalclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/engine"
	"github.com/dkeye/Huddle/internal/wire"
)

var (
	ErrClosed       = errors.New("signaling connection closed")
	ErrUnauthorized = errors.New("credential rejected")
	ErrConflict     = errors.New("participant already connected")
)

// RemoteError is an error reply from the relay.
type RemoteError struct {
	Type   string
	Reason string
}

func (e *RemoteError) Error() string { return e.Type + ": " + e.Reason }

const writeWait = 5 * time.Second

type Options struct {
	// RequestTimeout bounds Request when the caller's context has no earlier deadline.
	RequestTimeout time.Duration
	// Handler sees every message from the relay before it is translated, on the read goroutine.
	Handler func(wire.Message)
}

type Client struct {
	conn    *websocket.Conn
	opts    Options
	send    chan []byte
	events  chan engine.Event
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	closing sync.Once

	mu      sync.Mutex
	pending map[string]chan wire.Message
}

// Dial opens the signaling socket. address is the relay's websocket URL; the credential travels as
// the token query parameter.
func Dial(ctx context.Context, address, credential string, opts Options) (*Client, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("signal address: %w", err)
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return nil, ErrUnauthorized
			case http.StatusConflict:
				return nil, ErrConflict
			}
		}
		return nil, err
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:    conn,
		opts:    opts,
		send:    make(chan []byte, 64),
		events:  make(chan engine.Event, 64),
		ctx:     cctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		pending: make(map[string]chan wire.Message),
	}
	go c.writePump()
	go c.readPump()
	log.Info().Str("module", "signalclient").Str("address", u.Host).Msg("connected")
	return c, nil
}

// Events implements engine.EventSource. The channel is closed after the connection is gone.
func (c *Client) Events() <-chan engine.Event { return c.events }

// Done is closed once the read loop has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Send(msg wire.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if c.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// Request sends msg with a fresh id and waits for the reply carrying the same id.
func (c *Client) Request(ctx context.Context, msg wire.Message) (wire.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.RequestTimeout)
	defer cancel()

	msg.ID = uuid.NewString()
	reply := make(chan wire.Message, 1)
	c.mu.Lock()
	c.pending[msg.ID] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ID)
		c.mu.Unlock()
	}()

	if err := c.Send(msg); err != nil {
		return wire.Message{}, err
	}
	select {
	case r := <-reply:
		if r.Type == wire.TypeError {
			return r, &RemoteError{Type: msg.Type, Reason: r.Error}
		}
		return r, nil
	case <-ctx.Done():
		return wire.Message{}, fmt.Errorf("%s: %w", msg.Type, ctx.Err())
	case <-c.ctx.Done():
		return wire.Message{}, ErrClosed
	}
}

// Join enters the room the credential names and reports who is already there.
func (c *Client) Join(ctx context.Context) (engine.Welcome, error) {
	r, err := c.Request(ctx, wire.Message{Type: wire.TypeJoin})
	if err != nil {
		return engine.Welcome{}, err
	}
	w := engine.Welcome{SelfID: r.SelfID, Room: r.Room, Peers: make([]engine.PeerInfo, 0, len(r.Peers))}
	for _, p := range r.Peers {
		w.Peers = append(w.Peers, engine.PeerInfo{ID: p.ID, DisplayName: p.Name})
	}
	return w, nil
}

func (c *Client) SendChat(ctx context.Context, text string) error {
	_, err := c.Request(ctx, wire.Message{Type: wire.TypeChat, Text: text})
	return err
}

// Close says goodbye to the relay and shuts the socket. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closing.Do(func() {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "leave"), time.Now().Add(writeWait))
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signalclient").Msg("writePump set deadline")
				c.cancel()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signalclient").Msg("writePump write error")
				c.cancel()
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) readPump() {
	reason := "connection closed"
	defer func() {
		local := c.ctx.Err() != nil
		c.cancel()
		_ = c.conn.Close()
		if !local {
			// nobody may be reading any more, so this must not block
			select {
			case c.events <- engine.Disconnected{Reason: reason}:
			default:
			}
		}
		close(c.events)
		close(c.done)
		log.Info().Str("module", "signalclient").Str("reason", reason).Bool("local", local).Msg("readPump closing")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				reason = err.Error()
			}
			return
		}
		var msg wire.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "signalclient").Msg("bad json")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg wire.Message) {
	if msg.ID != "" {
		c.mu.Lock()
		reply, ok := c.pending[msg.ID]
		c.mu.Unlock()
		if ok {
			reply <- msg
			return
		}
	}
	if c.opts.Handler != nil {
		c.opts.Handler(msg)
	}
	if ev, ok := Translate(msg); ok {
		select {
		case c.events <- ev:
		case <-c.ctx.Done():
		}
	}
}
