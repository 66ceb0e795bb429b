package signal

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrLinkClosed is returned by Send after the link has shut down.
var ErrLinkClosed = errors.New("signal: link closed")

// Link is one participant's bidirectional channel to the relay. Receive yields
// decoded inbound events in arrival order; the channel closes when the link
// goes down, which callers must treat as an implicit hangup of any active call.
type Link interface {
	Send(Message) error
	Receive() <-chan Message
	Close() error
}

// WSLink is a Link over a gorilla websocket connection.
type WSLink struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	in      chan Message

	closeOnce sync.Once
	done      chan struct{}

	writeTimeout time.Duration
}

const (
	wsReadLimit    = 64 * 1024
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// Dial connects a WSLink to the relay at url (ws:// or wss://).
func Dial(url string) (*WSLink, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return NewWSLink(conn), nil
}

// NewWSLink wraps an established websocket connection. Used by Dial and by
// tests that pair links over an in-process server.
func NewWSLink(conn *websocket.Conn) *WSLink {
	l := &WSLink{
		conn:         conn,
		in:           make(chan Message, 64),
		done:         make(chan struct{}),
		writeTimeout: wsWriteTimeout,
	}
	go l.readPump()
	go l.pingLoop()
	return l
}

func (l *WSLink) Send(msg Message) error {
	select {
	case <-l.done:
		return ErrLinkClosed
	default:
	}

	data, err := Encode(msg)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *WSLink) Receive() <-chan Message { return l.in }

func (l *WSLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.conn.Close()
	})
	return nil
}

func (l *WSLink) readPump() {
	defer func() {
		l.Close()
		close(l.in)
	}()

	l.conn.SetReadLimit(wsReadLimit)
	l.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("signal: link read error: %v", err)
			}
			return
		}

		msg, err := Decode(data)
		if err != nil {
			log.Printf("signal: dropping malformed event: %v", err)
			continue
		}

		select {
		case l.in <- msg:
		case <-l.done:
			return
		}
	}
}

func (l *WSLink) pingLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.writeMu.Lock()
			l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout))
			err := l.conn.WriteMessage(websocket.PingMessage, nil)
			l.writeMu.Unlock()
			if err != nil {
				l.Close()
				return
			}
		case <-l.done:
			return
		}
	}
}
