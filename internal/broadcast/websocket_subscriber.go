package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxInboundMessageSize = 4096
	sendQueueSize         = 64
)

var (
	// ErrSendQueueFull is returned when a slow client has not drained its queued events
	ErrSendQueueFull = errors.New("subscriber send queue is full")
	// ErrSubscriberClosed is returned by Send after Close
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

// WebSocketSubscriber adapts a gorilla connection. Send only queues the message;
// a per-connection writer goroutine does the network I/O, so a stalled client
// never holds up the caller.
type WebSocketSubscriber struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once

	mu       sync.Mutex
	writeErr error
}

// NewWebSocketSubscriber starts the writer goroutine; Close stops it
func NewWebSocketSubscriber(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketSubscriber {
	s := &WebSocketSubscriber{
		conn:         conn,
		writeTimeout: writeTimeout,
		send:         make(chan []byte, sendQueueSize),
		done:         make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// Handshake limits inbound frames; the endpoint is receive-only so clients have nothing large to send
func (s *WebSocketSubscriber) Handshake() error {
	s.conn.SetReadLimit(maxInboundMessageSize)
	return nil
}

// Send queues message without blocking. It fails when the queue is full, after
// a write error or once the subscriber is closed.
func (s *WebSocketSubscriber) Send(message []byte) error {
	select {
	case <-s.done:
		return ErrSubscriberClosed
	default:
	}

	if err := s.failure(); err != nil {
		return err
	}

	select {
	case s.send <- message:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// DiscardInbound reads and drops client frames until the connection errors, which is how
// a closed client is noticed
func (s *WebSocketSubscriber) DiscardInbound() error {
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

// Close stops the writer and closes the connection. Queued messages are dropped.
func (s *WebSocketSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

func (s *WebSocketSubscriber) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case message := <-s.send:
			if s.writeTimeout > 0 {
				if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
					s.fail(err)
					return
				}
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// The read side notices the dead connection and disconnects
				s.fail(err)
				return
			}
		}
	}
}

func (s *WebSocketSubscriber) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr == nil {
		s.writeErr = err
	}
}

func (s *WebSocketSubscriber) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeErr
}
