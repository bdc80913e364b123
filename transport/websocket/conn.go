package websocket

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// inboxCapacity absorbs gameplay bursts while the worker is waiting on the
// match manager; the read loop only blocks once it overflows.
const inboxCapacity = 64

// connection wraps one client websocket: a write mutex (gorilla allows a
// single concurrent writer), a one-slot channel carrying heartbeat acks, and
// the queue feeding the connection's handler worker.
type connection struct {
	playerID string
	ws       *websocket.Conn

	writeMu sync.Mutex
	acks    chan struct{}
	inbox   chan Message
}

func newConnection(playerID string, ws *websocket.Conn) *connection {
	return &connection{
		playerID: playerID,
		ws:       ws,
		acks:     make(chan struct{}, 1),
		inbox:    make(chan Message, inboxCapacity),
	}
}

func (that *connection) send(msg Message) error {
	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err := that.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// ack records a heartbeat reply without ever blocking the read loop.
func (that *connection) ack() {
	select {
	case that.acks <- struct{}{}:
	default:
	}
}

// drainAcks discards a stale ack left over from an earlier probe.
func (that *connection) drainAcks() {
	select {
	case <-that.acks:
	default:
	}
}

func (that *connection) close() {
	_ = that.ws.Close()
}
