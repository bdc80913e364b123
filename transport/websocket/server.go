package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rocketscienceinc/pingpong-backend/internal/apperror"
	"github.com/rocketscienceinc/pingpong-backend/internal/entity"
	"github.com/rocketscienceinc/pingpong-backend/internal/pkg"
)

// heartbeatTimeout bounds the liveness probe round-trip; past it the peer is
// treated as dead.
const heartbeatTimeout = 200 * time.Millisecond

const shutdownTimeout = 5 * time.Second

type matchManager interface {
	Login(ctx context.Context, playerID, name string) (*entity.Player, error)
	Rename(ctx context.Context, playerID, name string) error
	Disconnect(ctx context.Context, playerID string)

	OpponentScored(ctx context.Context, playerID string) error
	ResolveOpponent(ctx context.Context, playerID string) (*entity.Player, error)
}

type Server struct {
	logger  *slog.Logger
	matches matchManager

	upgrader websocket.Upgrader

	connectionsMutex sync.RWMutex
	connections      map[string]*connection

	handlers map[string]func(ctx context.Context, conn *connection, msg *Message) error
}

func New(logger *slog.Logger, matches matchManager) *Server {
	server := &Server{
		logger:  logger,
		matches: matches,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},

		connections: make(map[string]*connection),
		handlers:    make(map[string]func(context.Context, *connection, *Message) error),
	}

	server.handlers[actionLogin] = server.handleLogin
	server.handlers[actionSetName] = server.handleSetName
	server.handlers[actionLeave] = server.handleLeave

	for inbound, outbound := range relayActions {
		server.handlers[inbound] = server.relayHandler(inbound, outbound)
	}

	return server
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", that.Handler(ctx))

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Handler - the upgrade endpoint, exposed separately so tests can mount it
// on an httptest server.
func (that *Server) Handler(ctx context.Context) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, req *http.Request) {
		ws, err := that.upgrader.Upgrade(writer, req, nil)
		if err != nil {
			that.logger.Error("failed to upgrade connection", "error", err)
			return
		}

		conn := newConnection(pkg.GenerateSessionID(), ws)
		that.addConnection(conn)

		that.logger.Info("client connected", "playerID", conn.playerID)

		that.readLoop(ctx, conn)
	})
}

// readLoop - reads one connection's frames in arrival order. Heartbeat acks
// are handled inline and everything else is queued to the connection's
// worker: handlers block on the manager mutex while the manager probes
// occupants, so the goroutine that answers this connection's probes must
// never be the one running its handlers.
func (that *Server) readLoop(ctx context.Context, conn *connection) {
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		that.workLoop(ctx, conn)
	}()

	defer func() {
		close(conn.inbox)
		<-workerDone
		that.dropConnection(ctx, conn)
	}()

	log := that.logger.With("playerID", conn.playerID)

	for {
		_, payload, err := conn.ws.ReadMessage()
		if err != nil {
			return
		}

		var message Message
		if err = json.Unmarshal(payload, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			continue
		}

		if message.Action == actionPong {
			conn.ack()
			continue
		}

		conn.inbox <- message
	}
}

// workLoop - dispatches one connection's queued events, preserving arrival
// order. Only this goroutine ever waits on a handler.
func (that *Server) workLoop(ctx context.Context, conn *connection) {
	log := that.logger.With("playerID", conn.playerID)

	for message := range conn.inbox {
		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Error("unknown action", "action", message.Action)
			continue
		}

		if err := handler(ctx, conn, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// dropConnection - the transport's disconnect signal. The connection is
// forgotten first so any probe fired during the cascade fails fast; the
// manager then refreshes the player's whole room.
func (that *Server) dropConnection(ctx context.Context, conn *connection) {
	that.connectionsMutex.Lock()
	_, known := that.connections[conn.playerID]
	delete(that.connections, conn.playerID)
	that.connectionsMutex.Unlock()

	conn.close()

	if !known {
		// already removed by CloseConnection; the manager handled cleanup
		return
	}

	that.logger.Info("client disconnected", "playerID", conn.playerID)

	that.matches.Disconnect(ctx, conn.playerID)
}

// Emit - best-effort named-event send. Emitting to a closed or unknown
// connection is a no-op.
func (that *Server) Emit(playerID, event string, payload any) {
	conn, ok := that.getConnection(playerID)
	if !ok {
		return
	}

	msg := Message{Action: event}

	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			that.logger.Error("failed to marshal payload", "event", event, "error", err)
			return
		}
		msg.Payload = raw
	}

	if err := conn.send(msg); err != nil {
		that.logger.Error("failed to send message", "playerID", playerID, "event", event, "error", err)
	}
}

// Probe - heartbeat with a bounded response window. A timeout or transport
// error means the peer is dead; the probe is never left pending.
func (that *Server) Probe(ctx context.Context, playerID string) error {
	conn, ok := that.getConnection(playerID)
	if !ok {
		return apperror.ErrConnectionClosed
	}

	conn.drainAcks()

	if err := conn.send(Message{Action: actionPing}); err != nil {
		return err
	}

	timer := time.NewTimer(heartbeatTimeout)
	defer timer.Stop()

	select {
	case <-conn.acks:
		return nil
	case <-timer.C:
		return apperror.ErrHeartbeatTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CloseConnection - forcibly closes a client connection. The read loop's own
// teardown will find the entry already gone and skip the disconnect cascade.
func (that *Server) CloseConnection(playerID string) {
	that.connectionsMutex.Lock()
	conn, ok := that.connections[playerID]
	delete(that.connections, playerID)
	that.connectionsMutex.Unlock()

	if ok {
		conn.close()
	}
}

func (that *Server) IsConnected(playerID string) bool {
	_, ok := that.getConnection(playerID)
	return ok
}

func (that *Server) addConnection(conn *connection) {
	that.connectionsMutex.Lock()
	that.connections[conn.playerID] = conn
	that.connectionsMutex.Unlock()
}

func (that *Server) getConnection(playerID string) (*connection, bool) {
	that.connectionsMutex.RLock()
	conn, ok := that.connections[playerID]
	that.connectionsMutex.RUnlock()

	return conn, ok
}
