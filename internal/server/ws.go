package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"github.com/codesquad-ai/codesquad/internal/logging"
	"github.com/codesquad-ai/codesquad/internal/session"
	"github.com/codesquad-ai/codesquad/pkg/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	// sendBuffer bounds the per-connection outbound queue. Handlers block
	// on a full queue rather than reorder or drop envelopes.
	sendBuffer = 64

	// closeInvalidSession is the application close code sent when the
	// client-supplied session identity is malformed.
	closeInvalidSession = 4000
)

var errConnClosed = errors.New("connection closed")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The browser UI is served from arbitrary dev origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes outbound envelopes for one WebSocket. A single writer
// goroutine drains the queue in submission order; after close, sends fail
// and nothing more is written.
type wsConn struct {
	conn *websocket.Conn
	send chan *types.Outbound

	closeOnce sync.Once
	done      chan struct{}
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		conn: conn,
		send: make(chan *types.Outbound, sendBuffer),
		done: make(chan struct{}),
	}
}

// Send queues an envelope for ordered delivery.
func (c *wsConn) Send(envelope *types.Outbound) error {
	select {
	case <-c.done:
		return errConnClosed
	case c.send <- envelope:
		return nil
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump is the connection's single writer.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case envelope := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(envelope); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket upgrades the connection, attaches the session identity,
// and pumps inbound envelopes to the coordinator until disconnect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionID")
	if sessionID == "" {
		sessionID = ulid.Make().String()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	sess, err := s.coordinator.Registry().Attach(r.Context(), sessionID)
	if err != nil {
		// No writer goroutine exists yet, so the rejection is written
		// directly before the close handshake.
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteJSON(types.NewError(types.CodeInvalidRequest, err.Error()))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeInvalidSession, "invalid session identity"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}

	c := newWSConn(conn)
	go c.writePump()

	c.Send(types.NewConnection(sess.ID()))
	logging.Info().Str("sessionID", sess.ID()).Msg("client connected")

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var in types.Inbound
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		// Each envelope is handled on its own goroutine so a long-running
		// request cannot stall the read loop; the Busy check and the
		// ordered sender keep per-session semantics intact. Handler
		// contexts are detached from the request so disconnect-driven
		// cancellation stays the coordinator's decision.
		go s.dispatch(context.Background(), sess, c, &in)
	}

	s.coordinator.Detach(sess)
	c.close()
	logging.Info().Str("sessionID", sess.ID()).Msg("client disconnected")
}

func (s *Server) dispatch(ctx context.Context, sess *session.Session, c *wsConn, in *types.Inbound) {
	switch in.Type {
	case types.EnvelopeChat:
		s.coordinator.HandleChat(ctx, sess, c, in.Content, in.Context)
	case types.EnvelopeCommand:
		s.coordinator.HandleCommand(ctx, sess, c, in.Command)
	case types.EnvelopeFileOp:
		s.coordinator.HandleFileOp(ctx, sess, c, in.Operation, in.Path, in.Data)
	case types.EnvelopeGetTasks:
		s.coordinator.HandleGetTasks(sess, c)
	case types.EnvelopeSquadCommand:
		s.coordinator.HandleSquadCommand(ctx, sess, c, in)
	default:
		// Unknown types are not fatal to the connection.
		logging.Warn().Str("type", in.Type).Msg("unknown envelope type, ignoring")
	}
}
