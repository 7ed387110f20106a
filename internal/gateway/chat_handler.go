package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tencentyun-labs/cognigate/internal/apperr"
	"github.com/tencentyun-labs/cognigate/internal/logger"
	"github.com/tencentyun-labs/cognigate/internal/types"
)

// upgrader accepts the bidirectional streaming connection of §6. CheckOrigin
// is permissive because tenant isolation is enforced by Host-based tenant
// resolution and bearer-token authentication, not by browser origin.
var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// wsConn serializes writes to one websocket.Conn: gorilla/websocket forbids
// concurrent writers, and a query's frame pump runs in its own goroutine
// alongside the connection's read loop.
type wsConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *wsConn) writeFrame(f types.OutboundFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(f)
}

// ChatWebSocket upgrades to the streaming chat connection and loops reading
// InboundFrames, handing each "message" frame to the Cognitive Pipeline and
// pumping its OutboundFrame channel back to the client. Exactly one query
// runs at a time per connection; a "cancel" frame cancels whichever query is
// currently in flight, per §6/§4.9.
func (g *Gateway) ChatWebSocket(c *gin.Context) {
	principal := principalFrom(c)

	raw, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "gateway: websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	conn := &wsConn{ws: raw}
	defer raw.Close()

	sessionID := c.Query("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	var mu sync.Mutex
	var cancel context.CancelFunc
	defer func() {
		mu.Lock()
		if cancel != nil {
			cancel()
		}
		mu.Unlock()
	}()

	for {
		var in types.InboundFrame
		if err := raw.ReadJSON(&in); err != nil {
			return
		}

		switch in.Type {
		case types.InboundCancel:
			mu.Lock()
			if cancel != nil {
				cancel()
			}
			mu.Unlock()

		case types.InboundVoiceStart, types.InboundVoiceChunk, types.InboundVoiceStop:
			// Voice transcription is an external collaborator with no
			// concrete implementation shipped (§9 open question); the wire
			// shape is accepted so a future STTProvider can be wired in
			// without a protocol change.
			continue

		case types.InboundMessage:
			if len(in.Content) > g.cfg.Pipeline.MaxQueryChars {
				_ = conn.writeFrame(types.ErrorFrame("QUERY_TOO_LONG", "message exceeds the maximum query length"))
				continue
			}

			queryCtx, cancelFn := context.WithCancel(c.Request.Context())
			mu.Lock()
			if cancel != nil {
				cancel() // a new message implicitly supersedes any still-running query
			}
			cancel = cancelFn
			mu.Unlock()

			if len(in.Attachments) > 0 && g.attachments != nil {
				refs := g.attachments.Resolve(queryCtx, in.Attachments)
				_ = conn.writeFrame(types.AttachmentFrame(refs))
			}

			frames, err := g.cognitive.HandleQuery(queryCtx, principal, in.Content, sessionID, in.Department)
			if err != nil {
				_ = conn.writeFrame(types.ErrorFrame(string(apperr.KindOf(err)), "failed to start the query"))
				cancelFn()
				continue
			}
			go pumpFrames(conn, frames)
		}
	}
}

func pumpFrames(conn *wsConn, frames <-chan types.OutboundFrame) {
	for f := range frames {
		if conn.writeFrame(f) != nil {
			return
		}
	}
}
