package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scrapegoat/backend/internal/output"
	"github.com/scrapegoat/backend/internal/shared/validate"
	"github.com/scrapegoat/backend/internal/tree"
)

// Frame types of the live query protocol.
const (
	FrameLoad    = "load"
	FrameQuery   = "query"
	FramePing    = "ping"
	FrameReady   = "ready"
	FrameLoaded  = "loaded"
	FrameResults = "results"
	FramePong    = "pong"
	FrameError   = "error"
)

const (
	liveReadLimit    = 16 << 20
	liveWriteTimeout = 10 * time.Second
)

var errNoDocument = errors.New("no document loaded; send a load frame first")

// AllowOrigins restricts the browser origins that may open a live session.
// No origins, or "*" among them, allows every origin. Requests without an
// Origin header come from non-browser clients and are always accepted.
func (h *Handlers) AllowOrigins(origins []string) {
	h.origins = origins
}

func (h *Handlers) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// LiveRequest is a frame sent by a live query client. A load frame carries
// a Source, a query frame carries a Query.
type LiveRequest struct {
	Type   string  `json:"type"`
	Source *Source `json:"source,omitempty"`
	Query  string  `json:"query,omitempty"`
}

type liveFrame struct {
	Type string `json:"type"`
}

// LiveLoaded acknowledges a load frame.
type LiveLoaded struct {
	Type  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Nodes int    `json:"nodes"`
}

// LiveResults answers a query frame.
type LiveResults struct {
	Type string `json:"type"`
	QueryResponse
}

// LiveError reports a failed frame. The connection stays open.
type LiveError struct {
	Type string `json:"type"`
	ErrorResponse
}

// liveSession is one connection. It holds the last loaded tree so clients
// can run many queries against a document fetched once.
type liveSession struct {
	h    *Handlers
	conn *websocket.Conn
	root *tree.Node
}

// Live upgrades to a WebSocket and serves the live query protocol.
func (h *Handlers) Live(c *gin.Context) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveReadLimit)

	if h.metrics != nil {
		h.metrics.LiveSessions.Inc()
		defer h.metrics.LiveSessions.Dec()
	}

	s := &liveSession{h: h, conn: conn}
	if err := s.send(liveFrame{Type: FrameReady}); err != nil {
		return
	}

	ctx := c.Request.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}

		var req LiveRequest
		if err := sonic.Unmarshal(data, &req); err != nil {
			err = s.fail(fmt.Errorf("%w: %w", errRequestFormat, err))
		} else {
			err = s.handle(ctx, req)
		}
		if err != nil {
			h.logger.Debug("WebSocket write failed", zap.Error(err))
			return
		}
	}
}

func (s *liveSession) handle(ctx context.Context, req LiveRequest) error {
	switch req.Type {
	case FramePing:
		return s.send(liveFrame{Type: FramePong})

	case FrameLoad:
		if req.Source == nil {
			return s.fail(fmt.Errorf("%w: load frame without source", errRequestFormat))
		}
		if err := req.Source.validate(); err != nil {
			return s.fail(fmt.Errorf("%w: %w", errRequestFormat, err))
		}
		root, err := s.h.loadTree(ctx, *req.Source)
		if err != nil {
			return s.fail(err)
		}
		s.root = root

		nodes := 0
		for range root.Preorder() {
			nodes++
		}
		return s.send(LiveLoaded{Type: FrameLoaded, URL: req.Source.URL, Nodes: nodes})

	case FrameQuery:
		if s.root == nil {
			return s.fail(errNoDocument)
		}
		if err := validate.Query(req.Query); err != nil {
			return s.fail(fmt.Errorf("%w: %w", errRequestFormat, err))
		}
		insts, err := s.h.compile(req.Query)
		if err != nil {
			return s.fail(err)
		}

		// Annotations from the previous query must not leak into this one
		for n := range s.root.Preorder() {
			n.ClearAnnotation()
		}
		results, err := s.h.engine.Execute(ctx, s.root, insts)
		if err != nil {
			return s.fail(err)
		}
		rows := output.Rows(results)
		return s.send(LiveResults{Type: FrameResults, QueryResponse: QueryResponse{Count: len(rows), Results: rows}})

	default:
		return s.fail(fmt.Errorf("%w: unknown frame type %q", errRequestFormat, req.Type))
	}
}

func (s *liveSession) fail(err error) error {
	status, resp := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.h.logger.Error("Live query failed", zap.Error(err))
	}
	return s.send(LiveError{Type: FrameError, ErrorResponse: resp})
}

func (s *liveSession) send(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	if err := s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
