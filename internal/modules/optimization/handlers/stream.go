package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/allocator/internal/modules/optimization"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	streamReadTimeout  = 30 * time.Second
	streamWriteTimeout = 10 * time.Second
)

// StreamMessage is one frame sent over the frontier stream.
type StreamMessage struct {
	Type     string                                `json:"type"`
	Point    *optimization.FrontierPoint           `json:"point,omitempty"`
	Frontier *optimization.EfficientFrontierOutput `json:"frontier,omitempty"`
	Error    *ErrorResponse                        `json:"error,omitempty"`
}

// Stream frame types.
const (
	StreamPoint = "point"
	StreamDone  = "done"
	StreamError = "error"
)

// HandleFrontierStream handles GET /api/optimizer/frontier/stream.
//
// The client sends one FrontierRequest as a JSON text frame. Each solved point is
// pushed as it completes, followed by a final "done" frame carrying the ordered
// frontier, or an "error" frame.
func (h *Handler) HandleFrontierStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to accept frontier stream")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected exit")
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()

	var req FrontierRequest
	readCtx, cancel := context.WithTimeout(ctx, streamReadTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read frontier stream request")
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	if err := validate.StructCtx(ctx, req); err != nil {
		h.send(ctx, conn, StreamMessage{Type: StreamError, Error: &ErrorResponse{
			Error:   "validation_error",
			Message: "request failed validation",
			Fields:  fieldErrors(err),
		}})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	data, cfg, err := h.prepare(ctx, req.OptimizeRequest)
	if err != nil {
		h.sendError(ctx, conn, err)
		return
	}

	// OnPoint calls are serialized by the optimizer.
	onPoint := func(p optimization.FrontierPoint) {
		point := p
		h.send(ctx, conn, StreamMessage{Type: StreamPoint, Point: &point})
	}

	out, err := h.optimizer.EfficientFrontier(ctx, data, cfg, h.frontierOptions(req, onPoint))
	if err != nil {
		h.sendError(ctx, conn, err)
		return
	}

	h.send(ctx, conn, StreamMessage{Type: StreamDone, Frontier: out})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, err error) {
	kind := optimization.ErrorKind(err)
	h.log.Warn().Err(err).Str("kind", kind).Msg("Frontier stream failed")
	h.send(ctx, conn, StreamMessage{Type: StreamError, Error: &ErrorResponse{Error: kind, Message: err.Error()}})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg StreamMessage) {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, msg); err != nil {
		h.log.Debug().Err(err).Str("type", msg.Type).Msg("Failed to write stream frame")
	}
}
