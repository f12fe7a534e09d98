package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/conciergehq/concierge/flow"
	"github.com/conciergehq/concierge/types"
)

// handleEvents streams a request's progress events over a websocket.
// The connection closes after the terminal event or when the client
// goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")

	if _, err := s.deps.Store.GetRequest(r.Context(), requestID); err != nil {
		writeError(w, err)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	sub, cancel := s.deps.Broker.Subscribe(requestID)
	defer cancel()

	// re-read after subscribing: a request that went terminal between the
	// first read and Subscribe would otherwise never emit its last event.
	// Terminal requests have no broker state left; replay the stage and
	// close.
	req, err := s.deps.Store.GetRequest(ctx, requestID)
	if err == nil && (req.Status == types.RequestStatusDone || req.Status == types.RequestStatusFailed) {
		stage := flow.StageDone
		if req.Status == types.RequestStatusFailed {
			stage = flow.StageFailed
		}
		s.writeEvent(ctx, conn, flow.Event{RequestID: requestID, Stage: stage, At: time.Now()})
		_ = conn.Close(websocket.StatusNormalClosure, "stream complete")
		return
	}

	for {
		ev, ok, err := sub.Receive(ctx)
		if err != nil || !ok {
			break
		}
		if !s.writeEvent(ctx, conn, ev) {
			return
		}
		if ev.Stage == flow.StageDone || ev.Stage == flow.StageFailed {
			break
		}
	}
	_ = conn.Close(websocket.StatusNormalClosure, "stream complete")
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, ev flow.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return true
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		s.logger.Debug("websocket write failed",
			zap.String("request_id", ev.RequestID), zap.Error(err))
		return false
	}
	return true
}
