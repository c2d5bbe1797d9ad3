package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"foxylend/core/events"
	"foxylend/core/types"
)

const wsWriteTimeout = 10 * time.Second

// streamEvents pushes committed ledger events to a websocket client. The
// optional "type" query parameter keeps only events whose type starts with it.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "event stream disabled", Code: "unavailable"})
		return
	}
	filter := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.stream.Subscribe()
	defer cancel()
	ctx := conn.CloseRead(r.Context())
	if err := writeEvents(ctx, conn, updates, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.Warn("event stream failed", slog.String("error", err.Error()))
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func writeEvents(ctx context.Context, conn *websocket.Conn, updates <-chan events.Event, filter string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			payload := eventPayload(evt)
			if payload == nil || (filter != "" && !strings.HasPrefix(payload.Type, filter)) {
				continue
			}
			if err := writeEvent(ctx, conn, payload); err != nil {
				return err
			}
		}
	}
}

func eventPayload(evt events.Event) *types.Event {
	if p, ok := evt.(events.Payload); ok {
		return p.Event().Clone()
	}
	if evt == nil {
		return nil
	}
	return types.NewEvent(evt.EventType())
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
