package handlers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/gemfinder/backend/internal/query"
	"github.com/gemfinder/backend/internal/synthesis"
	"github.com/gemfinder/backend/pkg/logger"
)

// ProgressEvent is one streamed update during a research run.
type ProgressEvent struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// WebSocketHandler streams research progress over /ws/search. The
// client sends a single search request; the server pushes phase and
// query updates while the pipeline runs and the full payload at the end.
type WebSocketHandler struct {
	engine *query.Engine
	log    *zap.Logger
}

func NewWebSocketHandler(engine *query.Engine) *WebSocketHandler {
	return &WebSocketHandler{
		engine: engine,
		log:    logger.GetLogger().With(zap.String("handler", "websocket")),
	}
}

type wsRequest struct {
	Query           string  `json:"query"`
	MaxPrice        float64 `json:"max_price"`
	ValuePreference string  `json:"value_preference"`
}

func (h *WebSocketHandler) Handle(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var req wsRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.log.Debug("websocket read failed", zap.Error(err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		conn.WriteJSON(ProgressEvent{Event: "error", Message: "query is required"})
		return
	}

	// progress callbacks arrive from concurrent search workers
	var writeMu sync.Mutex
	send := func(event, message string, data map[string]interface{}) {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ProgressEvent{Event: event, Message: message, Data: data}); err != nil {
			h.log.Debug("websocket write failed", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// detect client disconnect while the pipeline runs
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	resp, err := h.engine.Search(ctx, query.Request{
		Query:           req.Query,
		MaxPrice:        req.MaxPrice,
		ValuePreference: req.ValuePreference,
	}, send)
	if err != nil {
		message := "internal error"
		if errors.Is(err, synthesis.ErrSynthesisFailed) {
			message = "could not build recommendations for this query, try rephrasing it"
		}
		send("error", message, nil)
		return
	}

	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(map[string]interface{}{
		"event":  "result",
		"result": resp,
	}); err != nil {
		h.log.Debug("websocket result write failed", zap.Error(err))
	}
}
