package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/cache/redis"
	"github.com/pmprep/backend/internal/generation"
	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/internal/storage/sqlite"
	"github.com/pmprep/backend/pkg/logger"
)

// wsRequest is one client message. type is "generate" (stream an answer for
// an existing question) or "ask" (create a question from free text first).
type wsRequest struct {
	Type       string `json:"type"`
	QuestionID string `json:"question_id,omitempty"`
	Question   string `json:"question,omitempty"`
	Force      bool   `json:"force,omitempty"`
}

type wsFrame struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
	Error      string `json:"error,omitempty"`
}

type WebSocketHandler struct {
	store  *sqlite.Client
	cache  *redis.Client
	engine *generation.Engine
}

func NewWebSocketHandler(store *sqlite.Client, cache *redis.Client, engine *generation.Engine) *WebSocketHandler {
	return &WebSocketHandler{store: store, cache: cache, engine: engine}
}

// UpgradeMiddleware rejects non-websocket requests on the /ws route.
func (h *WebSocketHandler) UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

// Handler serves one connection. Requests are handled sequentially; a new
// request on the same connection waits for the previous stream to finish.
func (h *WebSocketHandler) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				logger.Debug("WebSocket closed", zap.Error(err))
				return
			}

			switch req.Type {
			case "generate":
				h.handleGenerate(conn, req)
			case "ask":
				h.handleAsk(conn, req)
			default:
				if err := conn.WriteJSON(wsFrame{Type: "error", Error: "Unknown request type"}); err != nil {
					return
				}
			}
		}
	})
}

func (h *WebSocketHandler) handleGenerate(conn *websocket.Conn, req wsRequest) {
	ctx := context.Background()

	detail, err := h.store.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		msg := "Failed to get question"
		if errors.Is(err, sqlite.ErrQuestionNotFound) {
			msg = "Question not found"
		}
		conn.WriteJSON(wsFrame{Type: "error", Error: msg})
		return
	}

	answer, sub, err := h.engine.Generate(ctx, req.QuestionID, detail.Content, req.Force)
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: "Failed to start generation"})
		return
	}
	if answer != nil {
		// Cached answer: replay as a single-token stream so clients handle
		// both paths uniformly.
		if err := conn.WriteJSON(wsFrame{Type: "token", Token: answer.AnswerText}); err != nil {
			return
		}
		conn.WriteJSON(wsFrame{Type: "done", QuestionID: answer.QuestionID})
		return
	}

	h.relay(conn, sub)
}

func (h *WebSocketHandler) handleAsk(conn *websocket.Conn, req wsRequest) {
	ctx := context.Background()

	text := strings.TrimSpace(req.Question)
	if text == "" {
		conn.WriteJSON(wsFrame{Type: "error", Error: generation.ErrMalformedInput.Error()})
		return
	}

	now := time.Now().UTC()
	question := &models.Question{
		ID:         uuid.New().String(),
		Content:    text,
		Frequency:  1,
		Category:   askCategory,
		Categories: []string{askCategory},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.store.CreateQuestion(ctx, question); err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: "Failed to create question"})
		return
	}

	if err := h.cache.InvalidateQuestions(ctx); err != nil {
		logger.Warn("Failed to invalidate question cache", zap.Error(err))
	}

	_, sub, err := h.engine.Generate(ctx, question.ID, text, true)
	if err != nil {
		conn.WriteJSON(wsFrame{Type: "error", Error: "Failed to start generation"})
		return
	}

	h.relay(conn, sub)
}

// relay forwards stream events until the terminal frame. A write failure
// means the client is gone and the subscription is canceled.
func (h *WebSocketHandler) relay(conn *websocket.Conn, sub *generation.Subscription) {
	defer sub.Cancel()

	for ev := range sub.Events() {
		var frame wsFrame
		switch ev.Type {
		case generation.EventToken:
			frame = wsFrame{Type: "token", Token: ev.Token}
		case generation.EventDone:
			frame = wsFrame{Type: "done", QuestionID: ev.QuestionID}
		default:
			frame = wsFrame{Type: "error", Error: userFacingError(ev.Err)}
		}
		if err := conn.WriteJSON(frame); err != nil {
			logger.Debug("WebSocket client disconnected mid-stream", zap.Error(err))
			return
		}
	}
}
