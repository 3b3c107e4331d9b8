package handlers

import (
	"bufio"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/generation"
	"github.com/pmprep/backend/internal/knowledge"
	"github.com/pmprep/backend/pkg/logger"
)

// sseFrame is one server-sent event payload. A stream is any number of token
// frames followed by exactly one done or error frame.
type sseFrame struct {
	Token      string `json:"token,omitempty"`
	Done       bool   `json:"done,omitempty"`
	QuestionID string `json:"questionId,omitempty"`
	Error      string `json:"error,omitempty"`
}

// streamSSE relays a generation subscription to the client as server-sent
// events. A write failure means the client is gone; the subscription is
// canceled so an abandoned run stops consuming the model stream.
func streamSSE(c *fiber.Ctx, sub *generation.Subscription) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Cancel()

		for ev := range sub.Events() {
			frame := frameForEvent(ev)
			if err := writeFrame(w, frame); err != nil {
				logger.Debug("SSE client disconnected", zap.Error(err))
				return
			}
		}
	}))

	return nil
}

func frameForEvent(ev generation.Event) sseFrame {
	switch ev.Type {
	case generation.EventToken:
		return sseFrame{Token: ev.Token}
	case generation.EventDone:
		return sseFrame{Done: true, QuestionID: ev.QuestionID}
	default:
		return sseFrame{Error: userFacingError(ev.Err)}
	}
}

func writeFrame(w *bufio.Writer, frame sseFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if _, err := w.WriteString("\n\n"); err != nil {
		return err
	}
	return w.Flush()
}

// userFacingError maps internal failures to messages safe to show users.
func userFacingError(err error) string {
	if errors.Is(err, knowledge.ErrEmptyCorpus) {
		return "No video summaries available. Run the summarizer first."
	}
	return "Answer generation failed. Please try again."
}
