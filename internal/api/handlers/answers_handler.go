package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/cache/redis"
	"github.com/pmprep/backend/internal/generation"
	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/internal/storage/sqlite"
	"github.com/pmprep/backend/pkg/logger"
)

// askCategory is assigned to questions created through the free-form ask
// path, separating them from scraped interview questions in list filters.
const askCategory = "AI Domain Knowledge"

type AnswersHandler struct {
	store  *sqlite.Client
	cache  *redis.Client
	engine *generation.Engine
}

func NewAnswersHandler(store *sqlite.Client, cache *redis.Client, engine *generation.Engine) *AnswersHandler {
	return &AnswersHandler{store: store, cache: cache, engine: engine}
}

func answerJSON(a *models.SampleAnswer) fiber.Map {
	resolved := generation.ResolveReferences(a.AnswerText, a.SourceVideos)
	return fiber.Map{
		"question_id":  a.QuestionID,
		"answer":       resolved.Body,
		"references":   resolved.References,
		"model_used":   a.ModelUsed,
		"generated_at": a.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

// GetAnswer handles GET /api/v1/questions/:id/answer. References are resolved
// on every read so stored answer text stays raw.
func (h *AnswersHandler) GetAnswer(c *fiber.Ctx) error {
	id := c.Params("id")

	answer, err := h.store.GetAnswer(c.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrAnswerNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No answer generated yet",
			})
		}
		logger.Error("Failed to get answer", zap.String("question_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get answer",
		})
	}

	return c.JSON(answerJSON(answer))
}

// GenerateAnswer handles POST /api/v1/questions/:id/answer. A cached answer
// is returned as JSON unless force=true; otherwise the response is a
// server-sent event stream of tokens.
func (h *AnswersHandler) GenerateAnswer(c *fiber.Ctx) error {
	id := c.Params("id")
	force := c.QueryBool("force", false)

	detail, err := h.store.GetQuestion(c.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrQuestionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Question not found",
			})
		}
		logger.Error("Failed to get question", zap.String("question_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get question",
		})
	}

	answer, sub, err := h.engine.Generate(c.Context(), id, detail.Content, force)
	if err != nil {
		logger.Error("Failed to start generation", zap.String("question_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start generation",
		})
	}
	if answer != nil {
		return c.JSON(answerJSON(answer))
	}

	return streamSSE(c, sub)
}

// Ask handles POST /api/v1/questions/ask: creates a question from free-form
// text and streams a freshly generated answer. The created question is listed
// afterwards like any other, so cached question lists are invalidated.
func (h *AnswersHandler) Ask(c *fiber.Ctx) error {
	var req struct {
		Question string `json:"question"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid JSON body",
		})
	}

	text := strings.TrimSpace(req.Question)
	if text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": generation.ErrMalformedInput.Error(),
		})
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
	if err := h.store.CreateQuestion(c.Context(), question); err != nil {
		logger.Error("Failed to create question", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create question",
		})
	}

	if err := h.cache.InvalidateQuestions(c.Context()); err != nil {
		logger.Warn("Failed to invalidate question cache", zap.Error(err))
	}

	_, sub, err := h.engine.Generate(c.Context(), question.ID, text, true)
	if err != nil {
		logger.Error("Failed to start generation", zap.String("question_id", question.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to start generation",
		})
	}

	return streamSSE(c, sub)
}
