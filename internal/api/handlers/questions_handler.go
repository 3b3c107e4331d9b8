package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/cache/redis"
	"github.com/pmprep/backend/internal/metrics"
	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/internal/storage/sqlite"
	"github.com/pmprep/backend/pkg/logger"
	"github.com/pmprep/backend/pkg/utils"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type QuestionsHandler struct {
	store *sqlite.Client
	cache *redis.Client
}

func NewQuestionsHandler(store *sqlite.Client, cache *redis.Client) *QuestionsHandler {
	return &QuestionsHandler{store: store, cache: cache}
}

// questionJSON mirrors the list-item shape clients already consume: company
// is the joined display string, companies the raw list.
type questionJSON struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	Frequency     int      `json:"frequency"`
	QuestionType  string   `json:"question_type"`
	QuestionTypes []string `json:"question_types"`
	Company       string   `json:"company"`
	Companies     []string `json:"companies"`
	UpdatedAt     string   `json:"updated_at"`
}

type excerptJSON struct {
	Content         string     `json:"content"`
	Source          string     `json:"source"`
	SourceURL       string     `json:"source_url,omitempty"`
	Company         string     `json:"company,omitempty"`
	SimilarityScore float64    `json:"similarity_score"`
	PublishedAt     *time.Time `json:"published_at,omitempty"`
}

func toQuestionJSON(q models.Question) questionJSON {
	types := q.Categories
	if len(types) == 0 && q.Category != "" {
		types = []string{q.Category}
	}
	if types == nil {
		types = []string{}
	}
	companies := q.Companies
	if companies == nil {
		companies = []string{}
	}
	return questionJSON{
		ID:            q.ID,
		Content:       q.Content,
		Frequency:     q.Frequency,
		QuestionType:  q.Category,
		QuestionTypes: types,
		Company:       strings.Join(companies, ", "),
		Companies:     companies,
		UpdatedAt:     q.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ListQuestions handles GET /api/v1/questions with optional company,
// category, limit, and offset query parameters.
func (h *QuestionsHandler) ListQuestions(c *fiber.Ctx) error {
	filter := models.QuestionFilter{
		Company:  c.Query("company"),
		Category: c.Query("category"),
		Limit:    c.QueryInt("limit", defaultPageLimit),
		Offset:   c.QueryInt("offset", 0),
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	cacheKey := "questions:list:" + utils.HashString(fmt.Sprintf("%s|%s|%d|%d",
		filter.Company, filter.Category, filter.Limit, filter.Offset))
	if payload, ok := h.cachedResponse(c, cacheKey, "questions_list"); ok {
		return h.sendCached(c, payload)
	}

	page, err := h.store.ListQuestions(c.Context(), filter)
	if err != nil {
		logger.Error("Failed to list questions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list questions",
		})
	}

	questions := make([]questionJSON, 0, len(page.Questions))
	for _, q := range page.Questions {
		questions = append(questions, toQuestionJSON(q))
	}

	body := fiber.Map{
		"questions": questions,
		"total":     page.Total,
		"limit":     page.Limit,
		"offset":    page.Offset,
	}
	return h.respondAndCache(c, cacheKey, body)
}

// GetQuestion handles GET /api/v1/questions/:id, returning the question with
// its raw source excerpts.
func (h *QuestionsHandler) GetQuestion(c *fiber.Ctx) error {
	id := c.Params("id")

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

	rawQuestions := make([]excerptJSON, 0, len(detail.Excerpts))
	for _, ex := range detail.Excerpts {
		rawQuestions = append(rawQuestions, excerptJSON{
			Content:         ex.Content,
			Source:          ex.Source,
			SourceURL:       ex.SourceURL,
			Company:         ex.Company,
			SimilarityScore: ex.SimilarityScore,
			PublishedAt:     ex.PublishedAt,
		})
	}

	question := toQuestionJSON(detail.Question)
	return c.JSON(fiber.Map{
		"id":             question.ID,
		"content":        question.Content,
		"frequency":      question.Frequency,
		"question_type":  question.QuestionType,
		"question_types": question.QuestionTypes,
		"company":        question.Company,
		"companies":      question.Companies,
		"updated_at":     question.UpdatedAt,
		"raw_questions":  rawQuestions,
	})
}

// ListFilters handles GET /api/v1/questions/filters: the distinct companies
// and categories available for list filtering.
func (h *QuestionsHandler) ListFilters(c *fiber.Ctx) error {
	cacheKey := "questions:filters"
	if payload, ok := h.cachedResponse(c, cacheKey, "filters"); ok {
		return h.sendCached(c, payload)
	}

	filters, err := h.store.ListFilters(c.Context())
	if err != nil {
		logger.Error("Failed to list filters", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list filters",
		})
	}

	body := fiber.Map{
		"companies":  filters.Companies,
		"categories": filters.Categories,
	}
	return h.respondAndCache(c, cacheKey, body)
}

func (h *QuestionsHandler) cachedResponse(c *fiber.Ctx, key, endpoint string) ([]byte, bool) {
	payload, ok, err := h.cache.GetResponse(c.Context(), key)
	if err != nil {
		logger.Warn("Response cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if ok {
		metrics.ResponseCacheHits.WithLabelValues(endpoint).Inc()
		return payload, true
	}
	metrics.ResponseCacheMisses.WithLabelValues(endpoint).Inc()
	return nil, false
}

func (h *QuestionsHandler) sendCached(c *fiber.Ctx, payload []byte) error {
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(payload)
}

func (h *QuestionsHandler) respondAndCache(c *fiber.Ctx, key string, body fiber.Map) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encode response",
		})
	}
	if err := h.cache.SetResponse(c.Context(), key, payload); err != nil {
		logger.Warn("Response cache write failed", zap.String("key", key), zap.Error(err))
	}
	return h.sendCached(c, payload)
}
