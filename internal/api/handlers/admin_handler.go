package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/cache/redis"
	"github.com/pmprep/backend/internal/llm"
	"github.com/pmprep/backend/internal/metrics"
	"github.com/pmprep/backend/internal/storage/sqlite"
	"github.com/pmprep/backend/pkg/logger"
)

type AdminHandler struct {
	store     *sqlite.Client
	cache     *redis.Client
	llmClient *llm.Client
}

func NewAdminHandler(store *sqlite.Client, cache *redis.Client, llmClient *llm.Client) *AdminHandler {
	return &AdminHandler{store: store, cache: cache, llmClient: llmClient}
}

// Stats handles GET /api/v1/admin/stats: pipeline coverage per channel plus
// overall totals.
func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	cacheKey := "admin:stats"
	payload, ok, err := h.cache.GetResponse(c.Context(), cacheKey)
	if err != nil {
		logger.Warn("Response cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}
	if ok {
		metrics.ResponseCacheHits.WithLabelValues("admin_stats").Inc()
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(payload)
	}
	metrics.ResponseCacheMisses.WithLabelValues("admin_stats").Inc()

	stats, err := h.store.AdminStats(c.Context())
	if err != nil {
		logger.Error("Failed to compute admin stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	body, err := json.Marshal(stats)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encode stats",
		})
	}
	if err := h.cache.SetResponse(c.Context(), cacheKey, body); err != nil {
		logger.Warn("Response cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}

// RescoreSummary handles POST /api/v1/admin/summaries/:id/rescore: asks the
// model to re-rate a summary and persists the new relevance.
func (h *AdminHandler) RescoreSummary(c *fiber.Ctx) error {
	id := c.Params("id")

	summary, err := h.store.GetSummary(c.Context(), id)
	if err != nil {
		if errors.Is(err, sqlite.ErrSummaryNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Summary not found",
			})
		}
		logger.Error("Failed to get summary", zap.String("summary_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get summary",
		})
	}

	score, err := h.llmClient.ScoreRelevance(c.Context(), summary.SummaryText)
	if err != nil {
		logger.Error("Failed to rescore summary", zap.String("summary_id", id), zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "Relevance scoring failed",
		})
	}

	if err := h.store.UpdateSummaryRelevance(c.Context(), id, score.Score, score.Category); err != nil {
		logger.Error("Failed to persist relevance", zap.String("summary_id", id), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update summary",
		})
	}

	logger.Info("Summary rescored",
		zap.String("summary_id", id),
		zap.Float64("score", score.Score),
		zap.String("category", score.Category),
	)

	return c.JSON(fiber.Map{
		"summary_id": id,
		"score":      score.Score,
		"category":   score.Category,
	})
}
