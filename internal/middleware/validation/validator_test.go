package validation

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(maxLen int) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(Config{MaxQuestionLength: maxLen}))
	app.Post("/api/v1/questions/ask", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postAsk(t *testing.T, app *fiber.App, body, contentType string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/v1/questions/ask", bytes.NewBufferString(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAcceptsValidQuestion(t *testing.T) {
	app := newApp(100)
	status := postAsk(t, app, `{"question":"What is RAG?"}`, "application/json")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRejectsUnsupportedContentType(t *testing.T) {
	app := newApp(100)
	status := postAsk(t, app, "question=hi", "application/x-www-form-urlencoded")
	assert.Equal(t, fiber.StatusUnsupportedMediaType, status)
}

func TestRejectsOversizedQuestion(t *testing.T) {
	app := newApp(10)
	long := strings.Repeat("x", 50)
	status := postAsk(t, app, `{"question":"`+long+`"}`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRejectsInvalidJSON(t *testing.T) {
	app := newApp(100)
	status := postAsk(t, app, `{"question":`, "application/json")
	assert.Equal(t, fiber.StatusBadRequest, status)
}
