package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmprep/backend/internal/storage/models"
)

func TestBuildSystemPromptDeterministic(t *testing.T) {
	corpus := []models.CorpusEntry{
		{SummaryText: "Focus on user outcomes.", VideoTitle: "PM Metrics", Channel: "Lenny", VideoURL: "https://yt/1"},
		{SummaryText: "Ship small, learn fast.", VideoTitle: "Iteration", Channel: "Shreyas", VideoURL: "https://yt/2"},
	}

	first := BuildSystemPrompt(corpus)
	second := BuildSystemPrompt(corpus)
	assert.Equal(t, first, second)
}

func TestBuildSystemPromptContainsEveryEntry(t *testing.T) {
	corpus := []models.CorpusEntry{
		{SummaryText: "Focus on user outcomes.", VideoTitle: "PM Metrics", Channel: "Lenny", VideoURL: "https://yt/1"},
		{SummaryText: "Ship small, learn fast.", VideoTitle: "Iteration", Channel: "Shreyas", VideoURL: "https://yt/2"},
	}

	prompt := BuildSystemPrompt(corpus)

	require.True(t, strings.HasPrefix(prompt, "You are an expert AI product management interview coach"))
	assert.Contains(t, prompt, "[PM Metrics] by Lenny")
	assert.Contains(t, prompt, "URL: https://yt/1")
	assert.Contains(t, prompt, "Focus on user outcomes.")
	assert.Contains(t, prompt, "[Iteration] by Shreyas")
	assert.Contains(t, prompt, "Ship small, learn fast.")

	// Entries keep corpus order.
	assert.Less(t, strings.Index(prompt, "PM Metrics"), strings.Index(prompt, "Iteration"))
}

func TestBuildSystemPromptEmptyCorpusIsHeaderOnly(t *testing.T) {
	prompt := BuildSystemPrompt(nil)
	assert.True(t, strings.HasSuffix(prompt, "KNOWLEDGE BASE:\n"))
}

func TestBuildUserPrompt(t *testing.T) {
	prompt := BuildUserPrompt("How would you prioritize a roadmap?")
	assert.Equal(t, "Interview question: How would you prioritize a roadmap?\n\nGenerate a sample answer.", prompt)
}
