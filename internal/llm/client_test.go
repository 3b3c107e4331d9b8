package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRelevanceScore(t *testing.T) {
	score, err := parseRelevanceScore(`{"score": 0.85, "category": "high"}`)
	require.NoError(t, err)
	assert.InDelta(t, 0.85, score.Score, 0.001)
	assert.Equal(t, "high", score.Category)
}

func TestParseRelevanceScoreExtractsEmbeddedJSON(t *testing.T) {
	content := "Sure, here is the rating:\n```json\n{\"score\": 0.4, \"category\": \"medium\"}\n```"
	score, err := parseRelevanceScore(content)
	require.NoError(t, err)
	assert.Equal(t, "medium", score.Category)
}

func TestParseRelevanceScoreRejectsMissingJSON(t *testing.T) {
	_, err := parseRelevanceScore("no json here")
	assert.Error(t, err)
}

func TestParseRelevanceScoreRejectsUnknownCategory(t *testing.T) {
	_, err := parseRelevanceScore(`{"score": 0.5, "category": "maybe"}`)
	assert.Error(t, err)
}
