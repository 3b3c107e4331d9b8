package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmprep/backend/internal/storage/models"
)

var referenceCorpus = []models.SourceVideo{
	{Title: "Scaling RAG", URL: "https://yt/1", Channel: "Jane Doe"},
	{Title: "How AI PMs Should Think About Evaluation Pipelines", URL: "https://yt/2", Channel: "Acme AI"},
	{Title: "Roadmaps", URL: "https://yt/3", Channel: "PM School"},
}

func TestResolveReferencesExactMatch(t *testing.T) {
	answer := "Insight.\n\nReferences:\n- \"Scaling RAG\" by Jane Doe"

	resolved := ResolveReferences(answer, referenceCorpus)

	assert.Equal(t, "Insight.", resolved.Body)
	require.Len(t, resolved.References, 1)
	assert.Equal(t, Reference{Title: "Scaling RAG", URL: "https://yt/1", Channel: "Jane Doe"}, resolved.References[0])
}

func TestResolveReferencesCaseAndPunctuationInsensitive(t *testing.T) {
	answer := "Body.\n\nREFERENCES\n1. scaling rag!"

	resolved := ResolveReferences(answer, referenceCorpus)

	require.Len(t, resolved.References, 1)
	assert.Equal(t, "https://yt/1", resolved.References[0].URL)
}

func TestResolveReferencesFuzzyPrefixMatch(t *testing.T) {
	// The cited title truncates the stored one past the prefix window.
	answer := "Body.\n\nReferences:\n- How AI PMs Should Think About Evals"

	resolved := ResolveReferences(answer, referenceCorpus)

	require.Len(t, resolved.References, 1)
	assert.Equal(t, "How AI PMs Should Think About Evaluation Pipelines", resolved.References[0].Title)
	assert.Equal(t, "https://yt/2", resolved.References[0].URL)
}

func TestResolveReferencesUnmatchedStaysUnlinked(t *testing.T) {
	answer := "Body.\n\nReferences:\n- \"Some Unrelated Talk\" by Nobody"

	resolved := ResolveReferences(answer, referenceCorpus)

	require.Len(t, resolved.References, 1)
	assert.Equal(t, Reference{Title: "Some Unrelated Talk", Channel: "Nobody"}, resolved.References[0])
	assert.Empty(t, resolved.References[0].URL)
}

func TestResolveReferencesNoMarker(t *testing.T) {
	answer := "Just an answer with no citation section.\n"

	resolved := ResolveReferences(answer, referenceCorpus)

	assert.Equal(t, "Just an answer with no citation section.", resolved.Body)
	assert.Empty(t, resolved.References)
}

func TestResolveReferencesMultipleLines(t *testing.T) {
	answer := "Body text.\n\nReferences:\n- \"Scaling RAG\" by Jane Doe\n- Roadmaps by PM School.\n\n"

	resolved := ResolveReferences(answer, referenceCorpus)

	assert.Equal(t, "Body text.", resolved.Body)
	require.Len(t, resolved.References, 2)
	assert.Equal(t, "https://yt/1", resolved.References[0].URL)
	assert.Equal(t, "https://yt/3", resolved.References[1].URL)
}

func TestResolveReferencesDeterministic(t *testing.T) {
	answer := "Body.\n\nReferences:\n- Scaling RAG"
	first := ResolveReferences(answer, referenceCorpus)
	second := ResolveReferences(answer, referenceCorpus)
	assert.Equal(t, first, second)
}

func TestParseReferenceLineStripsDecoration(t *testing.T) {
	title, channel := parseReferenceLine(`* "Scaling RAG" by Jane Doe.`)
	assert.Equal(t, "Scaling RAG", title)
	assert.Equal(t, "Jane Doe", channel)

	title, channel = parseReferenceLine("2) Roadmaps")
	assert.Equal(t, "Roadmaps", title)
	assert.Empty(t, channel)
}
