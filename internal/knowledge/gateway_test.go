package knowledge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/internal/storage/sqlite"
)

type fakeStore struct {
	summaries []models.VideoSummary
	videos    map[string]*models.Video
	listErr   error
}

func (s *fakeStore) ListSummariesByRelevance(ctx context.Context, categories []string) ([]models.VideoSummary, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	filtered := []models.VideoSummary{}
	for _, summary := range s.summaries {
		for _, cat := range categories {
			if summary.RelevanceCategory == cat {
				filtered = append(filtered, summary)
				break
			}
		}
	}
	return filtered, nil
}

func (s *fakeStore) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	if v, ok := s.videos[id]; ok {
		return v, nil
	}
	return nil, sqlite.ErrVideoNotFound
}

func summaryAt(id, videoID, category string, age time.Duration) models.VideoSummary {
	return models.VideoSummary{
		ID:                id,
		VideoID:           videoID,
		SummaryText:       "summary " + id,
		RelevanceCategory: category,
		SummarizedAt:      time.Now().Add(-age),
	}
}

func TestFetchGroundingCorpusOrdersHighBeforeMedium(t *testing.T) {
	store := &fakeStore{
		summaries: []models.VideoSummary{
			summaryAt("s1", "v1", "medium", time.Hour),
			summaryAt("s2", "v2", "high", 2*time.Hour),
			summaryAt("s3", "v3", "high", time.Minute),
			summaryAt("s4", "v4", "low", time.Minute),
		},
		videos: map[string]*models.Video{
			"v1": {ID: "v1", Title: "Medium Talk", ChannelName: "A", URL: "https://yt/1"},
			"v2": {ID: "v2", Title: "Old High Talk", ChannelName: "B", URL: "https://yt/2"},
			"v3": {ID: "v3", Title: "New High Talk", ChannelName: "C", URL: "https://yt/3"},
			"v4": {ID: "v4", Title: "Low Talk", ChannelName: "D", URL: "https://yt/4"},
		},
	}
	gw := NewGateway(store, 10)

	corpus, err := gw.FetchGroundingCorpus(context.Background())
	require.NoError(t, err)

	require.Len(t, corpus, 3)
	assert.Equal(t, "New High Talk", corpus[0].VideoTitle)
	assert.Equal(t, "Old High Talk", corpus[1].VideoTitle)
	assert.Equal(t, "Medium Talk", corpus[2].VideoTitle)
}

func TestFetchGroundingCorpusCapsAtLimit(t *testing.T) {
	store := &fakeStore{videos: map[string]*models.Video{}}
	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		store.summaries = append(store.summaries, summaryAt("s"+id, "v"+id, "high", time.Duration(i)*time.Minute))
		store.videos["v"+id] = &models.Video{ID: "v" + id, Title: "T" + id}
	}
	gw := NewGateway(store, 2)

	corpus, err := gw.FetchGroundingCorpus(context.Background())
	require.NoError(t, err)
	assert.Len(t, corpus, 2)
}

func TestFetchGroundingCorpusDropsUnresolvedVideos(t *testing.T) {
	store := &fakeStore{
		summaries: []models.VideoSummary{
			summaryAt("s1", "v-missing", "high", time.Minute),
			summaryAt("s2", "v2", "high", time.Hour),
		},
		videos: map[string]*models.Video{
			"v2": {ID: "v2", Title: "Surviving Talk", URL: "https://yt/2"},
		},
	}
	gw := NewGateway(store, 10)

	corpus, err := gw.FetchGroundingCorpus(context.Background())
	require.NoError(t, err)
	require.Len(t, corpus, 1)
	assert.Equal(t, "Surviving Talk", corpus[0].VideoTitle)
}

func TestFetchGroundingCorpusEmptyIsTerminal(t *testing.T) {
	store := &fakeStore{videos: map[string]*models.Video{}}
	gw := NewGateway(store, 10)

	_, err := gw.FetchGroundingCorpus(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyCorpus))
}

func TestFetchGroundingCorpusExcludesLowRelevance(t *testing.T) {
	store := &fakeStore{
		summaries: []models.VideoSummary{
			summaryAt("s1", "v1", "low", time.Minute),
			summaryAt("s2", "v2", "none", time.Minute),
		},
		videos: map[string]*models.Video{
			"v1": {ID: "v1", Title: "Low"},
			"v2": {ID: "v2", Title: "None"},
		},
	}
	gw := NewGateway(store, 10)

	_, err := gw.FetchGroundingCorpus(context.Background())
	assert.True(t, errors.Is(err, ErrEmptyCorpus))
}

func TestFetchGroundingCorpusPropagatesStoreError(t *testing.T) {
	storeErr := errors.New("disk on fire")
	gw := NewGateway(&fakeStore{listErr: storeErr}, 10)

	_, err := gw.FetchGroundingCorpus(context.Background())
	assert.True(t, errors.Is(err, storeErr))
}
