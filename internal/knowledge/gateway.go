package knowledge

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/internal/storage/sqlite"
	"github.com/pmprep/backend/pkg/logger"
)

// ErrEmptyCorpus means no qualifying summaries exist. Generation treats this
// as terminal: the user is told no knowledge is available, nothing is retried.
var ErrEmptyCorpus = errors.New("no knowledge excerpts available")

// relevance categories that qualify for the grounding corpus
var includedCategories = []string{"high", "medium"}

type Store interface {
	ListSummariesByRelevance(ctx context.Context, categories []string) ([]models.VideoSummary, error)
	GetVideo(ctx context.Context, id string) (*models.Video, error)
}

// Gateway assembles the grounding corpus from stored video summaries.
type Gateway struct {
	store       Store
	corpusLimit int
}

func NewGateway(store Store, corpusLimit int) *Gateway {
	if corpusLimit <= 0 {
		corpusLimit = 64
	}
	return &Gateway{
		store:       store,
		corpusLimit: corpusLimit,
	}
}

// FetchGroundingCorpus selects high- and medium-relevance summaries, joins
// each to its video, and drops entries whose video cannot be resolved.
// Entries are ordered high before medium, newest summary first, and capped at
// the configured limit so the corpus stays within one prompt context.
func (g *Gateway) FetchGroundingCorpus(ctx context.Context) ([]models.CorpusEntry, error) {
	summaries, err := g.store.ListSummariesByRelevance(ctx, includedCategories)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		ri, rj := categoryRank(summaries[i].RelevanceCategory), categoryRank(summaries[j].RelevanceCategory)
		if ri != rj {
			return ri < rj
		}
		return summaries[i].SummarizedAt.After(summaries[j].SummarizedAt)
	})

	corpus := make([]models.CorpusEntry, 0, len(summaries))
	for _, s := range summaries {
		if len(corpus) >= g.corpusLimit {
			break
		}

		video, err := g.store.GetVideo(ctx, s.VideoID)
		if err != nil {
			if errors.Is(err, sqlite.ErrVideoNotFound) {
				logger.Debug("Dropping summary with unresolved video",
					zap.String("summary_id", s.ID),
					zap.String("video_id", s.VideoID),
				)
				continue
			}
			return nil, err
		}

		corpus = append(corpus, models.CorpusEntry{
			SummaryText: s.SummaryText,
			VideoTitle:  video.Title,
			Channel:     video.ChannelName,
			VideoURL:    video.URL,
		})
	}

	if len(corpus) == 0 {
		return nil, ErrEmptyCorpus
	}

	logger.Debug("Grounding corpus assembled", zap.Int("entries", len(corpus)))
	return corpus, nil
}

func categoryRank(category string) int {
	switch category {
	case "high":
		return 0
	case "medium":
		return 1
	default:
		return 2
	}
}
