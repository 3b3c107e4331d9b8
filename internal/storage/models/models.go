package models

import "time"

// Question is a canonical interview question produced by the upstream merge
// process, or created synthetically when a user asks a free-form question.
type Question struct {
	ID             string
	Content        string
	EnglishContent string
	Frequency      int
	Category       string
	Categories     []string
	Companies      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SourceExcerpt is a raw citation of a question from an external source.
// SimilarityScore is 1.0 for an exact match to the parent question.
type SourceExcerpt struct {
	ID              string
	QuestionID      string
	Content         string
	Source          string
	SourceURL       string
	Company         string
	Category        string
	SimilarityScore float64
	ScrapedAt       time.Time
	PublishedAt     *time.Time
}

type Company struct {
	ID   string
	Name string
}

type Video struct {
	ID          string
	ExternalID  string
	Title       string
	ChannelName string
	URL         string
	Views       int64
	PublishedAt *time.Time
	IsRelevant  bool
}

type VideoTranscript struct {
	VideoID     string
	TokenCount  int
	ExtractedAt time.Time
}

// VideoSummary is a summarized video transcript. Immutable once produced;
// owned by the external summarization process.
type VideoSummary struct {
	ID                string
	VideoID           string
	SummaryText       string
	RelevanceScore    float64
	RelevanceCategory string
	ModelUsed         string
	SummarizedAt      time.Time
}

// SourceVideo is one element of the candidate set stored alongside a
// generated answer, used later for reference resolution.
type SourceVideo struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Channel string `json:"channel"`
}

// SampleAnswer is the generated answer for a question. At most one live row
// exists per question; a regeneration replaces the previous one.
type SampleAnswer struct {
	ID           string
	QuestionID   string
	AnswerText   string
	SourceVideos []SourceVideo
	ModelUsed    string
	GeneratedAt  time.Time
}

// CorpusEntry is one grounding-corpus element handed to the prompt assembler.
type CorpusEntry struct {
	SummaryText string
	VideoTitle  string
	Channel     string
	VideoURL    string
}

type QuestionFilter struct {
	Company  string
	Category string
	Limit    int
	Offset   int
}

type QuestionPage struct {
	Questions []Question
	Total     int
	Limit     int
	Offset    int
}

type QuestionDetail struct {
	Question
	Excerpts []SourceExcerpt
}

type Filters struct {
	Companies  []string
	Categories []string
}

type PendingVideo struct {
	Title      string `json:"title"`
	Views      int64  `json:"views"`
	ExternalID string `json:"video_id"`
}

type ChannelStats struct {
	Total             int            `json:"total"`
	Relevant          int            `json:"relevant"`
	HasTranscript     int            `json:"has_transcript"`
	HasSummary        int            `json:"has_summary"`
	HighRelevance     int            `json:"high_relevance"`
	MediumRelevance   int            `json:"medium_relevance"`
	LowRelevance      int            `json:"low_relevance"`
	EarliestPublished *time.Time     `json:"earliest_published"`
	LatestPublished   *time.Time     `json:"latest_published"`
	PendingTranscript []PendingVideo `json:"pending_transcript"`
}

type AdminOverview struct {
	TotalVideos        int `json:"total_videos"`
	RelevantVideos     int `json:"relevant_videos"`
	TotalTranscripts   int `json:"total_transcripts"`
	TotalSummaries     int `json:"total_summaries"`
	TotalAnswers       int `json:"total_answers"`
	PendingTranscripts int `json:"pending_transcripts"`
}

type AdminStats struct {
	Overview AdminOverview            `json:"overview"`
	Channels map[string]*ChannelStats `json:"channels"`
}
