package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/pkg/logger"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrAnswerNotFound   = errors.New("answer not found")
	ErrVideoNotFound    = errors.New("video not found")
	ErrSummaryNotFound  = errors.New("summary not found")
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		english_content TEXT,
		category TEXT,
		frequency INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_questions_category ON questions(category);
	CREATE INDEX IF NOT EXISTS idx_questions_frequency ON questions(frequency);

	CREATE TABLE IF NOT EXISTS question_categories (
		question_id TEXT NOT NULL,
		category TEXT NOT NULL,
		PRIMARY KEY (question_id, category),
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS source_excerpts (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		source_url TEXT,
		company TEXT,
		category TEXT,
		similarity_score REAL NOT NULL DEFAULT 1.0,
		scraped_at INTEGER NOT NULL,
		published_at INTEGER,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_excerpts_question ON source_excerpts(question_id);

	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS question_companies (
		question_id TEXT NOT NULL,
		company_id TEXT NOT NULL,
		PRIMARY KEY (question_id, company_id),
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE,
		FOREIGN KEY (company_id) REFERENCES companies(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		title TEXT NOT NULL,
		channel_name TEXT,
		url TEXT,
		views INTEGER NOT NULL DEFAULT 0,
		published_at INTEGER,
		is_relevant INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_videos_channel ON videos(channel_name);

	CREATE TABLE IF NOT EXISTS video_transcripts (
		video_id TEXT PRIMARY KEY,
		token_count INTEGER NOT NULL DEFAULT 0,
		extracted_at INTEGER NOT NULL,
		FOREIGN KEY (video_id) REFERENCES videos(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS video_summaries (
		id TEXT PRIMARY KEY,
		video_id TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		relevance_score REAL,
		relevance_category TEXT,
		model_used TEXT,
		summarized_at INTEGER NOT NULL,
		FOREIGN KEY (video_id) REFERENCES videos(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_relevance ON video_summaries(relevance_category);

	CREATE TABLE IF NOT EXISTS sample_answers (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL UNIQUE,
		answer_text TEXT NOT NULL,
		source_videos TEXT NOT NULL,
		model_used TEXT,
		generated_at INTEGER NOT NULL,
		FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
	);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) CreateQuestion(ctx context.Context, q *models.Question) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO questions (id, content, english_content, category, frequency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		q.ID,
		q.Content,
		q.EnglishContent,
		q.Category,
		q.Frequency,
		q.CreatedAt.Unix(),
		q.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert question: %w", err)
	}

	for _, cat := range q.Categories {
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO question_categories (question_id, category) VALUES (?, ?)`,
			q.ID, cat,
		)
		if err != nil {
			return fmt.Errorf("failed to insert question category: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit question: %w", err)
	}

	logger.Debug("Question created", zap.String("question_id", q.ID))
	return nil
}

func (c *Client) ListQuestions(ctx context.Context, filter models.QuestionFilter) (*models.QuestionPage, error) {
	where := []string{}
	args := []interface{}{}

	if filter.Category != "" {
		where = append(where, `(q.category = ? OR EXISTS (
			SELECT 1 FROM question_categories qc WHERE qc.question_id = q.id AND qc.category = ?))`)
		args = append(args, filter.Category, filter.Category)
	}
	if filter.Company != "" {
		where = append(where, `EXISTS (
			SELECT 1 FROM question_companies l
			JOIN companies co ON co.id = l.company_id
			WHERE l.question_id = q.id AND co.name = ?)`)
		args = append(args, filter.Company)
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM questions q"+clause, args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count questions: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT q.id, q.content, q.english_content, q.category, q.frequency, q.created_at, q.updated_at
		FROM questions q` + clause + `
		ORDER BY q.frequency DESC, q.updated_at DESC
		LIMIT ? OFFSET ?`
	rows, err := c.db.QueryContext(ctx, query, append(args, limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	defer rows.Close()

	questions := []models.Question{}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate questions: %w", err)
	}

	for i := range questions {
		cats, err := c.questionCategories(ctx, questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].Categories = cats

		companies, err := c.questionCompanies(ctx, questions[i].ID)
		if err != nil {
			return nil, err
		}
		questions[i].Companies = companies
	}

	return &models.QuestionPage{
		Questions: questions,
		Total:     total,
		Limit:     limit,
		Offset:    filter.Offset,
	}, nil
}

func (c *Client) GetQuestion(ctx context.Context, id string) (*models.QuestionDetail, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, content, english_content, category, frequency, created_at, updated_at
		FROM questions WHERE id = ?`, id)

	q, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, err
	}

	cats, err := c.questionCategories(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Categories = cats

	companies, err := c.questionCompanies(ctx, id)
	if err != nil {
		return nil, err
	}
	q.Companies = companies

	detail := &models.QuestionDetail{Question: *q}

	exRows, err := c.db.QueryContext(ctx, `
		SELECT id, question_id, content, source, source_url, company, category,
		       similarity_score, scraped_at, published_at
		FROM source_excerpts WHERE question_id = ?
		ORDER BY similarity_score DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source excerpts: %w", err)
	}
	defer exRows.Close()
	for exRows.Next() {
		var ex models.SourceExcerpt
		var sourceURL, company, category sql.NullString
		var scrapedAt int64
		var publishedAt sql.NullInt64
		err := exRows.Scan(&ex.ID, &ex.QuestionID, &ex.Content, &ex.Source, &sourceURL,
			&company, &category, &ex.SimilarityScore, &scrapedAt, &publishedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source excerpt: %w", err)
		}
		ex.SourceURL = sourceURL.String
		ex.Company = company.String
		ex.Category = category.String
		ex.ScrapedAt = time.Unix(scrapedAt, 0)
		if publishedAt.Valid {
			t := time.Unix(publishedAt.Int64, 0)
			ex.PublishedAt = &t
		}
		detail.Excerpts = append(detail.Excerpts, ex)
	}
	if err := exRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate source excerpts: %w", err)
	}

	return detail, nil
}

func (c *Client) ListFilters(ctx context.Context) (*models.Filters, error) {
	filters := &models.Filters{Companies: []string{}, Categories: []string{}}

	rows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT co.name FROM companies co
		JOIN question_companies l ON l.company_id = co.id
		ORDER BY co.name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan company name: %w", err)
		}
		filters.Companies = append(filters.Companies, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}

	catRows, err := c.db.QueryContext(ctx, `
		SELECT DISTINCT category FROM (
			SELECT category FROM questions WHERE category IS NOT NULL AND category != ''
			UNION
			SELECT category FROM question_categories
		) ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer catRows.Close()
	for catRows.Next() {
		var cat string
		if err := catRows.Scan(&cat); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		filters.Categories = append(filters.Categories, cat)
	}
	if err := catRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	return filters, nil
}

func (c *Client) ListSummariesByRelevance(ctx context.Context, categories []string) ([]models.VideoSummary, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(categories)), ",")
	args := make([]interface{}, len(categories))
	for i, cat := range categories {
		args[i] = cat
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, video_id, summary_text, relevance_score, relevance_category, model_used, summarized_at
		FROM video_summaries
		WHERE relevance_category IN (`+placeholders+`)
		ORDER BY summarized_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	summaries := []models.VideoSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summaries: %w", err)
	}

	return summaries, nil
}

func (c *Client) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, external_id, title, channel_name, url, views, published_at, is_relevant
		FROM videos WHERE id = ?`, id)

	v, err := scanVideo(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}
	return v, nil
}

func (c *Client) GetAnswer(ctx context.Context, questionID string) (*models.SampleAnswer, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, question_id, answer_text, source_videos, model_used, generated_at
		FROM sample_answers WHERE question_id = ?`, questionID)

	var a models.SampleAnswer
	var sourceVideos string
	var modelUsed sql.NullString
	var generatedAt int64

	err := row.Scan(&a.ID, &a.QuestionID, &a.AnswerText, &sourceVideos, &modelUsed, &generatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("failed to get answer: %w", err)
	}

	if err := json.Unmarshal([]byte(sourceVideos), &a.SourceVideos); err != nil {
		return nil, fmt.Errorf("failed to decode source videos: %w", err)
	}
	a.ModelUsed = modelUsed.String
	a.GeneratedAt = time.Unix(generatedAt, 0)

	return &a, nil
}

// UpsertAnswer replaces any previous answer for the same question. The
// uniqueness constraint on question_id is the storage-layer backstop for the
// one-answer-per-question invariant.
func (c *Client) UpsertAnswer(ctx context.Context, a *models.SampleAnswer) error {
	sourceVideos, err := json.Marshal(a.SourceVideos)
	if err != nil {
		return fmt.Errorf("failed to encode source videos: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO sample_answers (id, question_id, answer_text, source_videos, model_used, generated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(question_id) DO UPDATE SET
			answer_text = excluded.answer_text,
			source_videos = excluded.source_videos,
			model_used = excluded.model_used,
			generated_at = excluded.generated_at`,
		a.ID,
		a.QuestionID,
		a.AnswerText,
		string(sourceVideos),
		a.ModelUsed,
		a.GeneratedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}

	logger.Debug("Answer upserted", zap.String("question_id", a.QuestionID))
	return nil
}

func (c *Client) InsertVideo(ctx context.Context, v *models.Video) error {
	var publishedAt interface{}
	if v.PublishedAt != nil {
		publishedAt = v.PublishedAt.Unix()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO videos (id, external_id, title, channel_name, url, views, published_at, is_relevant)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			channel_name = excluded.channel_name,
			url = excluded.url,
			views = excluded.views,
			published_at = excluded.published_at,
			is_relevant = excluded.is_relevant`,
		v.ID, v.ExternalID, v.Title, v.ChannelName, v.URL, v.Views, publishedAt, v.IsRelevant,
	)
	if err != nil {
		return fmt.Errorf("failed to insert video: %w", err)
	}
	return nil
}

func (c *Client) InsertTranscript(ctx context.Context, t *models.VideoTranscript) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO video_transcripts (video_id, token_count, extracted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			token_count = excluded.token_count,
			extracted_at = excluded.extracted_at`,
		t.VideoID, t.TokenCount, t.ExtractedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transcript: %w", err)
	}
	return nil
}

func (c *Client) InsertSummary(ctx context.Context, s *models.VideoSummary) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO video_summaries (id, video_id, summary_text, relevance_score, relevance_category, model_used, summarized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.VideoID, s.SummaryText, s.RelevanceScore, s.RelevanceCategory, s.ModelUsed, s.SummarizedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert summary: %w", err)
	}
	return nil
}

func (c *Client) UpdateSummaryRelevance(ctx context.Context, summaryID string, score float64, category string) error {
	res, err := c.db.ExecContext(ctx, `
		UPDATE video_summaries SET relevance_score = ?, relevance_category = ? WHERE id = ?`,
		score, category, summaryID,
	)
	if err != nil {
		return fmt.Errorf("failed to update summary relevance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("summary %s not found", summaryID)
	}
	return nil
}

func (c *Client) InsertCompany(ctx context.Context, co *models.Company) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO companies (id, name) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING`,
		co.ID, co.Name,
	)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	return nil
}

func (c *Client) LinkCompany(ctx context.Context, questionID, companyID string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO question_companies (question_id, company_id) VALUES (?, ?)`,
		questionID, companyID,
	)
	if err != nil {
		return fmt.Errorf("failed to link company: %w", err)
	}
	return nil
}

func (c *Client) InsertExcerpt(ctx context.Context, ex *models.SourceExcerpt) error {
	var publishedAt interface{}
	if ex.PublishedAt != nil {
		publishedAt = ex.PublishedAt.Unix()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO source_excerpts (id, question_id, content, source, source_url, company, category, similarity_score, scraped_at, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.QuestionID, ex.Content, ex.Source, ex.SourceURL, ex.Company, ex.Category,
		ex.SimilarityScore, ex.ScrapedAt.Unix(), publishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert source excerpt: %w", err)
	}
	return nil
}

// AdminStats aggregates the knowledge base per channel. Pending transcripts
// are relevant videos without one, capped at the five most viewed per channel.
func (c *Client) AdminStats(ctx context.Context) (*models.AdminStats, error) {
	videos, err := c.listVideos(ctx)
	if err != nil {
		return nil, err
	}

	transcriptSet, err := c.transcriptVideoIDs(ctx)
	if err != nil {
		return nil, err
	}

	summaryByVideo, totalSummaries, err := c.summaryCategories(ctx)
	if err != nil {
		return nil, err
	}

	var totalAnswers int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sample_answers").Scan(&totalAnswers); err != nil {
		return nil, fmt.Errorf("failed to count answers: %w", err)
	}

	stats := &models.AdminStats{Channels: map[string]*models.ChannelStats{}}
	totalRelevant := 0

	for _, v := range videos {
		ch := v.ChannelName
		if ch == "" {
			ch = "Unknown"
		}
		s, ok := stats.Channels[ch]
		if !ok {
			s = &models.ChannelStats{PendingTranscript: []models.PendingVideo{}}
			stats.Channels[ch] = s
		}

		s.Total++
		if v.IsRelevant {
			s.Relevant++
			totalRelevant++
		}

		hasTranscript := transcriptSet[v.ID]
		if hasTranscript {
			s.HasTranscript++
		}

		if cat, ok := summaryByVideo[v.ID]; ok {
			s.HasSummary++
			switch cat {
			case "high":
				s.HighRelevance++
			case "medium":
				s.MediumRelevance++
			case "low":
				s.LowRelevance++
			}
		}

		if v.PublishedAt != nil {
			if s.EarliestPublished == nil || v.PublishedAt.Before(*s.EarliestPublished) {
				s.EarliestPublished = v.PublishedAt
			}
			if s.LatestPublished == nil || v.PublishedAt.After(*s.LatestPublished) {
				s.LatestPublished = v.PublishedAt
			}
		}

		if !hasTranscript && v.IsRelevant {
			s.PendingTranscript = append(s.PendingTranscript, models.PendingVideo{
				Title:      v.Title,
				Views:      v.Views,
				ExternalID: v.ExternalID,
			})
		}
	}

	for _, s := range stats.Channels {
		sort.Slice(s.PendingTranscript, func(i, j int) bool {
			return s.PendingTranscript[i].Views > s.PendingTranscript[j].Views
		})
		if len(s.PendingTranscript) > 5 {
			s.PendingTranscript = s.PendingTranscript[:5]
		}
	}

	stats.Overview = models.AdminOverview{
		TotalVideos:        len(videos),
		RelevantVideos:     totalRelevant,
		TotalTranscripts:   len(transcriptSet),
		TotalSummaries:     totalSummaries,
		TotalAnswers:       totalAnswers,
		PendingTranscripts: totalRelevant - len(transcriptSet),
	}

	return stats, nil
}

func (c *Client) listVideos(ctx context.Context) ([]models.Video, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, external_id, title, channel_name, url, views, published_at, is_relevant
		FROM videos`)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		videos = append(videos, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate videos: %w", err)
	}
	return videos, nil
}

func (c *Client) transcriptVideoIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT video_id FROM video_transcripts")
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	ids := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transcript: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transcripts: %w", err)
	}
	return ids, nil
}

func (c *Client) summaryCategories(ctx context.Context) (map[string]string, int, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT video_id, COALESCE(relevance_category, '') FROM video_summaries")
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	cats := map[string]string{}
	total := 0
	for rows.Next() {
		var videoID, cat string
		if err := rows.Scan(&videoID, &cat); err != nil {
			return nil, 0, fmt.Errorf("failed to scan summary: %w", err)
		}
		cats[videoID] = cat
		total++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate summaries: %w", err)
	}
	return cats, total, nil
}

func (c *Client) GetSummary(ctx context.Context, id string) (*models.VideoSummary, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, video_id, summary_text, relevance_score, relevance_category, model_used, summarized_at
		FROM video_summaries WHERE id = ?`, id)

	var s models.VideoSummary
	var score sql.NullFloat64
	var category, modelUsed sql.NullString
	var summarizedAt int64

	err := row.Scan(&s.ID, &s.VideoID, &s.SummaryText, &score, &category, &modelUsed, &summarizedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	s.RelevanceScore = score.Float64
	s.RelevanceCategory = category.String
	s.ModelUsed = modelUsed.String
	s.SummarizedAt = time.Unix(summarizedAt, 0)
	return &s, nil
}

func (c *Client) questionCompanies(ctx context.Context, questionID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT co.name FROM question_companies l
		JOIN companies co ON co.id = l.company_id
		WHERE l.question_id = ?
		ORDER BY co.name`, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch question companies: %w", err)
	}
	defer rows.Close()

	companies := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan company: %w", err)
		}
		companies = append(companies, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate companies: %w", err)
	}
	return companies, nil
}

func (c *Client) questionCategories(ctx context.Context, questionID string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT category FROM question_categories WHERE question_id = ? ORDER BY category", questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch question categories: %w", err)
	}
	defer rows.Close()

	cats := []string{}
	for rows.Next() {
		var cat string
		if err := rows.Scan(&cat); err != nil {
			return nil, fmt.Errorf("failed to scan question category: %w", err)
		}
		cats = append(cats, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question categories: %w", err)
	}
	return cats, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row rowScanner) (*models.Question, error) {
	var q models.Question
	var english, category sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&q.ID, &q.Content, &english, &category, &q.Frequency, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan question: %w", err)
	}

	q.EnglishContent = english.String
	q.Category = category.String
	q.CreatedAt = time.Unix(createdAt, 0)
	q.UpdatedAt = time.Unix(updatedAt, 0)
	return &q, nil
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var v models.Video
	var externalID, channel, url sql.NullString
	var publishedAt sql.NullInt64

	err := row.Scan(&v.ID, &externalID, &v.Title, &channel, &url, &v.Views, &publishedAt, &v.IsRelevant)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan video: %w", err)
	}

	v.ExternalID = externalID.String
	v.ChannelName = channel.String
	v.URL = url.String
	if publishedAt.Valid {
		t := time.Unix(publishedAt.Int64, 0)
		v.PublishedAt = &t
	}
	return &v, nil
}

func scanSummary(row rowScanner) (*models.VideoSummary, error) {
	var s models.VideoSummary
	var score sql.NullFloat64
	var category, modelUsed sql.NullString
	var summarizedAt int64

	err := row.Scan(&s.ID, &s.VideoID, &s.SummaryText, &score, &category, &modelUsed, &summarizedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan summary: %w", err)
	}

	s.RelevanceScore = score.Float64
	s.RelevanceCategory = category.String
	s.ModelUsed = modelUsed.String
	s.SummarizedAt = time.Unix(summarizedAt, 0)
	return &s, nil
}
