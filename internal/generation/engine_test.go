package generation

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pmprep/backend/internal/knowledge"
	"github.com/pmprep/backend/internal/llm"
	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/internal/storage/sqlite"
)

type fakeStore struct {
	mu      sync.Mutex
	answers map[string]*models.SampleAnswer
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{answers: map[string]*models.SampleAnswer{}}
}

func (s *fakeStore) GetAnswer(ctx context.Context, questionID string) (*models.SampleAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.answers[questionID]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, sqlite.ErrAnswerNotFound
}

func (s *fakeStore) UpsertAnswer(ctx context.Context, a *models.SampleAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *a
	s.answers[a.QuestionID] = &copied
	s.upserts++
	return nil
}

func (s *fakeStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

type fakeCorpus struct {
	entries []models.CorpusEntry
	err     error
}

func (c *fakeCorpus) FetchGroundingCorpus(ctx context.Context) ([]models.CorpusEntry, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.entries, nil
}

type fakeStreamer struct {
	mu      sync.Mutex
	calls   int
	tokens  []string
	err     error
	block   chan struct{}
	aborted chan struct{}
}

func (f *fakeStreamer) StreamCompletion(ctx context.Context, systemPrompt, userPrompt string) (llm.TokenStream, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &fakeStream{
		ctx:     ctx,
		tokens:  append([]string(nil), f.tokens...),
		err:     f.err,
		block:   f.block,
		aborted: f.aborted,
	}, nil
}

func (f *fakeStreamer) Model() string { return "test-model" }

func (f *fakeStreamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeStream struct {
	ctx     context.Context
	tokens  []string
	i       int
	err     error
	block   chan struct{}
	aborted chan struct{}
	once    sync.Once
}

func (s *fakeStream) Recv() (string, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-s.ctx.Done():
			if s.aborted != nil {
				s.once.Do(func() { close(s.aborted) })
			}
			return "", s.ctx.Err()
		}
	}
	if s.i < len(s.tokens) {
		token := s.tokens[s.i]
		s.i++
		return token, nil
	}
	if s.err != nil {
		return "", s.err
	}
	return "", io.EOF
}

func (s *fakeStream) Close() error { return nil }

func testCorpus() *fakeCorpus {
	return &fakeCorpus{entries: []models.CorpusEntry{
		{SummaryText: "summary", VideoTitle: "Talk", Channel: "Ch", VideoURL: "https://yt/1"},
	}}
}

func collectEvents(t *testing.T, sub *Subscription) []Event {
	t.Helper()
	events := []Event{}
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream events")
		}
	}
}

func TestGenerateServesCachedAnswerWithoutModelCall(t *testing.T) {
	store := newFakeStore()
	store.answers["q1"] = &models.SampleAnswer{ID: "a1", QuestionID: "q1", AnswerText: "cached"}
	streamer := &fakeStreamer{tokens: []string{"fresh"}}
	engine := NewEngine(store, testCorpus(), streamer)

	answer, sub, err := engine.Generate(context.Background(), "q1", "text", false)

	require.NoError(t, err)
	require.NotNil(t, answer)
	assert.Nil(t, sub)
	assert.Equal(t, "cached", answer.AnswerText)
	assert.Zero(t, streamer.callCount())
}

func TestGenerateStreamsTokensAndCommitsOnce(t *testing.T) {
	store := newFakeStore()
	streamer := &fakeStreamer{tokens: []string{"Hello", ", ", "world"}}
	engine := NewEngine(store, testCorpus(), streamer)

	_, sub, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)
	require.NotNil(t, sub)

	events := collectEvents(t, sub)
	require.NotEmpty(t, events)

	var streamed string
	for _, ev := range events[:len(events)-1] {
		require.Equal(t, EventToken, ev.Type)
		streamed += ev.Token
	}
	terminal := events[len(events)-1]
	require.Equal(t, EventDone, terminal.Type)
	assert.Equal(t, "q1", terminal.QuestionID)

	// The committed answer is exactly the concatenation of streamed tokens.
	require.NotNil(t, terminal.Answer)
	assert.Equal(t, "Hello, world", streamed)
	assert.Equal(t, "Hello, world", terminal.Answer.AnswerText)
	assert.Equal(t, "test-model", terminal.Answer.ModelUsed)

	committed, err := store.GetAnswer(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", committed.AnswerText)
	assert.Equal(t, 1, store.upsertCount())
	assert.Equal(t, 1, streamer.callCount())
}

func TestGenerateForceRegeneratesOverCache(t *testing.T) {
	store := newFakeStore()
	store.answers["q1"] = &models.SampleAnswer{ID: "a1", QuestionID: "q1", AnswerText: "stale"}
	streamer := &fakeStreamer{tokens: []string{"fresh"}}
	engine := NewEngine(store, testCorpus(), streamer)

	answer, sub, err := engine.Generate(context.Background(), "q1", "text", true)
	require.NoError(t, err)
	assert.Nil(t, answer)
	require.NotNil(t, sub)

	collectEvents(t, sub)

	committed, err := store.GetAnswer(context.Background(), "q1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", committed.AnswerText)
	assert.Equal(t, 1, streamer.callCount())
}

func TestConcurrentRequestsJoinOneRun(t *testing.T) {
	store := newFakeStore()
	block := make(chan struct{})
	streamer := &fakeStreamer{tokens: []string{"a", "b"}, block: block}
	engine := NewEngine(store, testCorpus(), streamer)

	_, sub1, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)
	_, sub2, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)

	close(block)

	var events1, events2 []Event
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); events1 = collectEvents(t, sub1) }()
	go func() { defer wg.Done(); events2 = collectEvents(t, sub2) }()
	wg.Wait()

	// Both subscribers see the identical full stream from one model call.
	assert.Equal(t, 1, streamer.callCount())
	assert.Equal(t, 1, store.upsertCount())
	require.NotEmpty(t, events1)
	require.NotEmpty(t, events2)
	assert.Equal(t, EventDone, events1[len(events1)-1].Type)
	assert.Equal(t, EventDone, events2[len(events2)-1].Type)

	concat := func(events []Event) string {
		var s string
		for _, ev := range events {
			s += ev.Token
		}
		return s
	}
	assert.Equal(t, "ab", concat(events1))
	assert.Equal(t, "ab", concat(events2))
}

func TestEmptyCorpusFailsWithoutModelCall(t *testing.T) {
	store := newFakeStore()
	streamer := &fakeStreamer{tokens: []string{"never"}}
	engine := NewEngine(store, &fakeCorpus{err: knowledge.ErrEmptyCorpus}, streamer)

	_, sub, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)

	events := collectEvents(t, sub)
	require.Len(t, events, 1)
	require.Equal(t, EventError, events[0].Type)
	assert.True(t, errors.Is(events[0].Err, knowledge.ErrEmptyCorpus))

	var streamErr *StreamError
	require.True(t, errors.As(events[0].Err, &streamErr))
	assert.Equal(t, StageCorpusFetch, streamErr.Stage)

	assert.Zero(t, streamer.callCount())
	assert.Zero(t, store.upsertCount())
}

func TestMidStreamErrorCommitsNothing(t *testing.T) {
	store := newFakeStore()
	streamer := &fakeStreamer{tokens: []string{"partial"}, err: errors.New("connection reset")}
	engine := NewEngine(store, testCorpus(), streamer)

	_, sub, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)

	events := collectEvents(t, sub)
	require.NotEmpty(t, events)
	terminal := events[len(events)-1]
	require.Equal(t, EventError, terminal.Type)

	var streamErr *StreamError
	require.True(t, errors.As(terminal.Err, &streamErr))
	assert.Equal(t, StageModelStream, streamErr.Stage)

	assert.Zero(t, store.upsertCount())
	_, err = store.GetAnswer(context.Background(), "q1")
	assert.True(t, errors.Is(err, sqlite.ErrAnswerNotFound))
}

func TestCancelingLastSubscriberAbortsRun(t *testing.T) {
	store := newFakeStore()
	aborted := make(chan struct{})
	streamer := &fakeStreamer{tokens: []string{"x"}, block: make(chan struct{}), aborted: aborted}
	engine := NewEngine(store, testCorpus(), streamer)

	_, sub, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)

	sub.Cancel()

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("run was not canceled after last subscriber left")
	}

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, store.upsertCount())
}

func TestLateJoinReplaysBufferedTokens(t *testing.T) {
	store := newFakeStore()
	release := make(chan struct{})
	streamer := &fakeStreamer{tokens: []string{"one", "two"}, block: release}
	engine := NewEngine(store, testCorpus(), streamer)

	_, sub1, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)

	close(release)

	// First subscriber drains the whole stream.
	events1 := collectEvents(t, sub1)
	require.Equal(t, EventDone, events1[len(events1)-1].Type)

	// The flight is finished now, so this is a fresh cached read.
	answer, sub2, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)
	assert.Nil(t, sub2)
	require.NotNil(t, answer)
	assert.Equal(t, "onetwo", answer.AnswerText)
}

func TestShutdownCancelsInFlightRuns(t *testing.T) {
	store := newFakeStore()
	aborted := make(chan struct{})
	streamer := &fakeStreamer{tokens: []string{"x"}, block: make(chan struct{}), aborted: aborted}
	engine := NewEngine(store, testCorpus(), streamer)

	_, sub, err := engine.Generate(context.Background(), "q1", "text", false)
	require.NoError(t, err)

	engine.Shutdown()

	select {
	case <-aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("shutdown did not cancel the in-flight run")
	}

	events := collectEvents(t, sub)
	require.NotEmpty(t, events)
	assert.Equal(t, EventError, events[len(events)-1].Type)
	assert.Zero(t, store.upsertCount())

	_, _, err = engine.Generate(context.Background(), "q2", "text", false)
	assert.Error(t, err)
}
