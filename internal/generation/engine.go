package generation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pmprep/backend/internal/llm"
	"github.com/pmprep/backend/internal/metrics"
	"github.com/pmprep/backend/internal/storage/models"
	"github.com/pmprep/backend/internal/storage/sqlite"
	"github.com/pmprep/backend/pkg/logger"
)

type State int

const (
	StateIdle State = iota
	StateCorpusFetch
	StateStreaming
	StateCommitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCorpusFetch:
		return "corpus_fetch"
	case StateStreaming:
		return "streaming"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type EventType string

const (
	EventToken EventType = "token"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is one frame of a generation stream. A stream is zero or more token
// events followed by exactly one done or error event.
type Event struct {
	Type       EventType
	Token      string
	QuestionID string
	Answer     *models.SampleAnswer
	Err        error
}

type AnswerStore interface {
	GetAnswer(ctx context.Context, questionID string) (*models.SampleAnswer, error)
	UpsertAnswer(ctx context.Context, a *models.SampleAnswer) error
}

type CorpusSource interface {
	FetchGroundingCorpus(ctx context.Context) ([]models.CorpusEntry, error)
}

type Streamer interface {
	StreamCompletion(ctx context.Context, systemPrompt, userPrompt string) (llm.TokenStream, error)
	Model() string
}

// Engine drives answer generation: corpus fetch, model streaming, and the
// exactly-once commit to the answer cache. Concurrent requests for the same
// question join one in-flight run instead of paying for a second model call.
type Engine struct {
	store  AnswerStore
	corpus CorpusSource
	model  Streamer

	mu      sync.Mutex
	flights map[string]*flight
	closed  bool
}

func NewEngine(store AnswerStore, corpus CorpusSource, model Streamer) *Engine {
	return &Engine{
		store:   store,
		corpus:  corpus,
		model:   model,
		flights: make(map[string]*flight),
	}
}

// Generate returns the cached answer when one exists and force is false; this
// fast path never touches the model. Otherwise it returns a Subscription on a
// generation run, which may be shared with earlier callers for the same
// question. The caller must either drain the subscription or Cancel it.
func (e *Engine) Generate(ctx context.Context, questionID, questionText string, force bool) (*models.SampleAnswer, *Subscription, error) {
	if !force {
		answer, err := e.store.GetAnswer(ctx, questionID)
		if err == nil {
			metrics.AnswerCacheHits.Inc()
			logger.Debug("Answer served from cache", zap.String("question_id", questionID))
			return answer, nil, nil
		}
		if !errors.Is(err, sqlite.ErrAnswerNotFound) {
			return nil, nil, err
		}
	}
	metrics.AnswerCacheMisses.Inc()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, nil, errors.New("generation engine is shut down")
	}
	if f, ok := e.flights[questionID]; ok {
		sub := f.subscribe()
		e.mu.Unlock()
		metrics.InFlightJoins.Inc()
		logger.Debug("Joined in-flight generation", zap.String("question_id", questionID))
		return nil, sub, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	f := &flight{
		engine:     e,
		questionID: questionID,
		cancel:     cancel,
		subs:       make(map[*Subscription]struct{}),
	}
	e.flights[questionID] = f
	e.mu.Unlock()

	sub := f.subscribe()
	go e.run(runCtx, f, questionText)
	return nil, sub, nil
}

// Shutdown cancels every in-flight run. In-flight streams see a terminal
// error event; nothing is committed for them.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	e.closed = true
	flights := make([]*flight, 0, len(e.flights))
	for _, f := range e.flights {
		flights = append(flights, f)
	}
	e.mu.Unlock()

	for _, f := range flights {
		f.cancel()
	}
}

func (e *Engine) run(ctx context.Context, f *flight, questionText string) {
	start := time.Now()

	f.setState(StateCorpusFetch)
	corpus, err := e.corpus.FetchGroundingCorpus(ctx)
	if err != nil {
		e.fail(f, &StreamError{Stage: StageCorpusFetch, Err: err})
		return
	}
	metrics.CorpusSize.Observe(float64(len(corpus)))

	systemPrompt := BuildSystemPrompt(corpus)
	userPrompt := BuildUserPrompt(questionText)

	f.setState(StateStreaming)
	stream, err := e.model.StreamCompletion(ctx, systemPrompt, userPrompt)
	if err != nil {
		e.fail(f, &StreamError{Stage: StageModelStream, Err: err})
		return
	}
	defer stream.Close()

	var accumulated strings.Builder
	for {
		token, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			e.fail(f, &StreamError{Stage: StageModelStream, Err: err})
			return
		}
		if token == "" {
			continue
		}
		accumulated.WriteString(token)
		metrics.TokensStreamed.Inc()
		f.publish(Event{Type: EventToken, Token: token})
	}

	// All subscribers may have disconnected right at stream end; a canceled
	// run never commits.
	if err := ctx.Err(); err != nil {
		e.fail(f, &StreamError{Stage: StageModelStream, Err: err})
		return
	}

	f.setState(StateCommitting)
	answer := &models.SampleAnswer{
		ID:           uuid.New().String(),
		QuestionID:   f.questionID,
		AnswerText:   accumulated.String(),
		SourceVideos: corpusSourceVideos(corpus),
		ModelUsed:    e.model.Model(),
		GeneratedAt:  time.Now().UTC(),
	}
	if err := e.store.UpsertAnswer(ctx, answer); err != nil {
		e.fail(f, &StreamError{Stage: StageStoreWrite, Err: err})
		return
	}

	f.setState(StateDone)
	f.publish(Event{Type: EventDone, QuestionID: f.questionID, Answer: answer})
	f.finish()

	metrics.GenerationTotal.WithLabelValues("success").Inc()
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	logger.Info("Generation committed",
		zap.String("question_id", f.questionID),
		zap.Int("answer_length", len(answer.AnswerText)),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (e *Engine) fail(f *flight, err error) {
	f.setState(StateFailed)
	f.publish(Event{Type: EventError, Err: err})
	f.finish()

	metrics.GenerationTotal.WithLabelValues("failure").Inc()
	logger.Warn("Generation failed",
		zap.String("question_id", f.questionID),
		zap.Error(err),
	)
}

func (e *Engine) removeFlight(questionID string, f *flight) {
	e.mu.Lock()
	if current, ok := e.flights[questionID]; ok && current == f {
		delete(e.flights, questionID)
	}
	e.mu.Unlock()
}

func corpusSourceVideos(corpus []models.CorpusEntry) []models.SourceVideo {
	videos := make([]models.SourceVideo, 0, len(corpus))
	for _, entry := range corpus {
		videos = append(videos, models.SourceVideo{
			Title:   entry.VideoTitle,
			URL:     entry.VideoURL,
			Channel: entry.Channel,
		})
	}
	return videos
}

// flight is one in-flight generation run with fan-out to any number of
// subscribers. Events are buffered so late joiners replay the full stream.
// publish and finish are only ever called from the run goroutine.
type flight struct {
	engine     *Engine
	questionID string
	cancel     context.CancelFunc

	mu       sync.Mutex
	state    State
	buffer   []Event
	subs     map[*Subscription]struct{}
	finished bool
}

func (f *flight) setState(s State) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
	logger.Debug("Generation state changed",
		zap.String("question_id", f.questionID),
		zap.Stringer("state", s),
	)
}

func (f *flight) subscribe() *Subscription {
	sub := newSubscription(f)

	f.mu.Lock()
	sub.queue = append(sub.queue, f.buffer...)
	if f.finished {
		sub.end = true
	} else {
		f.subs[sub] = struct{}{}
	}
	f.mu.Unlock()

	go sub.pump()
	return sub
}

func (f *flight) publish(ev Event) {
	f.mu.Lock()
	f.buffer = append(f.buffer, ev)
	subs := make([]*Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	for _, s := range subs {
		s.enqueue(ev)
	}
}

func (f *flight) finish() {
	f.mu.Lock()
	f.finished = true
	subs := make([]*Subscription, 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.subs = make(map[*Subscription]struct{})
	f.mu.Unlock()

	for _, s := range subs {
		s.finish()
	}
	f.engine.removeFlight(f.questionID, f)
}

func (f *flight) detach(sub *Subscription) {
	f.mu.Lock()
	delete(f.subs, sub)
	abandoned := len(f.subs) == 0 && !f.finished
	f.mu.Unlock()

	// Last subscriber gone: stop consuming the model stream, commit nothing.
	if abandoned {
		f.cancel()
	}
}

// Subscription is one caller's ordered view of a generation stream. The
// events channel closes after the terminal event, or after Cancel.
type Subscription struct {
	flight *flight
	ch     chan Event
	done   chan struct{}

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Event
	end      bool
	canceled bool
}

func newSubscription(f *flight) *Subscription {
	s := &Subscription{
		flight: f,
		ch:     make(chan Event, 16),
		done:   make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Cancel detaches from the run. Canceling the last subscription cancels the
// run itself, which is treated as a stream failure for commit purposes.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	if s.canceled {
		s.mu.Unlock()
		return
	}
	s.canceled = true
	close(s.done)
	s.cond.Signal()
	s.mu.Unlock()

	s.flight.detach(s)
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	if !s.canceled {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) finish() {
	s.mu.Lock()
	s.end = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *Subscription) pump() {
	defer close(s.ch)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.end && !s.canceled {
			s.cond.Wait()
		}
		if s.canceled {
			s.mu.Unlock()
			return
		}
		batch := s.queue
		s.queue = nil
		end := s.end
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.ch <- ev:
			case <-s.done:
				return
			}
		}

		if end {
			s.mu.Lock()
			drained := len(s.queue) == 0
			s.mu.Unlock()
			if drained {
				return
			}
		}
	}
}
