package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/metrics"
	"github.com/Keyring-Network/keyring-gavryn/deep-research/internal/research"
)

const (
	DefaultChunkSize = 500
	DefaultKeepAlive = 15 * time.Second

	planningStatus = "Analyzing query and creating research plan..."
	writingStatus  = "Generating final report..."
)

// ErrIncompleteRun is returned when a source closes its progress channel
// before the write stage reported.
var ErrIncompleteRun = errors.New("research run ended before the report was written")

// Sink receives the events of a single run. Calls are never concurrent.
type Sink interface {
	Send(event Event) error
	KeepAlive() error
}

type Emitter struct {
	chunkSize  int
	chunkDelay time.Duration
	keepAlive  time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

type Option func(*Emitter)

func WithChunkSize(size int) Option {
	return func(e *Emitter) {
		if size > 0 {
			e.chunkSize = size
		}
	}
}

func WithChunkDelay(delay time.Duration) Option {
	return func(e *Emitter) {
		if delay > 0 {
			e.chunkDelay = delay
		}
	}
}

// WithKeepAlive sets the idle interval between keep-alive frames. Zero or
// negative disables them.
func WithKeepAlive(interval time.Duration) Option {
	return func(e *Emitter) {
		e.keepAlive = interval
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Emitter) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEmitter(opts ...Option) *Emitter {
	e := &Emitter{
		chunkSize: DefaultChunkSize,
		keepAlive: DefaultKeepAlive,
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run starts the run on source and writes its events to sink in order. It
// returns the final response after done, or the fault that produced the
// error event.
func (e *Emitter) Run(ctx context.Context, runID string, query string, source research.Source, sink Sink) (*research.Response, error) {
	em := &emission{
		Emitter: e,
		runID:   runID,
		sink:    sink,
		phase:   PhaseStarted,
	}

	if err := em.send(Event{Name: EventRunID, Data: RunIDPayload{RunID: runID}}); err != nil {
		return nil, err
	}
	if err := em.enter(PhasePlanning, Event{Name: EventPlanning, Data: StatusPayload{Status: planningStatus}}); err != nil {
		return nil, err
	}

	progress, err := source.Start(ctx, runID, query)
	if err != nil {
		return nil, em.fail(fmt.Errorf("start run: %w", err))
	}

	var keepAlive <-chan time.Time
	if e.keepAlive > 0 {
		ticker := time.NewTicker(e.keepAlive)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, em.fail(ctx.Err())
		case <-keepAlive:
			if err := sink.KeepAlive(); err != nil {
				return nil, em.sinkFailed("keep-alive", err)
			}
		case p, ok := <-progress:
			if !ok {
				return nil, em.fail(ErrIncompleteRun)
			}
			if p.Err != nil {
				return nil, em.fail(p.Err)
			}
			response, err := em.handle(ctx, p)
			if err != nil || response != nil {
				return response, err
			}
		}
	}
}

type emission struct {
	*Emitter
	runID  string
	sink   Sink
	phase  Phase
	broken bool
}

func (em *emission) handle(ctx context.Context, p research.Progress) (*research.Response, error) {
	switch p.Stage {
	case research.StagePlan:
		var questions []string
		if p.State.Plan != nil {
			for _, item := range p.State.Plan.WorkItems {
				questions = append(questions, item.Question)
			}
		}
		if questions == nil {
			questions = []string{}
		}
		return nil, em.enter(PhaseResearching, Event{Name: EventResearchProgress, Data: ResearchProgressPayload{
			Status:           fmt.Sprintf("Researching %d sub-questions...", len(questions)),
			SubQuestionCount: len(questions),
			SubQuestions:     questions,
		}})
	case research.StageResearch:
		return nil, em.enter(PhaseWriting, Event{Name: EventWriting, Data: WritingPayload{
			Status:          writingStatus,
			EvidenceCount:   len(p.State.Evidence),
			SourcesAnalyzed: p.State.SourcesAnalyzed,
		}})
	case research.StageWrite:
		return em.finish(ctx, p.State)
	default:
		return nil, em.fail(fmt.Errorf("unexpected stage %q", p.Stage))
	}
}

func (em *emission) finish(ctx context.Context, state research.RunState) (*research.Response, error) {
	if err := em.advance(PhaseStreamingReport); err != nil {
		return nil, err
	}
	for i, chunk := range ChunkText(state.Report, em.chunkSize) {
		if i > 0 && em.chunkDelay > 0 {
			if err := sleep(ctx, em.chunkDelay); err != nil {
				return nil, em.fail(err)
			}
		}
		if err := em.send(Event{Name: EventMessage, Data: MessagePayload{Content: chunk}}); err != nil {
			return nil, err
		}
	}
	response := research.BuildResponse(state, em.now())
	if err := em.enter(PhaseDone, Event{Name: EventDone, Data: response}); err != nil {
		return nil, err
	}
	return &response, nil
}

// enter sends the event announcing next and then moves to it.
func (em *emission) enter(next Phase, event Event) error {
	if err := em.checkTransition(next); err != nil {
		return err
	}
	if err := em.send(event); err != nil {
		return err
	}
	em.phase = next
	return nil
}

func (em *emission) advance(next Phase) error {
	if err := em.checkTransition(next); err != nil {
		return err
	}
	em.phase = next
	return nil
}

func (em *emission) checkTransition(next Phase) error {
	if !em.phase.CanTransition(next) {
		return em.fail(fmt.Errorf("invalid phase transition %s -> %s", em.phase, next))
	}
	return nil
}

func (em *emission) send(event Event) error {
	if err := em.sink.Send(event); err != nil {
		return em.sinkFailed(string(event.Name), err)
	}
	metrics.EventsEmitted.WithLabelValues(string(event.Name)).Inc()
	return nil
}

// fail emits the single error event for the run. Once the phase is terminal
// nothing more is written.
func (em *emission) fail(cause error) error {
	if em.phase.Terminal() {
		return cause
	}
	em.phase = PhaseError
	em.logger.Warn("research run failed", zap.String("run_id", em.runID), zap.Error(cause))
	if em.broken {
		return cause
	}
	event := Event{Name: EventError, Data: ErrorPayload{Message: cause.Error(), RunID: em.runID}}
	if err := em.sink.Send(event); err != nil {
		em.logger.Debug("error event not delivered", zap.String("run_id", em.runID), zap.Error(err))
		return cause
	}
	metrics.EventsEmitted.WithLabelValues(string(EventError)).Inc()
	return cause
}

func (em *emission) sinkFailed(what string, err error) error {
	wrapped := fmt.Errorf("send %s: %w", what, err)
	if em.broken {
		return wrapped
	}
	em.broken = true
	em.logger.Warn("subscriber write failed", zap.String("run_id", em.runID), zap.Error(err))
	if !em.phase.Terminal() {
		em.phase = PhaseError
		if sendErr := em.sink.Send(Event{Name: EventError, Data: ErrorPayload{Message: wrapped.Error(), RunID: em.runID}}); sendErr == nil {
			metrics.EventsEmitted.WithLabelValues(string(EventError)).Inc()
		}
	}
	return wrapped
}

// ChunkText splits text into pieces of at most size runes. Concatenating the
// pieces yields text unchanged.
func ChunkText(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks []string
	start, count := 0, 0
	for i := range text {
		if count == size {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	if start < len(text) {
		chunks = append(chunks, text[start:])
	}
	return chunks
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
