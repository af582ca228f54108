package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"folio/internal/cascade"
	"folio/internal/logging"
	"folio/internal/services"
)

const defaultConcurrency = 5

// ErrSessionNotFound is returned by control calls naming an unknown session.
var ErrSessionNotFound = errors.New("batch session not found")

// Processor is the per-item entry point the scheduler drives. The cascade
// orchestrator satisfies it.
type Processor interface {
	Process(ctx context.Context, itemID int64) (*cascade.Result, error)
}

// Options control one batch run.
type Options struct {
	// Concurrency caps the worker pool. Zero means the default.
	Concurrency int
	// RespectUserIntent counts items refused on policy grounds as skipped
	// instead of failed.
	RespectUserIntent bool
}

// Scheduler fans the cascade out over item lists with bounded concurrency.
// Each Start call creates an independent session; control calls address
// sessions by id.
type Scheduler struct {
	processor Processor
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	waiters  map[string]chan struct{}
}

// NewScheduler builds a scheduler around a processor.
func NewScheduler(processor Processor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		processor: processor,
		logger:    logger.With(logging.String(logging.FieldComponent, "batch")),
		sessions:  make(map[string]*Session),
		waiters:   make(map[string]chan struct{}),
	}
}

// Start begins processing the item list and returns the running session
// without waiting for completion. Progress lands on the session as workers
// finish items.
func (s *Scheduler) Start(ctx context.Context, itemIDs []int64, opts Options) (*Session, error) {
	if s.processor == nil {
		return nil, errors.New("batch: no processor configured")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if concurrency > len(itemIDs) && len(itemIDs) > 0 {
		concurrency = len(itemIDs)
	}

	session := newSession(itemIDs)
	done := make(chan struct{})
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.waiters[session.ID()] = done
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "batch started",
		logging.String(logging.FieldSessionID, session.ID()),
		logging.Int("items", len(itemIDs)),
		logging.Int("concurrency", concurrency))

	go s.run(ctx, session, opts, concurrency, done)
	return session, nil
}

func (s *Scheduler) run(ctx context.Context, session *Session, opts Options, concurrency int, done chan struct{}) {
	defer close(done)
	ctx = services.WithSessionID(ctx, session.ID())

	// Cancellation of the surrounding context cancels the session so that
	// workers parked in a paused claim wake up and drain.
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go func() {
		<-watchCtx.Done()
		if ctx.Err() != nil {
			session.cancel()
		}
	}()

	var g errgroup.Group
	for i := 0; i < concurrency; i++ {
		g.Go(func() error {
			for {
				id, ok := session.claimNext()
				if !ok {
					return nil
				}
				s.processOne(ctx, session, opts, id)
			}
		})
	}
	_ = g.Wait()
	session.finish()

	snap := session.Snapshot()
	s.logger.InfoContext(ctx, "batch finished",
		logging.String(logging.FieldSessionID, session.ID()),
		logging.String(logging.FieldStatus, string(snap.State)),
		logging.Int("completed", len(snap.Completed)),
		logging.Int("failed", len(snap.Failed)),
		logging.Int("skipped", len(snap.Skipped)))
}

// processOne runs the cascade for a single claimed item and buckets the
// outcome. Cascade failures are absorbed into the failed list; the batch
// never aborts because one item went badly.
func (s *Scheduler) processOne(ctx context.Context, session *Session, opts Options, id int64) {
	result, err := s.processor.Process(ctx, id)
	switch {
	case err != nil && errors.Is(err, services.ErrPolicy) && opts.RespectUserIntent:
		session.markSkipped(id)
		s.logger.InfoContext(ctx, "item skipped by user intent",
			logging.Int64(logging.FieldItemID, id))
	case err != nil:
		session.markFailed(id)
		s.logger.WarnContext(ctx, "item processing failed",
			logging.Int64(logging.FieldItemID, id),
			logging.Error(err))
	case result.Skipped:
		session.markSkipped(id)
	case result.Failed():
		session.markFailed(id)
	default:
		session.markCompleted(id)
	}
}

func (s *Scheduler) session(sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return session, nil
}

// Pause stops the session from claiming new items. In-flight items finish.
func (s *Scheduler) Pause(sessionID string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	if session.pause() {
		s.logger.Info("batch paused", logging.String(logging.FieldSessionID, sessionID))
	}
	return nil
}

// Resume lets a paused session claim items again.
func (s *Scheduler) Resume(sessionID string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	if session.resume() {
		s.logger.Info("batch resumed", logging.String(logging.FieldSessionID, sessionID))
	}
	return nil
}

// Cancel stops the session; unclaimed items are recorded as skipped.
func (s *Scheduler) Cancel(sessionID string) error {
	session, err := s.session(sessionID)
	if err != nil {
		return err
	}
	if session.cancel() {
		s.logger.Info("batch cancelled", logging.String(logging.FieldSessionID, sessionID))
	}
	return nil
}

// Status returns a point-in-time progress snapshot for polling consumers.
func (s *Scheduler) Status(sessionID string) (Snapshot, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Wait blocks until the session's workers have drained, then returns the
// final snapshot.
func (s *Scheduler) Wait(ctx context.Context, sessionID string) (Snapshot, error) {
	s.mu.Lock()
	done, ok := s.waiters[sessionID]
	session := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	select {
	case <-done:
		return session.Snapshot(), nil
	case <-ctx.Done():
		return session.Snapshot(), ctx.Err()
	}
}
