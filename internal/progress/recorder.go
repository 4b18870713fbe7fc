package progress

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Recorder stamps events with the run id and delivers them to every sink
// synchronously. A run is a single goroutine, so there is nothing to batch.
type Recorder struct {
	runID  uuid.UUID
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
	ctx    context.Context
}

// NewRecorder builds a Recorder for one run.
func NewRecorder(runID uuid.UUID, logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		runID:  runID,
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		ctx:    context.Background(),
	}
}

// RunID returns the identifier stamped on every event.
func (r *Recorder) RunID() uuid.UUID {
	return r.runID
}

// Emit fills RunID and TS when unset, validates, and forwards the event.
// Sink failures are logged and never surface to the caller.
func (r *Recorder) Emit(evt Event) {
	if r == nil {
		return
	}
	if evt.RunID == uuid.Nil {
		evt.RunID = r.runID
	}
	if evt.TS.IsZero() {
		evt.TS = r.now()
	}
	if err := evt.Validate(); err != nil {
		r.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	batch := []Event{evt}
	for _, sink := range r.sinks {
		if err := sink.Consume(r.ctx, batch); err != nil {
			r.logger.Warn("progress sink failed", zap.Error(err))
		}
	}
}

// Close closes every sink and joins their errors.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
