package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type captureSink struct {
	events   []Event
	err      error
	closeErr error
	closed   bool
}

func (s *captureSink) Consume(_ context.Context, batch []Event) error {
	s.events = append(s.events, batch...)
	return s.err
}

func (s *captureSink) Close(context.Context) error {
	s.closed = true
	return s.closeErr
}

func TestRecorderStampsAndFansOut(t *testing.T) {
	t.Parallel()

	runID := uuid.New()
	first, second := &captureSink{}, &captureSink{err: errors.New("down")}
	rec := NewRecorder(runID, zap.NewNop(), first, second)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec.now = func() time.Time { return fixed }

	rec.Emit(Event{Stage: StageTierStart, Tier: "api"})

	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)
	assert.Equal(t, runID, first.events[0].RunID)
	assert.Equal(t, fixed, first.events[0].TS)
	assert.Equal(t, runID, rec.RunID())
}

func TestRecorderDropsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	rec := NewRecorder(uuid.New(), nil, sink)

	rec.Emit(Event{Stage: StageTierDone})
	rec.Emit(Event{Stage: StageEndpointDone, Tier: "api"})
	rec.Emit(Event{Stage: "BOGUS"})
	assert.Empty(t, sink.events)
}

func TestRecorderCloseJoinsErrors(t *testing.T) {
	t.Parallel()

	ok, bad := &captureSink{}, &captureSink{closeErr: errors.New("flush failed")}
	rec := NewRecorder(uuid.New(), nil, ok, bad)
	err := rec.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)

	var nilRec *Recorder
	assert.NoError(t, nilRec.Close(context.Background()))
	nilRec.Emit(Event{})
}

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Status2xx, ClassifyStatus(200))
	assert.Equal(t, Status3xx, ClassifyStatus(302))
	assert.Equal(t, Status4xx, ClassifyStatus(403))
	assert.Equal(t, Status5xx, ClassifyStatus(503))
	assert.Equal(t, StatusOther, ClassifyStatus(0))
}
