package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/depop-feed/internal/progress"
)

func TestLogSinkWritesStructuredFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{{
		RunID:    uuid.New(),
		TS:       time.Now(),
		Stage:    progress.StageEndpointDone,
		Tier:     "api",
		Endpoint: "legacy",
		Result:   "success",
		Count:    2,
	}}))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "legacy", fields["endpoint"])
	assert.Equal(t, "success", fields["result"])
	assert.EqualValues(t, 2, fields["count"])
	assert.NotContains(t, fields, "note")
}
