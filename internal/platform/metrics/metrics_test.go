package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskgate/internal/events"
)

func newEvent(t *testing.T, kind events.Kind, taskID int, runID uuid.UUID, at time.Time) *events.LifecycleEvent {
	t.Helper()
	event, err := events.NewLifecycleEvent(kind, taskID, runID, nil)
	require.NoError(t, err)
	event.CreatedAt = at
	return event
}

func TestCollector_TracksRuns(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	base := time.Now()
	runA, runB := uuid.New(), uuid.New()

	require.NoError(t, c.HandleEvent(ctx, newEvent(t, events.KindStarted, 1, runA, base)))
	require.NoError(t, c.HandleEvent(ctx, newEvent(t, events.KindStarted, 2, runB, base)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.inFlight))

	require.NoError(t, c.HandleEvent(ctx, newEvent(t, events.KindProgress, 1, runA, base)))
	require.NoError(t, c.HandleEvent(ctx, newEvent(t, events.KindFinished, 1, runA, base.Add(2*time.Second))))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight))

	require.NoError(t, c.HandleEvent(ctx, newEvent(t, events.KindCancelled, 2, runB, base.Add(time.Second))))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))

	assert.Equal(t, 2.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("started")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("progress")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("finished")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("cancelled")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration))
}

func TestCollector_TerminalWithoutStart(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(prometheus.NewRegistry())

	require.NoError(t, c.HandleEvent(ctx, newEvent(t, events.KindFailed, 3, uuid.New(), time.Now())))
	require.NoError(t, c.HandleEvent(ctx, newEvent(t, events.KindKilled, 4, uuid.Nil, time.Now())))

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.eventsTotal.WithLabelValues("killed")))
	assert.Equal(t, 0, testutil.CollectAndCount(c.duration))
}

func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)
	assert.Panics(t, func() { NewCollector(reg) })
}
