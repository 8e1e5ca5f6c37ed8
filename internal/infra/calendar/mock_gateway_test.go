package calendar

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	domainCalendar "maintenance_scheduler/internal/domain/calendar"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func slot(day, hour int) (time.Time, time.Time) {
	start := time.Date(2025, time.March, day, hour, 30, 0, 0, time.UTC)
	return start, start.Add(2 * time.Hour)
}

func TestMockGateway_BooksAndBlocksOverlaps(t *testing.T) {
	ctx := context.Background()
	gw := NewMockGateway(testLogger())
	start, end := slot(3, 16)

	free, err := gw.IsAvailable(ctx, start, end)
	require.NoError(t, err)
	assert.True(t, free)

	id, err := gw.CreateEvent(ctx, domainCalendar.EventRequest{Summary: "Website Maintenance - acme", Start: start, End: end})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "mock-"))
	assert.Contains(t, gw.Events(), id)

	overlapStart, overlapEnd := slot(3, 17)
	free, err = gw.IsAvailable(ctx, overlapStart, overlapEnd)
	require.NoError(t, err)
	assert.False(t, free)

	_, err = gw.CreateEvent(ctx, domainCalendar.EventRequest{Start: overlapStart, End: overlapEnd})
	assert.ErrorIs(t, err, domainCalendar.ErrSlotUnavailable)

	// Touching the end of an event is not an overlap.
	free, err = gw.IsAvailable(ctx, end, end.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, free)

	otherStart, otherEnd := slot(5, 16)
	free, err = gw.IsAvailable(ctx, otherStart, otherEnd)
	require.NoError(t, err)
	assert.True(t, free)
}
