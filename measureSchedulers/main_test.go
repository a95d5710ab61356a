package main

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryVariantProcessesAllEvents(t *testing.T) {
	events := generateEvents(200, 3, rand.New(rand.NewPCG(7, 7)))
	encoded, err := encodeEvents(events, 3, 2)
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "telemetry.bin")
	size, err := writeTelemetry(filename, events, encoded, 25)
	require.NoError(t, err)
	assert.Positive(t, size)

	geometry, err := syntheticGeometry()
	require.NoError(t, err)
	calibration, err := syntheticCalibration()
	require.NoError(t, err)

	for _, variant := range variants(8) {
		t.Run(variant.Name, func(t *testing.T) {
			summary, err := measure(context.Background(), filename, 512, geometry, calibration, variant)
			require.NoError(t, err)
			assert.Equal(t, int64(200), summary.Events)
			assert.Equal(t, int64(600), summary.Modules[1].Report["good hits"])
			if variant.Scheduler.QueueCapacity > 0 {
				for _, highWater := range summary.QueueHighWater {
					assert.LessOrEqual(t, highWater, 8)
				}
			}
		})
	}
}

func TestEncodeEventsKeepsOrder(t *testing.T) {
	events := generateEvents(50, 1, rand.New(rand.NewPCG(1, 2)))
	encoded, err := encodeEvents(events, 4, 0)
	require.NoError(t, err)
	require.Len(t, encoded, 50)
	for i, data := range encoded {
		want := encodeEvent(0, 0, WorkerData{Index: i, Event: events[i]})
		require.NoError(t, want.Err)
		assert.Equal(t, want.Data, data)
	}
}
