package eventbuilder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventDumpWritesEveryPassingEvent(t *testing.T) {
	var out bytes.Buffer
	loader := &countingLoader{total: 3}
	dump := NewEventDump("", &out)

	o, err := NewOrchestrator(SchedulerConfig{}, loader, dump)
	require.NoError(t, err)
	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Equal(t, []string{
		"EV 0 TS 1000 HITS 0 PROGRESS EventLoader",
		"EV 1 TS 1001 HITS 0 PROGRESS EventLoader",
		"EV 2 TS 1002 HITS 0 PROGRESS EventLoader",
	}, lines)
	assert.Equal(t, int64(3), summary.Modules[1].Report["events"])
}

func TestEventDumpToFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "events.txt")
	dump := NewEventDump(filename, nil)
	require.NoError(t, dump.Initialize(NewRegistry()))

	e := &Event{ID: 9, Timestamp: 90, DataRead: true, Trigger: true}
	hit := &Hit{Energy: 511}
	hit.SetPosition(Vector{X: 1, Y: 2, Z: 0.25}, Vector{})
	e.AddHit(hit)
	e.AddHit(&Hit{Energy: 20})
	e.SetDepthCalibrationIncomplete()
	require.True(t, dump.AnalyzeEvent(e))

	report := dump.Finalize()
	assert.Equal(t, int64(2), report["hits"])

	content, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Equal(t, "EV 9 TS 90 HITS 2 PROGRESS None\n"+
		"HT 1.0000 2.0000 0.2500 511.0000\n"+
		"HT - - - 20.0000\n"+
		"BD depth calibration incomplete\n", string(content))
}

func TestEventDumpBadPath(t *testing.T) {
	dump := NewEventDump(filepath.Join(t.TempDir(), "missing", "events.txt"), nil)
	var openErr *ErrOpenFile
	assert.ErrorAs(t, dump.Initialize(NewRegistry()), &openErr)
}
