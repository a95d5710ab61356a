package eventbuilder

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

// EventDump is a terminal stage writing one text block per event.
type EventDump struct {
	ModuleBase
	Filename string
	// Out is used when Filename is empty.
	Out io.Writer

	file   *os.File
	writer *bufio.Writer
	events int64
	hits   int64
}

func NewEventDump(filename string, out io.Writer) *EventDump {
	return &EventDump{Filename: filename, Out: out}
}

func (d *EventDump) Descriptor() Descriptor {
	return Descriptor{
		Name:              "Event dump",
		Tag:               "dump",
		Provides:          CategoryEventSaver,
		SoftRequires:      CategoryEventLoader,
		AllowedSuccessors: CategoryNoRestriction,
	}
}

func (d *EventDump) Initialize(*Registry) error {
	out := d.Out
	if d.Filename != "" {
		file, err := os.Create(d.Filename)
		if err != nil {
			return &ErrOpenFile{Filename: d.Filename, Err: err}
		}
		d.file = file
		out = file
	}
	if out == nil {
		out = os.Stdout
	}
	d.writer = bufio.NewWriter(out)
	return nil
}

func (d *EventDump) AnalyzeEvent(event *Event) bool {
	if d.writer == nil {
		return false
	}
	_, err := fmt.Fprintf(d.writer, "EV %d TS %d HITS %d PROGRESS %s\n", event.ID, event.Timestamp, len(event.Hits), event.AnalysisProgress())
	if err != nil {
		d.Fail()
		return false
	}
	if p := event.Pointing; p != nil {
		fmt.Fprintf(d.writer, "PT %d %.4f %.4f %.4f\n", p.Timestamp, p.Heading, p.Pitch, p.Roll)
	}
	for _, h := range event.Hits {
		if h.HasPosition {
			fmt.Fprintf(d.writer, "HT %.4f %.4f %.4f %.4f\n", h.Position.X, h.Position.Y, h.Position.Z, h.Energy)
		} else {
			fmt.Fprintf(d.writer, "HT - - - %.4f\n", h.Energy)
		}
	}
	if event.DepthCalibrationIncomplete {
		fmt.Fprintln(d.writer, "BD depth calibration incomplete")
	}
	d.events++
	d.hits += int64(len(event.Hits))
	return true
}

func (d *EventDump) Finalize() Report {
	if d.writer != nil {
		if err := d.writer.Flush(); err != nil {
			d.Fail()
		}
	}
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
	return Report{"events": d.events, "hits": d.hits}
}
