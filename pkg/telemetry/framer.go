package telemetry

import (
	"bytes"
	"errors"
	"fmt"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

type FramerConfig struct {
	// IgnorePointing releases events as soon as they complete, without pointing.
	IgnorePointing bool
	// MaxPendingEvents bounds how many completed events wait for pointing
	// before the oldest is released anyway. 0 means no bound.
	MaxPendingEvents int
	Verbosity        int
}

type Stats struct {
	Packets             int64
	SciencePackets      int64
	PointingPackets     int64
	HousekeepingPackets int64
	UnknownPackets      int64
	MalformedPackets    int64
	ChecksumErrors      int64
	Resyncs             int64
	SkippedBytes        int64

	EventsCompleted   int64
	EventsReleased    int64
	ForcedReleases    int64
	OutOfRangeDropped int64
	LateDropped       int64
	IncompleteDropped int64
	PartialBytes      int64
}

// Report converts the counters for the end-of-run summary.
func (s Stats) Report() eventbuilder.Report {
	return eventbuilder.Report{
		"packets":             s.Packets,
		"science packets":     s.SciencePackets,
		"pointing packets":    s.PointingPackets,
		"housekeeping":        s.HousekeepingPackets,
		"unknown packets":     s.UnknownPackets,
		"malformed packets":   s.MalformedPackets,
		"checksum errors":     s.ChecksumErrors,
		"resyncs":             s.Resyncs,
		"events completed":    s.EventsCompleted,
		"events released":     s.EventsReleased,
		"forced releases":     s.ForcedReleases,
		"out of range":        s.OutOfRangeDropped,
		"late events":         s.LateDropped,
		"incomplete events":   s.IncompleteDropped,
		"partial packet size": s.PartialBytes,
	}
}

// Framer turns a raw telemetry byte stream into timestamp-ordered events with
// their pointing attached. It is driven by a single goroutine.
type Framer struct {
	config FramerConfig
	logger eventbuilder.Logger

	buf []byte
	pos int

	groups   map[uint64]*eventbuilder.Event
	events   *EventBuffer
	pointing *PointingBuffer

	ready        *eventbuilder.Event
	released     bool
	lastReleased uint64
	exhausted    bool

	stats Stats
}

func NewFramer(config FramerConfig, logger eventbuilder.Logger) *Framer {
	if logger == nil {
		logger = eventbuilder.NopLogger{}
	}
	return &Framer{
		config:   config,
		logger:   logger,
		groups:   make(map[uint64]*eventbuilder.Event),
		events:   NewEventBuffer(config.MaxPendingEvents),
		pointing: NewPointingBuffer(),
	}
}

// Feed appends raw bytes and processes every complete packet in them.
func (f *Framer) Feed(data []byte) {
	if f.exhausted {
		return
	}
	if f.pos > 0 {
		f.buf = append(f.buf[:0], f.buf[f.pos:]...)
		f.pos = 0
	}
	f.buf = append(f.buf, data...)

	for {
		pending := f.buf[f.pos:]
		idx := bytes.Index(pending, syncMarker)
		if idx < 0 {
			// keep a trailing first sync byte, the second may come next
			keep := 0
			if len(pending) > 0 && pending[len(pending)-1] == SyncByte0 {
				keep = 1
			}
			if skipped := len(pending) - keep; skipped > 0 {
				f.stats.Resyncs++
				f.stats.SkippedBytes += int64(skipped)
			}
			f.pos += len(pending) - keep
			return
		}
		if idx > 0 {
			f.stats.Resyncs++
			f.stats.SkippedBytes += int64(idx)
			f.pos += idx
			pending = pending[idx:]
		}

		packet, n, err := DecodePacket(pending)
		switch {
		case errors.Is(err, ErrShortPacket):
			return
		case err != nil:
			if errors.Is(err, ErrBadChecksum) {
				f.stats.ChecksumErrors++
			}
			if f.config.Verbosity > 2 {
				message := fmt.Sprintf("Dropping byte at stream offset %d: %v", f.pos, err)
				f.logger.Info(message, "framer")
			}
			f.pos++
			continue
		}
		f.pos += n
		f.handle(packet)
	}
}

func (f *Framer) handle(packet Packet) {
	f.stats.Packets++
	if f.config.Verbosity > 2 {
		message := fmt.Sprintf("Packet %s, %d bytes, flags 0x%02x", packet.Header.Type, packet.Header.Length, packet.Header.Flags)
		f.logger.Info(message, "framer")
	}

	switch packet.Header.Type {
	case PacketScience:
		f.stats.SciencePackets++
		fragment, err := DecodeScience(packet.Payload)
		if err != nil {
			f.stats.MalformedPackets++
			f.logger.Error(fmt.Sprintf("malformed science packet: %v", err))
			return
		}
		f.addFragment(fragment, packet.IsFinalFragment())
	case PacketPointing:
		f.stats.PointingPackets++
		pointing, err := DecodePointing(packet.Payload)
		if err != nil {
			f.stats.MalformedPackets++
			f.logger.Error(fmt.Sprintf("malformed pointing packet: %v", err))
			return
		}
		f.pointing.Push(pointing)
	case PacketHousekeeping:
		f.stats.HousekeepingPackets++
	default:
		f.stats.UnknownPackets++
	}
}

func (f *Framer) addFragment(fragment *eventbuilder.Event, final bool) {
	group, ok := f.groups[fragment.ID]
	if !ok {
		group = fragment
	} else {
		group.Hits = append(group.Hits, fragment.Hits...)
		group.Veto = group.Veto || fragment.Veto
		group.Trigger = group.Trigger || fragment.Trigger
	}
	if !final {
		f.groups[fragment.ID] = group
		return
	}
	delete(f.groups, fragment.ID)
	f.stats.EventsCompleted++

	if f.released && group.Timestamp < f.lastReleased {
		f.stats.LateDropped++
		if f.config.Verbosity > 1 {
			message := fmt.Sprintf("Event %d completed after a later event was released", group.ID)
			f.logger.Info(message, "framer")
		}
		return
	}
	f.events.Push(group)
}

// SetExhausted marks the end of the stream. The trailing partial packet and
// incomplete event groups are discarded; buffered events become releasable.
func (f *Framer) SetExhausted() {
	if f.exhausted {
		return
	}
	f.exhausted = true
	f.stats.PartialBytes += int64(len(f.buf) - f.pos)
	f.buf = nil
	f.pos = 0
	f.stats.IncompleteDropped += int64(len(f.groups))
	clear(f.groups)
}

func (f *Framer) Exhausted() bool {
	return f.exhausted
}

// HasNext reports whether an event can be released now. Events whose pointing
// is out of range are dropped on the way.
func (f *Framer) HasNext() bool {
	for f.ready == nil {
		oldest := f.events.Oldest()
		if oldest == nil {
			return false
		}

		forced := false
		switch {
		case f.config.IgnorePointing, f.exhausted:
		case f.pointing.Covers(oldest.Timestamp):
		case f.events.Overflowing():
			forced = true
		default:
			return false
		}

		event := f.events.PopOldest()
		if forced {
			f.stats.ForcedReleases++
		}
		f.released = true
		f.lastReleased = event.Timestamp

		if !f.config.IgnorePointing {
			if pointing, ok := f.pointing.Match(event.Timestamp); ok {
				if pointing.OutOfRange {
					f.stats.OutOfRangeDropped++
					if f.config.Verbosity > 1 {
						message := fmt.Sprintf("Event %d dropped: pointing out of range", event.ID)
						f.logger.Info(message, "framer")
					}
					continue
				}
				event.Pointing = pointing
			}
			f.pointing.Prune(event.Timestamp)
		}
		f.ready = event
	}
	return true
}

// Next releases the oldest eligible event.
func (f *Framer) Next() (*eventbuilder.Event, bool) {
	if !f.HasNext() {
		return nil, false
	}
	event := f.ready
	f.ready = nil
	f.stats.EventsReleased++
	return event, true
}

// Done reports the terminal state: the stream ended and nothing is left.
func (f *Framer) Done() bool {
	return f.exhausted && f.ready == nil && f.events.Len() == 0
}

func (f *Framer) Pending() int {
	n := f.events.Len()
	if f.ready != nil {
		n++
	}
	return n
}

func (f *Framer) Stats() Stats {
	return f.stats
}
