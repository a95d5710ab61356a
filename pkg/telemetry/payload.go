package telemetry

import (
	"bytes"
	"encoding/binary"
	"fmt"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

// Science flag bits
const (
	FlagVeto    = 0
	FlagTrigger = 1
)

// Hit flag bits
const (
	FlagMultipleX = 0
	FlagMultipleY = 1
)

// Strip flag bits
const (
	FlagYAxis    = 0
	FlagPositive = 1
)

// Pointing flag bits
const (
	FlagOutOfRange = 0
	FlagGPS        = 1
)

type scienceHeader struct {
	ID        uint64
	Timestamp uint64
	Flags     uint8
	NHits     uint8
}

type hitHeader struct {
	NStrips uint8
	Flags   uint8
}

type stripRecord struct {
	Detector uint8
	Strip    uint8
	Flags    uint8
	Reserved uint8
	Energy   float32
	Timing   float32
}

type pointingRecord struct {
	Timestamp          uint64
	Flags              uint8
	Heading            float64
	Pitch              float64
	Roll               float64
	Latitude           float64
	Longitude          float64
	Altitude           float64
	GalacticXLongitude float64
	GalacticXLatitude  float64
	GalacticZLongitude float64
	GalacticZLatitude  float64
	HorizonXAzimuth    float64
	HorizonXElevation  float64
	HorizonZAzimuth    float64
	HorizonZElevation  float64
}

// DecodeScience reads one science fragment into a new event carrying its hits.
func DecodeScience(payload []byte) (*eventbuilder.Event, error) {
	reader := bytes.NewReader(payload)

	var header scienceHeader
	if err := binary.Read(reader, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("reading science header: %w", err)
	}

	event := eventbuilder.NewEvent()
	event.ID = header.ID
	event.Timestamp = header.Timestamp
	event.Veto = CheckBit(header.Flags, FlagVeto)
	event.Trigger = CheckBit(header.Flags, FlagTrigger)

	for i := 0; i < int(header.NHits); i++ {
		var hh hitHeader
		if err := binary.Read(reader, binary.LittleEndian, &hh); err != nil {
			return nil, fmt.Errorf("reading hit %d of event %d: %w", i, header.ID, err)
		}
		hit := &eventbuilder.Hit{
			MultipleX: CheckBit(hh.Flags, FlagMultipleX),
			MultipleY: CheckBit(hh.Flags, FlagMultipleY),
			StripHits: make([]*eventbuilder.StripHit, 0, hh.NStrips),
		}
		for j := 0; j < int(hh.NStrips); j++ {
			var sr stripRecord
			if err := binary.Read(reader, binary.LittleEndian, &sr); err != nil {
				return nil, fmt.Errorf("reading strip %d of hit %d, event %d: %w", j, i, header.ID, err)
			}
			axis := eventbuilder.AxisX
			if CheckBit(sr.Flags, FlagYAxis) {
				axis = eventbuilder.AxisY
			}
			strip := eventbuilder.NewStripHit(int(sr.Detector), int(sr.Strip), axis,
				CheckBit(sr.Flags, FlagPositive), float64(sr.Energy), float64(sr.Timing))
			hit.StripHits = append(hit.StripHits, strip)
			hit.Energy += strip.Energy()
		}
		event.AddHit(hit)
	}
	if reader.Len() != 0 {
		return nil, fmt.Errorf("event %d: %d trailing bytes in science payload", header.ID, reader.Len())
	}
	return event, nil
}

func DecodePointing(payload []byte) (*eventbuilder.Pointing, error) {
	var record pointingRecord
	if len(payload) != binary.Size(record) {
		return nil, fmt.Errorf("pointing payload has %d bytes, expected %d", len(payload), binary.Size(record))
	}
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, &record); err != nil {
		return nil, fmt.Errorf("reading pointing: %w", err)
	}
	source := eventbuilder.PointingMagnetometer
	if CheckBit(record.Flags, FlagGPS) {
		source = eventbuilder.PointingGPS
	}
	return &eventbuilder.Pointing{
		Timestamp:          record.Timestamp,
		Source:             source,
		Heading:            record.Heading,
		Pitch:              record.Pitch,
		Roll:               record.Roll,
		Latitude:           record.Latitude,
		Longitude:          record.Longitude,
		Altitude:           record.Altitude,
		GalacticXLongitude: record.GalacticXLongitude,
		GalacticXLatitude:  record.GalacticXLatitude,
		GalacticZLongitude: record.GalacticZLongitude,
		GalacticZLatitude:  record.GalacticZLatitude,
		HorizonXAzimuth:    record.HorizonXAzimuth,
		HorizonXElevation:  record.HorizonXElevation,
		HorizonZAzimuth:    record.HorizonZAzimuth,
		HorizonZElevation:  record.HorizonZElevation,
		OutOfRange:         CheckBit(record.Flags, FlagOutOfRange),
	}, nil
}

func setBit(mask *uint8, pos uint8, value bool) {
	if value {
		*mask |= 1 << pos
	}
}

// EncodeScience builds the science packets of an event, at most hitsPerFragment
// hits per packet. The last packet carries the final-fragment flag.
func EncodeScience(event *eventbuilder.Event, hitsPerFragment int) ([]byte, error) {
	if hitsPerFragment <= 0 || hitsPerFragment > 255 {
		hitsPerFragment = 255
	}
	var header scienceHeader
	header.ID = event.ID
	header.Timestamp = event.Timestamp
	setBit(&header.Flags, FlagVeto, event.Veto)
	setBit(&header.Flags, FlagTrigger, event.Trigger)

	out := make([]byte, 0)
	start := 0
	for {
		end := min(start+hitsPerFragment, len(event.Hits))
		header.NHits = uint8(end - start)

		payload := new(bytes.Buffer)
		binary.Write(payload, binary.LittleEndian, header)
		for _, hit := range event.Hits[start:end] {
			if len(hit.StripHits) > 255 {
				return nil, fmt.Errorf("event %d: hit with %d strips", event.ID, len(hit.StripHits))
			}
			hh := hitHeader{NStrips: uint8(len(hit.StripHits))}
			setBit(&hh.Flags, FlagMultipleX, hit.MultipleX)
			setBit(&hh.Flags, FlagMultipleY, hit.MultipleY)
			binary.Write(payload, binary.LittleEndian, hh)
			for _, s := range hit.StripHits {
				sr := stripRecord{
					Detector: uint8(s.DetectorID()),
					Strip:    uint8(s.StripID()),
					Energy:   float32(s.Energy()),
					Timing:   float32(s.Timing()),
				}
				setBit(&sr.Flags, FlagYAxis, !s.IsXStrip())
				setBit(&sr.Flags, FlagPositive, s.IsPositiveStrip())
				binary.Write(payload, binary.LittleEndian, sr)
			}
		}

		var flags uint8
		setBit(&flags, FlagFinalFragment, end == len(event.Hits))
		packet, err := EncodePacket(PacketScience, flags, payload.Bytes())
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", event.ID, err)
		}
		out = append(out, packet...)

		start = end
		if start >= len(event.Hits) {
			return out, nil
		}
	}
}

func EncodePointing(p *eventbuilder.Pointing) []byte {
	record := pointingRecord{
		Timestamp:          p.Timestamp,
		Heading:            p.Heading,
		Pitch:              p.Pitch,
		Roll:               p.Roll,
		Latitude:           p.Latitude,
		Longitude:          p.Longitude,
		Altitude:           p.Altitude,
		GalacticXLongitude: p.GalacticXLongitude,
		GalacticXLatitude:  p.GalacticXLatitude,
		GalacticZLongitude: p.GalacticZLongitude,
		GalacticZLatitude:  p.GalacticZLatitude,
		HorizonXAzimuth:    p.HorizonXAzimuth,
		HorizonXElevation:  p.HorizonXElevation,
		HorizonZAzimuth:    p.HorizonZAzimuth,
		HorizonZElevation:  p.HorizonZElevation,
	}
	setBit(&record.Flags, FlagOutOfRange, p.OutOfRange)
	setBit(&record.Flags, FlagGPS, p.Source == eventbuilder.PointingGPS)

	payload := new(bytes.Buffer)
	binary.Write(payload, binary.LittleEndian, record)
	// a pointing payload is always far below the packet limit
	packet, _ := EncodePacket(PacketPointing, 0, payload.Bytes())
	return packet
}
