package telemetry

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

// PcapSource replays the UDP payloads of a capture file as a telemetry stream.
type PcapSource struct {
	file   *os.File
	reader *pcapgo.Reader
	port   int

	pending []byte
	packets int64
	skipped int64
}

// OpenPcapSource opens a capture. Only UDP datagrams from or to port are used;
// 0 accepts every port.
func OpenPcapSource(filename string, port int) (*PcapSource, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, &eventbuilder.ErrOpenFile{Filename: filename, Err: err}
	}
	reader, err := pcapgo.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to open PCAP file %s: %w", filename, err)
	}
	return &PcapSource{file: file, reader: reader, port: port}, nil
}

func (s *PcapSource) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		data, _, err := s.reader.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return 0, io.EOF
		}
		if err != nil {
			return 0, fmt.Errorf("reading PCAP packet %d: %w", s.packets+s.skipped, err)
		}

		packet := gopacket.NewPacket(data, s.reader.LinkType(), gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			s.skipped++
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			s.skipped++
			continue
		}
		if s.port > 0 && int(udp.DstPort) != s.port && int(udp.SrcPort) != s.port {
			s.skipped++
			continue
		}
		s.packets++
		s.pending = udp.Payload
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Packets returns how many datagrams were used and how many were skipped.
func (s *PcapSource) Packets() (used, skipped int64) {
	return s.packets, s.skipped
}

func (s *PcapSource) Close() error {
	return s.file.Close()
}
