package telemetry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	SyncByte0 = 0xEB
	SyncByte1 = 0x90

	HeaderSize     = 6
	TrailerSize    = 4
	MaxPayloadSize = 0xFFFF
)

var syncMarker = []byte{SyncByte0, SyncByte1}

type PacketType uint8

const (
	PacketScience      PacketType = 1
	PacketPointing     PacketType = 2
	PacketHousekeeping PacketType = 3
)

func (t PacketType) String() string {
	switch t {
	case PacketScience:
		return "science"
	case PacketPointing:
		return "pointing"
	case PacketHousekeeping:
		return "housekeeping"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Packet flag bits
const (
	FlagFinalFragment = 0
)

// PacketHeader is the fixed part in front of every payload.
type PacketHeader struct {
	Sync   uint16
	Type   PacketType
	Flags  uint8
	Length uint16
}

type Packet struct {
	Header  PacketHeader
	Payload []byte
}

func (p Packet) IsFinalFragment() bool {
	return CheckBit(p.Header.Flags, FlagFinalFragment)
}

var (
	// ErrShortPacket means more bytes are needed to decode the packet.
	ErrShortPacket = errors.New("incomplete packet")
	ErrBadChecksum = errors.New("packet checksum mismatch")
	ErrNoSync      = errors.New("no sync marker")
)

// DecodePacket reads one packet at the start of data and returns it with the
// number of bytes it occupies. The payload aliases data.
func DecodePacket(data []byte) (Packet, int, error) {
	var packet Packet
	if len(data) < HeaderSize {
		return packet, 0, ErrShortPacket
	}
	if !bytes.HasPrefix(data, syncMarker) {
		return packet, 0, ErrNoSync
	}

	headerReader := bytes.NewReader(data[:HeaderSize])
	if err := binary.Read(headerReader, binary.LittleEndian, &packet.Header); err != nil {
		return packet, 0, fmt.Errorf("reading packet header: %w", err)
	}

	size := HeaderSize + int(packet.Header.Length) + TrailerSize
	if len(data) < size {
		return packet, 0, ErrShortPacket
	}

	end := HeaderSize + int(packet.Header.Length)
	checksum := binary.LittleEndian.Uint32(data[end:size])
	if crc32.ChecksumIEEE(data[2:end]) != checksum {
		return packet, 0, ErrBadChecksum
	}
	packet.Payload = data[HeaderSize:end]
	return packet, size, nil
}

// EncodePacket frames a payload.
func EncodePacket(packetType PacketType, flags uint8, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds the packet limit", len(payload))
	}
	out := make([]byte, HeaderSize, HeaderSize+len(payload)+TrailerSize)
	out[0] = SyncByte0
	out[1] = SyncByte1
	out[2] = byte(packetType)
	out[3] = flags
	binary.LittleEndian.PutUint16(out[4:6], uint16(len(payload)))
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(out[2:]))
	return out, nil
}

func CheckBit(mask uint8, pos uint8) bool {
	return (mask & (1 << pos)) != 0
}
