package telemetry

import (
	"testing"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePacket(t *testing.T) {
	data, err := EncodePacket(PacketHousekeeping, 0x01, []byte{0xAA, 0xBB, 0xCC})
	require.NoError(t, err)
	require.Len(t, data, HeaderSize+3+TrailerSize)

	packet, n, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, PacketHousekeeping, packet.Header.Type)
	assert.Equal(t, uint16(3), packet.Header.Length)
	assert.True(t, packet.IsFinalFragment())
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, packet.Payload)

	_, _, err = DecodePacket(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrShortPacket)
	_, _, err = DecodePacket(data[:4])
	assert.ErrorIs(t, err, ErrShortPacket)
	_, _, err = DecodePacket(data[1:])
	assert.ErrorIs(t, err, ErrNoSync)

	corrupted := append([]byte{}, data...)
	corrupted[7] ^= 0x01
	_, _, err = DecodePacket(corrupted)
	assert.ErrorIs(t, err, ErrBadChecksum)

	_, err = EncodePacket(PacketScience, 0, make([]byte, MaxPayloadSize+1))
	assert.Error(t, err)
}

func TestDecodeScienceRejectsTruncatedPayload(t *testing.T) {
	data, err := EncodeScience(testEvent(5, 50, 2), 0)
	require.NoError(t, err)
	packet, _, err := DecodePacket(data)
	require.NoError(t, err)

	_, err = DecodeScience(packet.Payload[:len(packet.Payload)-2])
	assert.Error(t, err)
	_, err = DecodeScience(append(append([]byte{}, packet.Payload...), 0))
	assert.Error(t, err)

	event, err := DecodeScience(packet.Payload)
	require.NoError(t, err)
	assert.Len(t, event.Hits, 2)
}

func TestEncodeScienceWithoutHits(t *testing.T) {
	data, err := EncodeScience(&eventbuilder.Event{ID: 3, Timestamp: 30, Trigger: true}, 0)
	require.NoError(t, err)

	f := NewFramer(FramerConfig{IgnorePointing: true}, nil)
	f.Feed(data)
	e, ok := f.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(3), e.ID)
	assert.Empty(t, e.Hits)
}

func TestDecodePointingSize(t *testing.T) {
	_, err := DecodePointing(make([]byte, 10))
	assert.Error(t, err)

	p := testPointing(77, 180)
	p.OutOfRange = true
	p.Source = eventbuilder.PointingMagnetometer
	packet, _, err := DecodePacket(EncodePointing(p))
	require.NoError(t, err)
	got, err := DecodePointing(packet.Payload)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
