package client

import (
	"testing"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestLevelFromDBov(t *testing.T) {
	require.Equal(t, 100.0, LevelFromDBov(0))
	require.Equal(t, 0.0, LevelFromDBov(127))
	require.Equal(t, 0.0, LevelFromDBov(200))
	mid := LevelFromDBov(64)
	require.InDelta(t, 49.6, mid, 0.1)
}

func TestLevelFromPacket(t *testing.T) {
	ext := rtp.AudioLevelExtension{Level: 30, Voice: true}
	raw, err := ext.Marshal()
	require.NoError(t, err)

	pkt := &rtp.Packet{Header: rtp.Header{Version: 2}}
	require.NoError(t, pkt.SetExtension(3, raw))

	level, voice, ok := LevelFromPacket(pkt, 3)
	require.True(t, ok)
	require.True(t, voice)
	require.Equal(t, LevelFromDBov(30), level)

	_, _, ok = LevelFromPacket(pkt, 4)
	require.False(t, ok)
	_, _, ok = LevelFromPacket(nil, 3)
	require.False(t, ok)
}

func TestAudioLevelExtID(t *testing.T) {
	id, ok := AudioLevelExtID(webrtc.RTPParameters{
		HeaderExtensions: []webrtc.RTPHeaderExtensionParameter{
			{URI: sdp.SDESMidURI, ID: 1},
			{URI: sdp.AudioLevelURI, ID: 5},
		},
	})
	require.True(t, ok)
	require.Equal(t, uint8(5), id)

	_, ok = AudioLevelExtID(webrtc.RTPParameters{})
	require.False(t, ok)
}

func TestActivityDetector(t *testing.T) {
	d := &ActivityDetector{Threshold: 10, Hangover: 300 * time.Millisecond}
	t0 := time.Unix(0, 0)

	speaking, changed := d.Observe(5, t0)
	require.False(t, speaking)
	require.False(t, changed)

	speaking, changed = d.Observe(40, t0.Add(20*time.Millisecond))
	require.True(t, speaking)
	require.True(t, changed)

	// short pause stays speaking
	speaking, changed = d.Observe(2, t0.Add(200*time.Millisecond))
	require.True(t, speaking)
	require.False(t, changed)

	speaking, changed = d.Observe(2, t0.Add(400*time.Millisecond))
	require.False(t, speaking)
	require.True(t, changed)
	require.False(t, d.Speaking())
}
