package app

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimplePolicy(t *testing.T) {
	p := SimplePolicy{}
	require.Equal(t, KickMember, p.OnBackPressure("s1", ControlTraffic))
	require.Equal(t, DropFrame, p.OnBackPressure("s1", VoiceActivityTraffic))

	require.Equal(t, "kick_member", KickMember.String())
	require.Equal(t, "drop_frame", DropFrame.String())
	require.Equal(t, "voice_activity", VoiceActivityTraffic.String())
	require.Equal(t, "control", ControlTraffic.String())
}
