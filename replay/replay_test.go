package replay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cheetah-relay/relay-go/wire"
)

func TestProtectionFirstFrameAlwaysAdmitted(t *testing.T) {
	p := &Protection{}
	require.True(t, p.Admit(wire.FrameId(100)))
}

func TestProtectionRejectsExactReplay(t *testing.T) {
	p := &Protection{}
	require.True(t, p.Admit(1))
	require.True(t, p.Admit(2))
	require.False(t, p.Admit(1)) // already seen
	require.False(t, p.Admit(2)) // already seen
}

func TestProtectionAdmitsOutOfOrderWithinWindow(t *testing.T) {
	p := &Protection{}
	require.True(t, p.Admit(10))
	require.True(t, p.Admit(5)) // behind highest but within window
	require.False(t, p.Admit(5))
}

func TestProtectionRejectsBehindTrailingEdge(t *testing.T) {
	p := &Protection{}
	require.True(t, p.Admit(1000))
	require.False(t, p.Admit(1000-WindowSize)) // exactly at the trailing edge
}

func TestProtectionAdvancesWindowOnBigJump(t *testing.T) {
	p := &Protection{}
	require.True(t, p.Admit(1))
	require.True(t, p.Admit(1000)) // jump far beyond window width
	require.True(t, p.Admit(999))  // now within the new window
	require.False(t, p.Admit(1000))
}
