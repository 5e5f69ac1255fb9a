package wave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcqState_String(t *testing.T) {
	assert.Equal(t, "disconnected", DisconnectedState.String())
	assert.Equal(t, "idle", IdleState.String())
	assert.Equal(t, "acquiring", AcquiringState.String())
	assert.Equal(t, "unknown", AcqState(99).String())
}

func TestAcqStateMgr_Transitions(t *testing.T) {
	mgr := NewAcqStateMgr(nil)
	assert.True(t, mgr.IsDisconnected())

	// acquiring requires idle
	assert.ErrorIs(t, mgr.ToAcquiring(), ErrInvalidTransition)

	require.NoError(t, mgr.ToIdle())
	assert.True(t, mgr.IsIdle())

	require.NoError(t, mgr.ToAcquiring())
	assert.True(t, mgr.IsAcquiring())

	// no-op when already acquiring
	require.NoError(t, mgr.ToAcquiring())
	assert.True(t, mgr.IsAcquiring())

	require.NoError(t, mgr.ToIdle())
	assert.True(t, mgr.IsIdle())

	mgr.ToDisconnected()
	assert.True(t, mgr.IsDisconnected())

	// disconnect is allowed from any state, repeated calls are no-ops
	mgr.ToDisconnected()
	assert.True(t, mgr.IsDisconnected())
}

func TestAcqStateMgr_Handlers(t *testing.T) {
	type change struct {
		prev AcqState
		next AcqState
	}
	var changes []change

	mgr := NewAcqStateMgr(nil, func(prev, next AcqState) {
		changes = append(changes, change{prev, next})
	})

	require.NoError(t, mgr.ToIdle())
	require.NoError(t, mgr.ToAcquiring())
	mgr.ToDisconnected()

	// rejected transitions must not notify
	assert.Error(t, mgr.ToAcquiring())
	assert.Equal(t, []change{
		{DisconnectedState, IdleState},
		{IdleState, AcquiringState},
		{AcquiringState, DisconnectedState},
	}, changes)
}

func TestAcqStateMgr_WaitState(t *testing.T) {
	mgr := NewAcqStateMgr(nil)

	done := make(chan error, 1)
	go func() {
		done <- mgr.WaitState(context.Background(), IdleState)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, mgr.ToIdle())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitState did not return after state change")
	}
}

func TestAcqStateMgr_WaitStateContextCancel(t *testing.T) {
	mgr := NewAcqStateMgr(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := mgr.WaitState(ctx, AcquiringState)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
