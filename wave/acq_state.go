package wave

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vallen-systems/go-waveline/logger"
)

// AcqState represents the acquisition state of a device connection.
type AcqState uint32

// Acquisition states of a device connection.
const (
	// DisconnectedState indicates that the transport is not open.
	DisconnectedState AcqState = iota
	// IdleState indicates that the device is connected and not acquiring.
	IdleState
	// AcquiringState indicates that data acquisition is running.
	AcquiringState
)

// IsDisconnected returns if the current state is disconnected.
func (s AcqState) IsDisconnected() bool { return s == DisconnectedState }

// IsIdle returns if the current state is connected and idle.
func (s AcqState) IsIdle() bool { return s == IdleState }

// IsAcquiring returns if the current state is acquiring.
func (s AcqState) IsAcquiring() bool { return s == AcquiringState }

// String returns the string representation of the current state.
func (s AcqState) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case IdleState:
		return "idle"
	case AcquiringState:
		return "acquiring"
	default:
		return "unknown"
	}
}

// AcqStateChangeHandler is invoked when the acquisition state changes.
//
// Note: handlers are invoked in blocking mode; take care with long-running
// implementations.
type AcqStateChangeHandler func(prevState AcqState, newState AcqState)

// AcqStateMgr manages the acquisition state of a device connection:
// Disconnected, Idle (connected, not acquiring) and Acquiring.
//
// State transitions are safe for concurrent use, and registered handlers are
// notified of every change.
type AcqStateMgr struct {
	mu       sync.Mutex
	cond     *sync.Cond
	state    atomic.Uint32
	logger   logger.Logger
	handlers []AcqStateChangeHandler
}

// NewAcqStateMgr creates a new AcqStateMgr in the DisconnectedState.
// It accepts optional handlers invoked on every state change.
func NewAcqStateMgr(l logger.Logger, handlers ...AcqStateChangeHandler) *AcqStateMgr {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &AcqStateMgr{
		logger:   l,
		handlers: append([]AcqStateChangeHandler(nil), handlers...),
	}
	mgr.state.Store(uint32(DisconnectedState))
	mgr.cond = sync.NewCond(&mgr.mu)

	return mgr
}

// State returns the current acquisition state.
func (mgr *AcqStateMgr) State() AcqState {
	return AcqState(mgr.state.Load())
}

// IsDisconnected returns if the current state is disconnected.
func (mgr *AcqStateMgr) IsDisconnected() bool { return mgr.State().IsDisconnected() }

// IsIdle returns if the current state is connected and idle.
func (mgr *AcqStateMgr) IsIdle() bool { return mgr.State().IsIdle() }

// IsAcquiring returns if the current state is acquiring.
func (mgr *AcqStateMgr) IsAcquiring() bool { return mgr.State().IsAcquiring() }

// AddHandler adds one or more handlers to be invoked on state changes.
func (mgr *AcqStateMgr) AddHandler(handlers ...AcqStateChangeHandler) {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	mgr.handlers = append(mgr.handlers, handlers...)
}

// ToIdle transitions to IdleState, from either DisconnectedState (connect)
// or AcquiringState (stop acquisition). No-op if already idle.
func (mgr *AcqStateMgr) ToIdle() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()
	if curState.IsIdle() {
		return nil
	}

	mgr.setState(IdleState)
	mgr.invokeHandlers(curState, IdleState)

	return nil
}

// ToAcquiring transitions to AcquiringState. Only allowed from IdleState;
// no-op if already acquiring.
func (mgr *AcqStateMgr) ToAcquiring() error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()
	if curState.IsAcquiring() {
		return nil
	}
	if !curState.IsIdle() {
		return ErrInvalidTransition
	}

	mgr.setState(AcquiringState)
	mgr.invokeHandlers(curState, AcquiringState)

	return nil
}

// ToDisconnected transitions to DisconnectedState. This transition is
// allowed from any state and represents closing or losing the transport.
func (mgr *AcqStateMgr) ToDisconnected() {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	curState := mgr.State()
	if curState.IsDisconnected() {
		return
	}

	// change state before the handlers run so that concurrent operations
	// observe the disconnect immediately
	mgr.setState(DisconnectedState)
	mgr.invokeHandlers(curState, DisconnectedState)
}

// WaitState waits for the acquisition state to reach the given state or
// until the context is done. It returns nil if the desired state is reached,
// or the context error otherwise.
func (mgr *AcqStateMgr) WaitState(ctx context.Context, state AcqState) error {
	mgr.mu.Lock()
	defer mgr.mu.Unlock()

	if mgr.State() == state {
		return nil
	}

	stopFunc := context.AfterFunc(ctx, func() {
		mgr.cond.Broadcast()
	})
	defer stopFunc()

	for mgr.State() != state {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			mgr.cond.Wait()
		}
	}

	return nil
}

// setState atomically sets the current state and wakes any waiting
// goroutines. Callers must hold mgr.mu.
func (mgr *AcqStateMgr) setState(newState AcqState) {
	mgr.state.Store(uint32(newState))
	mgr.cond.Broadcast()
}

// invokeHandlers invokes all registered handlers. Callers must hold mgr.mu.
func (mgr *AcqStateMgr) invokeHandlers(prevState AcqState, newState AcqState) {
	mgr.logger.Debug("acquisition state change", "prevState", prevState, "newState", newState)
	for _, handler := range mgr.handlers {
		if handler != nil {
			handler(prevState, newState)
		}
	}
}
