package strategymgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-marketmaker/internal/config"
	"bitget-marketmaker/internal/core"
	"bitget-marketmaker/internal/events"
	"bitget-marketmaker/pkg/strategyerr"
)

// fakeEngine is a minimal runningEngine double so the manager's
// active/inactive bookkeeping can be tested without the real exchange
// round-trips CreateAndStart otherwise requires.
type fakeEngine struct {
	state        core.EngineState
	stopErr      error
	emergencyErr error
	stopped      bool
	emergency    bool
}

func (f *fakeEngine) Start(context.Context) error { return nil }
func (f *fakeEngine) Stop(context.Context) error {
	f.stopped = true
	f.state = core.StateStopped
	return f.stopErr
}
func (f *fakeEngine) EmergencyStop(context.Context) error {
	f.emergency = true
	f.state = core.StateStopped
	return f.emergencyErr
}
func (f *fakeEngine) State() core.EngineState { return f.state }

func TestState_ReportsStoppedWhenNoneActive(t *testing.T) {
	m := &Manager{}
	assert.Equal(t, core.StateStopped, m.State())
	assert.Nil(t, m.ActiveConfig())
	assert.Nil(t, m.Events())
}

func TestState_DelegatesToActiveEngine(t *testing.T) {
	m := &Manager{active: &fakeEngine{state: core.StateRunning}}
	assert.Equal(t, core.StateRunning, m.State())
}

func TestStopActive_ErrorsWhenNoneActive(t *testing.T) {
	m := &Manager{}
	err := m.StopActive(context.Background())
	assert.ErrorIs(t, err, strategyerr.ErrNotRunning)
}

func TestStopActive_StopsAndClearsActiveState(t *testing.T) {
	eng := &fakeEngine{state: core.StateRunning}
	ring := events.New()
	cfg := &config.StrategyConfig{Kind: config.KindScalping, Scalping: config.DefaultScalpingConfig()}
	m := &Manager{active: eng, activeRing: ring, activeConfig: cfg}

	require.NoError(t, m.StopActive(context.Background()))
	assert.True(t, eng.stopped)
	assert.Nil(t, m.ActiveConfig())
	assert.Nil(t, m.Events())
	assert.Equal(t, core.StateStopped, m.State())
}

func TestEmergencyStopActive_UsesEmergencyPath(t *testing.T) {
	eng := &fakeEngine{state: core.StateRunning}
	m := &Manager{active: eng}

	require.NoError(t, m.EmergencyStopActive(context.Background()))
	assert.True(t, eng.emergency)
	assert.False(t, eng.stopped)
}

func TestCreateAndStart_RejectsWhenAlreadyActive(t *testing.T) {
	m := &Manager{active: &fakeEngine{state: core.StateRunning}}

	err := m.CreateAndStart(context.Background(), &config.StrategyConfig{Kind: config.KindScalping, Scalping: config.DefaultScalpingConfig()})
	assert.ErrorIs(t, err, strategyerr.ErrAlreadyRunning)
}
