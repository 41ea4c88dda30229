package timing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/connmgr"
)

func newTestManager(t *testing.T) *connmgr.Manager {
	t.Helper()
	reg := registry.NewRegistry()
	identity := connmgr.TargetIdentity{VendorID: 1, DeviceType: 1, ProductCode: 1, MajorRevision: 1, MinorRevision: 1}
	m, err := connmgr.New(reg, identity, 1, 10, nil)
	require.NoError(t, err)
	return m
}

type recordingFuncs struct {
	timeouts int
	closes   int
}

func (f *recordingFuncs) SendData(c *connmgr.Connection) error        { return nil }
func (f *recordingFuncs) ReceiveData(c *connmgr.Connection, d []byte) error { return nil }
func (f *recordingFuncs) Timeout(c *connmgr.Connection)                { f.timeouts++ }
func (f *recordingFuncs) Close(c *connmgr.Connection)                  { f.closes++ }

// TestS6WatchdogExpiryFiresOnceAndAutoDeletes: OTRPIus=5000us, multiplier=0
// gives watchdog=max(5<<2, 10000)=10000ms (spec 4.8's floor dominates).
// Advancing 10000ms with no consumed traffic fires Timeout exactly
// once and the connection leaves the active list under AutoDelete.
func TestS6WatchdogExpiryFiresOnceAndAutoDeletes(t *testing.T) {
	m := newTestManager(t)
	funcs := &recordingFuncs{}
	c := &connmgr.Connection{
		State:                     connmgr.StateEstablished,
		ConsumedConnectionID:      1,
		OTRPIus:                   5000,
		ConnectionTimeoutMultiplier: 0,
		InactivityWatchdogTimerMs: 10_000,
		WatchdogTimeoutAction:     connmgr.AutoDelete,
		TransportTrigger:          connmgr.TransportTrigger(0x82), // server, class 2, cyclic
		Funcs:                     funcs,
	}
	m.Active.Insert(c)

	e := New(m, 1000, nil)
	for i := 0; i < 9; i++ {
		e.Tick()
		require.Equal(t, connmgr.StateEstablished, c.State)
		require.Equal(t, 0, funcs.timeouts)
	}
	e.Tick() // 10th tick: timer was 1000, decremented to 0 -> fires
	require.Equal(t, 1, funcs.timeouts)
	require.Equal(t, 1, funcs.closes)
	require.Equal(t, connmgr.StateNonExistent, c.State)
	require.Equal(t, 0, m.Active.Len())

	// further ticks must not fire Timeout again: the connection is gone
	// from the active list entirely.
	e.Tick()
	require.Equal(t, 1, funcs.timeouts)
}

func TestWatchdogMonotonicDecrementUntilReload(t *testing.T) {
	m := newTestManager(t)
	funcs := &recordingFuncs{}
	c := &connmgr.Connection{
		State:                       connmgr.StateEstablished,
		ConsumedConnectionID:        2,
		OTRPIus:                     5000,
		InactivityWatchdogTimerMs:   3000,
		WatchdogTimeoutAction:       connmgr.AutoReset,
		TransportTrigger:            connmgr.TransportTrigger(0x82),
		Funcs:                       funcs,
	}
	m.Active.Insert(c)
	e := New(m, 1000, nil)

	prev := c.InactivityWatchdogTimerMs
	e.Tick()
	require.Less(t, c.InactivityWatchdogTimerMs, prev, "watchdog strictly decreases absent a reload")
}

func TestAutoResetKeepsConnectionInActiveListAsTimedOut(t *testing.T) {
	m := newTestManager(t)
	funcs := &recordingFuncs{}
	c := &connmgr.Connection{
		State:                     connmgr.StateEstablished,
		ConsumedConnectionID:      3,
		OTRPIus:                   1000,
		InactivityWatchdogTimerMs: 500,
		WatchdogTimeoutAction:     connmgr.AutoReset,
		TransportTrigger:          connmgr.TransportTrigger(0x82),
		Funcs:                     funcs,
	}
	m.Active.Insert(c)
	e := New(m, 1000, nil)
	e.Tick()

	require.Equal(t, connmgr.StateTimedOut, c.State)
	require.Equal(t, 1, funcs.timeouts)
	_, ok := m.Active.ByConsumedID(3)
	require.True(t, ok, "AutoReset leaves the record in the active list for possible reopen")
}

func TestTriggerConnectionsFindsFirstMatchAndArmsTransmission(t *testing.T) {
	m := newTestManager(t)
	c := &connmgr.Connection{
		State:                    connmgr.StateEstablished,
		ConsumedConnectionID:     4,
		TransportTrigger:         connmgr.TransportTrigger(0x20 | connmgr.TriggerApplicationTriggered<<4),
		ProducingInstance:        101,
		ConsumingInstance:        100,
		ProductionInhibitTimerMs: 50,
	}
	m.Active.Insert(c)

	ok := TriggerConnections(m, 101, 100)
	require.True(t, ok)
	require.Equal(t, int64(50), c.TransmissionTriggerTimerMs)

	require.False(t, TriggerConnections(m, 999, 999), "no connection matches these instances")
}
