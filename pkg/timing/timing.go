// Package timing implements the fixed-tick connection timer (spec 4.12):
// ManageConnections, run once per TimerTickMs, and TriggerConnections for
// application-triggered production. Grounded on CIPster's
// ManageConnections in cipconnectionmanager.c, which this replaces the
// teacher's wall-clock time.Since-based scheduler with: spec 4.12 is
// explicit that the model is a fixed tick, not a wall-clock poll.
package timing

import (
	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/objects/connmgr"
)

// Engine drives ManageConnections over a connmgr.Manager's active list.
type Engine struct {
	mgr    *connmgr.Manager
	tickMs int64
	log    *zap.Logger

	// OnSend, if set, runs immediately after send_data succeeds for a
	// connection this tick (spec 4.12 step 2). The core has no concept of
	// a network transmit; this is the seam the UDP I/O layer hooks to turn
	// a freshly populated ProducePayload() into a wire datagram.
	OnSend func(c *connmgr.Connection)

	// OnWatchdogExpiry, if set, fires whenever a connection's inactivity
	// watchdog reaches zero, labeled by the resulting watchdog_timeout_action.
	OnWatchdogExpiry func(action connmgr.WatchdogTimeoutAction)
}

// New returns a timing engine ticking at tickMs over mgr's active list.
func New(mgr *connmgr.Manager, tickMs int64, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{mgr: mgr, tickMs: tickMs, log: log}
}

// Tick runs one ManageConnections pass (spec 4.12). Call every tickMs from
// the single core thread (spec 5).
func (e *Engine) Tick() {
	e.mgr.Active.Each(func(c *connmgr.Connection) bool {
		if c.State != connmgr.StateEstablished {
			return true
		}

		if c.ConsumesOrIsServer() {
			c.InactivityWatchdogTimerMs -= e.tickMs
			if c.InactivityWatchdogTimerMs <= 0 {
				e.timeout(c)
				if c.State != connmgr.StateEstablished {
					return true
				}
			}
		}

		if c.State == connmgr.StateEstablished && c.ExpectedPacketRateMs != 0 && c.ProduceSocketValid {
			if !c.TransportTrigger.IsCyclic() {
				c.ProductionInhibitTimerMs -= e.tickMs
			}
			c.TransmissionTriggerTimerMs -= e.tickMs
			if c.TransmissionTriggerTimerMs <= 0 {
				if c.Funcs != nil {
					if err := c.Funcs.SendData(c); err != nil {
						e.log.Warn("timing: send_data failed, aborting this tick's send", zap.Error(err))
					} else if e.OnSend != nil {
						e.OnSend(c)
					}
				}
				c.TransmissionTriggerTimerMs = c.ExpectedPacketRateMs
				if !c.TransportTrigger.IsCyclic() {
					c.ProductionInhibitTimerMs = c.ProductionInhibitTimeMs
				}
			}
		}
		return true
	})
}

// timeout runs the watchdog-expiry handler (spec 3, 4.12): invoke the
// connection's Timeout hook, then apply watchdog_timeout_action.
func (e *Engine) timeout(c *connmgr.Connection) {
	if c.Funcs != nil {
		c.Funcs.Timeout(c)
	}
	if e.OnWatchdogExpiry != nil {
		e.OnWatchdogExpiry(c.WatchdogTimeoutAction)
	}
	switch c.WatchdogTimeoutAction {
	case connmgr.AutoDelete:
		if c.Funcs != nil {
			c.Funcs.Close(c)
		}
		c.State = connmgr.StateNonExistent
		e.mgr.Active.Remove(c)
	case connmgr.AutoReset:
		c.State = connmgr.StateTimedOut
	case connmgr.DeferredDelete:
		c.State = connmgr.StateTimedOut
	case connmgr.Manual:
		c.State = connmgr.StateTimedOut
	}
}

// TriggerConnections implements application-triggered production (spec
// 4.12, 9): find the first Established, application-triggered connection
// whose produced/consumed assembly instances match outAsm/inAsm, nudge it
// to produce on the next tick, and return. The source's TriggerConnections
// never advanced its iterator past the first match; that quirk is made
// explicit here rather than reproduced.
func TriggerConnections(mgr *connmgr.Manager, outAsm, inAsm uint32) bool {
	found := false
	mgr.Active.Each(func(c *connmgr.Connection) bool {
		if c.State != connmgr.StateEstablished {
			return true
		}
		if c.TransportTrigger.Production() != connmgr.TriggerApplicationTriggered {
			return true
		}
		if c.ProducingInstance != outAsm || c.ConsumingInstance != inAsm {
			return true
		}
		c.TransmissionTriggerTimerMs = c.ProductionInhibitTimerMs
		found = true
		return false
	})
	return found
}
