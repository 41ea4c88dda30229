package connmgr

// GeneralConnectionConfiguration applies the shared per-connection setup
// rules (spec 4.8) to a staging connection record, after ParseConnectionPath
// has succeeded and before the per-class open handler attaches application
// state and inserts the record into the active list.
func GeneralConnectionConfiguration(c *Connection, alloc *IDAllocator) {
	if c.OTParams.IsPointToPoint() {
		c.ConsumedConnectionID = alloc.Next()
	}
	if c.TOParams.IsMulticast() {
		c.ProducedConnectionID = alloc.Next()
	}

	c.SequenceCountProducing = 0
	c.SequenceCountConsuming = 0
	c.EIPSequenceCountProducing = 0
	c.EIPSequenceCountConsuming = 0

	c.WatchdogTimeoutAction = AutoDelete

	if !c.TransportTrigger.IsServer() {
		c.ExpectedPacketRateMs = int64(c.TORPIus) / 1000
		c.TransmissionTriggerTimerMs = 0
	} else {
		c.ExpectedPacketRateMs = int64(c.OTRPIus) / 1000
	}

	watchdog := (int64(c.OTRPIus) / 1000) << (2 + uint(c.ConnectionTimeoutMultiplier))
	if watchdog < 10_000 {
		watchdog = 10_000
	}
	c.InactivityWatchdogTimerMs = watchdog
}

// ConsumedSize and ProducedSize report the connection-size fields (spec
// 4.8's consumed_connection_size/produced_connection_size) the open handler
// uses to size the assembly buffer it attaches.
func ConsumedSize(c *Connection) int { return c.OTParams.Size() }
func ProducedSize(c *Connection) int { return c.TOParams.Size() }
