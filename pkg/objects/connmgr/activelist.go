package connmgr

import "github.com/kestrel-iiot/enip-adapter/pkg/cip"

// ActiveList is the intrusive doubly-linked active-connection list (spec 3,
// 9): established and timed-out connections, indexed by consumed
// connection ID for O(1) CPF lookup, with prev/next pointers for O(1)
// insert/remove during the timer tick walk.
type ActiveList struct {
	head, tail *Connection
	byConsumed map[cip.UDINT]*Connection
	count      int
}

// NewActiveList returns an empty active-connection list.
func NewActiveList() *ActiveList {
	return &ActiveList{byConsumed: make(map[cip.UDINT]*Connection)}
}

// Insert adds a connection to the list and indexes it by consumed
// connection ID. Called once, by the per-class open handler, on successful
// ForwardOpen (spec 3 "Ownership").
func (l *ActiveList) Insert(c *Connection) {
	c.prev = l.tail
	c.next = nil
	if l.tail != nil {
		l.tail.next = c
	} else {
		l.head = c
	}
	l.tail = c
	l.byConsumed[c.ConsumedConnectionID] = c
	l.count++
}

// Remove unlinks a connection from the list (ForwardClose, watchdog
// AutoDelete, unrecoverable send error — spec 3 "Lifecycle").
func (l *ActiveList) Remove(c *Connection) {
	if c.prev != nil {
		c.prev.next = c.next
	} else if l.head == c {
		l.head = c.next
	}
	if c.next != nil {
		c.next.prev = c.prev
	} else if l.tail == c {
		l.tail = c.prev
	}
	c.prev, c.next = nil, nil
	delete(l.byConsumed, c.ConsumedConnectionID)
	l.count--
}

// ByConsumedID looks up a connection by its consumed connection ID
// (HandleReceivedConnectedData, spec 4.11).
func (l *ActiveList) ByConsumedID(id cip.UDINT) (*Connection, bool) {
	c, ok := l.byConsumed[id]
	return c, ok
}

// FindByIdentity linear-scans for a record matching the identity triple in
// state Established or TimedOut (ForwardOpen duplicate check and
// ForwardClose lookup, spec 4.6 step 2, 4.10).
func (l *ActiveList) FindByIdentity(serial cip.UINT, vendor cip.UINT, origSerial cip.UDINT) *Connection {
	for c := l.head; c != nil; c = c.next {
		if c.State != StateEstablished && c.State != StateTimedOut {
			continue
		}
		s, v, o := c.Triple()
		if s == serial && v == vendor && o == origSerial {
			return c
		}
	}
	return nil
}

// Each walks the list in insertion order, used by ManageConnections (spec
// 4.12) and TriggerConnections (spec 4.12, 9).
func (l *ActiveList) Each(fn func(*Connection) (cont bool)) {
	for c := l.head; c != nil; {
		next := c.next // fn may Remove c
		if !fn(c) {
			return
		}
		c = next
	}
}

// Len returns the number of connections currently tracked.
func (l *ActiveList) Len() int { return l.count }
