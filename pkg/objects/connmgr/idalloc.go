package connmgr

import "github.com/kestrel-iiot/enip-adapter/pkg/cip"

// IDAllocator produces connection IDs as (incarnation_id<<16)|counter (spec
// 4.9): the incarnation ID distinguishes IDs issued by this process run
// from any issued before a restart, so a stale ID an originator still
// holds can never collide with a freshly issued one. Grounded on
// CIPster's GetConnectionId, which seeds its counter at 18 for historical
// compatibility with early test harnesses.
type IDAllocator struct {
	incarnationID uint16
	counter       uint16
}

// NewIDAllocator seeds the allocator with an incarnation ID (typically
// derived from process start time or a persisted boot counter) and starts
// the per-connection counter at 18 (spec 4.9).
func NewIDAllocator(incarnationID uint16) *IDAllocator {
	return &IDAllocator{incarnationID: incarnationID, counter: 18}
}

// Next returns the next connection ID and advances the counter.
func (a *IDAllocator) Next() cip.UDINT {
	a.counter++
	return cip.UDINT(uint32(a.incarnationID)<<16 | uint32(a.counter))
}
