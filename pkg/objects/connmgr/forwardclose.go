package connmgr

import (
	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// handleForwardClose implements spec 4.10: parse the header, linear-scan
// the active list for the identity triple over Established/TimedOut
// records, invoke the matched connection's Close function, and reply.
func (m *Manager) handleForwardClose(inst *registry.Instance, req *cip.MessageRouterRequest) ([]byte, error) {
	body := req.RequestData
	if len(body) < 10 {
		return nil, cip.Err(cip.StatusNotEnoughData)
	}

	c := cip.NewCursor(body)
	c.ReadU8() // priority/time_tick
	c.ReadU8() // timeout_ticks
	serial := c.ReadU16()
	vendor := c.ReadU16()
	origSerial := c.ReadU32()
	remainingPathSize := c.ReadU8()
	c.ReadU8() // reserved

	conn := m.Active.FindByIdentity(serial, vendor, origSerial)
	if conn == nil {
		body := encodeForwardCloseReply(serial, vendor, origSerial, remainingPathSize)
		return nil, cip.ErrWithData(cip.StatusConnectionFailure, body, cip.ExtStatusConnectionNotFoundAtTargetApplication)
	}

	if conn.Funcs != nil {
		conn.Funcs.Close(conn)
	}
	conn.State = StateNonExistent
	m.Active.Remove(conn)

	return encodeForwardCloseReply(serial, vendor, origSerial, remainingPathSize), nil
}

func encodeForwardCloseReply(serial, vendor cip.UINT, origSerial cip.UDINT, remainingPathSize cip.USINT) []byte {
	out := cip.NewWriteCursor(make([]byte, 0, 10))
	out.WriteU16(serial)
	out.WriteU16(vendor)
	out.WriteU32(origSerial)
	out.WriteU8(remainingPathSize)
	out.WriteU8(0) // reserved
	return out.Bytes()
}
