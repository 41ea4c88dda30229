package connmgr

import (
	"net"

	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/eip"
)

// seqGT32 implements SEQ_GT32 (spec 4.11, 8 invariant 6): a is strictly
// newer than b under 32-bit sequence-number wraparound.
func seqGT32(a, b uint32) bool {
	return (a-b)&0x80000000 == 0 && a != b
}

// HandleReceivedConnectedData implements spec 4.11: parse the CPF, resolve
// the consumed connection, source-address and sequence-number gate, then
// invoke the connection's receive_data handler. There is no reply — this
// path only runs over UDP.
func (m *Manager) HandleReceivedConnectedData(data []byte, from *net.UDPAddr) {
	cpf, err := eip.DecodeCommonPacketFormat(data)
	if err != nil || len(cpf.Items) < 2 {
		m.Log.Debug("connected data: malformed CPF", zap.Error(err))
		return
	}

	addrItem := cpf.Items[0]
	dataItem := cpf.FindItemByType(eip.ItemIDConnectedData)
	if dataItem == nil {
		m.Log.Debug("connected data: missing ConnectedDataItem")
		return
	}

	var connID uint32
	var seq uint32
	hasSeq := false

	switch addrItem.TypeID {
	case eip.ItemIDSequencedAddress:
		connID, seq, err = eip.DecodeSequencedAddress(addrItem.Data)
		hasSeq = true
	case eip.ItemIDConnectedAddress:
		connID, err = eip.DecodeConnectedAddress(addrItem.Data)
	default:
		m.Log.Debug("connected data: unexpected address item", zap.Uint16("type", addrItem.TypeID))
		return
	}
	if err != nil {
		m.Log.Debug("connected data: bad address item", zap.Error(err))
		return
	}

	conn, ok := m.Active.ByConsumedID(cip.UDINT(connID))
	if !ok {
		m.Log.Debug("connected data: unknown connection ID", zap.Uint32("id", connID))
		return
	}

	switch {
	case conn.OriginatorAddr == nil:
		// First datagram on this connection establishes the originator's
		// address (spec 6's "network layer" collaborator resolves this;
		// the core only ever learns it by observing traffic). Needed both
		// for the mismatch check below on subsequent datagrams and as the
		// destination the I/O layer sends produced data back to.
		conn.OriginatorAddr = from
	case from != nil && !conn.OriginatorAddr.IP.Equal(from.IP):
		m.Log.Warn("connected data: source address mismatch, dropping",
			zap.String("expected", conn.OriginatorAddr.IP.String()), zap.String("got", from.IP.String()))
		return
	}

	if hasSeq {
		if !seqGT32(seq, conn.SequenceCountConsuming) {
			return
		}
		conn.SequenceCountConsuming = seq
	}

	conn.InactivityWatchdogTimerMs = watchdogReload(conn)

	if conn.Funcs == nil {
		return
	}
	if err := conn.Funcs.ReceiveData(conn, dataItem.Data); err != nil {
		m.Log.Warn("connected data: receive_data failed", zap.Uint32("connection", connID), zap.Error(err))
	}
}

func watchdogReload(c *Connection) int64 {
	watchdog := (int64(c.OTRPIus) / 1000) << (2 + uint(c.ConnectionTimeoutMultiplier))
	if watchdog < 10_000 {
		watchdog = 10_000
	}
	return watchdog
}
