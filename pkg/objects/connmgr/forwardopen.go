package connmgr

import (
	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// handleForwardOpen implements spec 4.6: populate a staging record from the
// 36-byte header, duplicate-check, connection-type mask check, RPI
// rounding, trigger sanity, ParseConnectionPath, connectable-object
// dispatch, and reply assembly. Grounded on CIPster's ForwardOpen in
// cipconnectionmanager.c.
func (m *Manager) handleForwardOpen(inst *registry.Instance, req *cip.MessageRouterRequest) ([]byte, error) {
	body := req.RequestData
	if len(body) < 36 {
		return nil, cip.Err(cip.StatusNotEnoughData)
	}

	c := cip.NewCursor(body)
	staging := &Connection{State: StateConfiguring}

	c.ReadU8() // priority/time_tick
	c.ReadU8() // timeout_ticks
	staging.ConsumedConnectionID = c.ReadU32()
	staging.ProducedConnectionID = c.ReadU32()
	staging.ConnectionSerialNumber = c.ReadU16()
	staging.OriginatorVendorID = c.ReadU16()
	staging.OriginatorSerialNumber = c.ReadU32()
	staging.ConnectionTimeoutMultiplier = c.ReadU8()
	c.Skip(3) // reserved
	staging.OTRPIus = c.ReadU32()
	staging.OTParams = NetworkConnectionParams(c.ReadU16())
	staging.TORPIus = c.ReadU32()
	staging.TOParams = NetworkConnectionParams(c.ReadU16())
	staging.TransportTrigger = TransportTrigger(c.ReadU8())
	pathSizeWords := int(c.ReadU8())

	serial, vendor, orig := staging.Triple()
	if existing := m.Active.FindByIdentity(serial, vendor, orig); existing != nil {
		if staging.ConsumedConnectionID == 0 && staging.ProducedConnectionID == 0 {
			m.Log.Info("forwardopen: duplicate with null connection IDs, reconfiguration not implemented",
				zap.Uint16("serial", uint16(serial)), zap.Uint16("vendor", uint16(vendor)))
		}
		return nil, m.forwardOpenFailure(staging, cip.ExtStatusConnectionInUse)
	}

	if staging.OTParams.IsReserved() {
		return nil, m.forwardOpenFailure(staging, cip.ExtStatusInvalidOToTConnectionType)
	}
	if staging.TOParams.IsReserved() {
		return nil, m.forwardOpenFailure(staging, cip.ExtStatusInvalidTToOConnectionType)
	}

	tickUs := m.TimerTickMs * 1000
	if tickUs > 0 {
		staging.TORPIus = roundUpToMultiple(staging.TORPIus, cip.UDINT(tickUs))
	}

	if staging.TransportTrigger.ExtendedBit() {
		return nil, m.forwardOpenFailure(staging, cip.ExtStatusTransportTriggerNotSupported)
	}

	if c.Remaining() < pathSizeWords*2 {
		return nil, cip.Err(cip.StatusNotEnoughData)
	}
	if c.Remaining() > pathSizeWords*2 {
		return nil, cip.Err(cip.StatusTooMuchData)
	}
	pathBytes := c.ReadBytes(pathSizeWords * 2)

	parsed, configData, err := ParseConnectionPath(pathBytes, m.Registry, m.Identity, staging.TransportTrigger, staging.OTParams, staging.TOParams)
	if err != nil {
		if cerr, ok := err.(cip.Error); ok && cerr.Status == cip.StatusConnectionFailure {
			cerr.ResponseData = encodeForwardOpenErrorBody(staging)
			return nil, cerr
		}
		return nil, err
	}
	staging.Path = parsed
	staging.ConfigData = configData

	handler, ok := m.Objects.Lookup(uint32(parsed.ClassID))
	if !ok {
		return nil, m.forwardOpenFailure(staging, cip.ExtStatusInconsistentApplicationPathCombo)
	}

	GeneralConnectionConfiguration(staging, m.Alloc)

	if err := handler(m, staging); err != nil {
		return nil, err
	}

	staging.State = StateEstablished
	m.Active.Insert(staging)

	return encodeForwardOpenSuccess(staging), nil
}

func encodeForwardOpenSuccess(c *Connection) []byte {
	out := cip.NewWriteCursor(make([]byte, 0, 26))
	out.WriteU32(c.ConsumedConnectionID)
	out.WriteU32(c.ProducedConnectionID)
	out.WriteU16(c.ConnectionSerialNumber)
	out.WriteU16(c.OriginatorVendorID)
	out.WriteU32(c.OriginatorSerialNumber)
	out.WriteU32(c.OTRPIus)
	out.WriteU32(c.TORPIus)
	out.WriteU8(0) // remaining application path size
	out.WriteU8(0) // reserved
	return out.Bytes()
}

// forwardOpenFailure builds a ConnectionFailure error that still echoes
// the identity triple in its body (spec 7).
func (m *Manager) forwardOpenFailure(c *Connection, ext cip.UINT) error {
	return cip.ErrWithData(cip.StatusConnectionFailure, encodeForwardOpenErrorBody(c), ext)
}

func encodeForwardOpenErrorBody(c *Connection) []byte {
	out := cip.NewWriteCursor(make([]byte, 0, 10))
	out.WriteU16(c.ConnectionSerialNumber)
	out.WriteU16(c.OriginatorVendorID)
	out.WriteU32(c.OriginatorSerialNumber)
	out.WriteU8(0) // remaining application path size
	out.WriteU8(0) // reserved
	return out.Bytes()
}

func roundUpToMultiple(v, mult cip.UDINT) cip.UDINT {
	if mult == 0 {
		return v
	}
	if v%mult == 0 {
		return v
	}
	return (v/mult + 1) * mult
}
