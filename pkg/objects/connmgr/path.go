package connmgr

import (
	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// TargetIdentity is the subset of the Identity object's attributes the
// electronic-key check validates against (spec 4.7 step 1).
type TargetIdentity struct {
	VendorID      cip.UINT
	DeviceType    cip.UINT
	ProductCode   cip.UINT
	MajorRevision cip.USINT
	MinorRevision cip.USINT
}

// ParseConnectionPath implements spec 4.7: electronic key validation,
// optional PIT segment, mandatory class segment, optional configuration
// instance, Class-3/I/O connection-point accounting, and trailing
// configuration data. data holds exactly the connection-path bytes (the
// caller has already checked data's length against path_size_words*2).
// Grounded on CIPster's ParseConnectionPath in cipconnectionmanager.c,
// including its ordering of checks and choice of extended status per
// failure.
func ParseConnectionPath(data []byte, reg *registry.Registry, identity TargetIdentity, trigger TransportTrigger, otParams, toParams NetworkConnectionParams) (ParsedPath, []byte, error) {
	c := cip.NewCursor(data)
	var p ParsedPath

	if c.Remaining() >= 1 && peek(c) == 0x34 {
		if err := parseElectronicKey(c, identity); err != nil {
			return p, nil, err
		}
	}

	if !trigger.IsCyclic() && c.Remaining() >= 1 && peek(c) == 0x43 {
		if c.Remaining() < 2 {
			return p, nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
		c.Skip(1)
		c.ReadU8() // production_inhibit_time: consumed and discarded; ParsedPath does not carry it
	}

	if c.Remaining() < 2 {
		return p, nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
	}
	classID, err := readClassSegment(c)
	if err != nil {
		return p, nil, err
	}
	class, ok := reg.Class(classID)
	if !ok {
		if classID >= 0xC8 {
			return p, nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
		return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInconsistentApplicationPathCombo)
	}
	p.ClassID = classID

	// Collect the run of instance/connection-point segments that follows
	// the class segment, without consuming them yet: the configuration
	// instance (step 4) and the I/O connection points (step 6) share the
	// same segment bytes (0x24/0x25/0x2C), so whether a leading segment is
	// the optional config instance can only be told by counting how many
	// such segments are present against how many connection points the
	// trigger/params require.
	addrSegs, err := scanAddressSegments(c)
	if err != nil {
		return p, nil, err
	}

	if trigger.Class() == 3 {
		if len(addrSegs) != 1 {
			return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInconsistentApplicationPathCombo)
		}
		if classID != cip.ClassMessageRouter {
			return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInconsistentApplicationPathCombo)
		}
		instID := addrSegs[0]
		if _, ok := class.Instance(uint32(instID)); !ok {
			return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInvalidSegmentTypeInPath)
		}
		if instID != 1 {
			return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInconsistentApplicationPathCombo)
		}
		p.ConnPoint[2] = cip.UDINT(instID)
		p.ConnPointSet[2] = true
		p.ConnPoint[0] = p.ConnPoint[2]
		p.ConnPointSet[0] = true
		if c.Remaining() != 0 {
			return p, nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
		return p, nil, nil
	}

	nPoints := ioConnectionPointCount(otParams, toParams)
	var connPointSegs []cip.UDINT
	switch {
	case len(addrSegs) == nPoints:
		connPointSegs = addrSegs
	case len(addrSegs) == nPoints+1:
		p.ConnPoint[2] = addrSegs[0]
		p.ConnPointSet[2] = true
		if _, ok := class.Instance(uint32(addrSegs[0])); !ok {
			return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInvalidSegmentTypeInPath)
		}
		connPointSegs = addrSegs[1:]
	default:
		return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInvalidConnectionPointInNetworkSeg)
	}
	for i, cp := range connPointSegs {
		if _, ok := class.Instance(uint32(cp)); !ok {
			return p, nil, cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInvalidSegmentTypeInPath)
		}
		p.ConnPoint[i] = cp
		p.ConnPointSet[i] = true
	}

	var configData []byte
	for c.Remaining() > 0 {
		switch peek(c) {
		case 0x80:
			c.Skip(1)
			words := int(c.ReadU8())
			if c.Remaining() < words*2 {
				return p, nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
			}
			configData = c.ReadBytes(words * 2)
		case 0x43:
			if trigger.IsCyclic() || c.Remaining() < 2 {
				return p, nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
			}
			c.Skip(1)
			c.ReadU8()
		default:
			return p, nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
	}

	return p, configData, nil
}

// scanAddressSegments consumes the leading run of instance/connection-point
// segments (0x24/0x25/0x2C) after the class segment, returning their
// decoded IDs in wire order. Stops at the first segment of another kind
// (simple data, PIT) or end of input.
func scanAddressSegments(c *cip.Cursor) ([]cip.UDINT, error) {
	var out []cip.UDINT
	for c.Remaining() >= 1 {
		switch peek(c) {
		case 0x24, 0x25:
			id, err := readInstanceSegment(c)
			if err != nil {
				return nil, err
			}
			out = append(out, id)
		case 0x2C:
			c.Skip(1)
			if c.Remaining() < 1 {
				return nil, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
			}
			out = append(out, cip.UDINT(c.ReadU8()))
		default:
			return out, nil
		}
	}
	return out, nil
}

func peek(c *cip.Cursor) byte {
	return c.Rest()[0]
}

func readClassSegment(c *cip.Cursor) (cip.UINT, error) {
	switch peek(c) {
	case 0x20:
		if c.Remaining() < 2 {
			return 0, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
		c.Skip(1)
		return cip.UINT(c.ReadU8()), nil
	case 0x21:
		if c.Remaining() < 4 {
			return 0, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
		c.Skip(1)
		c.Skip(1)
		return c.ReadU16(), nil
	default:
		return 0, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
	}
}

func readInstanceSegment(c *cip.Cursor) (cip.UDINT, error) {
	switch peek(c) {
	case 0x24:
		if c.Remaining() < 2 {
			return 0, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
		c.Skip(1)
		return cip.UDINT(c.ReadU8()), nil
	case 0x25:
		if c.Remaining() < 4 {
			return 0, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
		}
		c.Skip(1)
		c.Skip(1)
		return cip.UDINT(c.ReadU16()), nil
	default:
		return 0, cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
	}
}

func parseElectronicKey(c *cip.Cursor, identity TargetIdentity) error {
	if c.Remaining() < 10 {
		return cip.ErrExt(cip.StatusPathSegmentError, cip.UINT(c.Pos()/2))
	}
	c.Skip(1)
	keyFormat := c.ReadU8()
	if keyFormat != 4 {
		return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInvalidSegmentTypeInPath)
	}
	vendor := c.ReadU16()
	devType := c.ReadU16()
	prodCode := c.ReadU16()
	majorByte := c.ReadU8()
	minor := c.ReadU8()
	compat := majorByte&0x80 != 0
	major := majorByte &^ 0x80

	if vendor != 0 && vendor != identity.VendorID {
		return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusVendorIdOrProductCodeError)
	}
	if prodCode != 0 && prodCode != identity.ProductCode {
		return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusVendorIdOrProductCodeError)
	}
	if devType != 0 && devType != identity.DeviceType {
		return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusDeviceTypeError)
	}

	if compat {
		if major != identity.MajorRevision {
			return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusRevisionMismatch)
		}
		if minor == 0 || minor > identity.MinorRevision {
			return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusRevisionMismatch)
		}
	} else {
		if major != 0 {
			if major != identity.MajorRevision {
				return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusRevisionMismatch)
			}
			if minor != 0 && minor != identity.MinorRevision {
				return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusRevisionMismatch)
			}
		}
	}
	return nil
}

// ioConnectionPointCount computes the number of connection-point segments
// expected on an I/O ForwardOpen path from the O->T/T->O connection-type
// fields: 0 if both are null, 1 if exactly one is non-null, 2 if both are
// non-null, producer segment first (spec 4.7 step 6).
func ioConnectionPointCount(ot, to NetworkConnectionParams) int {
	otNull := ot.IsNull()
	toNull := to.IsNull()
	switch {
	case otNull && toNull:
		return 0
	case otNull != toNull:
		return 1
	default:
		return 2
	}
}
