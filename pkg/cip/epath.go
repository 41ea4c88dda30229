package cip

import "fmt"

// EPATH segment bytes recognized by DecodePaddedEPath (spec 4.2, CIP Vol.1
// Appendix C padded logical path).
const (
	segClass8       byte = 0x20
	segClass16      byte = 0x21
	segInstance8    byte = 0x24
	segInstance16   byte = 0x25
	segConnPoint8   byte = 0x2C
	segAttribute8   byte = 0x30
	segAttribute16  byte = 0x31
	segElectronicKey byte = 0x34
	segPIT          byte = 0x43
	segSimpleData   byte = 0x80
)

// ElectronicKey is the vendor/product/revision tuple an originator presents
// to validate identity and revision compatibility of the target (spec
// 4.7 step 1, glossary).
type ElectronicKey struct {
	VendorID       UINT
	DeviceType     UINT
	ProductCode    UINT
	MajorRevision  USINT // top bit cleared: the compatibility flag is split out below
	MinorRevision  USINT
	Compatibility  bool // top bit of the wire major-revision byte
}

// RequestPath is the decoded form of a padded EPATH as consumed by the
// Message Router (class/instance/attribute) and the Connection Manager
// (connection point, configuration instance, electronic key, PIT segment).
// Not every field is populated by every decode; HasX flags disambiguate
// "absent" from "zero".
type RequestPath struct {
	HasClass     bool
	ClassID      UINT
	HasInstance  bool
	InstanceID   UDINT
	HasAttribute bool
	AttributeID  UINT
	HasConnPoint bool
	ConnPoint    UDINT
	HasKey       bool
	Key          ElectronicKey
	HasPIT       bool
	PIT          USINT
	HasSimpleData bool
	SimpleData   []byte
}

// DecodePaddedEPath decodes a padded EPATH of the given size in 16-bit
// words from c, stopping at exactly sizeWords*2 bytes consumed. It returns
// a PathSegmentError-flavored cip.Error for any reserved (top 3 bits 111)
// or unrecognized segment byte, per spec 4.2.
func DecodePaddedEPath(c *Cursor, sizeWords int) (RequestPath, error) {
	end := c.Pos() + sizeWords*2
	var rp RequestPath

	for c.Pos() < end {
		if err := c.RequireRemaining(1); err != nil {
			return rp, Err(StatusPathSegmentError)
		}
		b := c.buf[c.pos]

		if b&0xE0 == 0xE0 {
			return rp, Err(StatusPathSegmentError)
		}

		switch b {
		case segClass8:
			c.Skip(1)
			rp.ClassID = UINT(c.ReadU8())
			rp.HasClass = true
		case segClass16:
			c.Skip(1)
			c.Skip(1) // pad
			rp.ClassID = c.ReadU16()
			rp.HasClass = true
		case segInstance8:
			c.Skip(1)
			rp.InstanceID = UDINT(c.ReadU8())
			rp.HasInstance = true
		case segInstance16:
			c.Skip(1)
			c.Skip(1) // pad
			rp.InstanceID = UDINT(c.ReadU16())
			rp.HasInstance = true
		case segConnPoint8:
			c.Skip(1)
			rp.ConnPoint = UDINT(c.ReadU8())
			rp.HasConnPoint = true
		case segAttribute8:
			c.Skip(1)
			rp.AttributeID = UINT(c.ReadU8())
			rp.HasAttribute = true
		case segAttribute16:
			c.Skip(1)
			c.Skip(1) // pad
			rp.AttributeID = c.ReadU16()
			rp.HasAttribute = true
		case segElectronicKey:
			c.Skip(1)
			if err := c.RequireRemaining(9); err != nil {
				return rp, Err(StatusPathSegmentError)
			}
			keyFormat := c.ReadU8()
			if keyFormat != 4 {
				return rp, Err(StatusPathSegmentError)
			}
			vendor := c.ReadU16()
			devType := c.ReadU16()
			prodCode := c.ReadU16()
			majorByte := c.ReadU8()
			minor := c.ReadU8()
			rp.Key = ElectronicKey{
				VendorID:      vendor,
				DeviceType:    devType,
				ProductCode:   prodCode,
				Compatibility: majorByte&0x80 != 0,
				MajorRevision: majorByte &^ 0x80,
				MinorRevision: minor,
			}
			rp.HasKey = true
		case segPIT:
			c.Skip(1)
			rp.PIT = c.ReadU8()
			rp.HasPIT = true
		case segSimpleData:
			c.Skip(1)
			words := int(c.ReadU8())
			rp.SimpleData = c.ReadBytes(words * 2)
			rp.HasSimpleData = true
		default:
			return rp, Err(StatusPathSegmentError)
		}
	}

	if c.Pos() != end {
		return rp, Err(StatusPathSegmentError)
	}
	return rp, nil
}

func (k ElectronicKey) String() string {
	return fmt.Sprintf("vendor=%d devtype=%d product=%d rev=%d.%d compat=%v",
		k.VendorID, k.DeviceType, k.ProductCode, k.MajorRevision, k.MinorRevision, k.Compatibility)
}
