package registry

import (
	"encoding/binary"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
)

// GetAttributeSingle gates on (attribute_flags & mask) per spec 4.4's
// invariant, then encodes the value. mask is cip.GetableSingle when called
// from the GetAttributeSingle service, cip.GetableAll when called as part
// of GetAttributeAll.
func GetAttributeSingle(inst *Instance, number cip.UINT, mask cip.AttrFlags) ([]byte, error) {
	a, ok := inst.Attribute(number)
	if !ok {
		return nil, cip.Err(cip.StatusAttributeNotSupported)
	}
	if a.Flags&mask == 0 {
		return nil, cip.Err(cip.StatusAttributeNotSupported)
	}
	if a.BeforeGet != nil {
		if err := a.BeforeGet(); err != nil {
			return nil, err
		}
	}
	return a.Get()
}

// GetAttributeAll iterates an instance's attributes in stored order;
// for each attribute number n < 32 with bit n set in the class's
// GetAllInstanceMask (or GetAllClassMask for the metaclass instance),
// invokes GetAttributeSingle with the GetableAll mask and appends the
// result (spec 4.4). An attribute that fails its GetableAll gate or
// encode is skipped rather than aborting the whole response, matching
// CIPster's cipcommon.c GetAttributeAll behavior of silently omitting
// attributes it cannot serve.
func GetAttributeAll(inst *Instance) ([]byte, error) {
	mask := inst.Class.GetAllInstanceMask
	if inst.ID == 0 {
		mask = inst.Class.GetAllClassMask
	}
	var out []byte
	for _, a := range inst.OrderedAttributes() {
		if a.Number >= 32 {
			continue
		}
		if mask&(1<<uint(a.Number)) == 0 {
			continue
		}
		b, err := GetAttributeSingle(inst, a.Number, cip.GetableAll)
		if err != nil {
			continue
		}
		out = append(out, b...)
	}
	return out, nil
}

// SetAttributeSingle gates on SetableSingle and delegates to the
// attribute's Set closure, which carries any class-specific write
// semantics (e.g. Assembly's NotEnoughData/TooMuchData/hook-downgrade
// policy, spec 4.4).
func SetAttributeSingle(inst *Instance, number cip.UINT, data []byte) error {
	a, ok := inst.Attribute(number)
	if !ok {
		return cip.Err(cip.StatusAttributeNotSupported)
	}
	if a.Flags&cip.SetableSingle == 0 || a.Set == nil {
		return cip.Err(cip.StatusAttributeNotSettable)
	}
	return a.Set(data)
}

// InstallDefaultServices registers the three built-in attribute services
// (GetAttributeSingle 0x0E, SetAttributeSingle 0x10, GetAttributeAll 0x01)
// on a class, dispatching through the generic functions above. Classes
// with entirely custom service tables (Connection Manager) skip this and
// register their own ServiceDescriptors instead.
func InstallDefaultServices(c *Class) error {
	if err := c.InsertService(&ServiceDescriptor{
		Code: cip.ServiceGetAttributeSingle,
		Name: "GetAttributeSingle",
		Handler: func(inst *Instance, req *cip.MessageRouterRequest) ([]byte, error) {
			return GetAttributeSingle(inst, req.Decoded.AttributeID, cip.GetableSingle)
		},
	}); err != nil {
		return err
	}
	if err := c.InsertService(&ServiceDescriptor{
		Code: cip.ServiceSetAttributeSingle,
		Name: "SetAttributeSingle",
		Handler: func(inst *Instance, req *cip.MessageRouterRequest) ([]byte, error) {
			return nil, SetAttributeSingle(inst, req.Decoded.AttributeID, req.RequestData)
		},
	}); err != nil {
		return err
	}
	return c.InsertService(&ServiceDescriptor{
		Code: cip.ServiceGetAttributeAll,
		Name: "GetAttributeAll",
		Handler: func(inst *Instance, req *cip.MessageRouterRequest) ([]byte, error) {
			return GetAttributeAll(inst)
		},
	})
}

// The Getter/Setter helpers below build AttributeDescriptor.Get/Set
// closures for the common elementary CIP types, used by the Identity,
// TCP/IP Interface, and Ethernet Link objects whose attributes are plain
// scalars over Go struct fields (spec 6).

// GetUSINT returns a Get closure reading *v.
func GetUSINT(v *cip.USINT) func() ([]byte, error) {
	return func() ([]byte, error) { return []byte{byte(*v)}, nil }
}

// GetUINT returns a Get closure reading *v as little-endian.
func GetUINT(v *cip.UINT) func() ([]byte, error) {
	return func() ([]byte, error) {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(*v))
		return b, nil
	}
}

// GetUDINT returns a Get closure reading *v as little-endian.
func GetUDINT(v *cip.UDINT) func() ([]byte, error) {
	return func() ([]byte, error) {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(*v))
		return b, nil
	}
}

// GetBytes returns a Get closure that copies a fixed byte slice verbatim,
// used for the compound/opaque tags (6xUSINT MAC address, revision pair,
// TCP/IP attribute 5, BYTE_ARRAY).
func GetBytes(v []byte) func() ([]byte, error) {
	return func() ([]byte, error) {
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	}
}

// GetShortString returns a Get closure encoding *v as a SHORT_STRING.
func GetShortString(v *string) func() ([]byte, error) {
	return func() ([]byte, error) {
		c := cip.NewWriteCursor(nil)
		c.WriteShortString(*v)
		return c.Bytes(), nil
	}
}
