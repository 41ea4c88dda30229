// Package registry implements the CIP object model the Message Router
// dispatches against: classes keyed by class ID, each owning ordered
// instances keyed by instance ID, attribute tables, and a shared service
// table. It generalizes the teacher's pkg/cip.MessageRouter's bare
// map[UINT]Object into the full class/instance/attribute/service structure
// spec 3/4.4 requires, grounded additionally on CIPster's cipcommon.c
// object model.
package registry

import (
	"fmt"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
)

// AttributeDescriptor is one addressable attribute slot on a class or
// instance (spec 3). Get/Set are the attribute's "opaque data handle":
// closures over whatever concrete state backs the value.
type AttributeDescriptor struct {
	Number cip.UINT
	Type   cip.DataType
	Flags  cip.AttrFlags

	// Get encodes the current value onto the wire. Required.
	Get func() ([]byte, error)
	// Set decodes and applies new bytes. Nil means the attribute accepts no
	// writes regardless of Flags (a descriptor marked SetableSingle without
	// a Set function is a registration bug, caught by InsertAttribute).
	Set func([]byte) error

	// BeforeGet fires immediately before Get on every read, used by the
	// Assembly class to invoke before_assembly_data_send on attribute 3
	// (spec 4.4) without generalizing the hook to every BYTE_ARRAY
	// attribute in the registry.
	BeforeGet func() error
}

// ServiceDescriptor is one entry in a class's service table (spec 3).
type ServiceDescriptor struct {
	Code    cip.USINT
	Name    string
	Handler ServiceHandler
}

// ServiceHandler executes a dispatched request against a resolved
// instance and returns the reply payload, or a *cip.Error to be reflected
// back as the general/extended status (spec 4.5 step 5).
type ServiceHandler func(inst *Instance, req *cip.MessageRouterRequest) ([]byte, error)

// Instance is a (class ID, instance ID) object (spec 3). Instance ID 0 is
// reserved by the registry for the metaclass view and is never present in
// a Class's Instances slice.
type Instance struct {
	ID    uint32
	Class *Class

	attrs    []*AttributeDescriptor
	attrByNo map[cip.UINT]*AttributeDescriptor

	// Data is opaque per-instance application state (e.g. *AssemblyData,
	// a *Connection pointer) that service handlers can type-assert to
	// avoid re-deriving state from attribute closures.
	Data any
}

// InsertAttribute adds an attribute descriptor to the instance. Fails if
// the attribute number is already present or if Flags requests
// SetableSingle with no Set function (spec 4.4: "both fail... when
// exceeding the declared slot count" — here generalized to "malformed
// descriptor", since this implementation has no fixed slot-count limit).
func (i *Instance) InsertAttribute(a *AttributeDescriptor) error {
	if _, exists := i.attrByNo[a.Number]; exists {
		return fmt.Errorf("registry: attribute %d already present on class 0x%X instance %d", a.Number, i.Class.ID, i.ID)
	}
	if a.Flags&cip.SetableSingle != 0 && a.Set == nil {
		return fmt.Errorf("registry: attribute %d marked setable with no Set function", a.Number)
	}
	if a.Get == nil {
		return fmt.Errorf("registry: attribute %d has no Get function", a.Number)
	}
	i.attrs = append(i.attrs, a)
	i.attrByNo[a.Number] = a
	return nil
}

// Attribute looks up an attribute descriptor by number.
func (i *Instance) Attribute(num cip.UINT) (*AttributeDescriptor, bool) {
	a, ok := i.attrByNo[num]
	return a, ok
}

// OrderedAttributes returns attribute descriptors in insertion order, the
// order GetAttributeAll walks them in (spec 4.4: "ascending attribute
// number as stored" — callers are expected to insert in ascending order;
// the registry does not re-sort).
func (i *Instance) OrderedAttributes() []*AttributeDescriptor {
	return i.attrs
}

// Class owns an ordered sequence of instances, a set of class-level
// (metaclass, instance 0) attributes, and a service table shared by all
// instances (spec 3).
type Class struct {
	ID       cip.UINT
	Name     string
	Revision cip.UINT

	GetAllInstanceMask uint32
	GetAllClassMask    uint32

	instances   []*Instance
	instanceIdx map[uint32]*Instance

	metaclass *Instance // the instance-0 view: class-level attributes

	services   []*ServiceDescriptor
	serviceIdx map[cip.USINT]*ServiceDescriptor
}

// AddInstance creates (or, if id already exists, returns) the instance
// with the given ID. Idempotent per spec 4.4.
func (c *Class) AddInstance(id uint32) *Instance {
	if id == 0 {
		return c.metaclass
	}
	if inst, ok := c.instanceIdx[id]; ok {
		return inst
	}
	inst := &Instance{ID: id, Class: c, attrByNo: make(map[cip.UINT]*AttributeDescriptor)}
	c.instances = append(c.instances, inst)
	c.instanceIdx[id] = inst
	return inst
}

// Instance returns the instance with the given ID. Instance 0 always
// resolves to the class's metaclass view (spec 3, 4.4; spec 9 "Metaclass
// pattern").
func (c *Class) Instance(id uint32) (*Instance, bool) {
	if id == 0 {
		return c.metaclass, true
	}
	inst, ok := c.instanceIdx[id]
	return inst, ok
}

// Instances returns all non-metaclass instances in insertion order.
func (c *Class) Instances() []*Instance {
	return c.instances
}

// InsertService adds a handler to the class's shared service table. Fails
// if the code is already registered.
func (c *Class) InsertService(s *ServiceDescriptor) error {
	if _, exists := c.serviceIdx[s.Code]; exists {
		return fmt.Errorf("registry: service 0x%02X already registered on class 0x%X", s.Code, c.ID)
	}
	c.services = append(c.services, s)
	c.serviceIdx[s.Code] = s
	return nil
}

// FindService linear-scans the class's service table by code (spec 4.5
// step 4).
func (c *Class) FindService(code cip.USINT) (*ServiceDescriptor, bool) {
	for _, s := range c.services {
		if s.Code == code {
			return s, true
		}
	}
	return nil, false
}

// ClassInstance returns the metaclass (instance 0) view, which holds the
// class-level attributes addressed at instance 0 (spec 9).
func (c *Class) ClassInstance() *Instance {
	return c.metaclass
}
