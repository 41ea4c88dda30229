package registry

import (
	"fmt"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
)

// Registry is the object registry the Message Router dispatches against
// (spec 4.4). Classes are the sole owner of their instances; each instance
// holds a direct *Class pointer back to its class, and the registry is the
// sole owner of classes.
type Registry struct {
	classes map[cip.UINT]*Class
	order   []cip.UINT
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[cip.UINT]*Class)}
}

// RegisterClass registers a new class. Fails if the class ID is already
// registered (spec 3 invariant: "class IDs are unique across the
// registry").
func (r *Registry) RegisterClass(id cip.UINT, name string, revision cip.UINT, getAllClassMask, getAllInstanceMask uint32) (*Class, error) {
	if _, exists := r.classes[id]; exists {
		return nil, fmt.Errorf("registry: class 0x%X already registered", id)
	}
	c := &Class{
		ID:                 id,
		Name:               name,
		Revision:           revision,
		GetAllClassMask:    getAllClassMask,
		GetAllInstanceMask: getAllInstanceMask,
		instanceIdx:        make(map[uint32]*Instance),
		serviceIdx:         make(map[cip.USINT]*ServiceDescriptor),
	}
	c.metaclass = &Instance{ID: 0, Class: c, attrByNo: make(map[cip.UINT]*AttributeDescriptor)}
	r.classes[id] = c
	r.order = append(r.order, id)
	return c, nil
}

// Class returns the registered class by ID (get_cip_class).
func (r *Registry) Class(id cip.UINT) (*Class, bool) {
	c, ok := r.classes[id]
	return c, ok
}

// Instance resolves (class ID, instance ID); instance 0 always returns the
// class object view (get_cip_instance, spec 4.4).
func (r *Registry) Instance(classID cip.UINT, instanceID uint32) (*Instance, bool) {
	c, ok := r.classes[classID]
	if !ok {
		return nil, false
	}
	return c.Instance(instanceID)
}

// Attribute resolves an attribute descriptor on an already-looked-up
// instance (get_cip_attribute).
func (r *Registry) Attribute(inst *Instance, number cip.UINT) (*AttributeDescriptor, bool) {
	return inst.Attribute(number)
}

// Classes returns every registered class in registration order.
func (r *Registry) Classes() []*Class {
	out := make([]*Class, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.classes[id])
	}
	return out
}
