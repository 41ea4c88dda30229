// Package assembly implements the CIP Assembly object (class 0x04): opaque
// byte-array instances used as connection endpoints, with application
// hooks fired around reads/writes (spec 4.4, 9). Full rewrite of the
// teacher's pkg/objects/assembly/assembly.go, which hand-decoded the path
// inline and collapsed NotEnoughData/TooMuchData into one status; this
// version dispatches through pkg/cip/registry like every other class and
// is grounded on CIPster's cipassembly.c for the write-before-validate
// hook ordering (spec 9).
package assembly

import (
	"encoding/binary"
	"fmt"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// BeforeSendHook is before_assembly_data_send (spec 6): fired just before
// an attribute-3 read is encoded onto the wire, letting the application
// refresh the buffer.
type BeforeSendHook func(data []byte) error

// AfterReceiveHook is after_assembly_data_received (spec 6): fired after a
// full-length write lands in an instance's buffer. An error here downgrades
// the reply status to InvalidAttributeValue but does not roll back the
// write (spec 4.4, 9).
type AfterReceiveHook func(data []byte) error

// Instance is one Assembly instance's backing store plus hook wiring.
type Instance struct {
	id              uint32
	data            []byte
	connectedOutput bool // writes via explicit messaging rejected once a connection owns it
	beforeSend      BeforeSendHook
	afterReceive    AfterReceiveHook
	breaker         *gobreaker.CircuitBreaker
	log             *zap.Logger
}

// Bytes returns a copy of the current buffer, used by the I/O producer
// path (spec 4.12 send_data) to read without racing a concurrent
// attribute access — defensive copying is cheap at these data sizes and
// keeps the single-threaded contract simple to reason about.
func (i *Instance) Bytes() []byte {
	out := make([]byte, len(i.data))
	copy(out, i.data)
	return out
}

// ReceiveConnectedData applies I/O-connection data (spec 4.11's
// receive_data per-connection callback), sharing the same
// write-then-validate-then-hook semantics as an explicit SetAttributeSingle
// but bypassing the connectedOutput gate: that gate exists to keep explicit
// messaging out of an instance once an I/O connection owns it, not to
// block the very connection that owns it.
func (i *Instance) ReceiveConnectedData(newData []byte) error {
	return i.setBytes(newData)
}

// MarkConnectedOutput flags the instance as owned by an established
// output (O->T) connection: explicit-message writes are rejected with
// AttributeNotSetable from that point on (spec 4.4).
func (i *Instance) MarkConnectedOutput(owned bool) {
	i.connectedOutput = owned
}

// write is the explicit-messaging SetAttributeSingle path (spec 4.4):
// rejected once an I/O connection owns the instance.
func (i *Instance) write(newData []byte) error {
	if i.connectedOutput {
		return cip.Err(cip.StatusAttributeNotSettable)
	}
	return i.setBytes(newData)
}

func (i *Instance) setBytes(newData []byte) error {
	switch {
	case len(newData) < len(i.data):
		return cip.Err(cip.StatusNotEnoughData)
	case len(newData) > len(i.data):
		return cip.Err(cip.StatusTooMuchData)
	}
	// Write-through before validation: a failing hook leaves the new data
	// in place and only downgrades the reply status (spec 9, observed
	// CIPster behavior).
	copy(i.data, newData)
	if i.afterReceive == nil {
		return nil
	}
	_, err := i.breaker.Execute(func() (any, error) {
		return nil, i.afterReceive(i.data)
	})
	if err != nil {
		if i.log != nil {
			i.log.Warn("assembly: after_assembly_data_received hook failed", zap.Uint32("instance", i.id), zap.Error(err))
		}
		return cip.Err(cip.StatusInvalidAttributeValue)
	}
	return nil
}

// Object is the Assembly class (0x04): a registry.Class plus the
// instance-data side channel the I/O connection path needs beyond what
// GetAttributeSingle/SetAttributeSingle expose.
type Object struct {
	class     *registry.Class
	instances map[uint32]*Instance
	log       *zap.Logger
}

// New registers class 0x04 with the generic attribute services installed;
// individual assemblies are added with AddInstance.
func New(reg *registry.Registry, log *zap.Logger) (*Object, error) {
	if log == nil {
		log = zap.NewNop()
	}
	class, err := reg.RegisterClass(cip.ClassAssembly, "Assembly", 1, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := registry.InstallDefaultServices(class); err != nil {
		return nil, err
	}
	return &Object{class: class, instances: make(map[uint32]*Instance), log: log}, nil
}

// AddInstance creates an assembly instance of the given fixed size backed
// by data (not copied — callers own the initial buffer), wiring attribute
// 3 (BYTE_ARRAY, read/write) and attribute 4 (UINT length, read-only, no
// hook per spec supplement #6).
func (o *Object) AddInstance(id uint32, data []byte, beforeSend BeforeSendHook, afterReceive AfterReceiveHook) (*Instance, error) {
	inst := o.class.AddInstance(id)

	ad := &Instance{
		id:           id,
		data:         data,
		beforeSend:   beforeSend,
		afterReceive: afterReceive,
		log:          o.log,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        fmt.Sprintf("assembly-%d-after-receive", id),
			MaxRequests: 1,
			ReadyToTrip: func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= 3 },
		}),
	}
	inst.Data = ad

	if err := inst.InsertAttribute(&registry.AttributeDescriptor{
		Number: 3,
		Type:   cip.TypeBYTE_ARRAY,
		Flags:  cip.GetableSingleAll | cip.SetableSingle,
		Get:    registry.GetBytes(data), // captured slice header; write() mutates in place via copy()
		Set:    ad.write,
		BeforeGet: func() error {
			if ad.beforeSend == nil {
				return nil
			}
			return ad.beforeSend(ad.data)
		},
	}); err != nil {
		return nil, err
	}

	if err := inst.InsertAttribute(&registry.AttributeDescriptor{
		Number: 4,
		Type:   cip.TypeUINT,
		Flags:  cip.GetableSingle,
		Get: func() ([]byte, error) {
			b := make([]byte, 2)
			binary.LittleEndian.PutUint16(b, uint16(len(ad.data)))
			return b, nil
		},
	}); err != nil {
		return nil, err
	}

	o.instances[id] = ad
	return ad, nil
}

// Instance looks up an assembly's data side channel by instance ID, used
// by the Connection Manager's I/O open handler and the producer/consumer
// callbacks it installs (spec 4.12).
func (o *Object) Instance(id uint32) (*Instance, bool) {
	inst, ok := o.instances[id]
	return inst, ok
}

// Class returns the underlying registry class, e.g. for the connectable-
// object table registration.
func (o *Object) Class() *registry.Class {
	return o.class
}
