package connmgr

import (
	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/assembly"
)

// ioAssemblyFuncs is the I/O (Class 0/1) variant of the per-connection
// vtable (spec 9): consumed data overwrites one assembly instance, produced
// data is read from another on each transmission-trigger tick.
type ioAssemblyFuncs struct {
	consume *assembly.Instance
	produce *assembly.Instance
}

func (f *ioAssemblyFuncs) SendData(c *Connection) error {
	if f.produce == nil {
		return nil
	}
	c.producePayload = f.produce.Bytes()
	return nil
}

func (f *ioAssemblyFuncs) ReceiveData(c *Connection, data []byte) error {
	if f.consume == nil {
		return cip.Err(cip.StatusAttributeNotSettable)
	}
	return f.consume.ReceiveConnectedData(data)
}

func (f *ioAssemblyFuncs) Timeout(c *Connection) {}
func (f *ioAssemblyFuncs) Close(c *Connection) {
	if f.consume != nil {
		f.consume.MarkConnectedOutput(false)
	}
}

// RegisterAssemblyOpenHandler wires class 0x04 (Assembly) into the
// connectable-object table for I/O ForwardOpen requests: ConnPoint[0] (O->T)
// names the assembly instance the originator writes into, ConnPoint[1]
// (T->O) names the one it reads from (spec 4.7 step 6, 4.12).
func RegisterAssemblyOpenHandler(m *Manager, asm *assembly.Object) {
	m.Objects.Register(uint32(cip.ClassAssembly), func(mgr *Manager, staging *Connection) error {
		f := &ioAssemblyFuncs{}

		if staging.Path.ConnPointSet[0] {
			inst, ok := asm.Instance(uint32(staging.Path.ConnPoint[0]))
			if !ok {
				return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInvalidConnectionPointInNetworkSeg)
			}
			inst.MarkConnectedOutput(true)
			f.consume = inst
			staging.ConsumingInstance = uint32(staging.Path.ConnPoint[0])
			staging.ConsumeSocketValid = true
		}
		if staging.Path.ConnPointSet[1] {
			inst, ok := asm.Instance(uint32(staging.Path.ConnPoint[1]))
			if !ok {
				return cip.ErrExt(cip.StatusConnectionFailure, cip.ExtStatusInvalidConnectionPointInNetworkSeg)
			}
			f.produce = inst
			staging.ProducingInstance = uint32(staging.Path.ConnPoint[1])
			staging.ProduceSocketValid = true
		}

		staging.Funcs = f
		return nil
	})
}
