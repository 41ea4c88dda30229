// Package ethlink implements the minimal Ethernet Link object (class
// 0xF6) serving the 6xUSINT MAC address and interface speed/duplex
// attributes the Connection Manager/Message Router need to exist behind
// (spec 6). Full link-status/counter semantics are out of scope (spec 1).
package ethlink

import (
	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// Config seeds the static link attributes served to originators.
type Config struct {
	InterfaceSpeed  cip.UDINT
	InterfaceFlags  cip.UDINT
	MACAddress      [6]byte
}

// Register installs class 0xF6 instance 1 with attributes 1 (speed), 2
// (flags), and 3 (6xUSINT MAC address), per CIPster's
// cipethernetlink.h layout.
func Register(reg *registry.Registry, cfg Config) (*registry.Class, error) {
	class, err := reg.RegisterClass(cip.ClassEthernetLink, "Ethernet Link", 1, 0, 0b1110)
	if err != nil {
		return nil, err
	}
	if err := registry.InstallDefaultServices(class); err != nil {
		return nil, err
	}

	inst := class.AddInstance(1)
	attrs := []*registry.AttributeDescriptor{
		{Number: 1, Type: cip.TypeUDINT, Flags: cip.GetableSingleAll, Get: registry.GetUDINT(&cfg.InterfaceSpeed)},
		{Number: 2, Type: cip.TypeUDINT, Flags: cip.GetableSingleAll, Get: registry.GetUDINT(&cfg.InterfaceFlags)},
		{Number: 3, Type: cip.Type6Usint, Flags: cip.GetableSingleAll, Get: registry.GetBytes(cfg.MACAddress[:])},
	}
	for _, a := range attrs {
		if err := inst.InsertAttribute(a); err != nil {
			return nil, err
		}
	}
	return class, nil
}
