// Package identity implements the minimal Identity object (class 0x01) the
// Message Router needs to exist: vendor ID, device type, product code,
// revision, serial number, and status, registered as plain scalar
// attributes (spec 6). Grounded on the registry's generic attribute
// services; CIPster's cipidentity.c supplies the attribute-number layout.
package identity

import (
	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// Config seeds the static identity attributes served to originators.
type Config struct {
	VendorID        cip.UINT
	DeviceType      cip.UINT
	ProductCode     cip.UINT
	MajorRevision   cip.USINT
	MinorRevision   cip.USINT
	Status          cip.UINT
	SerialNumber    cip.UDINT
	ProductName     string
}

// Register installs class 0x01 instance 1 with attributes 1-7 as
// GetAttributeSingle/GetAttributeAll-able per CIPster's default mask
// (attributes 1-7 all participate in GetAttributeAll).
func Register(reg *registry.Registry, cfg Config) (*registry.Class, error) {
	const getAllMask = 0b11111110 // bits 1..7

	class, err := reg.RegisterClass(cip.ClassIdentity, "Identity", 1, 0, getAllMask)
	if err != nil {
		return nil, err
	}
	if err := registry.InstallDefaultServices(class); err != nil {
		return nil, err
	}

	inst := class.AddInstance(1)
	revision := []byte{byte(cfg.MajorRevision), byte(cfg.MinorRevision)}

	attrs := []*registry.AttributeDescriptor{
		{Number: 1, Type: cip.TypeUINT, Flags: cip.GetableSingleAll, Get: registry.GetUINT(&cfg.VendorID)},
		{Number: 2, Type: cip.TypeUINT, Flags: cip.GetableSingleAll, Get: registry.GetUINT(&cfg.DeviceType)},
		{Number: 3, Type: cip.TypeUINT, Flags: cip.GetableSingleAll, Get: registry.GetUINT(&cfg.ProductCode)},
		{Number: 4, Type: cip.TypeRevision, Flags: cip.GetableSingleAll, Get: registry.GetBytes(revision)},
		{Number: 5, Type: cip.TypeWORD, Flags: cip.GetableSingleAll, Get: registry.GetUINT(&cfg.Status)},
		{Number: 6, Type: cip.TypeUDINT, Flags: cip.GetableSingleAll, Get: registry.GetUDINT(&cfg.SerialNumber)},
		{Number: 7, Type: cip.TypeSHORT_STRING, Flags: cip.GetableSingleAll, Get: registry.GetShortString(&cfg.ProductName)},
	}
	for _, a := range attrs {
		if err := inst.InsertAttribute(a); err != nil {
			return nil, err
		}
	}
	return class, nil
}
