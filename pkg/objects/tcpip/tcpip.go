// Package tcpip implements the minimal TCP/IP Interface object (class
// 0xF5) needed to serve the compound attribute 5 (Interface Configuration)
// that external collaborators reference (spec 6). Out of the core's scope beyond this:
// full configuration-control semantics (DHCP, DNS) per spec 1's
// "identity/TCP-IP/Ethernet-link object content beyond what the Message
// Router requires" exclusion.
package tcpip

import (
	"encoding/binary"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// Config seeds the static network configuration served to originators.
type Config struct {
	IPAddress      [4]byte
	NetworkMask    [4]byte
	Gateway        [4]byte
	ConfigCapability cip.UDINT
	ConfigControl    cip.UDINT
}

// Register installs class 0xF5 instance 1 with attribute 3 (configuration
// capability), attribute 4 (configuration control) and attribute 5 (the
// compound Interface Configuration struct: IP, mask, gateway and DNS
// placeholders), per CIPster's
// ciptcpipinterface.h layout.
func Register(reg *registry.Registry, cfg Config) (*registry.Class, error) {
	class, err := reg.RegisterClass(cip.ClassTCPIPInterface, "TCP/IP Interface", 1, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := registry.InstallDefaultServices(class); err != nil {
		return nil, err
	}

	inst := class.AddInstance(1)

	attr5 := encodeInterfaceConfiguration(cfg)
	if err := inst.InsertAttribute(&registry.AttributeDescriptor{
		Number: 3, Type: cip.TypeUDINT, Flags: cip.GetableSingle, Get: registry.GetUDINT(&cfg.ConfigCapability),
	}); err != nil {
		return nil, err
	}
	if err := inst.InsertAttribute(&registry.AttributeDescriptor{
		Number: 4, Type: cip.TypeUDINT, Flags: cip.GetableSingleAll, Get: registry.GetUDINT(&cfg.ConfigControl),
	}); err != nil {
		return nil, err
	}
	if err := inst.InsertAttribute(&registry.AttributeDescriptor{
		Number: 5, Type: cip.TypeTcpIpAttr5, Flags: cip.GetableSingleAll, Get: registry.GetBytes(attr5),
	}); err != nil {
		return nil, err
	}
	return class, nil
}

// encodeInterfaceConfiguration lays out attribute 5 exactly as CIPster's
// cipcommon.c EncodeData handles kCipUdintUdintUdintUdintUdintString:
// IP, mask, gateway, primary DNS, secondary DNS (all UDINT; both DNS
// fields zero here),
// then a SHORT_STRING domain name (empty).
func encodeInterfaceConfiguration(cfg Config) []byte {
	b := make([]byte, 4*5)
	binary.LittleEndian.PutUint32(b[0:4], binary.BigEndian.Uint32(cfg.IPAddress[:]))
	binary.LittleEndian.PutUint32(b[4:8], binary.BigEndian.Uint32(cfg.NetworkMask[:]))
	binary.LittleEndian.PutUint32(b[8:12], binary.BigEndian.Uint32(cfg.Gateway[:]))
	// primary/secondary DNS left zero; domain name SHORT_STRING length 0.
	b = append(b, 0x00)
	return b
}
