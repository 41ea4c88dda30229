package eip

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// CPF Item IDs (spec 4.3). Kept distinct even where the teacher's original
// constants aliased two names onto one value (ConnectionBased/ConnectedAddress,
// ConnectedTransport/ConnectedData) and where a raw literal (0x8002) was used
// in place of a name.
const (
	ItemIDNullAddress        uint16 = 0x0000
	ItemIDListIdentity       uint16 = 0x000C
	ItemIDConnectedAddress   uint16 = 0x00A1 // "ConnectionAddress" in spec 4.3
	ItemIDConnectedData      uint16 = 0x00B1
	ItemIDUnconnectedData    uint16 = 0x00B2
	ItemIDListServices       uint16 = 0x0100
	ItemIDSockaddrInfoOT     uint16 = 0x8000
	ItemIDSockaddrInfoTO     uint16 = 0x8001
	ItemIDSequencedAddress   uint16 = 0x8002
)

// CPFItem represents a single item in the Common Packet Format
type CPFItem struct {
	TypeID uint16
	Length uint16
	Data   []byte
}

// NewCPFItem creates a new CPF item
func NewCPFItem(typeID uint16, data []byte) CPFItem {
	return CPFItem{
		TypeID: typeID,
		Length: uint16(len(data)),
		Data:   data,
	}
}

// NewNullAddressItem builds the zero-length address item used on every
// unconnected reply (spec 4.5 step 5, 4.6 step 8).
func NewNullAddressItem() CPFItem {
	return NewCPFItem(ItemIDNullAddress, nil)
}

// NewConnectedAddressItem builds a ConnectionAddress item carrying a 32-bit
// connection ID, used on Class-3 connected requests/replies.
func NewConnectedAddressItem(connID uint32) CPFItem {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], connID)
	return NewCPFItem(ItemIDConnectedAddress, b[:])
}

// NewSequencedAddressItem builds a SequencedAddressItem: a 32-bit connection
// ID followed by a 32-bit sequence number, used on the I/O producer path
// (spec 4.3, 4.11) in place of the plain ConnectionAddress item.
func NewSequencedAddressItem(connID, seq uint32) CPFItem {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], connID)
	binary.LittleEndian.PutUint32(b[4:8], seq)
	return NewCPFItem(ItemIDSequencedAddress, b[:])
}

// DecodeSequencedAddress extracts the connection ID and sequence number
// from a SequencedAddressItem's payload.
func DecodeSequencedAddress(data []byte) (connID, seq uint32, err error) {
	if len(data) < 8 {
		return 0, 0, fmt.Errorf("eip: sequenced address item too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint32(data[0:4]), binary.LittleEndian.Uint32(data[4:8]), nil
}

// DecodeConnectedAddress extracts the connection ID from a ConnectionAddress
// item's payload.
func DecodeConnectedAddress(data []byte) (connID uint32, err error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("eip: connected address item too short: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint32(data[0:4]), nil
}

// Encode writes the CPF item to the writer
func (item *CPFItem) Encode(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, item.TypeID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, item.Length); err != nil {
		return err
	}
	if item.Length > 0 {
		if _, err := w.Write(item.Data); err != nil {
			return err
		}
	}
	return nil
}

// CommonPacketFormat represents a collection of CPF items
type CommonPacketFormat struct {
	ItemCount uint16
	Items     []CPFItem
}

// NewCommonPacketFormat creates a new CPF with given items
func NewCommonPacketFormat(items ...CPFItem) *CommonPacketFormat {
	return &CommonPacketFormat{
		ItemCount: uint16(len(items)),
		Items:     items,
	}
}

// Encode encodes the entire CPF structure
func (cpf *CommonPacketFormat) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint16(len(cpf.Items))); err != nil {
		return nil, err
	}
	for _, item := range cpf.Items {
		if err := item.Encode(buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeCommonPacketFormat decodes a CPF from a byte slice. The core parses
// and assembles one packet at a time under the single-threaded contract
// (spec 4.3); this function allocates no shared state and is safe to call
// repeatedly from the one core thread.
func DecodeCommonPacketFormat(data []byte) (*CommonPacketFormat, error) {
	r := bytes.NewReader(data)
	cpf := &CommonPacketFormat{}

	if err := binary.Read(r, binary.LittleEndian, &cpf.ItemCount); err != nil {
		return nil, err
	}

	for i := 0; i < int(cpf.ItemCount); i++ {
		var typeID, length uint16
		if err := binary.Read(r, binary.LittleEndian, &typeID); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
			return nil, err
		}

		itemData := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(r, itemData); err != nil {
				return nil, err
			}
		}

		cpf.Items = append(cpf.Items, CPFItem{
			TypeID: typeID,
			Length: length,
			Data:   itemData,
		})
	}

	return cpf, nil
}

// FindItemByType returns the first item with the given TypeID
func (cpf *CommonPacketFormat) FindItemByType(typeID uint16) *CPFItem {
	for i := range cpf.Items {
		if cpf.Items[i].TypeID == typeID {
			return &cpf.Items[i]
		}
	}
	return nil
}
