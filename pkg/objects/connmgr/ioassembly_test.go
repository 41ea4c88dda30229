package connmgr

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
	"github.com/kestrel-iiot/enip-adapter/pkg/eip"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/assembly"
)

// TestS4IOConnectionToAssemblyConsumeAndProduce exercises an exclusive-owner
// I/O connection (O->T point-to-point consumed output assembly, T->O
// multicast produced input assembly): ForwardOpen establishes the
// connection and marks the consume instance connected-output, a sequenced
// connected-data datagram updates the consume instance, and a produce
// instance's bytes surface via SendData.
func TestS4IOConnectionToAssemblyConsumeAndProduce(t *testing.T) {
	reg := registry.NewRegistry()
	asm, err := assembly.New(reg, nil)
	require.NoError(t, err)
	_, err = asm.AddInstance(100, make([]byte, 4), nil, nil) // consumed (O->T)
	require.NoError(t, err)
	produceInst, err := asm.AddInstance(101, []byte{0xDE, 0xAD, 0xBE, 0xEF}, nil, nil) // produced (T->O)
	require.NoError(t, err)

	m, err := New(reg, testIdentity(), 0x0002, 10, nil)
	require.NoError(t, err)
	RegisterAssemblyOpenHandler(m, asm)

	path := []byte{0x20, 0x04, 0x24, 100, 0x2C, 101}
	body := forwardOpenBody(t, 200, 0x1234, 9000, 10_000, 10_000, 0x01, path) // cyclic, class 1

	req := &cip.MessageRouterRequest{Service: ServiceForwardOpen, RequestData: body}
	data, err := m.handleForwardOpen(nil, req)
	require.NoError(t, err)
	require.Equal(t, 1, m.Active.Len())

	rc := cip.NewCursor(data)
	consumedID := uint32(rc.ReadU32())
	require.NotZero(t, consumedID)

	conn, ok := m.Active.ByConsumedID(cip.UDINT(consumedID))
	require.True(t, ok)
	require.True(t, conn.ConsumeSocketValid)
	require.True(t, conn.ProduceSocketValid)
	conn.OriginatorAddr = &net.UDPAddr{IP: net.ParseIP("10.0.0.5")}

	consumeInst, ok := asm.Instance(100)
	require.True(t, ok)

	payload := []byte{1, 2, 3, 4}
	addrItem := eip.NewSequencedAddressItem(consumedID, 1)
	dataItem := eip.NewCPFItem(eip.ItemIDConnectedData, payload)
	cpf := eip.NewCommonPacketFormat(addrItem, dataItem)
	wire, err := cpf.Encode()
	require.NoError(t, err)

	m.HandleReceivedConnectedData(wire, &net.UDPAddr{IP: net.ParseIP("10.0.0.5")})
	require.Equal(t, payload, consumeInst.Bytes())
	require.Equal(t, uint32(1), conn.SequenceCountConsuming)

	// A stale/duplicate sequence number must be dropped (spec 4.11, 8 invariant 6).
	staleAddr := eip.NewSequencedAddressItem(consumedID, 1)
	staleCPF := eip.NewCommonPacketFormat(staleAddr, eip.NewCPFItem(eip.ItemIDConnectedData, []byte{9, 9, 9, 9}))
	staleWire, err := staleCPF.Encode()
	require.NoError(t, err)
	m.HandleReceivedConnectedData(staleWire, &net.UDPAddr{IP: net.ParseIP("10.0.0.5")})
	require.Equal(t, payload, consumeInst.Bytes(), "stale sequence number must not overwrite")

	// A datagram from a different source address must be dropped.
	freshAddr := eip.NewSequencedAddressItem(consumedID, 2)
	freshCPF := eip.NewCommonPacketFormat(freshAddr, eip.NewCPFItem(eip.ItemIDConnectedData, []byte{7, 7, 7, 7}))
	freshWire, err := freshCPF.Encode()
	require.NoError(t, err)
	m.HandleReceivedConnectedData(freshWire, &net.UDPAddr{IP: net.ParseIP("10.0.0.99")})
	require.Equal(t, payload, consumeInst.Bytes(), "mismatched source address must not overwrite")

	require.NoError(t, conn.Funcs.SendData(conn))
	require.Equal(t, produceInst.Bytes(), conn.ProducePayload())
}
