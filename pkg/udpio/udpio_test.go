package udpio

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/router"
	"github.com/kestrel-iiot/enip-adapter/pkg/eip"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/assembly"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/connmgr"
)

func testIdentity() connmgr.TargetIdentity {
	return connmgr.TargetIdentity{VendorID: 0x1234, DeviceType: 0x0C, ProductCode: 1, MajorRevision: 1, MinorRevision: 1}
}

func forwardOpenBody(t *testing.T, serial, vendor cip.UINT, origSerial cip.UDINT, otRPIus, toRPIus cip.UDINT, trigger cip.USINT, path []byte) []byte {
	t.Helper()
	c := cip.NewWriteCursor(make([]byte, 0, 64))
	c.WriteU8(0x0A)
	c.WriteU8(10)
	c.WriteU32(0)
	c.WriteU32(0)
	c.WriteU16(serial)
	c.WriteU16(vendor)
	c.WriteU32(origSerial)
	c.WriteU8(0)
	c.WriteU8(0)
	c.WriteU8(0)
	c.WriteU8(0)
	c.WriteU32(otRPIus)
	c.WriteU16(cip.UINT(0x4000 | 4))
	c.WriteU32(toRPIus)
	c.WriteU16(cip.UINT(0x2000 | 4))
	c.WriteU8(trigger)
	c.WriteU8(cip.USINT(len(path) / 2))
	c.WriteBytes(path)
	return c.Bytes()
}

// openIOConnection builds a manager with one exclusive-owner I/O connection
// (mirroring connmgr's own TestS4), returning the connection and its
// consumed connection ID.
func openIOConnection(t *testing.T) (*connmgr.Manager, *connmgr.Connection, uint32) {
	t.Helper()
	reg := registry.NewRegistry()
	asm, err := assembly.New(reg, nil)
	require.NoError(t, err)
	_, err = asm.AddInstance(100, make([]byte, 4), nil, nil)
	require.NoError(t, err)
	_, err = asm.AddInstance(101, []byte{0xDE, 0xAD, 0xBE, 0xEF}, nil, nil)
	require.NoError(t, err)

	mgr, err := connmgr.New(reg, testIdentity(), 0x0002, 10, nil)
	require.NoError(t, err)
	connmgr.RegisterAssemblyOpenHandler(mgr, asm)

	mr := router.New(reg, nil)
	path := []byte{0x20, 0x04, 0x24, 100, 0x2C, 101}
	body := forwardOpenBody(t, 200, 0x1234, 9000, 10_000, 10_000, 0x01, path)
	req := &cip.MessageRouterRequest{
		Service:     connmgr.ServiceForwardOpen,
		RequestPath: cip.Path{0x20, byte(cip.ClassConnectionMgr), 0x24, 0x01},
		RequestData: body,
	}

	replyData, err := mr.Notify(req.Encode())
	require.NoError(t, err)
	resp, err := cip.DecodeMessageRouterResponse(replyData)
	require.NoError(t, err)
	require.True(t, resp.IsSuccess(), "ForwardOpen failed: status 0x%02X", resp.GeneralStatus)

	rc := cip.NewCursor(resp.ResponseData)
	consumedID := uint32(rc.ReadU32())
	require.NotZero(t, consumedID)

	conn, ok := mgr.Active.ByConsumedID(cip.UDINT(consumedID))
	require.True(t, ok)
	return mgr, conn, consumedID
}

func TestListenAndServeFeedsConnectedDataToManager(t *testing.T) {
	mgr, conn, consumedID := openIOConnection(t)

	l := New(mgr, nil)
	require.NoError(t, l.ListenAndServe("127.0.0.1:0"))
	defer l.Close()

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	addrItem := eip.NewSequencedAddressItem(consumedID, 1)
	dataItem := eip.NewCPFItem(eip.ItemIDConnectedData, []byte{1, 2, 3, 4})
	cpf := eip.NewCommonPacketFormat(addrItem, dataItem)
	wire, err := cpf.Encode()
	require.NoError(t, err)

	_, err = client.WriteToUDP(wire, l.Addr().(*net.UDPAddr))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return conn.SequenceCountConsuming == 1
	}, time.Second, 5*time.Millisecond)
	require.NotNil(t, conn.OriginatorAddr, "first datagram must establish the originator address")
}

func TestSendWritesProducedPayloadToOriginator(t *testing.T) {
	_, conn, _ := openIOConnection(t)

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	defer client.Close()

	l := New(nil, nil)
	require.NoError(t, l.ListenAndServe("127.0.0.1:0"))
	defer l.Close()

	conn.OriginatorAddr = client.LocalAddr().(*net.UDPAddr)
	require.NoError(t, conn.Funcs.SendData(conn))

	l.Send(conn)

	buf := make([]byte, 1500)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err)

	cpf, err := eip.DecodeCommonPacketFormat(buf[:n])
	require.NoError(t, err)
	item := cpf.FindItemByType(eip.ItemIDConnectedData)
	require.NotNil(t, item)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, item.Data)
}

func TestSendSkipsConnectionWithNoOriginatorYet(t *testing.T) {
	_, conn, _ := openIOConnection(t)
	require.NoError(t, conn.Funcs.SendData(conn))

	l := New(nil, nil)
	require.NoError(t, l.ListenAndServe("127.0.0.1:0"))
	defer l.Close()

	require.Nil(t, conn.OriginatorAddr)
	require.NotPanics(t, func() { l.Send(conn) })
}
