package server

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/router"
	"github.com/kestrel-iiot/enip-adapter/pkg/eip"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/connmgr"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/identity"
)

func testIdentity() connmgr.TargetIdentity {
	return connmgr.TargetIdentity{VendorID: 0x1234, DeviceType: 0x0C, ProductCode: 1, MajorRevision: 1, MinorRevision: 1}
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	reg := registry.NewRegistry()
	_, err := identity.Register(reg, identity.Config{VendorID: 0x1234, ProductName: "test device"})
	require.NoError(t, err)

	mr := router.New(reg, nil)
	mgr, err := connmgr.New(reg, testIdentity(), 0x0001, 10, nil)
	require.NoError(t, err)
	connmgr.RegisterMessageRouterOpenHandler(mgr, mr)

	srv := New(mr, mgr, nil)
	require.NoError(t, srv.ListenAndServe("127.0.0.1:0"))
	t.Cleanup(func() { srv.Close() })
	return srv, srv.listener.Addr().String()
}

func readReply(t *testing.T, conn net.Conn) eip.EncapsulationHeader {
	t.Helper()
	var hdr eip.EncapsulationHeader
	require.NoError(t, hdr.Decode(conn))
	if hdr.Length > 0 {
		body := make([]byte, hdr.Length)
		_, err := io.ReadFull(conn, body)
		require.NoError(t, err)
	}
	return hdr
}

func TestRegisterSessionAssignsHandle(t *testing.T) {
	_, addr := newTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	hdr := eip.EncapsulationHeader{Command: eip.CommandRegisterSession, Length: 4}
	require.NoError(t, hdr.Encode(conn))
	_, err = conn.Write(make([]byte, 4))
	require.NoError(t, err)

	reply := readReply(t, conn)
	require.Equal(t, eip.CommandRegisterSession, reply.Command)
	require.Equal(t, uint32(eip.StatusSuccess), reply.Status)
	require.NotEqual(t, eip.SessionHandle(0), reply.SessionHandle)
}

func TestSendRRDataBeforeRegisterSessionIsRejected(t *testing.T) {
	_, addr := newTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	body := sendRRDataBody(t, getAttributeSingleRequest(1, 1))
	hdr := eip.EncapsulationHeader{Command: eip.CommandSendRRData, SessionHandle: 999, Length: uint16(len(body))}
	require.NoError(t, hdr.Encode(conn))
	_, err = conn.Write(body)
	require.NoError(t, err)

	reply := readReply(t, conn)
	require.Equal(t, uint32(eip.StatusInvalidSessionHandle), reply.Status)
}

func TestSendRRDataDispatchesToMessageRouter(t *testing.T) {
	_, addr := newTestServer(t)
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	session := registerSession(t, conn)

	body := sendRRDataBody(t, getAttributeSingleRequest(1, 1)) // Identity attr 1: VendorID
	hdr := eip.EncapsulationHeader{Command: eip.CommandSendRRData, SessionHandle: session, Length: uint16(len(body))}
	require.NoError(t, hdr.Encode(conn))
	_, err = conn.Write(body)
	require.NoError(t, err)

	var replyHdr eip.EncapsulationHeader
	require.NoError(t, replyHdr.Decode(conn))
	require.Equal(t, uint32(eip.StatusSuccess), replyHdr.Status)
	replyBody := make([]byte, replyHdr.Length)
	_, err = io.ReadFull(conn, replyBody)
	require.NoError(t, err)

	cpf, err := eip.DecodeCommonPacketFormat(replyBody[6:])
	require.NoError(t, err)
	item := cpf.FindItemByType(eip.ItemIDUnconnectedData)
	require.NotNil(t, item)

	resp, err := cip.DecodeMessageRouterResponse(item.Data)
	require.NoError(t, err)
	require.True(t, resp.IsSuccess())
	require.Equal(t, uint16(0x1234), binary.LittleEndian.Uint16(resp.ResponseData))
}

func registerSession(t *testing.T, conn net.Conn) eip.SessionHandle {
	t.Helper()
	hdr := eip.EncapsulationHeader{Command: eip.CommandRegisterSession, Length: 4}
	require.NoError(t, hdr.Encode(conn))
	_, err := conn.Write(make([]byte, 4))
	require.NoError(t, err)

	var replyHdr eip.EncapsulationHeader
	require.NoError(t, replyHdr.Decode(conn))
	body := make([]byte, replyHdr.Length)
	_, err = io.ReadFull(conn, body)
	require.NoError(t, err)
	return replyHdr.SessionHandle
}

func getAttributeSingleRequest(classID, instanceID uint8) []byte {
	path := []byte{0x20, classID, 0x24, instanceID, 0x30, 0x01}
	req := &cip.MessageRouterRequest{
		Service:     cip.ServiceGetAttributeSingle,
		RequestPath: cip.Path(path),
	}
	return req.Encode()
}

func sendRRDataBody(t *testing.T, mrRequest []byte) []byte {
	t.Helper()
	cpf := eip.NewCommonPacketFormat(eip.NewNullAddressItem(), eip.NewCPFItem(eip.ItemIDUnconnectedData, mrRequest))
	cpfBytes, err := cpf.Encode()
	require.NoError(t, err)
	out := make([]byte, 6+len(cpfBytes))
	binary.LittleEndian.PutUint32(out[0:4], 0)
	binary.LittleEndian.PutUint16(out[4:6], 0)
	copy(out[6:], cpfBytes)
	return out
}
