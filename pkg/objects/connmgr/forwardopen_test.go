package connmgr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/router"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry, *router.MessageRouter) {
	t.Helper()
	reg := registry.NewRegistry()
	mrClass, err := reg.RegisterClass(cip.ClassMessageRouter, "Message Router", 1, 0, 0)
	require.NoError(t, err)
	require.NoError(t, registry.InstallDefaultServices(mrClass))
	mrClass.AddInstance(1)

	mr := router.New(reg, nil)

	m, err := New(reg, testIdentity(), 0x0001, 10, nil)
	require.NoError(t, err)
	RegisterMessageRouterOpenHandler(m, mr)
	return m, reg, mr
}

func forwardOpenBody(t *testing.T, serial, vendor cip.UINT, origSerial cip.UDINT, otRPIus, toRPIus cip.UDINT, trigger cip.USINT, path []byte) []byte {
	t.Helper()
	c := cip.NewWriteCursor(make([]byte, 0, 64))
	c.WriteU8(0x0A)                    // priority/time_tick
	c.WriteU8(10)                      // timeout_ticks
	c.WriteU32(0)                      // O->T connection ID (chosen by target below)
	c.WriteU32(0)                      // T->O connection ID
	c.WriteU16(serial)
	c.WriteU16(vendor)
	c.WriteU32(origSerial)
	c.WriteU8(0) // timeout multiplier
	c.WriteU8(0)
	c.WriteU8(0)
	c.WriteU8(0) // reserved x3
	c.WriteU32(otRPIus)
	c.WriteU16(cip.UINT(0x4000 | 4)) // O->T point-to-point, size 4
	c.WriteU32(toRPIus)
	c.WriteU16(cip.UINT(0x2000 | 4)) // T->O multicast, size 4
	c.WriteU8(trigger)
	c.WriteU8(cip.USINT(len(path) / 2))
	c.WriteBytes(path)
	return c.Bytes()
}

func TestS2ForwardOpenClass3ToMessageRouter(t *testing.T) {
	m, reg, _ := newTestManager(t)
	_ = reg

	path := []byte{0x20, 0x02, 0x24, 0x01}
	body := forwardOpenBody(t, 100, 0x1234, 5000, 10_000, 10_000, 0xA3, path)

	req := &cip.MessageRouterRequest{Service: ServiceForwardOpen, RequestData: body}
	data, err := m.handleForwardOpen(nil, req)
	require.NoError(t, err)
	require.Len(t, data, 26)
	require.Equal(t, 1, m.Active.Len())

	rc := cip.NewCursor(data)
	require.NotEqual(t, uint32(0), uint32(rc.ReadU32())) // consumed ID chosen
	require.NotEqual(t, uint32(0), uint32(rc.ReadU32())) // produced ID chosen
	require.Equal(t, uint16(100), uint16(rc.ReadU16()))
	require.Equal(t, uint16(0x1234), uint16(rc.ReadU16()))
	require.Equal(t, uint32(5000), uint32(rc.ReadU32()))
}

func TestS3DuplicateForwardOpenIsConnectionInUse(t *testing.T) {
	m, _, _ := newTestManager(t)
	path := []byte{0x20, 0x02, 0x24, 0x01}
	body := forwardOpenBody(t, 100, 0x1234, 5000, 10_000, 10_000, 0xA3, path)

	req := &cip.MessageRouterRequest{Service: ServiceForwardOpen, RequestData: body}
	_, err := m.handleForwardOpen(nil, req)
	require.NoError(t, err)
	require.Equal(t, 1, m.Active.Len())

	_, err = m.handleForwardOpen(nil, req)
	cerr, ok := err.(cip.Error)
	require.True(t, ok)
	require.Equal(t, cip.StatusConnectionFailure, cerr.Status)
	require.Equal(t, []cip.UINT{cip.ExtStatusConnectionInUse}, cerr.ExtStatus)
	require.Equal(t, 1, m.Active.Len(), "active list unchanged")
}

func TestS5ForwardCloseAfterOpenRemovesFromActiveList(t *testing.T) {
	m, _, _ := newTestManager(t)
	path := []byte{0x20, 0x02, 0x24, 0x01}
	body := forwardOpenBody(t, 100, 0x1234, 5000, 10_000, 10_000, 0xA3, path)
	req := &cip.MessageRouterRequest{Service: ServiceForwardOpen, RequestData: body}
	_, err := m.handleForwardOpen(nil, req)
	require.NoError(t, err)
	require.Equal(t, 1, m.Active.Len())

	closeBody := cip.NewWriteCursor(make([]byte, 0, 10))
	closeBody.WriteU8(0x0A)
	closeBody.WriteU8(10)
	closeBody.WriteU16(100)
	closeBody.WriteU16(0x1234)
	closeBody.WriteU32(5000)
	closeBody.WriteU8(0)
	closeBody.WriteU8(0)

	closeReq := &cip.MessageRouterRequest{Service: ServiceForwardClose, RequestData: closeBody.Bytes()}
	_, err = m.handleForwardClose(nil, closeReq)
	require.NoError(t, err)
	require.Equal(t, 0, m.Active.Len())
}

func TestForwardCloseNoMatchIsConnectionNotFoundAtTargetApplication(t *testing.T) {
	m, _, _ := newTestManager(t)
	closeBody := cip.NewWriteCursor(make([]byte, 0, 10))
	closeBody.WriteU8(0x0A)
	closeBody.WriteU8(10)
	closeBody.WriteU16(999)
	closeBody.WriteU16(0x1234)
	closeBody.WriteU32(1)
	closeBody.WriteU8(0)
	closeBody.WriteU8(0)

	closeReq := &cip.MessageRouterRequest{Service: ServiceForwardClose, RequestData: closeBody.Bytes()}
	_, err := m.handleForwardClose(nil, closeReq)
	cerr, ok := err.(cip.Error)
	require.True(t, ok)
	require.Equal(t, []cip.UINT{cip.ExtStatusConnectionNotFoundAtTargetApplication}, cerr.ExtStatus)
}
