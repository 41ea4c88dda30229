// Package udpio is the UDP half of the External Interfaces boundary (spec
// 6): a thin socket wrapper feeding raw connected-data datagrams into
// connmgr.Manager.HandleReceivedConnectedData, and the transmit side the
// timing engine's OnSend hook calls to turn a connection's freshly
// populated ProducePayload into a wire datagram. This replaces the
// teacher's pkg/runtime, which duplicated CPF parsing inline and drove
// production off a wall-clock time.Since ticker of its own (pkg/runtime/
// scheduler.go) instead of the fixed-tick pkg/timing.Engine spec 4.12
// requires; the actual ReadFromUDP/WriteToUDP plumbing is the one piece of
// that file worth keeping, rebuilt here against the new core.
package udpio

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/eip"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/connmgr"
)

// maxDatagramSize bounds a single read; CIP I/O payloads are small and this
// comfortably covers the largest assembly this repo's demo configures.
const maxDatagramSize = 1500

// Listener is the UDP socket wrapper.
type Listener struct {
	conn *net.UDPConn
	mgr  *connmgr.Manager
	log  *zap.Logger
}

// New builds a Listener that feeds inbound datagrams to mgr.
func New(mgr *connmgr.Manager, log *zap.Logger) *Listener {
	if log == nil {
		log = zap.NewNop()
	}
	return &Listener{mgr: mgr, log: log}
}

// ListenAndServe binds addr and starts the read loop on a background
// goroutine, returning once the socket is bound.
func (l *Listener) ListenAndServe(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("udpio: resolving %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("udpio: listen %s: %w", addr, err)
	}
	l.conn = conn
	go l.readLoop()
	return nil
}

// Addr returns the bound local address, or nil before ListenAndServe.
func (l *Listener) Addr() net.Addr {
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Close stops the read loop by closing the underlying socket.
func (l *Listener) Close() error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

func (l *Listener) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		datagram := append([]byte(nil), buf[:n]...)
		l.mgr.HandleReceivedConnectedData(datagram, from)
	}
}

// Send is wired as timing.Engine.OnSend (spec 4.12 step 2): it builds a
// SequencedAddressItem/ConnectedDataItem CPF from the connection's
// ProducePayload and writes it to the originator. Connections with no
// originator address yet (never consumed from, point-to-point-only
// producers awaiting their first datagram) are silently skipped, matching
// CIPster's guard on a null remote address.
func (l *Listener) Send(c *connmgr.Connection) {
	if c.OriginatorAddr == nil || l.conn == nil {
		return
	}
	c.EIPSequenceCountProducing++
	cpf := eip.NewCommonPacketFormat(
		eip.NewSequencedAddressItem(uint32(c.ProducedConnectionID), c.EIPSequenceCountProducing),
		eip.NewCPFItem(eip.ItemIDConnectedData, c.ProducePayload()),
	)
	wire, err := cpf.Encode()
	if err != nil {
		l.log.Warn("udpio: encoding produced datagram failed", zap.Error(err))
		return
	}
	if _, err := l.conn.WriteToUDP(wire, c.OriginatorAddr); err != nil {
		l.log.Warn("udpio: write failed", zap.Stringer("to", c.OriginatorAddr), zap.Error(err))
	}
}
