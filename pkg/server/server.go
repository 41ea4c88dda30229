// Package server implements the TCP side of the External Interfaces
// boundary (spec 6): RegisterSession/UnregisterSession session bookkeeping,
// SendRRData (unconnected messaging, forwarded to the Message Router's
// Notify), and SendUnitData (Class-3 connected explicit messaging,
// forwarded to the owning connection's ReceiveData). The teacher's
// pkg/server hand-decoded MessageRouterRequest and dispatched through the
// now-retired pkg/cip.MessageRouter.Dispatch; this is a full rewrite over
// pkg/cip/router.MessageRouter.Notify and pkg/objects/connmgr.Manager,
// matching the accept-loop/per-connection-goroutine shape CIPster's and
// the teacher's own socket handling both use. The `select`-multiplexer
// internals beyond this minimal accept/read loop are out of scope (spec 1).
package server

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/router"
	"github.com/kestrel-iiot/enip-adapter/pkg/eip"
	"github.com/kestrel-iiot/enip-adapter/pkg/objects/connmgr"
)

// Server is the TCP explicit-messaging listener.
type Server struct {
	router *router.MessageRouter
	mgr    *connmgr.Manager
	log    *zap.Logger

	// OnDispatch, if set, runs after every router.Notify call with its
	// wall-clock duration, for the dispatch-latency histogram.
	OnDispatch func(d time.Duration)

	nextSession uint32
	listener    net.Listener
}

// New builds a Server dispatching unconnected requests through mr and
// Class-3 connected requests through mgr's active-connection list.
func New(mr *router.MessageRouter, mgr *connmgr.Manager, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{router: mr, mgr: mgr, log: log}
}

// ListenAndServe binds addr and serves connections until Close is called.
// It returns once the listener is established; connections are accepted on
// a background goroutine per spec 5's "I/O layer owns the blocking wait."
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	remote := conn.RemoteAddr()
	var sessionHandle eip.SessionHandle

	for {
		var hdr eip.EncapsulationHeader
		if err := hdr.Decode(conn); err != nil {
			if err != io.EOF {
				s.log.Debug("server: header decode failed, closing", zap.Stringer("remote", remote), zap.Error(err))
			}
			return
		}
		body := make([]byte, hdr.Length)
		if hdr.Length > 0 {
			if _, err := io.ReadFull(conn, body); err != nil {
				s.log.Debug("server: short body, closing", zap.Stringer("remote", remote), zap.Error(err))
				return
			}
		}

		switch hdr.Command {
		case eip.CommandRegisterSession:
			sessionHandle = eip.SessionHandle(atomic.AddUint32(&s.nextSession, 1))
			reply, _ := eip.NewRegisterSessionData().Encode()
			s.reply(conn, hdr.Command, sessionHandle, eip.StatusSuccess, reply)

		case eip.CommandUnregisterSession:
			return

		case eip.CommandSendRRData:
			if hdr.SessionHandle != sessionHandle {
				s.reply(conn, hdr.Command, hdr.SessionHandle, eip.StatusInvalidSessionHandle, nil)
				continue
			}
			respData, err := s.handleSendRRData(body)
			if err != nil {
				s.log.Debug("server: SendRRData failed", zap.Error(err))
				s.reply(conn, hdr.Command, sessionHandle, eip.StatusIncorrectData, nil)
				continue
			}
			s.reply(conn, hdr.Command, sessionHandle, eip.StatusSuccess, respData)

		case eip.CommandSendUnitData:
			if hdr.SessionHandle != sessionHandle {
				s.reply(conn, hdr.Command, hdr.SessionHandle, eip.StatusInvalidSessionHandle, nil)
				continue
			}
			respData, err := s.handleSendUnitData(body)
			if err != nil {
				s.log.Debug("server: SendUnitData failed", zap.Error(err))
				s.reply(conn, hdr.Command, sessionHandle, eip.StatusIncorrectData, nil)
				continue
			}
			s.reply(conn, hdr.Command, sessionHandle, eip.StatusSuccess, respData)

		default:
			s.reply(conn, hdr.Command, sessionHandle, eip.StatusInvalidCommand, nil)
		}
	}
}

// handleSendRRData decodes the interface-handle/timeout prefix and CPF,
// forwards the unconnected data item's payload to the Message Router, and
// re-wraps the reply in a NullAddress/UnconnectedData CPF (spec 4.5 step 5,
// 6 "SendRRData maps onto notify()").
func (s *Server) handleSendRRData(data []byte) ([]byte, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("server: SendRRData body too short: %d bytes", len(data))
	}
	cpf, err := eip.DecodeCommonPacketFormat(data[6:])
	if err != nil {
		return nil, fmt.Errorf("server: decoding SendRRData CPF: %w", err)
	}
	item := cpf.FindItemByType(eip.ItemIDUnconnectedData)
	if item == nil {
		return nil, fmt.Errorf("server: SendRRData missing unconnected data item")
	}

	start := time.Now()
	reply, err := s.router.Notify(item.Data)
	if s.OnDispatch != nil {
		s.OnDispatch(time.Since(start))
	}
	if err != nil {
		return nil, fmt.Errorf("server: router notify: %w", err)
	}

	replyCPF := eip.NewCommonPacketFormat(eip.NewNullAddressItem(), eip.NewCPFItem(eip.ItemIDUnconnectedData, reply))
	return encodeCommandSpecificData(replyCPF)
}

// handleSendUnitData decodes the CPF's ConnectionAddress/ConnectedData item
// pair, strips the 2-byte connection sequence count, and forwards the
// remainder to the owning connection's ReceiveData (spec 3 "network layer"
// collaborator; Class-3 only — I/O connections never arrive over TCP).
func (s *Server) handleSendUnitData(data []byte) ([]byte, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("server: SendUnitData body too short: %d bytes", len(data))
	}
	cpf, err := eip.DecodeCommonPacketFormat(data[6:])
	if err != nil {
		return nil, fmt.Errorf("server: decoding SendUnitData CPF: %w", err)
	}
	addrItem := cpf.FindItemByType(eip.ItemIDConnectedAddress)
	dataItem := cpf.FindItemByType(eip.ItemIDConnectedData)
	if addrItem == nil || dataItem == nil {
		return nil, fmt.Errorf("server: SendUnitData missing connected address/data item")
	}
	if len(dataItem.Data) < 2 {
		return nil, fmt.Errorf("server: SendUnitData connected data item too short")
	}

	connID, err := eip.DecodeConnectedAddress(addrItem.Data)
	if err != nil {
		return nil, err
	}
	conn, ok := s.mgr.Active.ByConsumedID(cip.UDINT(connID))
	if !ok || conn.Funcs == nil {
		return nil, fmt.Errorf("server: no connection for ID 0x%08X", connID)
	}

	seqCount := dataItem.Data[0:2]
	if err := conn.Funcs.ReceiveData(conn, dataItem.Data[2:]); err != nil {
		return nil, fmt.Errorf("server: connection receive_data: %w", err)
	}

	replyPayload := append(append([]byte(nil), seqCount...), conn.LastReply()...)
	replyCPF := eip.NewCommonPacketFormat(
		eip.NewConnectedAddressItem(uint32(conn.ProducedConnectionID)),
		eip.NewCPFItem(eip.ItemIDConnectedData, replyPayload),
	)
	return encodeCommandSpecificData(replyCPF)
}

// encodeCommandSpecificData prefixes a CPF with the zero interface handle
// and timeout fields every SendRRData/SendUnitData command-specific data
// block carries (spec 6).
func encodeCommandSpecificData(cpf *eip.CommonPacketFormat) ([]byte, error) {
	body, err := cpf.Encode()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 6+len(body))
	binary.LittleEndian.PutUint32(out[0:4], 0) // interface handle
	binary.LittleEndian.PutUint16(out[4:6], 0) // timeout
	copy(out[6:], body)
	return out, nil
}

func (s *Server) reply(conn net.Conn, cmd eip.Command, session eip.SessionHandle, status uint32, data []byte) {
	hdr := eip.EncapsulationHeader{
		Command:       cmd,
		Length:        uint16(len(data)),
		SessionHandle: session,
		Status:        status,
	}
	out := append(hdr.Bytes(), data...)
	if _, err := conn.Write(out); err != nil {
		s.log.Debug("server: write reply failed", zap.Error(err))
	}
}
