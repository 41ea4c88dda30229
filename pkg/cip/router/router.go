// Package router implements the Message Router's notify() dispatch (spec
// 4.5): unconnected request in, class/instance/service lookup against the
// registry, reply envelope out. Split from the registry package so the
// registry can be built and populated independently of the router — the
// teacher kept both concerns crammed into one pkg/cip/router.go with a
// bare map[UINT]Object, which this replaces.
package router

import (
	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

// DefaultReplyBufferSize is MESSAGE_DATA_REPLY_BUFFER (spec 4.5): the
// single fixed-size reply buffer the router owns under the single-threaded
// contract (spec 5, 9).
const DefaultReplyBufferSize = 512

// MessageRouter dispatches unconnected (and Class-3 connected) CIP
// requests against a registry.
type MessageRouter struct {
	reg            *registry.Registry
	replyBufferLen int
	log            *zap.Logger
}

// New constructs a MessageRouter over reg. log may be nil in tests.
func New(reg *registry.Registry, log *zap.Logger) *MessageRouter {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageRouter{reg: reg, replyBufferLen: DefaultReplyBufferSize, log: log}
}

// SetReplyBufferSize overrides MESSAGE_DATA_REPLY_BUFFER from its default,
// e.g. from a deployment's configured reply_buffer_size.
func (m *MessageRouter) SetReplyBufferSize(n int) {
	if n > 0 {
		m.replyBufferLen = n
	}
}

// Registry exposes the underlying object registry, e.g. so the Connection
// Manager's Class-3 open handler can reach it.
func (m *MessageRouter) Registry() *registry.Registry {
	return m.reg
}

// Notify implements spec 4.5's notify(data, length): parse the request,
// resolve class/instance/service, invoke the handler, and return the
// encoded reply. Errors from request parsing itself (malformed EPATH) are
// also turned into a reply per spec 7 ("errors in services are always
// turned into replies").
func (m *MessageRouter) Notify(data []byte) ([]byte, error) {
	req, err := cip.DecodeMessageRouterRequest(data)
	if err != nil {
		return m.errorReply(0, statusOf(err))
	}

	resp := m.dispatch(req)
	return cip.EncodeMessageRouterResponse(resp, m.replyBufferLen)
}

func (m *MessageRouter) dispatch(req *cip.MessageRouterRequest) *cip.MessageRouterResponse {
	reply := cip.ReplyService(req.Service)

	class, ok := m.reg.Class(req.Decoded.ClassID)
	if !ok {
		m.log.Debug("message router: unknown class", zap.Uint16("class", uint16(req.Decoded.ClassID)))
		return errorResponse(reply, cip.StatusPathDestinationUnknown)
	}

	instanceID := uint32(0)
	if req.Decoded.HasInstance {
		instanceID = uint32(req.Decoded.InstanceID)
	}
	inst, ok := class.Instance(instanceID)
	if !ok {
		// Deliberate quirk (spec 4.5 step 3, 9): an absent instance replies
		// PathDestinationUnknown, not the textbook ObjectDoesNotExist, to
		// match a conformance test tool's expectation.
		m.log.Debug("message router: unknown instance", zap.Uint16("class", uint16(req.Decoded.ClassID)), zap.Uint32("instance", instanceID))
		return errorResponse(reply, cip.StatusPathDestinationUnknown)
	}

	svc, ok := class.FindService(req.Service)
	if !ok {
		m.log.Debug("message router: unsupported service", zap.Uint8("service", uint8(req.Service)))
		return errorResponse(reply, cip.StatusServiceNotSupported)
	}

	data, err := svc.Handler(inst, req)
	if err != nil {
		cerr, ok := err.(cip.Error)
		if !ok {
			m.log.Warn("message router: handler returned non-CIP error", zap.Error(err))
			cerr = cip.Err(cip.StatusServiceNotSupported)
		}
		return &cip.MessageRouterResponse{
			Service:       reply,
			GeneralStatus: cerr.Status,
			ExtStatusSize: cip.USINT(len(cerr.ExtStatus)),
			ExtStatus:     cerr.ExtStatus,
			ResponseData:  cerr.ResponseData,
		}
	}

	return &cip.MessageRouterResponse{
		Service:       reply,
		GeneralStatus: cip.StatusSuccess,
		ResponseData:  data,
	}
}

func (m *MessageRouter) errorReply(service cip.USINT, status cip.USINT) ([]byte, error) {
	resp := errorResponse(cip.ReplyService(service), status)
	return cip.EncodeMessageRouterResponse(resp, m.replyBufferLen)
}

func errorResponse(reply cip.USINT, status cip.USINT) *cip.MessageRouterResponse {
	return &cip.MessageRouterResponse{Service: reply, GeneralStatus: status}
}

func statusOf(err error) cip.USINT {
	if cerr, ok := err.(cip.Error); ok {
		return cerr.Status
	}
	return cip.StatusServiceNotSupported
}
