// Package connmgr implements the Connection Manager (class 0x06):
// ForwardOpen/ForwardClose/GetConnectionOwner, connection-path parsing,
// connection-ID allocation, and the active-connection list (spec 4.6-4.10,
// 9). Full rewrite of the teacher's pkg/objects/connmgr, which only echoed
// header fields back with no duplicate detection, key validation, or path
// parsing; grounded throughout on CIPster's cipconnectionmanager.c.
package connmgr

import (
	"go.uber.org/zap"

	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/registry"
)

const (
	ServiceForwardOpen      cip.USINT = 0x54
	ServiceForwardClose     cip.USINT = 0x4E
	ServiceGetConnectionOwner cip.USINT = 0x5A
)

// Manager is the Connection Manager object: the active-connection list,
// the ID allocator, the connectable-object table, and the registry and
// identity the path parser validates requests against.
type Manager struct {
	Registry   *registry.Registry
	Active     *ActiveList
	Alloc      *IDAllocator
	Objects    *ConnectableObjectTable
	Identity   TargetIdentity
	TimerTickMs int64
	Log        *zap.Logger

	// OnForwardOpenOutcome, if set, fires after every ForwardOpen dispatched
	// through the registry (not through a direct handleForwardOpen call in
	// tests) with the extended status word — 0 on success — for metrics.
	OnForwardOpenOutcome func(ext cip.UINT)

	class *registry.Class
}

// extStatusOf reports the first extended status word of a ForwardOpen
// outcome, or 0 for success/non-CIP errors.
func extStatusOf(err error) cip.UINT {
	if err == nil {
		return 0
	}
	cerr, ok := err.(cip.Error)
	if !ok || len(cerr.ExtStatus) == 0 {
		return 0
	}
	return cerr.ExtStatus[0]
}

// New registers class 0x06 instance 1 with ForwardOpen/ForwardClose/
// GetConnectionOwner and returns the Manager wired to it. incarnationID
// seeds connection-ID allocation (spec 4.9); timerTickMs is the
// ManageConnections tick period used for RPI rounding (spec 4.6 step 4).
func New(reg *registry.Registry, identity TargetIdentity, incarnationID uint16, timerTickMs int64, log *zap.Logger) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	class, err := reg.RegisterClass(cip.ClassConnectionMgr, "Connection Manager", 1, 0, 0)
	if err != nil {
		return nil, err
	}
	if err := registry.InstallDefaultServices(class); err != nil {
		return nil, err
	}
	class.AddInstance(1)

	m := &Manager{
		Registry:    reg,
		Active:      NewActiveList(),
		Alloc:       NewIDAllocator(incarnationID),
		Objects:     NewConnectableObjectTable(),
		Identity:    identity,
		TimerTickMs: timerTickMs,
		Log:         log,
		class:       class,
	}

	if err := class.InsertService(&registry.ServiceDescriptor{
		Code: ServiceForwardOpen,
		Name: "ForwardOpen",
		Handler: func(inst *registry.Instance, req *cip.MessageRouterRequest) ([]byte, error) {
			data, err := m.handleForwardOpen(inst, req)
			if m.OnForwardOpenOutcome != nil {
				m.OnForwardOpenOutcome(extStatusOf(err))
			}
			return data, err
		},
	}); err != nil {
		return nil, err
	}
	if err := class.InsertService(&registry.ServiceDescriptor{
		Code:    ServiceForwardClose,
		Name:    "ForwardClose",
		Handler: m.handleForwardClose,
	}); err != nil {
		return nil, err
	}
	if err := class.InsertService(&registry.ServiceDescriptor{
		Code:    ServiceGetConnectionOwner,
		Name:    "GetConnectionOwner",
		Handler: m.handleGetConnectionOwner,
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// handleGetConnectionOwner is a typed stub (spec 9 open question: "the
// spec requires a concrete layout — leave as a typed stub").
func (m *Manager) handleGetConnectionOwner(inst *registry.Instance, req *cip.MessageRouterRequest) ([]byte, error) {
	return nil, cip.Err(cip.StatusServiceNotSupported)
}
