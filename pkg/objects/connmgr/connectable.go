package connmgr

// OpenHandler attaches application state to a staging connection and pushes
// it onto the active list on success (spec 4.6 step 7). One is registered
// per class ID that can be the target of a ForwardOpen connection point
// (e.g. Assembly, Message Router).
type OpenHandler func(mgr *Manager, staging *Connection) error

// ConnectableObjectTable maps a connection-path class ID to the handler
// that knows how to open a connection against instances of that class
// (spec 4.6 step 7, 9 "connectable-object table").
type ConnectableObjectTable struct {
	handlers map[uint32]OpenHandler
}

// NewConnectableObjectTable returns an empty table.
func NewConnectableObjectTable() *ConnectableObjectTable {
	return &ConnectableObjectTable{handlers: make(map[uint32]OpenHandler)}
}

// Register installs the open handler for a class ID.
func (t *ConnectableObjectTable) Register(classID uint32, h OpenHandler) {
	t.handlers[classID] = h
}

// Lookup returns the handler registered for a class ID, if any.
func (t *ConnectableObjectTable) Lookup(classID uint32) (OpenHandler, bool) {
	h, ok := t.handlers[classID]
	return h, ok
}
