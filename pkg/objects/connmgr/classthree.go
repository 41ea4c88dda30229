package connmgr

import (
	"github.com/kestrel-iiot/enip-adapter/pkg/cip"
	"github.com/kestrel-iiot/enip-adapter/pkg/cip/router"
)

// classThreeFuncs is the Class-3 (connected explicit messaging) variant of
// the per-connection vtable (spec 9): connected requests are forwarded to
// the Message Router and the connection never auto-produces.
type classThreeFuncs struct {
	mr *router.MessageRouter
}

func (f *classThreeFuncs) SendData(c *Connection) error { return nil }

func (f *classThreeFuncs) ReceiveData(c *Connection, data []byte) error {
	reply, err := f.mr.Notify(data)
	if err != nil {
		return err
	}
	c.lastReply = reply
	return nil
}

func (f *classThreeFuncs) Timeout(c *Connection) {}
func (f *classThreeFuncs) Close(c *Connection)   {}

// RegisterMessageRouterOpenHandler wires class 0x02 (Message Router) into
// the connectable-object table so a Class-3 ForwardOpen targeting it
// succeeds (spec 4.6 step 7, 9). Every Class-3 connection shares the same
// dispatch target; each gets its own classThreeFuncs closure over mr.
func RegisterMessageRouterOpenHandler(m *Manager, mr *router.MessageRouter) {
	m.Objects.Register(uint32(cip.ClassMessageRouter), func(mgr *Manager, staging *Connection) error {
		staging.Funcs = &classThreeFuncs{mr: mr}
		return nil
	})
}
