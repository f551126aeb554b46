package client

import (
	"github.com/ValentinKolb/xio/lib/msgpool"
	"github.com/ValentinKolb/xio/rpc/common"
)

// Callbacks receives the events of one session. All methods are called on the
// reactor goroutine, one at a time, in the order the events were observed.
//
// The message passed to OnResponse and OnMsgError belongs to the callee, it must be
// returned to its pool (msg.ReturnToPool) or reused for another Send.
type Callbacks interface {
	// OnSessionEstablished is called once the connection is ready
	OnSessionEstablished()
	// OnResponse is called with a message whose reply arrived
	OnResponse(msg *msgpool.Message)
	// OnSessionEvent is called when the session is closed or failed, it is the last callback of a session
	OnSessionEvent(event common.EventName, reason common.EventReason)
	// OnMsgError is called with a message that will never get a reply
	OnMsgError(msg *msgpool.Message, reason common.EventReason)
}

// CallbackFuncs implements Callbacks with optional functions.
// Messages of a missing OnResponse or OnMsgError are returned to their pool.
type CallbackFuncs struct {
	Established func()
	Response    func(msg *msgpool.Message)
	Event       func(event common.EventName, reason common.EventReason)
	MsgError    func(msg *msgpool.Message, reason common.EventReason)
}

// OnSessionEstablished calls Established if set
func (c CallbackFuncs) OnSessionEstablished() {
	if c.Established != nil {
		c.Established()
	}
}

// OnResponse calls Response if set, otherwise the message goes back to its pool
func (c CallbackFuncs) OnResponse(msg *msgpool.Message) {
	if c.Response != nil {
		c.Response(msg)
		return
	}
	_ = msg.ReturnToPool()
}

// OnSessionEvent calls Event if set
func (c CallbackFuncs) OnSessionEvent(event common.EventName, reason common.EventReason) {
	if c.Event != nil {
		c.Event(event, reason)
	}
}

// OnMsgError calls MsgError if set, otherwise the message goes back to its pool
func (c CallbackFuncs) OnMsgError(msg *msgpool.Message, reason common.EventReason) {
	if c.MsgError != nil {
		c.MsgError(msg, reason)
		return
	}
	_ = msg.ReturnToPool()
}
