// Package msgpool provides fixed-size pools of reusable request/response buffers.
//
// A MsgPool owns Capacity messages. Each Message has two independent regions backed by
// one contiguous arena: an outbound region that is written by the application and sent,
// and an inbound region that receives the reply. Messages are handed out by Acquire and
// come back through Release (or Message.ReturnToPool).
//
// Message lifecycle:
//
//	free --Acquire--> acquired --MarkSent--> sent --Complete/Fail--> completed
//	  ^                  |  ^                  |                        |
//	  |                  |  +----CancelSend----+                        |
//	  +----Release-------+------------------Release---------------------+
//
// A message may only be released from acquired or completed. Releasing a sent message
// fails with ErrInvalidState, releasing a free one with ErrDoubleRelease.
//
// Thread Safety:
//
//	Acquire and Release may be called from any goroutine. A message itself is owned by
//	exactly one party at a time (application, session, reactor) and must not be used
//	concurrently; ownership moves at Acquire, Send, callback delivery and Release.
package msgpool
