// Package client implements the asynchronous client core: an EventReactor that owns
// all session state and Sessions that send pool messages through it.
//
// The package focuses on:
//   - Never blocking the application: Connect, Send and Close only queue work for the reactor
//   - Delivering every outcome exactly once through Callbacks, on the reactor goroutine
//   - Returning every message to its pool, also when the reactor stops
//
// Key Components:
//
//   - EventReactor: Dispatches submissions and transport events on the goroutine that
//     calls Run. Stop may be called from anywhere, including callbacks.
//
//   - Session: A connection to one endpoint. Sends issued before the connection is
//     established are queued and transmitted in order once it is.
//
//   - Callbacks: OnSessionEstablished, OnResponse, OnSessionEvent and OnMsgError.
//     CallbackFuncs adapts plain functions.
//
// Usage:
//
//	pool, _ := msgpool.New(msgpool.Config{Capacity: 256, InSize: 100, OutSize: 100})
//	reactor := client.NewReactor(tcp.NewTCPClientTransport(config.Transport))
//
//	session, _ := client.Connect(reactor, "localhost:8080", client.CallbackFuncs{
//		Response: func(msg *msgpool.Message) {
//			reply, _ := msg.ReadAll()
//			fmt.Println(string(reply))
//			_ = msg.ReturnToPool()
//			reactor.Stop()
//		},
//	})
//
//	msg, _ := pool.Acquire()
//	_, _ = msg.WriteString("Hello, Mike")
//	_ = session.Send(msg)
//
//	_ = reactor.Run() // returns after Stop
//	_ = pool.Destroy()
//
// Messages passed to OnResponse and OnMsgError belong to the callback, they must be
// returned to their pool or sent again. A message whose Send returned an error still
// belongs to the caller.
package client
