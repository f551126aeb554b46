// Package common provides the types shared by the client core, the transports and the
// command line tools.
//
// Key Components:
//
//   - EventName / EventReason: Tagged enumerations describing session lifecycle
//     notifications and per-message failures. Both print and encode to JSON as
//     lower case strings.
//
//   - ClientConfig: Transport, message pool and reactor settings of a client.
//     ToPoolConfig converts the pool section for the msgpool package.
//
//   - ServerConfig: Transport and handler settings of the echo server.
//
//   - Logger: Custom logging implementation that plugs into dragonboat's logger
//     facade, so every component requests a named logger via logger.GetLogger.
package common
