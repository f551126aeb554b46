package common

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/xio/lib/msgpool"
)

// --------------------------------------------------------------------------
// Socket options (shared by client and server)
// --------------------------------------------------------------------------

// SocketConf holds options that apply to every stream socket
type SocketConf struct {
	// WriteBufferSize is the size of the kernel send buffer, 0 keeps the OS default
	WriteBufferSize int
	// ReadBufferSize is the size of the kernel receive buffer, 0 keeps the OS default
	ReadBufferSize int
}

// TCPConf holds options that only apply to TCP sockets
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	// TCPLingerSec < 0 keeps the OS default
	TCPLingerSec int
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// ClientTransportConfig configures the client side of a transport
type ClientTransportConfig struct {
	// Endpoint is the address of the server (host:port, socket path or URL)
	Endpoint string
	// TimeoutSecond bounds connecting and writing a single frame, 0 disables the limit
	TimeoutSecond int
	SocketConf
	TCPConf
}

// PoolConf configures the message pool used by a client
type PoolConf struct {
	Name     string
	Capacity int
	InSize   int
	OutSize  int
	Prealloc int
	Blocking bool
}

// ClientConfig holds all configuration parameters of a client
type ClientConfig struct {
	Transport ClientTransportConfig
	Pool      PoolConf
	// QueueSize bounds the number of submissions waiting for the reactor
	QueueSize int
	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// ToPoolConfig converts the pool section to a msgpool.Config
func (c *ClientConfig) ToPoolConfig() msgpool.Config {
	return msgpool.Config{
		Name:     c.Pool.Name,
		Capacity: c.Pool.Capacity,
		InSize:   c.Pool.InSize,
		OutSize:  c.Pool.OutSize,
		Prealloc: c.Pool.Prealloc,
		Blocking: c.Pool.Blocking,
	}
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	sb, addSection, addField := newConfigPrinter()

	addSection("Client Transport")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.Transport.TimeoutSecond))
	addSocketFields(addField, c.Transport.SocketConf, c.Transport.TCPConf)

	addSection("Message Pool")
	addField("Name", c.Pool.Name)
	addField("Capacity", fmt.Sprintf("%d", c.Pool.Capacity))
	addField("Inbound Size", fmt.Sprintf("%d bytes", c.Pool.InSize))
	addField("Outbound Size", fmt.Sprintf("%d bytes", c.Pool.OutSize))
	addField("Prealloc", fmt.Sprintf("%d", c.Pool.Prealloc))
	addField("Blocking", fmt.Sprintf("%t", c.Pool.Blocking))

	addSection("Reactor")
	addField("Queue Size", fmt.Sprintf("%d", c.QueueSize))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Server configuration
// --------------------------------------------------------------------------

// ServerTransportConfig configures the server side of a transport
type ServerTransportConfig struct {
	// Endpoint is the listen address (host:port or socket path)
	Endpoint string
	// TimeoutSecond bounds writing a single reply frame, 0 disables the limit
	TimeoutSecond int
	// WorkersPerConn limits the number of requests handled concurrently per connection
	WorkersPerConn int
	// BufferSize is the size of the pooled read buffers
	BufferSize int
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters of a server
type ServerConfig struct {
	Transport ServerTransportConfig
	// ReplyPrefix is prepended to every echoed request, empty for a plain echo
	ReplyPrefix string
	// LogLevel is one of debug, info, warn, error
	LogLevel string
}

// String returns a formatted string representation of the server configuration
func (c *ServerConfig) String() string {
	sb, addSection, addField := newConfigPrinter()

	addSection("Server Transport")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.Transport.TimeoutSecond))
	addField("Workers Per Conn", fmt.Sprintf("%d", c.Transport.WorkersPerConn))
	addField("Buffer Size", fmt.Sprintf("%d bytes", c.Transport.BufferSize))
	addSocketFields(addField, c.Transport.SocketConf, c.Transport.TCPConf)

	addSection("Handler")
	if c.ReplyPrefix == "" {
		addField("Mode", "echo")
	} else {
		addField("Mode", fmt.Sprintf("prefix %q", c.ReplyPrefix))
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func newConfigPrinter() (*strings.Builder, func(string), func(string, string)) {
	sb := &strings.Builder{}

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	return sb, addSection, addField
}

func addSocketFields(addField func(string, string), socket SocketConf, tcp TCPConf) {
	addField("Write Buffer", fmt.Sprintf("%d bytes", socket.WriteBufferSize))
	addField("Read Buffer", fmt.Sprintf("%d bytes", socket.ReadBufferSize))
	addField("TCP No Delay", fmt.Sprintf("%t", tcp.TCPNoDelay))
	addField("TCP Keep Alive", fmt.Sprintf("%d sec", tcp.TCPKeepAliveSec))
	addField("TCP Linger", fmt.Sprintf("%d sec", tcp.TCPLingerSec))
}
