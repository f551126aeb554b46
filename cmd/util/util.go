package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/ValentinKolb/xio/rpc/transport/http"
	"github.com/ValentinKolb/xio/rpc/transport/mux"
	"github.com/ValentinKolb/xio/rpc/transport/tcp"
	"github.com/ValentinKolb/xio/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the connection, pool and reactor flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds for connecting and writing a request"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("The address of the xio server (host:port, socket path or http url)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time for the transport (in seconds, only for tcp, -1 keeps the OS default)"))

	key = "pool-capacity"
	cmd.PersistentFlags().Int(key, 256, WrapString("The number of messages in the pool, at most this many requests are in flight"))

	key = "pool-in-size"
	cmd.PersistentFlags().Int(key, 100, WrapString("The size of the reply region of every message (in bytes)"))

	key = "pool-out-size"
	cmd.PersistentFlags().Int(key, 100, WrapString("The size of the request region of every message (in bytes)"))

	key = "pool-prealloc"
	cmd.PersistentFlags().Int(key, 0, WrapString("How many messages are backed by the shared arena at start (0 = all)"))

	key = "pool-blocking"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether acquiring a message waits for a free one instead of failing"))

	key = "queue-size"
	cmd.PersistentFlags().Int(key, 1024, WrapString("The capacity of the reactor queues, should not be smaller than the pool capacity"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error), optionally followed by per component levels, e.g. info,reactor=debug"))
}

// InitConfig loads .env files and lets viper read XIO_<flag> environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("xio")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads the client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		Transport: common.ClientTransportConfig{
			Endpoint:      viper.GetString("endpoint"),
			TimeoutSecond: viper.GetInt("timeout"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
		Pool: common.PoolConf{
			Name:     "client",
			Capacity: viper.GetInt("pool-capacity"),
			InSize:   viper.GetInt("pool-in-size"),
			OutSize:  viper.GetInt("pool-out-size"),
			Prealloc: viper.GetInt("pool-prealloc"),
			Blocking: viper.GetBool("pool-blocking"),
		},
		QueueSize: viper.GetInt("queue-size"),
		LogLevel:  viper.GetString("log-level"),
	}
}

// GetClientTransport creates the client transport selected by the transport flag
func GetClientTransport(config common.ClientTransportConfig) (transport.IRPCClientTransport, error) {
	switch name := viper.GetString("transport"); name {
	case "http":
		return http.NewHttpClientTransport(config), nil
	case "tcp", "mux":
		return tcp.NewTCPClientTransport(config), nil
	case "unix":
		return unix.NewUnixClientTransport(config), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// GetServerTransport creates the server transport selected by the transport flag
func GetServerTransport(config common.ServerConfig) (transport.IRPCServerTransport, error) {
	switch name := viper.GetString("transport"); name {
	case "http":
		return http.NewHttpServerTransport(config), nil
	case "tcp":
		return tcp.NewTCPServerTransport(config.Transport), nil
	case "unix":
		return unix.NewUnixServerTransport(config.Transport), nil
	case "mux":
		return mux.NewMuxServerTransport(config), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", name)
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
