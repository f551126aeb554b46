package server

import (
	"net"
	"strings"
	"testing"

	"github.com/ValentinKolb/xio/rpc/common"
	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
)

func TestHandlers(t *testing.T) {
	tests := []struct {
		name    string
		handler transport.ServerHandleFunc
		req     string
		want    string
	}{
		{"echo", Echo, "hello", "hello"},
		{"echo empty", Echo, "", ""},
		{"prefix", Prefix("re: "), "hello", "re: hello"},
		{"prefix empty request", Prefix("re: "), "", "re: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(tt.handler(1, []byte(tt.req))); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestInstrument(t *testing.T) {
	set := metrics.NewSet()
	handler := Instrument(set, "test", Prefix(">"))

	handler(1, []byte("abc"))
	handler(2, []byte("de"))

	var sb strings.Builder
	set.WritePrometheus(&sb)
	out := sb.String()
	for _, want := range []string{
		`xio_server_requests_total{server="test"} 2`,
		`xio_server_request_bytes_total{server="test"} 5`,
		`xio_server_reply_bytes_total{server="test"} 7`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in metrics output:\n%s", want, out)
		}
	}
}

// recordingTransport captures the registered handler
type recordingTransport struct {
	handler transport.ServerHandleFunc
	config  common.ServerConfig
	closed  bool
}

func (r *recordingTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	r.handler = handler
}

func (r *recordingTransport) Listen(config common.ServerConfig) error {
	r.config = config
	return nil
}

func (r *recordingTransport) Serve(net.Listener) error {
	return nil
}

func (r *recordingTransport) Close() error {
	r.closed = true
	return nil
}

func TestServerUsesReplyPrefix(t *testing.T) {
	tr := &recordingTransport{}
	config := common.ServerConfig{ReplyPrefix: "pong: ", Transport: common.ServerTransportConfig{Endpoint: "127.0.0.1:0"}}
	s := NewRPCServer(config, tr, nil)

	if err := s.Serve(); err != nil {
		t.Fatalf("Serve failed: %v", err)
	}
	if tr.config.Transport.Endpoint != "127.0.0.1:0" {
		t.Errorf("Expected the config to be passed to the transport, got %+v", tr.config)
	}
	if got := string(tr.handler(1, []byte("ping"))); got != "pong: ping" {
		t.Errorf("Expected prefixed reply, got %q", got)
	}
	if err := s.Close(); err != nil || !tr.closed {
		t.Errorf("Expected Close to close the transport, got %v", err)
	}

	var sb strings.Builder
	s.Metrics().WritePrometheus(&sb)
	if !strings.Contains(sb.String(), `xio_server_requests_total{server="rpc"} 1`) {
		t.Errorf("Expected one counted request:\n%s", sb.String())
	}
}
