package server

import (
	"fmt"

	"github.com/ValentinKolb/xio/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
)

// Echo replies with the request
func Echo(_ uint64, req []byte) []byte {
	return req
}

// Prefix replies with prefix followed by the request
func Prefix(prefix string) transport.ServerHandleFunc {
	p := []byte(prefix)
	return func(_ uint64, req []byte) []byte {
		resp := make([]byte, 0, len(p)+len(req))
		resp = append(resp, p...)
		return append(resp, req...)
	}
}

// Instrument counts the requests and the request and reply bytes passing through handler
func Instrument(set *metrics.Set, name string, handler transport.ServerHandleFunc) transport.ServerHandleFunc {
	requests := set.GetOrCreateCounter(fmt.Sprintf(`xio_server_requests_total{server=%q}`, name))
	bytesIn := set.GetOrCreateCounter(fmt.Sprintf(`xio_server_request_bytes_total{server=%q}`, name))
	bytesOut := set.GetOrCreateCounter(fmt.Sprintf(`xio_server_reply_bytes_total{server=%q}`, name))
	return func(sessionID uint64, req []byte) []byte {
		requests.Inc()
		bytesIn.Add(len(req))
		resp := handler(sessionID, req)
		bytesOut.Add(len(resp))
		return resp
	}
}
