package krishichat

import (
	"net"
	"net/http"
	"time"
)

// newDefaultHTTPClient builds the client shared by the REST services and the
// conversation stream. Timeouts live on the transport, never on the client:
// a client-level timeout would cut conversation streams off mid-response, so
// bounded calls get their limits from per-request context deadlines instead.
func newDefaultHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			ExpectContinueTimeout: time.Second,
		},
	}
}
