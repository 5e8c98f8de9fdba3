package httpclient

import (
	"net"
	"net/http"
	"time"
)

// keepaliveConns bounds how many idle connections the pool retains per
// host once holds start completing.
const keepaliveConns = 10

// NewClient builds the shared HTTP client for one trial. Capacity must
// cover every concurrent hold plus headroom for the probe stream; the
// transport pins one connection per in-flight request, so capacity is a
// hard bound on the trial's concurrency.
func NewClient(capacity int) *http.Client {
	if capacity < 1 {
		capacity = 1
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
		// HTTP/2 would multiplex the holds onto one connection; the
		// experiment needs one connection per in-flight request.
		ForceAttemptHTTP2:     false,
		MaxConnsPerHost:       capacity,
		MaxIdleConns:          capacity,
		MaxIdleConnsPerHost:   keepaliveConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
	}
}
