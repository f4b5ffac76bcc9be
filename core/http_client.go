package core

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultRoute is the source-address sentinel meaning "do not bind, let the
// OS pick the egress address".
const DefaultRoute = "none"

// IsDefaultRoute reports whether addr asks for default routing.
func IsDefaultRoute(addr string) bool {
	return addr == "" || addr == DefaultRoute
}

// GetHTTPClient returns an HTTP client whose outbound connections egress from
// sourceAddress. With the DefaultRoute sentinel the client uses normal routing.
//
// Each client owns its transport; callers should call CloseIdleConnections
// when the exchange is over so bound sockets are not kept around.
func GetHTTPClient(sourceAddress string, timeout time.Duration) (*http.Client, error) {
	transport, err := boundTransport(sourceAddress)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// GetStreamingHTTPClient returns a client for long-lived response streams.
// There is no overall deadline; headerTimeout only bounds the wait for
// response headers, so readers must enforce their own idle limit on the body.
func GetStreamingHTTPClient(sourceAddress string, headerTimeout time.Duration) (*http.Client, error) {
	transport, err := boundTransport(sourceAddress)
	if err != nil {
		return nil, err
	}
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}, nil
}

func boundTransport(sourceAddress string) (*http.Transport, error) {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	if !IsDefaultRoute(sourceAddress) {
		ip := net.ParseIP(strings.Trim(strings.TrimSpace(sourceAddress), "[]"))
		if ip == nil {
			return nil, fmt.Errorf("invalid source address %q", sourceAddress)
		}
		dialer.LocalAddr = &net.TCPAddr{IP: ip}
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	return transport, nil
}
