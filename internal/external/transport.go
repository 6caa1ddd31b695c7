package external

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// ErrTooManyRedirects is returned when the redirect limit is exceeded.
var ErrTooManyRedirects = errors.New("tracker: too many redirects")

// TransportConfig bounds the worst-case latency of one tracker call.
type TransportConfig struct {
	// ConnectTimeout covers dialing and the TLS handshake.
	ConnectTimeout time.Duration
	// InactivityTimeout covers waiting for response headers and idle
	// keep-alive connections.
	InactivityTimeout time.Duration
	MaxRedirects      int
}

// NewHTTPClient builds the client used by the tracker. There is no overall
// request timeout: attachment uploads can be large, and a stalled peer is
// caught by the inactivity timeout instead.
func NewHTTPClient(cfg TransportConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.InactivityTimeout,
		IdleConnTimeout:       cfg.InactivityTimeout,
		ExpectContinueTimeout: time.Second,
		MaxIdleConnsPerHost:   4,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{
		Transport:     transport,
		CheckRedirect: CheckRedirect(cfg.MaxRedirects),
	}
}

// CheckRedirect returns an http.Client CheckRedirect function that stops
// after maxRedirects hops.
func CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) > maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		return nil
	}
}
