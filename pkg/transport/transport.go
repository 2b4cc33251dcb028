// Package transport builds the HTTP clients used to talk to the feed and the
// backend.
package transport

import (
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/http2"
)

// BuildHTTP2Client returns a client whose transport negotiates HTTP/2 over
// TLS and falls back to HTTP/1.1 otherwise. timeout bounds a whole request.
func BuildHTTP2Client(timeout time.Duration) (*http.Client, error) {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if err := http2.ConfigureTransport(t); err != nil {
		return nil, errors.Wrap(err, "failed to configure HTTP/2 transport")
	}
	return &http.Client{Transport: t, Timeout: timeout}, nil
}
