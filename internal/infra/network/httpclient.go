package network

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient builds the shared client for the ranking and bridge service
// APIs. These are read-only quote lookups on the scan path, so timeouts stay
// tight and connections are pooled per host.
func NewHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   3 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr, Timeout: 5 * time.Second}
}
