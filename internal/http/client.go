// Package http builds the HTTP clients shared by the sfs API, S3 and Azure
// backends: a tuned transport with proxy support and the retry policy for
// replayable API requests.
package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/fossMeDaddy/sfs-cli/internal/config"
	"github.com/fossMeDaddy/sfs-cli/internal/constants"
	"github.com/fossMeDaddy/sfs-cli/internal/logging"
)

// CreateOptimizedClient creates an HTTP client optimized for large transfers with proxy support.
//
// Key features:
//   - Proxy support (uses ConfigureHTTPClient as base)
//   - Large connection pool for concurrent part uploads
//   - HTTP/2 with runtime toggle (DISABLE_HTTP2 env var)
//   - Disabled compression (ciphertext and archives do not compress)
//
// HTTP/2 is turned off when a proxy is active unless FORCE_HTTP2=true, since
// proxies tend to break multiplexed streams mid-transfer.
//
// If cfg is nil, proxy settings are read from the environment.
func CreateOptimizedClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	var baseClient *nethttp.Client
	var err error

	if cfg != nil {
		baseClient, err = ConfigureHTTPClient(cfg, logger)
		if err != nil {
			return nil, err
		}
	} else {
		tr := newTransport()
		tr.Proxy = nethttp.ProxyFromEnvironment
		baseClient = &nethttp.Client{Transport: tr}
	}

	tr, ok := baseClient.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; leave it as configured.
		baseClient.Timeout = 0
		return baseClient, nil
	}

	tr.MaxIdleConns = 512
	tr.MaxIdleConnsPerHost = 100
	tr.MaxConnsPerHost = 100 // must be >= MaxIdleConnsPerHost
	tr.IdleConnTimeout = constants.HTTPIdleConnTimeout
	tr.TLSHandshakeTimeout = constants.HTTPTLSHandshakeTimeout
	tr.ExpectContinueTimeout = constants.HTTPExpectContinueTimeout

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" {
		disableHTTP2(tr)
	}

	var proxyActive bool
	if cfg != nil {
		proxyActive = cfg.ProxyActive()
	} else {
		proxyActive = os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	}
	if proxyActive && os.Getenv("FORCE_HTTP2") != "true" {
		disableHTTP2(tr)
	}

	baseClient.Transport = tr
	baseClient.Timeout = 0
	return baseClient, nil
}

func disableHTTP2(tr *nethttp.Transport) {
	tr.ForceAttemptHTTP2 = false
	tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
}
