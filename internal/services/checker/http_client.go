package checker

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// newHTTPClient builds the client used by http monitors. The per-check
// deadline comes from the request context, so the client has no own timeout.
func newHTTPClient(cfg Config, verifyTLS bool) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
		}).DialContext,
		DisableKeepAlives:     true,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !verifyTLS,
			MinVersion:         tls.VersionTLS12,
		},
	}

	client := &http.Client{Transport: transport}
	if !cfg.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}
