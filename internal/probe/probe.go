// Package probe issues single classified HTTP requests against the
// filter's forward-proxy interface.
package probe

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"fencebench/internal/model"
)

// Client issues one GET per Probe call, either through the filter proxy
// or directly. It performs no retries: a failed probe is one Failed
// data point.
type Client struct {
	proxied *http.Client
	direct  *http.Client
}

// New builds a client routing proxied probes through proxyURL.
func New(proxyURL string, timeout time.Duration) *Client {
	proxy, err := url.Parse(proxyURL)
	if err != nil {
		// Fixed local address; a parse failure is a programming error.
		panic("probe: bad proxy url: " + err.Error())
	}

	dialer := &net.Dialer{Timeout: timeout}

	proxiedTransport := &http.Transport{
		Proxy:                 http.ProxyURL(proxy),
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: timeout,
	}
	directTransport := &http.Transport{
		DialContext:           dialer.DialContext,
		DisableKeepAlives:     true,
		ResponseHeaderTimeout: timeout,
	}

	return &Client{
		proxied: &http.Client{Timeout: timeout, Transport: proxiedTransport},
		direct:  &http.Client{Timeout: timeout, Transport: directTransport},
	}
}

// Probe issues one GET and classifies the observable outcome. Elapsed
// is wall clock from request issue to body completion, including
// failures.
func (c *Client) Probe(ctx context.Context, target string, viaProxy bool) model.ProbeOutcome {
	cli := c.direct
	if viaProxy {
		cli = c.proxied
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return model.ProbeOutcome{Elapsed: time.Since(start), Class: model.Failed, Err: err}
	}

	resp, err := cli.Do(req)
	if err != nil {
		// Transport-level failure. Deliberately not Blocked: accuracy
		// scoring depends on the distinction.
		return model.ProbeOutcome{Elapsed: time.Since(start), Class: model.Failed, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return model.ProbeOutcome{Elapsed: elapsed, Class: model.Failed, Err: err}
	}

	if blockedBody(string(body)) {
		return model.ProbeOutcome{Elapsed: elapsed, Class: model.Blocked}
	}
	return model.ProbeOutcome{Elapsed: elapsed, Class: model.Allowed}
}

// blockedBody is the only place that knows what the filter's block page
// looks like.
func blockedBody(body string) bool {
	return strings.Contains(body, model.ProductMarker) && strings.Contains(body, model.BlockedMarker)
}
