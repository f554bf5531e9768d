package client

import (
	"net/http"
	"time"

	"streamhub/work/config"
)

// HeaderSettingClient wraps http.Client to automatically set headers on
// every outbound request: a browser-like User-Agent fallback, keep-alive,
// and cache suppression. Redirects are followed by default, which the media
// proxy relies on for origins that bounce through CDN signers.
type HeaderSettingClient struct {
	Client *http.Client
	config *config.Config
}

// NewHeaderSettingClient builds the shared outbound HTTP client. There is no
// overall timeout because the same transport carries long-running media
// transfers; header reads are bounded so dead origins fail fast.
func NewHeaderSettingClient(config *config.Config) *HeaderSettingClient {
	client := &http.Client{
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			DisableKeepAlives:     false,
			ResponseHeaderTimeout: 30 * time.Second,
		},
	}

	return &HeaderSettingClient{
		Client: client,
		config: config,
	}
}

func (hsc *HeaderSettingClient) Do(req *http.Request) (*http.Response, error) {
	hsc.setHeaders(req)
	return hsc.Client.Do(req)
}

func (hsc *HeaderSettingClient) setHeaders(req *http.Request) {
	// never clobber a caller-supplied User-Agent; the proxy forwards the
	// player's own UA when it sends one
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", hsc.config.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Cache-Control", "no-cache")
}
