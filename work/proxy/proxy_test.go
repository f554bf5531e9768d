package proxy

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamhub/work/buffer"
	"streamhub/work/client"
	"streamhub/work/config"
)

func newTestProxy() *Proxy {
	cfg := &config.Config{UserAgent: "fallback-agent"}
	return NewProxy(cfg, client.NewHeaderSettingClient(cfg), buffer.NewPool(32*1024))
}

func TestProxyMissingURL(t *testing.T) {
	p := newTestProxy()
	req := httptest.NewRequest(http.MethodGet, "/proxy", nil)
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Missing url"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestProxyOptionsPreflight(t *testing.T) {
	p := newTestProxy()
	req := httptest.NewRequest(http.MethodOptions, "/proxy?url=http://example.com/v.mp4", nil)
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "GET")
	assert.Empty(t, rec.Body.String())
}

func TestProxyStreamsFullPayload(t *testing.T) {
	payload := strings.Repeat("v", 100_000)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte(payload))
	}))
	defer upstream.Close()

	p := newTestProxy()
	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+upstream.URL+"/v.mp4", nil)
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestProxyForwardsRangeAndPreservesPartialContent(t *testing.T) {
	payload := "0123456789"
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader := r.Header.Get("Range")
		assert.Equal(t, "bytes=2-5", rangeHeader)

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Range", fmt.Sprintf("bytes 2-5/%d", len(payload)))
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(payload[2:6]))
	}))
	defer upstream.Close()

	p := newTestProxy()
	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+upstream.URL+"/v.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "2345", rec.Body.String())
	assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
}

func TestProxyUpstreamErrorBecomesJSON(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	p := newTestProxy()
	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+upstream.URL+"/v.mp4", nil)
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"Upstream returned 403"}`, rec.Body.String())
}

func TestProxyHeadEchoesUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Type", "video/mp4")
			w.Header().Set("Content-Length", "12345")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	p := newTestProxy()
	req := httptest.NewRequest(http.MethodHead, "/proxy?url="+upstream.URL+"/v.mp4", nil)
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	// HEAD mirrors the upstream status directly, no JSON body
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestProxyForwardsCallerUserAgent(t *testing.T) {
	var gotUA string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer upstream.Close()

	p := newTestProxy()
	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+upstream.URL+"/v.mp4", nil)
	req.Header.Set("User-Agent", "player/1.0")
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	assert.Equal(t, "player/1.0", gotUA)
}

func TestProxyInjectsFallbackUserAgent(t *testing.T) {
	var gotUA string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer upstream.Close()

	p := newTestProxy()
	req := httptest.NewRequest(http.MethodGet, "/proxy?url="+upstream.URL+"/v.mp4", nil)
	rec := httptest.NewRecorder()

	p.HandleProxy(rec, req)

	assert.Equal(t, "fallback-agent", gotUA)
}
