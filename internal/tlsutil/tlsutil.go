package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// DefaultTLSConfig returns TLS 1.2+ with AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// ClientOptions 控制出站 HTTP 客户端的超时与连接池。
// 模型、搜索、网页抓取与向量库客户端共用此配置。
type ClientOptions struct {
	// Timeout 整个请求的超时，0 表示不设置（交由 context 控制）
	Timeout time.Duration

	// DialTimeout 建立连接超时，默认 30s
	DialTimeout time.Duration

	// MaxIdleConnsPerHost 每个 host 的空闲连接数，默认 10
	MaxIdleConnsPerHost int

	// UserAgent 非空时附加到每个请求
	UserAgent string
}

// SecureTransport returns a pooled transport using DefaultTLSConfig.
func SecureTransport(opts ClientOptions) *http.Transport {
	dial := opts.DialTimeout
	if dial <= 0 {
		dial = 30 * time.Second
	}
	perHost := opts.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = 10
	}
	return &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   dial,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// NewHTTPClient builds an *http.Client over SecureTransport.
func NewHTTPClient(opts ClientOptions) *http.Client {
	var rt http.RoundTripper = SecureTransport(opts)
	if opts.UserAgent != "" {
		rt = &userAgentTransport{next: rt, ua: opts.UserAgent}
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}

type userAgentTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.ua)
	}
	return t.next.RoundTrip(req)
}
