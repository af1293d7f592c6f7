package auth

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const defaultExchangeTimeout = 10 * time.Second

type options struct {
	httpClient *http.Client
	timeout    time.Duration
	endpoint   *oauth2.Endpoint
}

// Option 配置 exchanger
type Option func(*options)

// WithHTTPClient 指定调用 token endpoint 的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithTimeout 设置单次兑换的超时时间
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithEndpoint 覆盖提供商的 auth/token URL
func WithEndpoint(e oauth2.Endpoint) Option {
	return func(o *options) { o.endpoint = &e }
}

func buildOptions(opts []Option) options {
	o := options{
		httpClient: http.DefaultClient,
		timeout:    defaultExchangeTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
