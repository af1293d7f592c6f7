package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"

	"mailtriage/pkg/circuitbreaker"
)

// typedError 由业务错误实现，用于给出更精确的 error_type
type typedError interface {
	ErrorType() string
}

// ClassifyError 把错误归类为日志和指标使用的 error_type
// Returns: (isTransient, errorType)
func ClassifyError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	// Context 超时 - 暂时性
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}

	if errors.Is(err, circuitbreaker.ErrOpen) {
		return true, "circuit_open"
	}

	// JSON decode errors - 数据格式错误
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	// Network errors
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	var te typedError
	if errors.As(err, &te) {
		return false, te.ErrorType()
	}

	return false, "unknown_error"
}
