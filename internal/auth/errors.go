package auth

import (
	"errors"
	"fmt"

	"mailtriage/internal/model"
)

var (
	// ErrMissingCode 回调里没有 code
	ErrMissingCode = errors.New("authorization code is empty")
	// ErrMissingAccessToken 提供商返回成功但没有 access_token
	ErrMissingAccessToken = errors.New("token response has no access_token")
	// ErrProviderNotConfigured 提供商缺少 client id/secret
	ErrProviderNotConfigured = errors.New("oauth provider is not configured")
	// ErrInvalidState state 参数校验失败
	ErrInvalidState = errors.New("invalid oauth state")
)

// AuthError OAuth code 兑换失败，按提供商区分
type AuthError struct {
	Provider model.Provider
	Op       string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s oauth %s: %v", e.Provider, e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ErrorType 用于日志和指标
func (e *AuthError) ErrorType() string { return "auth_error" }

// ProviderError 提供商 token endpoint 返回的错误体，只用于日志
type ProviderError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned status %d: %s: %s", e.StatusCode, e.Code, e.Description)
}
