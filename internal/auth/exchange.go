package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
	"mailtriage/pkg/metrics"
)

// Exchanger 单个提供商的授权码兑换
type Exchanger interface {
	Provider() model.Provider
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*model.Credential, error)
}

// TokenExchange 对外的兑换入口：记录日志和指标，不缓存也不持久化任何 token
type TokenExchange struct {
	exchangers map[model.Provider]Exchanger
	logger     *zap.Logger
}

func NewTokenExchange(logger *zap.Logger, exchangers ...Exchanger) *TokenExchange {
	m := make(map[model.Provider]Exchanger, len(exchangers))
	for _, e := range exchangers {
		m[e.Provider()] = e
	}
	return &TokenExchange{exchangers: m, logger: logger}
}

// ExchangeGoogleCode Google 授权码兑换
func (t *TokenExchange) ExchangeGoogleCode(ctx context.Context, code string) (*model.Credential, error) {
	return t.Exchange(ctx, model.ProviderGoogle, code)
}

// ExchangeOutlookCode Outlook 授权码兑换
func (t *TokenExchange) ExchangeOutlookCode(ctx context.Context, code string) (*model.Credential, error) {
	return t.Exchange(ctx, model.ProviderOutlook, code)
}

// Exchange 按提供商兑换，失败时返回 *AuthError
func (t *TokenExchange) Exchange(ctx context.Context, p model.Provider, code string) (*model.Credential, error) {
	log := logger.WithTrace(ctx, t.logger).With(zap.String("provider", string(p)))

	e, ok := t.exchangers[p]
	if !ok {
		err := &AuthError{Provider: p, Op: "exchange", Err: fmt.Errorf("unknown provider")}
		log.Error("OAuth exchange failed", zap.Error(err))
		return nil, err
	}

	start := time.Now()
	cred, err := e.Exchange(ctx, code)
	if err != nil {
		metrics.RecordOAuthExchangeLatency(string(p), "error", time.Since(start))
		log.Error("OAuth exchange failed", zap.Error(err))
		return nil, err
	}
	metrics.RecordOAuthExchangeLatency(string(p), "ok", time.Since(start))

	log.Info("OAuth exchange succeeded",
		zap.Bool("has_refresh_token", cred.RefreshToken != ""),
		zap.Time("expiry", cred.Expiry),
	)
	return cred, nil
}

// AuthURL 返回提供商授权地址
func (t *TokenExchange) AuthURL(p model.Provider, state string) (string, error) {
	e, ok := t.exchangers[p]
	if !ok {
		return "", &AuthError{Provider: p, Op: "auth_url", Err: fmt.Errorf("unknown provider")}
	}
	return e.AuthURL(state), nil
}

// Supports 是否配置了该提供商
func (t *TokenExchange) Supports(p model.Provider) bool {
	_, ok := t.exchangers[p]
	return ok
}
