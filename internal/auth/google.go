package auth

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"mailtriage/internal/model"
	"mailtriage/pkg/config"
)

// GoogleMailScope 完整邮箱访问权限
const GoogleMailScope = "https://mail.google.com/"

// GoogleExchanger 通过 x/oauth2 客户端完成 Google 授权码兑换
type GoogleExchanger struct {
	config *oauth2.Config
	opts   options
}

// NewGoogleExchanger 创建 Google exchanger
func NewGoogleExchanger(cfg config.OAuthProviderConfig, opts ...Option) *GoogleExchanger {
	o := buildOptions(opts)

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{GoogleMailScope}
	}
	endpoint := google.Endpoint
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}

	return &GoogleExchanger{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		opts: o,
	}
}

func (g *GoogleExchanger) Provider() model.Provider { return model.ProviderGoogle }

// AuthURL 生成授权跳转地址：offline access 以便拿到 refresh token
func (g *GoogleExchanger) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange 用授权码换取 token
func (g *GoogleExchanger) Exchange(ctx context.Context, code string) (*model.Credential, error) {
	if g.config.ClientID == "" || g.config.ClientSecret == "" {
		return nil, &AuthError{Provider: model.ProviderGoogle, Op: "exchange", Err: ErrProviderNotConfigured}
	}
	if code == "" {
		return nil, &AuthError{Provider: model.ProviderGoogle, Op: "exchange", Err: ErrMissingCode}
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.opts.httpClient)

	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Provider: model.ProviderGoogle, Op: "exchange", Err: fmt.Errorf("failed to exchange code: %w", err)}
	}
	if tok.AccessToken == "" {
		return nil, &AuthError{Provider: model.ProviderGoogle, Op: "exchange", Err: ErrMissingAccessToken}
	}

	return credentialFromToken(model.ProviderGoogle, tok), nil
}

func credentialFromToken(p model.Provider, tok *oauth2.Token) *model.Credential {
	cred := &model.Credential{
		Provider:     p,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scope = scope
	}
	return cred
}

// expiryFromSeconds 把 expires_in 转成绝对时间，0 表示未知
func expiryFromSeconds(now time.Time, seconds int64) time.Time {
	if seconds <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(seconds) * time.Second)
}
