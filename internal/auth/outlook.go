package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"mailtriage/internal/model"
	"mailtriage/pkg/config"
)

// OutlookGrantType 标准授权码 grant type（下划线形式）
const OutlookGrantType = "authorization_code"

var defaultOutlookScopes = []string{
	"offline_access",
	"https://graph.microsoft.com/Mail.Read",
}

// OutlookExchanger 直接调用 Microsoft identity token endpoint 完成兑换
type OutlookExchanger struct {
	cfg      config.OAuthProviderConfig
	endpoint oauth2.Endpoint
	opts     options
	now      func() time.Time
}

// NewOutlookExchanger 创建 Outlook exchanger，tenant 为空时使用 common
func NewOutlookExchanger(cfg config.OAuthProviderConfig, opts ...Option) *OutlookExchanger {
	o := buildOptions(opts)

	tenant := cfg.Tenant
	if tenant == "" {
		tenant = "common"
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultOutlookScopes
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if o.endpoint != nil {
		endpoint = *o.endpoint
	}

	return &OutlookExchanger{
		cfg:      cfg,
		endpoint: endpoint,
		opts:     o,
		now:      time.Now,
	}
}

func (e *OutlookExchanger) Provider() model.Provider { return model.ProviderOutlook }

// AuthURL 生成授权跳转地址
func (e *OutlookExchanger) AuthURL(state string) string {
	c := &oauth2.Config{
		ClientID:    e.cfg.ClientID,
		RedirectURL: e.cfg.RedirectURI,
		Scopes:      e.cfg.Scopes,
		Endpoint:    e.endpoint,
	}
	return c.AuthCodeURL(state, oauth2.SetAuthURLParam("response_mode", "query"))
}

type outlookTokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange 用授权码换取 token
func (e *OutlookExchanger) Exchange(ctx context.Context, code string) (*model.Credential, error) {
	if e.cfg.ClientID == "" || e.cfg.ClientSecret == "" {
		return nil, e.fail(ErrProviderNotConfigured)
	}
	if code == "" {
		return nil, e.fail(ErrMissingCode)
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.timeout)
	defer cancel()

	form := url.Values{
		"client_id":     {e.cfg.ClientID},
		"client_secret": {e.cfg.ClientSecret},
		"code":          {code},
		"redirect_uri":  {e.cfg.RedirectURI},
		"grant_type":    {OutlookGrantType},
		"scope":         {strings.Join(e.cfg.Scopes, " ")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, e.fail(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := e.opts.httpClient.Do(req)
	if err != nil {
		return nil, e.fail(fmt.Errorf("failed to call token endpoint: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, e.fail(fmt.Errorf("failed to read token response: %w", err))
	}

	var tr outlookTokenResponse
	decodeErr := json.Unmarshal(body, &tr)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, e.fail(&ProviderError{
			StatusCode:  resp.StatusCode,
			Code:        tr.Error,
			Description: tr.ErrorDescription,
		})
	}
	if decodeErr != nil {
		return nil, e.fail(fmt.Errorf("failed to decode token response: %w", decodeErr))
	}
	if tr.AccessToken == "" {
		return nil, e.fail(ErrMissingAccessToken)
	}

	return &model.Credential{
		Provider:     model.ProviderOutlook,
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
		Scope:        tr.Scope,
		Expiry:       expiryFromSeconds(e.now(), tr.ExpiresIn),
	}, nil
}

func (e *OutlookExchanger) fail(err error) *AuthError {
	return &AuthError{Provider: model.ProviderOutlook, Op: "exchange", Err: err}
}
