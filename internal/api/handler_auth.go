package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mailtriage/internal/model"
	"mailtriage/pkg/logger"
)

// TokenExchanger 由 auth.TokenExchange 实现
type TokenExchanger interface {
	Exchange(ctx context.Context, p model.Provider, code string) (*model.Credential, error)
	AuthURL(p model.Provider, state string) (string, error)
	Supports(p model.Provider) bool
}

// StateSigner 由 auth.StateSigner 实现
type StateSigner interface {
	Issue(p model.Provider) (string, error)
	Verify(state string, p model.Provider) error
}

type AuthHandler struct {
	exchanger    TokenExchanger
	state        StateSigner
	requireState bool
	logger       *zap.Logger
}

func NewAuthHandler(exchanger TokenExchanger, state StateSigner, requireState bool, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		exchanger:    exchanger,
		state:        state,
		requireState: requireState,
		logger:       logger,
	}
}

var errUnknownProvider = errors.New("unknown provider")

func (h *AuthHandler) provider(c *gin.Context) (model.Provider, error) {
	p := model.Provider(c.Param("provider"))
	switch p {
	case model.ProviderGoogle, model.ProviderOutlook:
	default:
		return "", errUnknownProvider
	}
	if !h.exchanger.Supports(p) {
		return "", errUnknownProvider
	}
	return p, nil
}

// Redirect handles GET /auth/:provider
func (h *AuthHandler) Redirect(c *gin.Context) {
	p, err := h.provider(c)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "provider not available"})
		return
	}
	log := logger.WithTrace(c.Request.Context(), h.logger)

	state, err := h.state.Issue(p)
	if err != nil {
		log.Error("Failed to issue oauth state", zap.String("provider", string(p)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	url, err := h.exchanger.AuthURL(p, state)
	if err != nil {
		log.Error("Failed to build auth url", zap.String("provider", string(p)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Callback handles GET /auth/:provider/callback
func (h *AuthHandler) Callback(c *gin.Context) {
	p, err := h.provider(c)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "provider not available"})
		return
	}
	log := logger.WithTrace(c.Request.Context(), h.logger).With(zap.String("provider", string(p)))

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}

	state := c.Query("state")
	if state != "" || h.requireState {
		if err := h.state.Verify(state, p); err != nil {
			log.Warn("Rejected oauth callback", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid state"})
			return
		}
	}

	cred, err := h.exchanger.Exchange(c.Request.Context(), p, code)
	if err != nil {
		// 细节只写日志，已在 TokenExchange 中记录
		c.String(http.StatusInternalServerError, "Error retrieving access token")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Authentication successful",
		"token":   cred,
	})
}
